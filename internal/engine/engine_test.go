package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1of9europe/ViteFait-sub001/internal/config"
	"github.com/1of9europe/ViteFait-sub001/internal/db"
	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine"
	"github.com/1of9europe/ViteFait-sub001/internal/engine/auth"
	"github.com/1of9europe/ViteFait-sub001/internal/gateway"
	"github.com/1of9europe/ViteFait-sub001/internal/migrate"
	"github.com/1of9europe/ViteFait-sub001/internal/repo"
)

type testEnv struct {
	Engine    engine.Engine
	Gateway   *gateway.Fake
	Ctx       context.Context
	Client    auth.Actor
	Assistant auth.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fake := gateway.NewFake()
	eng := engine.New(conn, fake, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "client-1", Role: domain.RoleClient, Verified: true, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "assistant-1", Role: domain.RoleAssistant, Verified: true, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "assistant-2", Role: domain.RoleAssistant, CreatedAt: "2026-03-01T00:00:00Z"},
	} {
		if err := eng.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return testEnv{
		Engine:    eng,
		Gateway:   fake,
		Ctx:       ctx,
		Client:    auth.Actor{ID: "client-1", Role: domain.RoleClient},
		Assistant: auth.Actor{ID: "assistant-1", Role: domain.RoleAssistant},
	}
}

func draft() engine.MissionDraft {
	return engine.MissionDraft{
		Title:           "Pick up dry cleaning",
		PickupAddress:   "12 rue de la Paix, Paris",
		PickupLatitude:  48.8686,
		PickupLongitude: 2.3314,
		TimeWindowStart: "2026-03-02T09:00:00Z",
		TimeWindowEnd:   "2026-03-02T11:00:00Z",
		PriceEstimate:   4500,
	}
}

func (env testEnv) createMission(t *testing.T) domain.Mission {
	t.Helper()
	m, err := env.Engine.CreateMission(env.Ctx, env.Client, draft())
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func (env testEnv) acceptedMission(t *testing.T) domain.Mission {
	t.Helper()
	m := env.createMission(t)
	m, err := env.Engine.Accept(env.Ctx, m.ID, env.Assistant)
	if err != nil {
		t.Fatalf("accept mission: %v", err)
	}
	return m
}

func (env testEnv) openEscrow(t *testing.T, missionID string) domain.Payment {
	t.Helper()
	p, secret, err := env.Engine.CreateIntent(env.Ctx, missionID, env.Client, 4500, "EUR")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if secret == "" {
		t.Fatalf("expected client secret")
	}
	return p
}

func TestMissionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t)
	if m.Status != domain.MissionPending {
		t.Fatalf("expected pending, got %s", m.Status)
	}
	if m.Currency != "EUR" || m.Priority != domain.PriorityMedium {
		t.Fatalf("expected defaults applied, got %s %s", m.Currency, m.Priority)
	}

	m, err := env.Engine.Accept(env.Ctx, m.ID, env.Assistant)
	if err != nil || m.Status != domain.MissionAccepted {
		t.Fatalf("accept: %v (status %s)", err, m.Status)
	}
	if m.AssistantID == nil || *m.AssistantID != "assistant-1" || m.AcceptedAt == nil {
		t.Fatalf("expected assistant assignment recorded")
	}

	m, err = env.Engine.Start(env.Ctx, m.ID, env.Assistant)
	if err != nil || m.Status != domain.MissionInProgress {
		t.Fatalf("start: %v (status %s)", err, m.Status)
	}

	m, err = env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 5000)
	if err != nil || m.Status != domain.MissionCompleted {
		t.Fatalf("complete: %v (status %s)", err, m.Status)
	}
	if m.FinalPrice != 5000 || m.CompletedAt == nil {
		t.Fatalf("expected final price recorded")
	}

	// completed is terminal
	_, err = env.Engine.Cancel(env.Ctx, m.ID, env.Client, "too late")
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	hist, err := env.Engine.Repo.ListStatusHistory(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("expected 4 history rows, got %d", len(hist))
	}
}

func TestStartSkippingAcceptRejected(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t)
	_, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant)
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestAcceptAuthorization(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t)

	// clients cannot accept
	_, err := env.Engine.Accept(env.Ctx, m.ID, env.Client)
	var denied auth.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denied, got %v", err)
	}

	// second assistant cannot claim a taken mission
	if _, err := env.Engine.Accept(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err = env.Engine.Accept(env.Ctx, m.ID, auth.Actor{ID: "assistant-2", Role: domain.RoleAssistant})
	if err == nil {
		t.Fatalf("expected claim conflict")
	}

	// only the assigned assistant may start
	_, err = env.Engine.Start(env.Ctx, m.ID, auth.Actor{ID: "assistant-2", Role: domain.RoleAssistant})
	if !errors.As(err, &denied) {
		t.Fatalf("expected denied for other assistant, got %v", err)
	}
}

func TestCompleteSettlesEscrow(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	if _, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("start: %v", err)
	}

	m, err := env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500)
	if err != nil || m.Status != domain.MissionCompleted {
		t.Fatalf("complete: %v (status %s)", err, m.Status)
	}
	p, err = env.Engine.Repo.GetPayment(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != domain.PaymentCompleted || p.CompletedAt == nil {
		t.Fatalf("expected payment completed, got %s", p.Status)
	}
}

func TestCompleteBlockedByFailedPayment(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	if _, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.Gateway.NextStatus = gateway.IntentFailed

	_, err := env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500)
	var dep engine.PaymentDependencyError
	if !errors.As(err, &dep) {
		t.Fatalf("expected payment dependency error, got %v", err)
	}
	m, _ = env.Engine.Repo.GetMission(env.Ctx, m.ID)
	if m.Status != domain.MissionInProgress {
		t.Fatalf("mission must be untouched, got %s", m.Status)
	}
	p, _ = env.Engine.Repo.GetPayment(env.Ctx, p.ID)
	if p.Status != domain.PaymentFailed || p.FailureReason == nil {
		t.Fatalf("expected failed payment with reason, got %s", p.Status)
	}

	// with the failed attempt out of the way a retry goes through
	m, err = env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500)
	if err != nil || m.Status != domain.MissionCompleted {
		t.Fatalf("retry complete: %v (status %s)", err, m.Status)
	}
}

func TestGatewayOutageLeavesPaymentPending(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	if _, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.Gateway.Err = gateway.ErrUnavailable

	_, err := env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500)
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected unavailable through the dependency error, got %v", err)
	}
	p, _ = env.Engine.Repo.GetPayment(env.Ctx, p.ID)
	if p.Status != domain.PaymentPending {
		t.Fatalf("outage must not change local state, got %s", p.Status)
	}

	env.Gateway.Err = nil
	m, err = env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500)
	if err != nil || m.Status != domain.MissionCompleted {
		t.Fatalf("retry after outage: %v (status %s)", err, m.Status)
	}
}

func TestCancelReleasesEscrow(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)

	m, err := env.Engine.Cancel(env.Ctx, m.ID, env.Client, "plans changed")
	if err != nil || m.Status != domain.MissionCancelled {
		t.Fatalf("cancel: %v (status %s)", err, m.Status)
	}
	if m.CancellationReason == nil || *m.CancellationReason != "plans changed" {
		t.Fatalf("expected reason recorded")
	}
	p, _ = env.Engine.Repo.GetPayment(env.Ctx, p.ID)
	if p.Status != domain.PaymentCancelled {
		t.Fatalf("expected payment cancelled, got %s", p.Status)
	}
}

func TestCancelAfterProviderSettled(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	env.Gateway.Settle(p.ProviderIntentID, gateway.IntentSucceeded, "")

	_, err := env.Engine.CancelPayment(env.Ctx, p.ID, env.Client)
	var settled engine.CannotCancelSettledError
	if !errors.As(err, &settled) {
		t.Fatalf("expected settled error, got %v", err)
	}
	// local row caught up with the provider
	p, _ = env.Engine.Repo.GetPayment(env.Ctx, p.ID)
	if p.Status != domain.PaymentCompleted {
		t.Fatalf("expected completed after catch-up, got %s", p.Status)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)

	first, err := env.Engine.ConfirmPayment(env.Ctx, p.ID, env.Client)
	if err != nil || first.Status != domain.PaymentCompleted {
		t.Fatalf("confirm: %v (status %s)", err, first.Status)
	}
	second, err := env.Engine.ConfirmPayment(env.Ctx, p.ID, env.Client)
	if err != nil || second.Status != domain.PaymentCompleted {
		t.Fatalf("repeat confirm must be a no-op: %v", err)
	}
}

func TestConfirmWhileProviderProcessing(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	env.Gateway.NextStatus = gateway.IntentProcessing

	p, err := env.Engine.ConfirmPayment(env.Ctx, p.ID, env.Client)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if p.Status != domain.PaymentPending {
		t.Fatalf("unsettled intent must stay pending, got %s", p.Status)
	}
}

func TestRefund(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)

	// refund requires a settled charge
	_, err := env.Engine.RefundPayment(env.Ctx, p.ID, env.Client, "changed my mind")
	var fin engine.AlreadyFinalizedError
	if !errors.As(err, &fin) {
		t.Fatalf("expected finalized error on pending refund, got %v", err)
	}

	if _, err := env.Engine.ConfirmPayment(env.Ctx, p.ID, env.Client); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	p, err = env.Engine.RefundPayment(env.Ctx, p.ID, env.Client, "mission disputed")
	if err != nil || p.Status != domain.PaymentRefunded {
		t.Fatalf("refund: %v (status %s)", err, p.Status)
	}

	// a terminal payment frees the pending slot for a fresh attempt
	env.openEscrow(t, m.ID)
}

func TestRefundDeniedForAssistant(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	if _, err := env.Engine.ConfirmPayment(env.Ctx, p.ID, env.Client); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	_, err := env.Engine.RefundPayment(env.Ctx, p.ID, env.Assistant, "nope")
	var denied auth.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denied, got %v", err)
	}
}

func TestOnePendingPaymentPerMission(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	env.openEscrow(t, m.ID)

	_, _, err := env.Engine.CreateIntent(env.Ctx, m.ID, env.Client, 4500, "EUR")
	if !errors.Is(err, repo.ErrPendingPaymentExists) {
		t.Fatalf("expected pending payment conflict, got %v", err)
	}
}

// raceGateway lets a second escrow attempt run to completion between the
// first attempt's duplicate pre-check and its insert, reproducing the lost
// race deterministically.
type raceGateway struct {
	*gateway.Fake
	once   sync.Once
	winner func()
}

func (g *raceGateway) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (gateway.Intent, error) {
	it, err := g.Fake.CreateIntent(ctx, p)
	g.once.Do(g.winner)
	return it, err
}

func TestConcurrentIntentCreationOneWinner(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)

	winner := env.Engine
	rg := &raceGateway{Fake: env.Gateway}
	rg.winner = func() {
		if _, _, err := winner.CreateIntent(env.Ctx, m.ID, env.Client, 4500, "EUR"); err != nil {
			t.Errorf("winning attempt: %v", err)
		}
	}
	loser := env.Engine
	loser.Gateway = rg

	_, _, err := loser.CreateIntent(env.Ctx, m.ID, env.Client, 4500, "EUR")
	if !errors.Is(err, repo.ErrPendingPaymentExists) {
		t.Fatalf("expected pending payment conflict, got %v", err)
	}

	payments, err := env.Engine.Repo.ListMissionPayments(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Status != domain.PaymentPending {
		t.Fatalf("expected exactly one pending payment, got %+v", payments)
	}

	// the losing attempt released its orphan intent at the provider
	cancels := 0
	for _, c := range env.Gateway.Calls {
		if c == "cancel" {
			cancels++
		}
	}
	if cancels != 1 {
		t.Fatalf("expected one orphan cancel, got %d (%v)", cancels, env.Gateway.Calls)
	}
}

func TestIntentRequiresAssignedMission(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t)
	_, _, err := env.Engine.CreateIntent(env.Ctx, m.ID, env.Client, 4500, "EUR")
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition on pending mission, got %v", err)
	}

	m2 := env.acceptedMission(t)
	_, _, err = env.Engine.CreateIntent(env.Ctx, m2.ID, env.Assistant, 4500, "EUR")
	var denied auth.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denied for non-client, got %v", err)
	}
	_, _, err = env.Engine.CreateIntent(env.Ctx, m2.ID, env.Client, 0, "EUR")
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition on zero amount, got %v", err)
	}
	_, _, err = env.Engine.CreateIntent(env.Ctx, m2.ID, env.Client, 4500, "JPY")
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition on unsupported currency, got %v", err)
	}
}

func TestSettleFromGatewayWebhook(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)

	settled, err := env.Engine.SettleFromGateway(env.Ctx, p.ProviderIntentID, gateway.IntentSucceeded, "")
	if err != nil || settled.Status != domain.PaymentCompleted {
		t.Fatalf("settle: %v (status %s)", err, settled.Status)
	}
	// replays are no-ops
	again, err := env.Engine.SettleFromGateway(env.Ctx, p.ProviderIntentID, gateway.IntentFailed, "late failure")
	if err != nil || again.Status != domain.PaymentCompleted {
		t.Fatalf("replay must not change outcome: %v (status %s)", err, again.Status)
	}
}

func TestDisputeFreezesMission(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	if _, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("start: %v", err)
	}
	m, err := env.Engine.Dispute(env.Ctx, m.ID, env.Client, "item damaged")
	if err != nil || m.Status != domain.MissionDisputed {
		t.Fatalf("dispute: %v (status %s)", err, m.Status)
	}
	// disputed is terminal in the lifecycle
	_, err = env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500)
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestDisputeRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	_, err := env.Engine.Dispute(env.Ctx, m.ID, env.Client, "")
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition, got %v", err)
	}
	_, err = env.Engine.Cancel(env.Ctx, m.ID, env.Client, "")
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition for empty cancel reason, got %v", err)
	}
}

func TestEditOnlyWhilePending(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t)

	d := draft()
	d.Title = "Pick up dry cleaning, ring twice"
	updated, err := env.Engine.UpdateMission(env.Ctx, m.ID, env.Client, d)
	if err != nil || updated.Title != d.Title {
		t.Fatalf("update pending: %v", err)
	}

	// only the author edits
	_, err = env.Engine.UpdateMission(env.Ctx, m.ID, env.Assistant, d)
	var denied auth.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denied, got %v", err)
	}

	if _, err := env.Engine.Accept(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err = env.Engine.UpdateMission(env.Ctx, m.ID, env.Client, d)
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition after accept, got %v", err)
	}
	err = env.Engine.DeleteMission(env.Ctx, m.ID, env.Client)
	if !errors.As(err, &pre) {
		t.Fatalf("expected delete blocked after accept, got %v", err)
	}
}

func TestDeletePendingMission(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t)
	if err := env.Engine.DeleteMission(env.Ctx, m.ID, env.Client); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := env.Engine.Repo.GetMission(env.Ctx, m.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDraftValidation(t *testing.T) {
	env := newTestEnv(t)
	var pre engine.PreconditionError

	d := draft()
	d.Title = ""
	if _, err := env.Engine.CreateMission(env.Ctx, env.Client, d); !errors.As(err, &pre) {
		t.Fatalf("expected title precondition, got %v", err)
	}

	d = draft()
	d.TimeWindowEnd = d.TimeWindowStart
	if _, err := env.Engine.CreateMission(env.Ctx, env.Client, d); !errors.As(err, &pre) {
		t.Fatalf("expected window precondition, got %v", err)
	}

	d = draft()
	d.PriceEstimate = -1
	if _, err := env.Engine.CreateMission(env.Ctx, env.Client, d); !errors.As(err, &pre) {
		t.Fatalf("expected price precondition, got %v", err)
	}

	d = draft()
	d.Currency = "JPY"
	if _, err := env.Engine.CreateMission(env.Ctx, env.Client, d); !errors.As(err, &pre) {
		t.Fatalf("expected currency precondition, got %v", err)
	}
}

func TestCompleteRecordsCommission(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Payments.CommissionBps = 1000
	m := env.acceptedMission(t)
	if _, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 3250); err != nil {
		t.Fatalf("complete: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, "mission.completed", "mission", m.ID)
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected one completion event, got %d (%v)", len(evts), err)
	}
	var payload struct {
		FinalPrice   int64 `json:"final_price"`
		Commission   int64 `json:"commission"`
		AssistantNet int64 `json:"assistant_net"`
	}
	if err := json.Unmarshal([]byte(evts[0].Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.FinalPrice != 3250 || payload.Commission != 325 || payload.AssistantNet != 2925 {
		t.Fatalf("unexpected split %+v", payload)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	m := env.acceptedMission(t)
	p := env.openEscrow(t, m.ID)
	if _, err := env.Engine.Start(env.Ctx, m.ID, env.Assistant); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Engine.Complete(env.Ctx, m.ID, env.Assistant, 4500); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id IN (?, ?) ORDER BY id`, m.ID, p.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatalf("scan: %v", err)
		}
		types = append(types, typ)
	}
	want := []string{"mission.created", "mission.accepted", "payment.intent.created", "mission.started", "payment.confirmed", "mission.completed"}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: want %s got %s", i, want[i], types[i])
		}
	}
}
