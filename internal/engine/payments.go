package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine/auth"
	"github.com/1of9europe/ViteFait-sub001/internal/events"
	"github.com/1of9europe/ViteFait-sub001/internal/gateway"
	"github.com/1of9europe/ViteFait-sub001/internal/repo"
)

// CreateIntent opens an escrow attempt for an assigned mission. The provider
// intent is created before the local row so a saved payment always has an
// intent id; the partial unique index keeps concurrent attempts down to one
// PENDING payment per mission.
func (e Engine) CreateIntent(ctx context.Context, missionID string, actor auth.Actor, amountMinor int64, currency string) (domain.Payment, string, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return domain.Payment{}, "", err
	}
	if err := auth.CanCreatePayment(actor, m); err != nil {
		return domain.Payment{}, "", err
	}
	if m.Status != domain.MissionAccepted && m.Status != domain.MissionInProgress {
		return domain.Payment{}, "", PreconditionError{Reason: "escrow requires a mission with an assigned assistant"}
	}
	if m.AssistantID == nil {
		return domain.Payment{}, "", PreconditionError{Reason: "escrow requires a mission with an assigned assistant"}
	}
	if amountMinor <= 0 {
		return domain.Payment{}, "", PreconditionError{Reason: "amount must be positive"}
	}
	if currency == "" {
		currency = m.Currency
	}
	if !domain.ValidCurrency(currency) || !e.Config.SupportsCurrency(currency) {
		return domain.Payment{}, "", PreconditionError{Reason: "currency " + currency + " is not supported"}
	}
	if _, err := e.Repo.PendingPaymentForMission(ctx, missionID); err == nil {
		return domain.Payment{}, "", repo.ErrPendingPaymentExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Payment{}, "", err
	}

	paymentID := uuid.NewString()
	key := "create-" + paymentID
	intent, err := e.Gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountMinor:    amountMinor,
		Currency:       currency,
		Description:    "Mission: " + m.Title,
		IdempotencyKey: key,
		Metadata:       map[string]string{"mission_id": m.ID, "payment_id": paymentID},
	})
	if err != nil {
		return domain.Payment{}, "", err
	}
	p := domain.Payment{
		ID:               paymentID,
		MissionID:        m.ID,
		ClientID:         m.ClientID,
		AssistantID:      *m.AssistantID,
		Amount:           amountMinor,
		Currency:         currency,
		Status:           domain.PaymentPending,
		ProviderIntentID: intent.ID,
		IdempotencyKey:   key,
		CreatedAt:        e.ts(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPayment(ctx, tx, p); err != nil {
		if errors.Is(err, repo.ErrPendingPaymentExists) {
			// lost the race after creating the intent; release the orphan
			_, _ = e.Gateway.CancelIntent(ctx, intent.ID, key+"-orphan")
		}
		return domain.Payment{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "payment.intent.created", "payment", p.ID, actor.ID, events.EventPayload{
		"mission_id": m.ID, "amount": amountMinor, "currency": currency, "intent_id": intent.ID,
	}); err != nil {
		return domain.Payment{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, "", err
	}
	return p, intent.ClientSecret, nil
}

// ConfirmPayment polls the provider and records the outcome. Confirming an
// already COMPLETED payment is a no-op; a payment the provider has not settled
// yet comes back still PENDING.
func (e Engine) ConfirmPayment(ctx context.Context, paymentID string, actor auth.Actor) (domain.Payment, error) {
	p, err := e.Repo.GetPayment(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := auth.CanManagePayment(actor, p, auth.PaymentConfirm); err != nil {
		return p, err
	}
	switch p.Status {
	case domain.PaymentCompleted:
		return p, nil
	case domain.PaymentPending:
		return e.settlePayment(ctx, p, &actor.ID)
	default:
		return p, AlreadyFinalizedError{Status: p.Status}
	}
}

// CancelPayment releases a PENDING escrow. If the provider settled the intent
// in the meantime, the local row is brought up to date and the caller is told
// to refund instead.
func (e Engine) CancelPayment(ctx context.Context, paymentID string, actor auth.Actor) (domain.Payment, error) {
	p, err := e.Repo.GetPayment(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := auth.CanManagePayment(actor, p, auth.PaymentCancel); err != nil {
		return p, err
	}
	switch p.Status {
	case domain.PaymentPending:
		return e.cancelPayment(ctx, p, &actor.ID)
	case domain.PaymentCompleted:
		return p, CannotCancelSettledError{PaymentID: p.ID}
	default:
		return p, AlreadyFinalizedError{Status: p.Status}
	}
}

// RefundPayment reverses a COMPLETED payment at the provider and marks the
// same row REFUNDED.
func (e Engine) RefundPayment(ctx context.Context, paymentID string, actor auth.Actor, reason string) (domain.Payment, error) {
	p, err := e.Repo.GetPayment(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := auth.CanManagePayment(actor, p, auth.PaymentRefund); err != nil {
		return p, err
	}
	if p.Status != domain.PaymentCompleted {
		return p, AlreadyFinalizedError{Status: p.Status}
	}
	if _, err := e.Gateway.Refund(ctx, gateway.RefundParams{
		IntentID:       p.ProviderIntentID,
		Reason:         reason,
		IdempotencyKey: p.IdempotencyKey + "-refund",
	}); err != nil {
		return p, err
	}
	p.Status = domain.PaymentRefunded
	return e.finalizePayment(ctx, p, domain.PaymentCompleted, "payment.refunded", &actor.ID, events.EventPayload{"reason": reason})
}

// SettleFromGateway applies a provider webhook to the matching payment.
// Replayed and out-of-order notifications are no-ops once the row left PENDING.
func (e Engine) SettleFromGateway(ctx context.Context, intentID string, status gateway.IntentStatus, failureReason string) (domain.Payment, error) {
	p, err := e.Repo.GetPaymentByIntent(ctx, intentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status != domain.PaymentPending {
		return p, nil
	}
	return e.applyIntentOutcome(ctx, p, status, failureReason, nil)
}

// settlePayment asks the provider for the intent's state and applies it. A
// gateway failure leaves the row PENDING; the caller retries later.
func (e Engine) settlePayment(ctx context.Context, p domain.Payment, actorID *string) (domain.Payment, error) {
	intent, err := e.Gateway.RetrieveIntent(ctx, p.ProviderIntentID)
	if err != nil {
		return p, err
	}
	return e.applyIntentOutcome(ctx, p, intent.Status, intent.FailureReason, actorID)
}

func (e Engine) applyIntentOutcome(ctx context.Context, p domain.Payment, status gateway.IntentStatus, failureReason string, actorID *string) (domain.Payment, error) {
	at := e.ts()
	switch status {
	case gateway.IntentProcessing:
		return p, nil
	case gateway.IntentSucceeded:
		p.Status = domain.PaymentCompleted
		p.CompletedAt = &at
		return e.finalizePayment(ctx, p, domain.PaymentPending, "payment.confirmed", actorID, nil)
	case gateway.IntentCanceled:
		p.Status = domain.PaymentCancelled
		p.CancelledAt = &at
		return e.finalizePayment(ctx, p, domain.PaymentPending, "payment.cancelled", actorID, nil)
	default:
		p.Status = domain.PaymentFailed
		p.FailedAt = &at
		if failureReason != "" {
			p.FailureReason = &failureReason
		}
		return e.finalizePayment(ctx, p, domain.PaymentPending, "payment.failed", actorID, events.EventPayload{"reason": failureReason})
	}
}

func (e Engine) cancelPayment(ctx context.Context, p domain.Payment, actorID *string) (domain.Payment, error) {
	intent, err := e.Gateway.CancelIntent(ctx, p.ProviderIntentID, p.IdempotencyKey+"-cancel")
	if err != nil {
		return p, err
	}
	at := e.ts()
	if intent.Status == gateway.IntentSucceeded {
		// settled before the cancel reached the provider
		p.Status = domain.PaymentCompleted
		p.CompletedAt = &at
		updated, ferr := e.finalizePayment(ctx, p, domain.PaymentPending, "payment.confirmed", actorID, nil)
		if ferr != nil {
			return updated, ferr
		}
		return updated, CannotCancelSettledError{PaymentID: p.ID}
	}
	p.Status = domain.PaymentCancelled
	p.CancelledAt = &at
	return e.finalizePayment(ctx, p, domain.PaymentPending, "payment.cancelled", actorID, nil)
}

// finalizePayment writes the payment's new status keyed on the status the
// caller read and logs the event. When a concurrent settlement already landed
// the same outcome the call degrades to a read.
func (e Engine) finalizePayment(ctx context.Context, p domain.Payment, expected domain.PaymentStatus, eventType string, actorID *string, payload events.EventPayload) (domain.Payment, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.ApplyPaymentTransition(ctx, tx, p, expected); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			cur, gerr := e.Repo.GetPaymentTx(ctx, tx, p.ID)
			if gerr != nil {
				return p, gerr
			}
			if cur.Status == p.Status {
				return cur, nil
			}
			return cur, AlreadyFinalizedError{Status: cur.Status}
		}
		return p, err
	}
	actor := "system"
	if actorID != nil {
		actor = *actorID
	}
	if err := e.Events.Append(ctx, tx, eventType, "payment", p.ID, actor, payload); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}
