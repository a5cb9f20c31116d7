// Package engine implements the mission lifecycle and escrow payment
// orchestration. Every mutating operation re-derives permission and state
// from the database, applies its effect with a status-conditional update,
// and records history plus an event row in the same transaction.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/1of9europe/ViteFait-sub001/internal/config"
	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine/auth"
	"github.com/1of9europe/ViteFait-sub001/internal/events"
	"github.com/1of9europe/ViteFait-sub001/internal/gateway"
	"github.com/1of9europe/ViteFait-sub001/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Gateway gateway.Gateway
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, gw gateway.Gateway, cfg *config.Config) Engine {
	now := time.Now
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db, Now: now},
		Gateway: gw,
		Config:  cfg,
		Now:     now,
	}
}

func (e Engine) ts() string {
	return e.Now().UTC().Format(time.RFC3339)
}

// MissionDraft carries the client-supplied mission fields for create and update.
type MissionDraft struct {
	Title           string
	Description     string
	PickupAddress   string
	PickupLatitude  float64
	PickupLongitude float64
	DropAddress     *string
	DropLatitude    *float64
	DropLongitude   *float64
	TimeWindowStart string
	TimeWindowEnd   string
	PriceEstimate   int64
	CashAdvance     int64
	Currency        string
	Category        string
	Priority        domain.MissionPriority
	Instructions    string
	RequiresCar     bool
	RequiresTools   bool
}

func (e Engine) validateDraft(d *MissionDraft) error {
	if d.Title == "" {
		return PreconditionError{Reason: "title is required"}
	}
	if d.PickupAddress == "" {
		return PreconditionError{Reason: "pickup address is required"}
	}
	start, err := time.Parse(time.RFC3339, d.TimeWindowStart)
	if err != nil {
		return PreconditionError{Reason: "time_window_start must be RFC 3339"}
	}
	end, err := time.Parse(time.RFC3339, d.TimeWindowEnd)
	if err != nil {
		return PreconditionError{Reason: "time_window_end must be RFC 3339"}
	}
	if !end.After(start) {
		return PreconditionError{Reason: "time window must end after it starts"}
	}
	if d.PriceEstimate < 0 {
		return PreconditionError{Reason: "price estimate must not be negative"}
	}
	if d.CashAdvance < 0 {
		return PreconditionError{Reason: "cash advance must not be negative"}
	}
	if d.Currency == "" {
		d.Currency = e.Config.Payments.DefaultCurrency
	}
	if !domain.ValidCurrency(d.Currency) || !e.Config.SupportsCurrency(d.Currency) {
		return PreconditionError{Reason: fmt.Sprintf("currency %s is not supported", d.Currency)}
	}
	if d.Priority == "" {
		d.Priority = domain.PriorityMedium
	}
	switch d.Priority {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent:
	default:
		return PreconditionError{Reason: fmt.Sprintf("unknown priority %q", d.Priority)}
	}
	return nil
}

func (e Engine) CreateMission(ctx context.Context, actor auth.Actor, d MissionDraft) (domain.Mission, error) {
	if err := auth.CanCreateMission(actor); err != nil {
		return domain.Mission{}, err
	}
	if err := e.validateDraft(&d); err != nil {
		return domain.Mission{}, err
	}
	ts := e.ts()
	m := domain.Mission{
		ID:              uuid.NewString(),
		ClientID:        actor.ID,
		Status:          domain.MissionPending,
		Title:           d.Title,
		Description:     d.Description,
		PickupAddress:   d.PickupAddress,
		PickupLatitude:  d.PickupLatitude,
		PickupLongitude: d.PickupLongitude,
		DropAddress:     d.DropAddress,
		DropLatitude:    d.DropLatitude,
		DropLongitude:   d.DropLongitude,
		TimeWindowStart: d.TimeWindowStart,
		TimeWindowEnd:   d.TimeWindowEnd,
		PriceEstimate:   d.PriceEstimate,
		CashAdvance:     d.CashAdvance,
		Currency:        d.Currency,
		Category:        d.Category,
		Priority:        d.Priority,
		Instructions:    d.Instructions,
		RequiresCar:     d.RequiresCar,
		RequiresTools:   d.RequiresTools,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, err
	}
	if err := e.appendHistory(ctx, tx, m.ID, m.Status, &actor.ID, ""); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, "mission.created", "mission", m.ID, actor.ID, events.EventPayload{
		"status": m.Status, "client_id": m.ClientID, "currency": m.Currency,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

var missionEventTypes = map[domain.MissionEvent]string{
	domain.EventAccept:   "mission.accepted",
	domain.EventStart:    "mission.started",
	domain.EventComplete: "mission.completed",
	domain.EventCancel:   "mission.cancelled",
	domain.EventDispute:  "mission.disputed",
}

// transition runs one state-machine edge end to end: read under the
// transaction, resolve the edge, authorize, mutate, write keyed on the status
// that was read, then append history and the event row.
func (e Engine) transition(ctx context.Context, missionID string, actor auth.Actor, event domain.MissionEvent,
	comment string, guard func(domain.Mission) error, mutate func(*domain.Mission)) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	next, ok := domain.NextStatus(m.Status, event)
	if !ok {
		return m, InvalidTransitionError{Current: m.Status, Event: event}
	}
	if err := guard(m); err != nil {
		return m, err
	}
	prev := m.Status
	m.Status = next
	mutate(&m)
	m.UpdatedAt = e.ts()
	if err := e.Repo.ApplyMissionTransition(ctx, tx, m, prev); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return m, InvalidTransitionError{Current: prev, Event: event}
		}
		return m, err
	}
	if err := e.appendHistory(ctx, tx, m.ID, m.Status, &actor.ID, comment); err != nil {
		return m, err
	}
	payload := events.EventPayload{"from": prev, "to": m.Status}
	if event == domain.EventComplete {
		payload["final_price"] = m.FinalPrice
		if bps := e.Config.Payments.CommissionBps; bps > 0 {
			cut := domain.Commission(m.FinalPrice, bps)
			payload["commission"] = cut
			payload["assistant_net"] = m.FinalPrice - cut
		}
	}
	if err := e.Events.Append(ctx, tx, missionEventTypes[event], "mission", m.ID, actor.ID, payload); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

func (e Engine) appendHistory(ctx context.Context, tx *sql.Tx, missionID string, status domain.MissionStatus, actorID *string, comment string) error {
	return e.Repo.AppendHistory(ctx, tx, domain.StatusHistoryEntry{
		ID:        uuid.NewString(),
		MissionID: missionID,
		Status:    status,
		ActorID:   actorID,
		Comment:   comment,
		CreatedAt: e.ts(),
	})
}

func (e Engine) Accept(ctx context.Context, missionID string, actor auth.Actor) (domain.Mission, error) {
	return e.transition(ctx, missionID, actor, domain.EventAccept, "",
		func(m domain.Mission) error { return auth.CanAccept(actor, m) },
		func(m *domain.Mission) {
			m.AssistantID = &actor.ID
			at := e.ts()
			m.AcceptedAt = &at
		})
}

func (e Engine) Start(ctx context.Context, missionID string, actor auth.Actor) (domain.Mission, error) {
	return e.transition(ctx, missionID, actor, domain.EventStart, "",
		func(m domain.Mission) error { return auth.CanStart(actor, m) },
		func(m *domain.Mission) {
			at := e.ts()
			m.StartedAt = &at
		})
}

// Complete settles the mission's pending escrow payment first. If the payment
// cannot be confirmed the mission stays IN_PROGRESS and the whole call is
// retryable.
func (e Engine) Complete(ctx context.Context, missionID string, actor auth.Actor, finalPrice int64) (domain.Mission, error) {
	if finalPrice < 0 {
		return domain.Mission{}, PreconditionError{Reason: "final price must not be negative"}
	}
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if _, ok := domain.NextStatus(m.Status, domain.EventComplete); !ok {
		return m, InvalidTransitionError{Current: m.Status, Event: domain.EventComplete}
	}
	if err := auth.CanComplete(actor, m); err != nil {
		return m, err
	}
	pending, err := e.Repo.PendingPaymentForMission(ctx, missionID)
	switch {
	case err == nil:
		settled, err := e.settlePayment(ctx, pending, nil)
		if err != nil {
			return m, PaymentDependencyError{Op: "confirm", Err: err}
		}
		if settled.Status != domain.PaymentCompleted {
			return m, PaymentDependencyError{Op: "confirm", Err: fmt.Errorf("payment %s is %s", settled.ID, settled.Status)}
		}
	case errors.Is(err, repo.ErrNotFound):
		// no escrow to settle
	default:
		return m, err
	}
	return e.transition(ctx, missionID, actor, domain.EventComplete, "",
		func(m domain.Mission) error { return auth.CanComplete(actor, m) },
		func(m *domain.Mission) {
			m.FinalPrice = finalPrice
			at := e.ts()
			m.CompletedAt = &at
		})
}

// Cancel releases the mission's pending escrow payment first. If the payment
// cancel fails (including a provider that already settled it) the mission
// keeps its current status.
func (e Engine) Cancel(ctx context.Context, missionID string, actor auth.Actor, reason string) (domain.Mission, error) {
	if reason == "" {
		return domain.Mission{}, PreconditionError{Reason: "cancellation reason is required"}
	}
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if _, ok := domain.NextStatus(m.Status, domain.EventCancel); !ok {
		return m, InvalidTransitionError{Current: m.Status, Event: domain.EventCancel}
	}
	if err := auth.CanActOnAssigned(actor, m); err != nil {
		return m, err
	}
	pending, err := e.Repo.PendingPaymentForMission(ctx, missionID)
	switch {
	case err == nil:
		if _, err := e.cancelPayment(ctx, pending, nil); err != nil {
			return m, PaymentDependencyError{Op: "cancel", Err: err}
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return m, err
	}
	return e.transition(ctx, missionID, actor, domain.EventCancel, reason,
		func(m domain.Mission) error { return auth.CanActOnAssigned(actor, m) },
		func(m *domain.Mission) {
			at := e.ts()
			m.CancelledAt = &at
			m.CancellationReason = &reason
		})
}

// Dispute freezes the mission. Escrow money stays where it is until resolution
// happens out of band.
func (e Engine) Dispute(ctx context.Context, missionID string, actor auth.Actor, reason string) (domain.Mission, error) {
	if reason == "" {
		return domain.Mission{}, PreconditionError{Reason: "dispute reason is required"}
	}
	return e.transition(ctx, missionID, actor, domain.EventDispute, reason,
		func(m domain.Mission) error { return auth.CanActOnAssigned(actor, m) },
		func(m *domain.Mission) {})
}

// UpdateMission rewrites the client-editable fields while the mission is
// still PENDING.
func (e Engine) UpdateMission(ctx context.Context, missionID string, actor auth.Actor, d MissionDraft) (domain.Mission, error) {
	if err := e.validateDraft(&d); err != nil {
		return domain.Mission{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if actor.ID != m.ClientID {
		return m, auth.DeniedError{Action: "update this mission"}
	}
	if m.Status != domain.MissionPending {
		return m, PreconditionError{Reason: "only pending missions can be edited"}
	}
	m.Title = d.Title
	m.Description = d.Description
	m.PickupAddress = d.PickupAddress
	m.PickupLatitude = d.PickupLatitude
	m.PickupLongitude = d.PickupLongitude
	m.DropAddress = d.DropAddress
	m.DropLatitude = d.DropLatitude
	m.DropLongitude = d.DropLongitude
	m.TimeWindowStart = d.TimeWindowStart
	m.TimeWindowEnd = d.TimeWindowEnd
	m.PriceEstimate = d.PriceEstimate
	m.CashAdvance = d.CashAdvance
	m.Currency = d.Currency
	m.Category = d.Category
	m.Priority = d.Priority
	m.Instructions = d.Instructions
	m.RequiresCar = d.RequiresCar
	m.RequiresTools = d.RequiresTools
	m.UpdatedAt = e.ts()
	if err := e.Repo.UpdateMissionDetails(ctx, tx, m); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return m, PreconditionError{Reason: "only pending missions can be edited"}
		}
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "mission.updated", "mission", m.ID, actor.ID, nil); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// DeleteMission removes a mission that never left PENDING. Once an assistant
// accepted, the record is part of both parties' history and only cancel applies.
func (e Engine) DeleteMission(ctx context.Context, missionID string, actor auth.Actor) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return err
	}
	if actor.ID != m.ClientID {
		return auth.DeniedError{Action: "delete this mission"}
	}
	if m.Status != domain.MissionPending {
		return PreconditionError{Reason: "only pending missions can be deleted"}
	}
	if err := e.Repo.DeleteMission(ctx, tx, missionID); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return PreconditionError{Reason: "only pending missions can be deleted"}
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, "mission.deleted", "mission", m.ID, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
