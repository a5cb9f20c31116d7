package engine

import (
	"fmt"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
)

// InvalidTransitionError: the requested event has no edge from the mission's
// current status. Surfaced as a conflict; never retried.
type InvalidTransitionError struct {
	Current domain.MissionStatus
	Event   domain.MissionEvent
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a mission in status %s", e.Event, e.Current)
}

// PreconditionError: a business rule failed before any mutation (bad amount,
// missing reason, mission not yet assigned). Deterministic; never retried.
type PreconditionError struct {
	Reason string
}

func (e PreconditionError) Error() string { return e.Reason }

// PaymentDependencyError: a payment operation invoked inside a mission
// transition failed, and the transition was not applied. The whole operation
// is safe to retry.
type PaymentDependencyError struct {
	Op  string
	Err error
}

func (e PaymentDependencyError) Error() string {
	return fmt.Sprintf("payment %s failed, mission left unchanged: %v", e.Op, e.Err)
}

func (e PaymentDependencyError) Unwrap() error { return e.Err }

// AlreadyFinalizedError: the payment is in a terminal status incompatible with
// the requested operation.
type AlreadyFinalizedError struct {
	Status domain.PaymentStatus
}

func (e AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("payment already finalized as %s", e.Status)
}

// CannotCancelSettledError: the provider settled the intent before the cancel
// reached it; the caller must refund instead.
type CannotCancelSettledError struct {
	PaymentID string
}

func (e CannotCancelSettledError) Error() string {
	return fmt.Sprintf("payment %s already settled; request a refund instead", e.PaymentID)
}
