// Package auth holds the authorization predicates for mission and payment
// operations. Every mutating engine call re-derives permission from the
// authoritative record here; nothing trusts what a client UI decided.
package auth

import (
	"fmt"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
)

// Actor is the authenticated caller: identity plus marketplace role. It comes
// from the external identity subsystem and is never validated here.
type Actor struct {
	ID   string
	Role domain.Role
}

// DeniedError indicates the actor lacks permission for the operation. It is
// distinct from transition and precondition failures so callers can map it to
// a forbidden outcome.
type DeniedError struct {
	Action string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("actor not allowed to %s", e.Action)
}

// CanCreateMission: only clients open missions.
func CanCreateMission(actor Actor) error {
	if actor.Role != domain.RoleClient {
		return DeniedError{Action: "create mission"}
	}
	return nil
}

// CanAccept: only assistants accept, and only unassigned missions.
func CanAccept(actor Actor, m domain.Mission) error {
	if actor.Role != domain.RoleAssistant {
		return DeniedError{Action: "accept mission"}
	}
	if m.AssistantID != nil {
		return DeniedError{Action: "accept an assigned mission"}
	}
	return nil
}

// CanActOnAssigned: the owning client or the assigned assistant.
func CanActOnAssigned(actor Actor, m domain.Mission) error {
	if actor.ID == m.ClientID {
		return nil
	}
	if m.AssistantID != nil && actor.ID == *m.AssistantID {
		return nil
	}
	return DeniedError{Action: "act on this mission"}
}

// CanStart: only the assigned assistant starts work.
func CanStart(actor Actor, m domain.Mission) error {
	if m.AssistantID == nil || actor.ID != *m.AssistantID {
		return DeniedError{Action: "start this mission"}
	}
	return nil
}

// CanComplete: only the assigned assistant reports completion.
func CanComplete(actor Actor, m domain.Mission) error {
	if m.AssistantID == nil || actor.ID != *m.AssistantID {
		return DeniedError{Action: "complete this mission"}
	}
	return nil
}

// PaymentOp names a payment operation family for CanManagePayment.
type PaymentOp string

const (
	PaymentCreate  PaymentOp = "create payment"
	PaymentConfirm PaymentOp = "confirm payment"
	PaymentCancel  PaymentOp = "cancel payment"
	PaymentRefund  PaymentOp = "refund payment"
)

// CanCreatePayment: only the owning client funds the escrow.
func CanCreatePayment(actor Actor, m domain.Mission) error {
	if actor.ID != m.ClientID {
		return DeniedError{Action: string(PaymentCreate)}
	}
	return nil
}

// CanManagePayment: both escrow parties may touch a payment, but confirm and
// refund initiation stay with the client (the payer).
func CanManagePayment(actor Actor, p domain.Payment, op PaymentOp) error {
	switch op {
	case PaymentConfirm, PaymentRefund:
		if actor.ID != p.ClientID {
			return DeniedError{Action: string(op)}
		}
		return nil
	default:
		if actor.ID == p.ClientID || actor.ID == p.AssistantID {
			return nil
		}
		return DeniedError{Action: string(op)}
	}
}
