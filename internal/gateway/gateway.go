// Package gateway abstracts the external payment provider behind the narrow
// contract the escrow core needs. Implementations must be idempotent for the
// same idempotency key: retrying a create/cancel/refund after a timeout must
// not duplicate money movement.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// IntentStatus is the provider-side state of a payment intent, normalized.
type IntentStatus string

const (
	// IntentProcessing covers every provider state where the outcome is not
	// known yet (awaiting payment method, confirmation, or settlement).
	IntentProcessing IntentStatus = "processing"
	IntentSucceeded  IntentStatus = "succeeded"
	IntentCanceled   IntentStatus = "canceled"
	IntentFailed     IntentStatus = "failed"
)

// Intent is the provider-side payment attempt.
type Intent struct {
	ID            string
	ClientSecret  string
	Status        IntentStatus
	FailureReason string
}

// Refund is the provider-side refund record.
type Refund struct {
	ID     string
	Status string
}

type CreateIntentParams struct {
	AmountMinor    int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type RefundParams struct {
	IntentID       string
	Reason         string
	IdempotencyKey string
}

// Gateway is the minimal provider contract the orchestrator depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	CancelIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error)
	Refund(ctx context.Context, p RefundParams) (Refund, error)
}

// ErrUnavailable marks transient provider failures (network error, timeout,
// 5xx). Local payment state must be left untouched; the call is safe to retry.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Error is a definitive provider rejection (4xx-class).
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}
