package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory Gateway for tests and local development. Intents settle
// according to NextStatus (default: succeeded on first retrieve). Err, when
// set, is returned by every call to simulate an outage.
type Fake struct {
	mu         sync.Mutex
	intents    map[string]Intent
	seenKeys   map[string]string
	NextStatus IntentStatus
	Err        error
	Calls      []string
}

func NewFake() *Fake {
	return &Fake{
		intents:    make(map[string]Intent),
		seenKeys:   make(map[string]string),
		NextStatus: IntentSucceeded,
	}
}

func (f *Fake) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "create")
	if f.Err != nil {
		return Intent{}, f.Err
	}
	if id, ok := f.seenKeys[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return f.intents[id], nil
	}
	it := Intent{
		ID:           "pi_" + uuid.New().String(),
		ClientSecret: "secret_" + uuid.New().String(),
		Status:       IntentProcessing,
	}
	f.intents[it.ID] = it
	if p.IdempotencyKey != "" {
		f.seenKeys[p.IdempotencyKey] = it.ID
	}
	return it, nil
}

func (f *Fake) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "retrieve")
	if f.Err != nil {
		return Intent{}, f.Err
	}
	it, ok := f.intents[intentID]
	if !ok {
		return Intent{}, &Error{Code: "resource_missing", Message: fmt.Sprintf("no such intent %s", intentID)}
	}
	if it.Status == IntentProcessing {
		it.Status = f.NextStatus
		if it.Status == IntentFailed {
			it.FailureReason = "card_declined"
		}
		f.intents[intentID] = it
	}
	return it, nil
}

func (f *Fake) CancelIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "cancel")
	if f.Err != nil {
		return Intent{}, f.Err
	}
	it, ok := f.intents[intentID]
	if !ok {
		return Intent{}, &Error{Code: "resource_missing", Message: fmt.Sprintf("no such intent %s", intentID)}
	}
	if it.Status == IntentSucceeded {
		// Matches provider behavior: a settled intent cannot be canceled.
		return it, nil
	}
	it.Status = IntentCanceled
	f.intents[intentID] = it
	return it, nil
}

func (f *Fake) Refund(ctx context.Context, p RefundParams) (Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "refund")
	if f.Err != nil {
		return Refund{}, f.Err
	}
	it, ok := f.intents[p.IntentID]
	if !ok {
		return Refund{}, &Error{Code: "resource_missing", Message: fmt.Sprintf("no such intent %s", p.IntentID)}
	}
	if it.Status != IntentSucceeded {
		return Refund{}, &Error{Code: "charge_not_captured", Message: "intent has no settled charge to refund"}
	}
	if id, ok := f.seenKeys[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return Refund{ID: id, Status: "succeeded"}, nil
	}
	rf := Refund{ID: "re_" + uuid.New().String(), Status: "succeeded"}
	if p.IdempotencyKey != "" {
		f.seenKeys[p.IdempotencyKey] = rf.ID
	}
	return rf, nil
}

// Settle forces an intent into a terminal provider status.
func (f *Fake) Settle(intentID string, status IntentStatus, failureReason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.intents[intentID]
	it.ID = intentID
	it.Status = status
	it.FailureReason = failureReason
	f.intents[intentID] = it
}
