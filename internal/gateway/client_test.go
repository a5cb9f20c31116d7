package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestClientCreateIntent(t *testing.T) {
	var gotAuth, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "pi_123",
			"client_secret": "pi_123_secret",
			"status":        "requires_payment_method",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_123")
	it, err := c.CreateIntent(context.Background(), CreateIntentParams{
		AmountMinor:    4500,
		Currency:       "EUR",
		IdempotencyKey: "create-abc",
		Metadata:       map[string]string{"mission_id": "m-1"},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if it.ID != "pi_123" || it.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent %+v", it)
	}
	if it.Status != IntentProcessing {
		t.Fatalf("provider intermediate states must normalize to processing, got %s", it.Status)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotKey != "create-abc" {
		t.Fatalf("unexpected idempotency key %q", gotKey)
	}
	if gotBody["currency"] != "eur" || gotBody["amount"] != float64(4500) {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestClientStatusNormalization(t *testing.T) {
	cases := []struct {
		provider string
		lastErr  string
		want     IntentStatus
	}{
		{"succeeded", "", IntentSucceeded},
		{"canceled", "", IntentCanceled},
		{"failed", "", IntentFailed},
		{"processing", "", IntentProcessing},
		{"requires_confirmation", "", IntentProcessing},
		{"requires_payment_method", "card_declined", IntentFailed},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]any{"id": "pi_1", "status": tc.provider}
			if tc.lastErr != "" {
				resp["last_payment_error"] = map[string]any{"message": tc.lastErr}
			}
			json.NewEncoder(w).Encode(resp)
		}))
		c := NewClient(srv.URL, "sk")
		it, err := c.RetrieveIntent(context.Background(), "pi_1")
		srv.Close()
		if err != nil {
			t.Fatalf("%s: %v", tc.provider, err)
		}
		if it.Status != tc.want {
			t.Fatalf("%s: want %s got %s", tc.provider, tc.want, it.Status)
		}
		if tc.lastErr != "" && it.FailureReason != tc.lastErr {
			t.Fatalf("%s: expected failure reason %q, got %q", tc.provider, tc.lastErr, it.FailureReason)
		}
	}
}

func TestClientServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk")
	_, err := c.RetrieveIntent(context.Background(), "pi_1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientRejectionIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "card_declined", "message": "Your card was declined."},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk")
	_, err := c.CreateIntent(context.Background(), CreateIntentParams{AmountMinor: 100, Currency: "EUR"})
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if ge.Code != "card_declined" {
		t.Fatalf("unexpected code %q", ge.Code)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("rejections must not look retryable")
	}
}

func TestClientSafeForConcurrentUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "pi_1", "status": "succeeded"})
	}))
	defer srv.Close()

	// One client is shared by every request goroutine under serve; do must
	// not mutate it.
	c := NewClient(srv.URL, "sk")
	if c.HTTPClient == nil {
		t.Fatal("NewClient must set HTTPClient")
	}
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.RetrieveIntent(context.Background(), "pi_1")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
}

func TestClientRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/refunds" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["payment_intent"] != "pi_1" {
			t.Fatalf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "status": "succeeded"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk")
	rf, err := c.Refund(context.Background(), RefundParams{IntentID: "pi_1", IdempotencyKey: "k-refund"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if rf.ID != "re_1" || rf.Status != "succeeded" {
		t.Fatalf("unexpected refund %+v", rf)
	}
}
