package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Stripe-style payment intent API over HTTPS. One *Client
// is shared by every server goroutine, so all fields are set before serving
// starts and treated as read-only afterwards.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a client with sane defaults.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		SecretKey:  secretKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type intentResponse struct {
	ID               string `json:"id"`
	ClientSecret     string `json:"client_secret"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	body := map[string]any{
		"amount":   p.AmountMinor,
		"currency": strings.ToLower(p.Currency),
	}
	if p.Description != "" {
		body["description"] = p.Description
	}
	if len(p.Metadata) > 0 {
		body["metadata"] = p.Metadata
	}
	var resp intentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", p.IdempotencyKey, body, &resp); err != nil {
		return Intent{}, err
	}
	return toIntent(resp), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	var resp intentResponse
	endpoint := "/v1/payment_intents/" + url.PathEscape(intentID)
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &resp); err != nil {
		return Intent{}, err
	}
	return toIntent(resp), nil
}

func (c *Client) CancelIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error) {
	var resp intentResponse
	endpoint := "/v1/payment_intents/" + url.PathEscape(intentID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, endpoint, idempotencyKey, map[string]any{}, &resp); err != nil {
		return Intent{}, err
	}
	return toIntent(resp), nil
}

func (c *Client) Refund(ctx context.Context, p RefundParams) (Refund, error) {
	body := map[string]any{
		"payment_intent": p.IntentID,
		"reason":         "requested_by_customer",
	}
	if p.Reason != "" {
		body["metadata"] = map[string]string{"reason": p.Reason}
	}
	var resp refundResponse
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", p.IdempotencyKey, body, &resp); err != nil {
		return Refund{}, err
	}
	return Refund{ID: resp.ID, Status: resp.Status}, nil
}

// toIntent normalizes provider statuses to the four the core distinguishes.
func toIntent(resp intentResponse) Intent {
	it := Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}
	switch resp.Status {
	case "succeeded":
		it.Status = IntentSucceeded
	case "canceled":
		it.Status = IntentCanceled
	case "failed":
		it.Status = IntentFailed
	default:
		it.Status = IntentProcessing
	}
	if resp.LastPaymentError != nil {
		it.FailureReason = resp.LastPaymentError.Message
		if it.Status == IntentProcessing {
			// Provider reports the last attempt failed and awaits a new method.
			it.Status = IntentFailed
		}
	}
	return it
}

func (c *Client) do(ctx context.Context, method, endpoint, idempotencyKey string, body any, out any) error {
	reqURL := strings.TrimRight(c.BaseURL, "/") + endpoint
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Network failure or timeout: outcome unknown, retry with same key.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		var er errorResponse
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &er); err != nil || er.Error.Message == "" {
			return &Error{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: strings.TrimSpace(string(data))}
		}
		return &Error{Code: er.Error.Code, Message: er.Error.Message}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
