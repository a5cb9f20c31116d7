package vitefaitsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ViteFait HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mission represents the API mission model (partial).
type Mission struct {
	ID            string  `json:"id"`
	ClientID      string  `json:"client_id"`
	AssistantID   *string `json:"assistant_id,omitempty"`
	Status        string  `json:"status"`
	Title         string  `json:"title"`
	PriceEstimate string  `json:"price_estimate"`
	FinalPrice    string  `json:"final_price"`
	Currency      string  `json:"currency"`
}

// Payment represents an escrow payment row.
type Payment struct {
	ID               string  `json:"id"`
	MissionID        string  `json:"mission_id"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	ProviderIntentID string  `json:"provider_intent_id"`
	FailureReason    *string `json:"failure_reason,omitempty"`
}

// PaymentIntent pairs a pending payment with its provider client secret.
type PaymentIntent struct {
	Payment      Payment `json:"payment"`
	ClientSecret string  `json:"client_secret"`
}

// StatusHistoryEntry is one row of a mission's audit trail.
type StatusHistoryEntry struct {
	ID        string  `json:"id"`
	MissionID string  `json:"mission_id"`
	Status    string  `json:"status"`
	ActorID   *string `json:"actor_id,omitempty"`
	Comment   string  `json:"comment,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedMissions wraps mission listings with cursors.
type PaginatedMissions struct {
	Items      []Mission `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// MissionDraft is the create/update payload. Money fields are decimal strings.
type MissionDraft struct {
	Title           string   `json:"title"`
	Description     *string  `json:"description,omitempty"`
	PickupAddress   string   `json:"pickup_address"`
	PickupLatitude  float64  `json:"pickup_latitude"`
	PickupLongitude float64  `json:"pickup_longitude"`
	DropAddress     *string  `json:"drop_address,omitempty"`
	DropLatitude    *float64 `json:"drop_latitude,omitempty"`
	DropLongitude   *float64 `json:"drop_longitude,omitempty"`
	TimeWindowStart string   `json:"time_window_start"`
	TimeWindowEnd   string   `json:"time_window_end"`
	PriceEstimate   string   `json:"price_estimate"`
	CashAdvance     *string  `json:"cash_advance,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Priority        *string  `json:"priority,omitempty"`
	Instructions    *string  `json:"instructions,omitempty"`
	RequiresCar     bool     `json:"requires_car,omitempty"`
	RequiresTools   bool     `json:"requires_tools,omitempty"`
}

// CreateMission posts a new mission.
func (c *Client) CreateMission(ctx context.Context, draft MissionDraft) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", draft, &resp)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, c.missionPath(id, ""), nil, &resp)
	return resp, err
}

// MissionsPage returns a paginated mission listing, optionally filtered by status.
func (c *Client) MissionsPage(ctx context.Context, status string, limit int, cursor string) (PaginatedMissions, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "missions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedMissions
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Accept claims a pending mission for the authenticated assistant.
func (c *Client) Accept(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "accept"), nil, &resp)
	return resp, err
}

// Start marks an accepted mission as in progress.
func (c *Client) Start(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "start"), nil, &resp)
	return resp, err
}

// Complete finishes a mission. finalPrice is a decimal string in the
// mission's currency; the pending escrow payment is settled first.
func (c *Client) Complete(ctx context.Context, missionID, finalPrice string) (Mission, error) {
	var resp Mission
	body := map[string]any{"final_price": finalPrice}
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "complete"), body, &resp)
	return resp, err
}

// Cancel aborts a mission with a reason.
func (c *Client) Cancel(ctx context.Context, missionID, reason string) (Mission, error) {
	var resp Mission
	body := map[string]any{"reason": reason}
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "cancel"), body, &resp)
	return resp, err
}

// Dispute flags a mission for resolution.
func (c *Client) Dispute(ctx context.Context, missionID, reason string) (Mission, error) {
	var resp Mission
	body := map[string]any{"reason": reason}
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "dispute"), body, &resp)
	return resp, err
}

// StatusHistory returns a mission's audit trail.
func (c *Client) StatusHistory(ctx context.Context, missionID string) ([]StatusHistoryEntry, error) {
	var resp struct {
		Items []StatusHistoryEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.missionPath(missionID, "history"), nil, &resp)
	return resp.Items, err
}

// CreatePaymentIntent opens an escrow payment for a mission. amount is a
// decimal string; currency defaults to the mission's when empty.
func (c *Client) CreatePaymentIntent(ctx context.Context, missionID, amount, currency string) (PaymentIntent, error) {
	body := map[string]any{"amount": amount}
	if currency != "" {
		body["currency"] = currency
	}
	var resp PaymentIntent
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "payments/intent"), body, &resp)
	return resp, err
}

// GetPayment fetches a payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	var resp Payment
	err := c.do(ctx, http.MethodGet, c.paymentPath(id, ""), nil, &resp)
	return resp, err
}

// ConfirmPayment reconciles a pending payment with the provider.
func (c *Client) ConfirmPayment(ctx context.Context, id string) (Payment, error) {
	var resp Payment
	err := c.do(ctx, http.MethodPost, c.paymentPath(id, "confirm"), nil, &resp)
	return resp, err
}

// CancelPayment cancels a pending payment.
func (c *Client) CancelPayment(ctx context.Context, id string) (Payment, error) {
	var resp Payment
	err := c.do(ctx, http.MethodPost, c.paymentPath(id, "cancel"), nil, &resp)
	return resp, err
}

// RefundPayment refunds a completed payment.
func (c *Client) RefundPayment(ctx context.Context, id, reason string) (Payment, error) {
	var resp Payment
	body := map[string]any{"reason": reason}
	err := c.do(ctx, http.MethodPost, c.paymentPath(id, "refund"), body, &resp)
	return resp, err
}

// Payments lists the authenticated user's payments.
func (c *Client) Payments(ctx context.Context) ([]Payment, error) {
	var resp struct {
		Items []Payment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "payments", nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) missionPath(id, action string) string {
	p := "missions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) paymentPath(id, action string) string {
	p := "payments/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
