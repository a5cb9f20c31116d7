package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/1of9europe/ViteFait-sub001/internal/config"
	"github.com/1of9europe/ViteFait-sub001/internal/db"
	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine"
	"github.com/1of9europe/ViteFait-sub001/internal/gateway"
	"github.com/1of9europe/ViteFait-sub001/internal/migrate"
)

const testJWTSecret = "test-secret"
const testWebhookSecret = "whsec_test"

type testServer struct {
	URL     string
	Engine  engine.Engine
	Gateway *gateway.Fake
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fake := gateway.NewFake()
	e := engine.New(conn, fake, config.Default())
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "client-1", Role: domain.RoleClient, Verified: true, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "assistant-1", Role: domain.RoleAssistant, CreatedAt: "2026-03-01T00:00:00Z"},
	} {
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{
		JWTSecret:     testJWTSecret,
		WebhookSecret: testWebhookSecret,
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Gateway: fake,
		client:  &http.Client{Timeout: 10 * time.Second},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, userID string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": userID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Token == "" {
		t.Fatalf("expected token, got %s", string(data))
	}
	return map[string]string{"Authorization": "Bearer " + body.Token}
}

func missionBody() map[string]any {
	return map[string]any{
		"title":             "Deliver keys",
		"pickup_address":    "3 avenue Foch, Lyon",
		"pickup_latitude":   45.7699,
		"pickup_longitude":  4.8320,
		"time_window_start": "2026-03-02T09:00:00Z",
		"time_window_end":   "2026-03-02T12:00:00Z",
		"price_estimate":    "30.00",
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	// garbage bearer token
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions", nil, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d %s", res.StatusCode, string(data))
	}
}

func TestMissionLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := login(t, srv, "client-1")
	assistant := login(t, srv, "assistant-1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions", missionBody(), client)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	var created MissionResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}
	if created.Status != "pending" || created.PriceEstimate != "30.00" {
		t.Fatalf("unexpected mission %+v", created)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+created.ID+"/accept", nil, assistant)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+created.ID+"/start", nil, assistant)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+created.ID+"/complete", map[string]any{
		"final_price": "32.50",
	}, assistant)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done MissionResponse
	_ = json.Unmarshal(data, &done)
	if done.Status != "completed" || done.FinalPrice != "32.50" {
		t.Fatalf("unexpected completed mission %+v", done)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions/"+created.ID+"/history", nil, client)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var hist []StatusHistoryResponse
	if err := json.Unmarshal(data, &hist); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("expected 4 history rows, got %d", len(hist))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := login(t, srv, "client-1")
	assistant := login(t, srv, "assistant-1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions", missionBody(), client)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	var m MissionResponse
	_ = json.Unmarshal(data, &m)

	// clients cannot accept: 403 forbidden
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/accept", nil, client)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected 403 forbidden, got %d %s", res.StatusCode, string(data))
	}

	// no edge pending->complete: 409 invalid_transition
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/complete", map[string]any{
		"final_price": "30.00",
	}, assistant)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %s", res.StatusCode, string(data))
	}

	// empty cancel reason: 422 precondition_failed
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/cancel", map[string]any{
		"reason": "",
	}, client)
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "precondition_failed" {
		t.Fatalf("expected 422 precondition_failed, got %d %s", res.StatusCode, string(data))
	}

	// unknown mission: 404 not_found
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions/nope", nil, client)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected 404 not_found, got %d %s", res.StatusCode, string(data))
	}
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := login(t, srv, "client-1")
	assistant := login(t, srv, "assistant-1")

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions", missionBody(), client)
	var m MissionResponse
	_ = json.Unmarshal(data, &m)
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/accept", nil, assistant)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/payments/intent", map[string]any{
		"amount": "30.00",
	}, client)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("intent status %d: %s", res.StatusCode, string(data))
	}
	var intent PaymentIntentResponse
	if err := json.Unmarshal(data, &intent); err != nil {
		t.Fatalf("unmarshal intent: %v", err)
	}
	if intent.ClientSecret == "" || intent.Payment.Status != "pending" {
		t.Fatalf("unexpected intent %+v", intent)
	}

	// only the mission's client may open escrow
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/payments/intent", map[string]any{
		"amount": "30.00",
	}, assistant)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for assistant intent, got %d %s", res.StatusCode, string(data))
	}

	// one pending escrow per mission
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/payments/intent", map[string]any{
		"amount": "30.00",
	}, client)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "pending_payment_exists" {
		t.Fatalf("expected 409 pending_payment_exists, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/payments/"+intent.Payment.ID+"/confirm", nil, client)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d: %s", res.StatusCode, string(data))
	}
	var confirmed PaymentResponse
	_ = json.Unmarshal(data, &confirmed)
	if confirmed.Status != "completed" {
		t.Fatalf("expected completed, got %s", confirmed.Status)
	}

	// cancel after settlement: 409 cannot_cancel_settled
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/payments/"+intent.Payment.ID+"/cancel", nil, client)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "cannot_cancel_settled" {
		t.Fatalf("expected cannot_cancel_settled, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/payments/"+intent.Payment.ID+"/refund", map[string]any{
		"reason": "client request",
	}, client)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refund status %d: %s", res.StatusCode, string(data))
	}
	var refunded PaymentResponse
	_ = json.Unmarshal(data, &refunded)
	if refunded.Status != "refunded" {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
}

func webhookSignature(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestGatewayWebhookSettlement(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := login(t, srv, "client-1")
	assistant := login(t, srv, "assistant-1")

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions", missionBody(), client)
	var m MissionResponse
	_ = json.Unmarshal(data, &m)
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/accept", nil, assistant)
	_, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/"+m.ID+"/payments/intent", map[string]any{
		"amount": "30.00",
	}, client)
	var intent PaymentIntentResponse
	_ = json.Unmarshal(data, &intent)

	event := map[string]any{
		"id":   "evt_1",
		"type": "payment_intent.succeeded",
		"data": map[string]any{
			"object": map[string]any{
				"id":     intent.Payment.ProviderIntentID,
				"status": "succeeded",
			},
		},
	}
	body, _ := json.Marshal(event)

	// missing signature rejected
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", res.StatusCode)
	}

	// signed notification settles the payment
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", webhookSignature(body))
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	p, err := srv.Engine.Repo.GetPayment(context.Background(), intent.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != domain.PaymentCompleted {
		t.Fatalf("expected completed after webhook, got %s", p.Status)
	}

	// unknown event types are acknowledged
	other, _ := json.Marshal(map[string]any{
		"id":   "evt_2",
		"type": "charge.updated",
		"data": map[string]any{"object": map[string]any{"id": intent.Payment.ProviderIntentID}},
	})
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/webhooks/gateway", bytes.NewReader(other))
	req.Header.Set("X-Gateway-Signature", webhookSignature(other))
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for unknown type, got %d", res.StatusCode)
	}
}

func TestMissionListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := login(t, srv, "client-1")

	for i := 0; i < 3; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions", missionBody(), client)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %d status %d: %s", i, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions?limit=2", nil, client)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page struct {
		Items      []MissionResponse `json:"items"`
		NextCursor string            `json:"next_cursor"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items with cursor, got %d %q", len(page.Items), page.NextCursor)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions?limit=2&cursor="+url.QueryEscape(page.NextCursor), nil, client)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var second struct {
		Items      []MissionResponse `json:"items"`
		NextCursor string            `json:"next_cursor"`
	}
	_ = json.Unmarshal(data, &second)
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("expected final page of 1, got %d %q", len(second.Items), second.NextCursor)
	}
}

func TestWhoAmI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := login(t, srv, "client-1")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, client)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if who.UserID != "client-1" || who.Role != "client" || !who.Verified || who.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", who)
	}
}
