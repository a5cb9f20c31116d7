package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine"
	"github.com/1of9europe/ViteFait-sub001/internal/engine/auth"
	"github.com/1of9europe/ViteFait-sub001/internal/gateway"
	"github.com/1of9europe/ViteFait-sub001/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot start a mission in status pending"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"pending\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the ViteFait core API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the required envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("ViteFait Core API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMissions(group, cfg.Engine)
	registerPayments(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerGatewayWebhook(router, basePath, cfg.Auth, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var de auth.DeniedError
	if errors.As(err, &de) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": de.Action})
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from": ite.Current, "event": ite.Event,
		})
	}
	var pe engine.PreconditionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusUnprocessableEntity, "precondition_failed", err.Error(), nil)
	}
	var afe engine.AlreadyFinalizedError
	if errors.As(err, &afe) {
		return newAPIError(http.StatusConflict, "already_finalized", err.Error(), map[string]any{"status": afe.Status})
	}
	var cse engine.CannotCancelSettledError
	if errors.As(err, &cse) {
		return newAPIError(http.StatusConflict, "cannot_cancel_settled", err.Error(), map[string]any{"payment_id": cse.PaymentID})
	}
	if errors.Is(err, gateway.ErrUnavailable) {
		var pde engine.PaymentDependencyError
		if errors.As(err, &pde) {
			return newAPIError(http.StatusBadGateway, "payment_dependency_failed", err.Error(), map[string]any{"op": pde.Op})
		}
		return newAPIError(http.StatusBadGateway, "gateway_unavailable", err.Error(), nil)
	}
	var pde engine.PaymentDependencyError
	if errors.As(err, &pde) {
		return newAPIError(http.StatusConflict, "payment_dependency_failed", err.Error(), map[string]any{"op": pde.Op})
	}
	if errors.Is(err, repo.ErrPendingPaymentExists) {
		return newAPIError(http.StatusConflict, "pending_payment_exists", err.Error(), nil)
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return newAPIError(http.StatusUnprocessableEntity, "gateway_rejected", err.Error(), map[string]any{"gateway_code": ge.Code})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "precondition_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadGateway:
		return "gateway_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>ViteFait API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type paginatedMissions struct {
	Items      []MissionResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body MissionDraftRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		currency := input.Body.Currency
		if currency == "" {
			currency = e.Config.Payments.DefaultCurrency
		}
		draft, err := missionDraft(input.Body, currency)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		m, err := e.CreateMission(ctx, actor, draft)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:",pending,accepted,in_progress,completed,cancelled,disputed"`
		Priority    string `query:"priority"`
		Category    string `query:"category"`
		ClientID    string `query:"client_id"`
		AssistantID string `query:"assistant_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedMissions `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
		}
		items, err := e.Repo.ListMissions(ctx, repo.MissionFilters{
			Status:          input.Status,
			Priority:        input.Priority,
			Category:        input.Category,
			ClientID:        input.ClientID,
			AssistantID:     input.AssistantID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			last := items[limit-1]
			next = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		return &struct {
			Body paginatedMissions `json:"body"`
		}{Body: paginatedMissions{Items: mapMissions(items), NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMission(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{mission_id}",
		Summary:     "Update a pending mission",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		MissionID string              `path:"mission_id"`
		Body      MissionDraftRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		currency := input.Body.Currency
		if currency == "" {
			currency = e.Config.Payments.DefaultCurrency
		}
		draft, err := missionDraft(input.Body, currency)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		m, err := e.UpdateMission(ctx, input.MissionID, actor, draft)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-mission",
		Method:      http.MethodDelete,
		Path:        "/missions/{mission_id}",
		Summary:     "Delete a pending mission",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMission(ctx, input.MissionID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	type missionPath struct {
		MissionID string `path:"mission_id"`
	}
	transitionErrors := []int{
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusBadGateway,
	}

	huma.Register(api, huma.Operation{
		OperationID: "accept-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/accept",
		Summary:     "Accept mission",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Accept(ctx, input.MissionID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/start",
		Summary:     "Start mission",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Start(ctx, input.MissionID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/complete",
		Summary:     "Complete mission",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		MissionID string                 `path:"mission_id"`
		Body      CompleteMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMission(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		finalPrice, err := domain.ParseAmount(input.Body.FinalPrice, m.Currency)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		m, err = e.Complete(ctx, input.MissionID, actor, finalPrice)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/cancel",
		Summary:     "Cancel mission",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		MissionID string               `path:"mission_id"`
		Body      CancelMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Cancel(ctx, input.MissionID, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispute-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/dispute",
		Summary:     "Dispute mission",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		MissionID string                `path:"mission_id"`
		Body      DisputeMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Dispute(ctx, input.MissionID, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-history",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/history",
		Summary:     "Mission status history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body []StatusHistoryResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetMission(ctx, input.MissionID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStatusHistory(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StatusHistoryResponse `json:"body"`
		}{Body: mapHistory(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-payments",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/payments",
		Summary:     "List payments for a mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body []PaymentResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetMission(ctx, input.MissionID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMissionPayments(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PaymentResponse `json:"body"`
		}{Body: mapPayments(items)}, nil
	})
}

func registerPayments(api huma.API, e engine.Engine) {
	paymentErrors := []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusBadGateway,
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-payment-intent",
		Method:        http.MethodPost,
		Path:          "/missions/{mission_id}/payments/intent",
		Summary:       "Create escrow payment intent",
		DefaultStatus: http.StatusCreated,
		Errors:        paymentErrors,
	}, func(ctx context.Context, input *struct {
		MissionID string                     `path:"mission_id"`
		Body      CreatePaymentIntentRequest `json:"body"`
	}) (*struct {
		Body PaymentIntentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMission(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		currency := input.Body.Currency
		if currency == "" {
			currency = m.Currency
		}
		amount, err := domain.ParseAmount(input.Body.Amount, currency)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		p, secret, err := e.CreateIntent(ctx, input.MissionID, actor, amount, currency)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentIntentResponse `json:"body"`
		}{Body: PaymentIntentResponse{Payment: paymentResponse(p), ClientSecret: secret}}, nil
	})

	type paymentPath struct {
		PaymentID string `path:"payment_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-payment",
		Method:      http.MethodGet,
		Path:        "/payments/{payment_id}",
		Summary:     "Get payment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *paymentPath) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetPayment(ctx, input.PaymentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/confirm",
		Summary:     "Confirm payment against the provider",
		Errors:      paymentErrors,
	}, func(ctx context.Context, input *paymentPath) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ConfirmPayment(ctx, input.PaymentID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/cancel",
		Summary:     "Cancel a pending payment",
		Errors:      paymentErrors,
	}, func(ctx context.Context, input *paymentPath) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CancelPayment(ctx, input.PaymentID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refund-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/refund",
		Summary:     "Refund a completed payment",
		Errors:      paymentErrors,
	}, func(ctx context.Context, input *struct {
		PaymentID string               `path:"payment_id"`
		Body      RefundPaymentRequest `json:"body"`
	}) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RefundPayment(ctx, input.PaymentID, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-payments",
		Method:      http.MethodGet,
		Path:        "/payments",
		Summary:     "List payments for the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PaymentResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUserPayments(ctx, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PaymentResponse `json:"body"`
		}{Body: mapPayments(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List event log entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:",mission,payment"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role" enum:"client,assistant"`
	Verified bool   `json:"verified"`
	Source   string `json:"source"`
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		verified := false
		if u, err := e.Repo.GetUser(ctx, principal.UserID); err == nil {
			verified = u.Verified
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID:   principal.UserID,
			Role:     string(principal.Role),
			Verified: verified,
			Source:   principal.Source,
		}}, nil
	})
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signDevToken(authCfg.JWTSecret, u.ID, string(u.Role))
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func signDevToken(secret, userID, role string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
