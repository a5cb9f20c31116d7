package server

import (
	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine"
)

// Request payloads. All monetary amounts cross the API as decimal strings and
// are converted to minor units at this boundary.

type MissionDraftRequest struct {
	Title           string   `json:"title"`
	Description     *string  `json:"description,omitempty"`
	PickupAddress   string   `json:"pickup_address"`
	PickupLatitude  float64  `json:"pickup_latitude"`
	PickupLongitude float64  `json:"pickup_longitude"`
	DropAddress     *string  `json:"drop_address,omitempty"`
	DropLatitude    *float64 `json:"drop_latitude,omitempty"`
	DropLongitude   *float64 `json:"drop_longitude,omitempty"`
	TimeWindowStart string   `json:"time_window_start" format:"date-time"`
	TimeWindowEnd   string   `json:"time_window_end" format:"date-time"`
	PriceEstimate   string   `json:"price_estimate" example:"45.00"`
	CashAdvance     *string  `json:"cash_advance,omitempty" example:"10.00"`
	Currency        string   `json:"currency,omitempty" example:"EUR"`
	Category        *string  `json:"category,omitempty"`
	Priority        *string  `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Instructions    *string  `json:"instructions,omitempty"`
	RequiresCar     bool     `json:"requires_car,omitempty"`
	RequiresTools   bool     `json:"requires_tools,omitempty"`
}

// missionDraft converts the wire form. currency must already be resolved to a
// non-empty code so the money strings can be parsed.
func missionDraft(req MissionDraftRequest, currency string) (engine.MissionDraft, error) {
	price, err := domain.ParseAmount(req.PriceEstimate, currency)
	if err != nil {
		return engine.MissionDraft{}, err
	}
	var advance int64
	if req.CashAdvance != nil {
		advance, err = domain.ParseAmount(*req.CashAdvance, currency)
		if err != nil {
			return engine.MissionDraft{}, err
		}
	}
	d := engine.MissionDraft{
		Title:           req.Title,
		PickupAddress:   req.PickupAddress,
		PickupLatitude:  req.PickupLatitude,
		PickupLongitude: req.PickupLongitude,
		DropAddress:     req.DropAddress,
		DropLatitude:    req.DropLatitude,
		DropLongitude:   req.DropLongitude,
		TimeWindowStart: req.TimeWindowStart,
		TimeWindowEnd:   req.TimeWindowEnd,
		PriceEstimate:   price,
		CashAdvance:     advance,
		Currency:        currency,
		RequiresCar:     req.RequiresCar,
		RequiresTools:   req.RequiresTools,
	}
	if req.Description != nil {
		d.Description = *req.Description
	}
	if req.Category != nil {
		d.Category = *req.Category
	}
	if req.Priority != nil {
		d.Priority = domain.MissionPriority(*req.Priority)
	}
	if req.Instructions != nil {
		d.Instructions = *req.Instructions
	}
	return d, nil
}

type CompleteMissionRequest struct {
	FinalPrice string `json:"final_price" example:"45.00"`
}

type CancelMissionRequest struct {
	Reason string `json:"reason"`
}

type DisputeMissionRequest struct {
	Reason string `json:"reason"`
}

type CreatePaymentIntentRequest struct {
	Amount   string `json:"amount" example:"45.00"`
	Currency string `json:"currency,omitempty" example:"EUR"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Response payloads

type MissionResponse struct {
	ID              string   `json:"id"`
	ClientID        string   `json:"client_id"`
	AssistantID     *string  `json:"assistant_id,omitempty"`
	Status          string   `json:"status" enum:"pending,accepted,in_progress,completed,cancelled,disputed"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	PickupAddress   string   `json:"pickup_address"`
	PickupLatitude  float64  `json:"pickup_latitude"`
	PickupLongitude float64  `json:"pickup_longitude"`
	DropAddress     *string  `json:"drop_address,omitempty"`
	DropLatitude    *float64 `json:"drop_latitude,omitempty"`
	DropLongitude   *float64 `json:"drop_longitude,omitempty"`
	TimeWindowStart string   `json:"time_window_start" format:"date-time"`
	TimeWindowEnd   string   `json:"time_window_end" format:"date-time"`
	PriceEstimate   string   `json:"price_estimate"`
	CashAdvance     string   `json:"cash_advance"`
	FinalPrice      string   `json:"final_price"`
	Currency        string   `json:"currency"`
	Category        string   `json:"category,omitempty"`
	Priority        string   `json:"priority" enum:"low,medium,high,urgent"`
	Instructions    string   `json:"instructions,omitempty"`
	RequiresCar     bool     `json:"requires_car"`
	RequiresTools   bool     `json:"requires_tools"`

	AcceptedAt         *string `json:"accepted_at,omitempty" format:"date-time"`
	StartedAt          *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt        *string `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt        *string `json:"cancelled_at,omitempty" format:"date-time"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:                 m.ID,
		ClientID:           m.ClientID,
		AssistantID:        m.AssistantID,
		Status:             string(m.Status),
		Title:              m.Title,
		Description:        m.Description,
		PickupAddress:      m.PickupAddress,
		PickupLatitude:     m.PickupLatitude,
		PickupLongitude:    m.PickupLongitude,
		DropAddress:        m.DropAddress,
		DropLatitude:       m.DropLatitude,
		DropLongitude:      m.DropLongitude,
		TimeWindowStart:    m.TimeWindowStart,
		TimeWindowEnd:      m.TimeWindowEnd,
		PriceEstimate:      domain.FormatAmount(m.PriceEstimate, m.Currency),
		CashAdvance:        domain.FormatAmount(m.CashAdvance, m.Currency),
		FinalPrice:         domain.FormatAmount(m.FinalPrice, m.Currency),
		Currency:           m.Currency,
		Category:           m.Category,
		Priority:           string(m.Priority),
		Instructions:       m.Instructions,
		RequiresCar:        m.RequiresCar,
		RequiresTools:      m.RequiresTools,
		AcceptedAt:         m.AcceptedAt,
		StartedAt:          m.StartedAt,
		CompletedAt:        m.CompletedAt,
		CancelledAt:        m.CancelledAt,
		CancellationReason: m.CancellationReason,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func mapMissions(items []domain.Mission) []MissionResponse {
	res := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		res = append(res, missionResponse(m))
	}
	return res
}

type PaymentResponse struct {
	ID               string  `json:"id"`
	MissionID        string  `json:"mission_id"`
	ClientID         string  `json:"client_id"`
	AssistantID      string  `json:"assistant_id"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status" enum:"pending,completed,failed,cancelled,refunded"`
	ProviderIntentID string  `json:"provider_intent_id"`
	FailureReason    *string `json:"failure_reason,omitempty"`
	CompletedAt      *string `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt      *string `json:"cancelled_at,omitempty" format:"date-time"`
	FailedAt         *string `json:"failed_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

func paymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		MissionID:        p.MissionID,
		ClientID:         p.ClientID,
		AssistantID:      p.AssistantID,
		Amount:           domain.FormatAmount(p.Amount, p.Currency),
		Currency:         p.Currency,
		Status:           string(p.Status),
		ProviderIntentID: p.ProviderIntentID,
		FailureReason:    p.FailureReason,
		CompletedAt:      p.CompletedAt,
		CancelledAt:      p.CancelledAt,
		FailedAt:         p.FailedAt,
		CreatedAt:        p.CreatedAt,
	}
}

func mapPayments(items []domain.Payment) []PaymentResponse {
	res := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		res = append(res, paymentResponse(p))
	}
	return res
}

type PaymentIntentResponse struct {
	Payment      PaymentResponse `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

type StatusHistoryResponse struct {
	ID        string  `json:"id"`
	MissionID string  `json:"mission_id"`
	Status    string  `json:"status"`
	ActorID   *string `json:"actor_id,omitempty"`
	Comment   string  `json:"comment,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

func mapHistory(items []domain.StatusHistoryEntry) []StatusHistoryResponse {
	res := make([]StatusHistoryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, StatusHistoryResponse{
			ID:        e.ID,
			MissionID: e.MissionID,
			Status:    string(e.Status),
			ActorID:   e.ActorID,
			Comment:   e.Comment,
			CreatedAt: e.CreatedAt,
		})
	}
	return res
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}
