package domain

// Role of a user in the marketplace.
type Role string

const (
	RoleClient    Role = "client"
	RoleAssistant Role = "assistant"
)

// MissionStatus is the closed set of mission lifecycle states.
type MissionStatus string

const (
	MissionPending    MissionStatus = "pending"
	MissionAccepted   MissionStatus = "accepted"
	MissionInProgress MissionStatus = "in_progress"
	MissionCompleted  MissionStatus = "completed"
	MissionCancelled  MissionStatus = "cancelled"
	MissionDisputed   MissionStatus = "disputed"
)

// MissionEvent names a transition request on a mission.
type MissionEvent string

const (
	EventAccept   MissionEvent = "accept"
	EventStart    MissionEvent = "start"
	EventComplete MissionEvent = "complete"
	EventCancel   MissionEvent = "cancel"
	EventDispute  MissionEvent = "dispute"
)

// missionTransitions is the single transition table for the mission state
// machine. Any (status, event) pair not present here is rejected.
var missionTransitions = map[MissionStatus]map[MissionEvent]MissionStatus{
	MissionPending: {
		EventAccept:  MissionAccepted,
		EventCancel:  MissionCancelled,
		EventDispute: MissionDisputed,
	},
	MissionAccepted: {
		EventStart:   MissionInProgress,
		EventCancel:  MissionCancelled,
		EventDispute: MissionDisputed,
	},
	MissionInProgress: {
		EventComplete: MissionCompleted,
		EventCancel:   MissionCancelled,
		EventDispute:  MissionDisputed,
	},
}

// NextStatus resolves event against the transition table. The second return is
// false when the current status has no edge for the event.
func NextStatus(from MissionStatus, event MissionEvent) (MissionStatus, bool) {
	edges, ok := missionTransitions[from]
	if !ok {
		return "", false
	}
	to, ok := edges[event]
	return to, ok
}

// Terminal reports whether a mission status has no outgoing transitions.
func (s MissionStatus) Terminal() bool {
	_, ok := missionTransitions[s]
	return !ok
}

// MissionPriority orders missions for listing; it carries no lifecycle meaning.
type MissionPriority string

const (
	PriorityLow    MissionPriority = "low"
	PriorityMedium MissionPriority = "medium"
	PriorityHigh   MissionPriority = "high"
	PriorityUrgent MissionPriority = "urgent"
)

// PaymentStatus is the closed set of escrow payment states.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether a payment status admits no further changes.
// Completed is not terminal: a completed payment can still be refunded.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

type User struct {
	ID        string `json:"id"`
	Role      Role   `json:"role" enum:"client,assistant"`
	Verified  bool   `json:"verified"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Mission struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"client_id"`
	AssistantID     *string         `json:"assistant_id,omitempty"`
	Status          MissionStatus   `json:"status" enum:"pending,accepted,in_progress,completed,cancelled,disputed"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	PickupAddress   string          `json:"pickup_address"`
	PickupLatitude  float64         `json:"pickup_latitude"`
	PickupLongitude float64         `json:"pickup_longitude"`
	DropAddress     *string         `json:"drop_address,omitempty"`
	DropLatitude    *float64        `json:"drop_latitude,omitempty"`
	DropLongitude   *float64        `json:"drop_longitude,omitempty"`
	TimeWindowStart string          `json:"time_window_start" format:"date-time"`
	TimeWindowEnd   string          `json:"time_window_end" format:"date-time"`
	PriceEstimate   int64           `json:"price_estimate"`
	CashAdvance     int64           `json:"cash_advance"`
	FinalPrice      int64           `json:"final_price"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category,omitempty"`
	Priority        MissionPriority `json:"priority" enum:"low,medium,high,urgent"`
	Instructions    string          `json:"instructions,omitempty"`
	RequiresCar     bool            `json:"requires_car"`
	RequiresTools   bool            `json:"requires_tools"`

	AcceptedAt         *string `json:"accepted_at,omitempty" format:"date-time"`
	StartedAt          *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt        *string `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt        *string `json:"cancelled_at,omitempty" format:"date-time"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Payment is one escrow attempt for a mission. Rows are never deleted.
// Amount is in the currency's minor units.
type Payment struct {
	ID               string        `json:"id"`
	MissionID        string        `json:"mission_id"`
	ClientID         string        `json:"client_id"`
	AssistantID      string        `json:"assistant_id"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Status           PaymentStatus `json:"status" enum:"pending,completed,failed,cancelled,refunded"`
	ProviderIntentID string        `json:"provider_intent_id"`
	IdempotencyKey   string        `json:"-"`
	FailureReason    *string       `json:"failure_reason,omitempty"`
	CompletedAt      *string       `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt      *string       `json:"cancelled_at,omitempty" format:"date-time"`
	FailedAt         *string       `json:"failed_at,omitempty" format:"date-time"`
	CreatedAt        string        `json:"created_at" format:"date-time"`
}

// StatusHistoryEntry is an append-only audit row for a mission transition.
// ActorID is nil when the change was system-triggered (webhook settlement).
type StatusHistoryEntry struct {
	ID        string        `json:"id"`
	MissionID string        `json:"mission_id"`
	Status    MissionStatus `json:"status"`
	ActorID   *string       `json:"actor_id,omitempty"`
	Comment   string        `json:"comment,omitempty"`
	CreatedAt string        `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
