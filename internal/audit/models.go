package audit

import "time"

// Event is an immutable, append-only record of a pipeline outcome.
//
// Invariants:
// - Events are never updated or deleted.
// - Every event names the lead or the call it is about.
// - Recording is best-effort; do not block the pipeline on audit failures.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	LeadID string `json:"lead_id,omitempty" db:"lead_id"`
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeIntakeFailed   EventType = "intake_failed"
	EventTypeCallInitiated  EventType = "call_initiated"
	EventTypeCallOutcome    EventType = "call_outcome"
	EventTypeCRMWriteFailed EventType = "crm_write_failed"
)
