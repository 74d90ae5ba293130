package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records pipeline outcomes.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.LeadID == "" && e.CallID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogIntakeFailed records why a lead did not get a call.
func (s *Service) LogIntakeFailed(ctx context.Context, leadID, reason string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeIntakeFailed,
		LeadID:  leadID,
		Message: reason,
	})
}

// LogCallInitiated records a call created for a lead.
func (s *Service) LogCallInitiated(ctx context.Context, leadID, callID, phone string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeCallInitiated,
		LeadID:   leadID,
		CallID:   callID,
		Message:  "call created",
		Metadata: encode(map[string]string{"to": phone}),
	})
}

// LogCallOutcome records the classification and CRM writes for a finished call.
func (s *Service) LogCallOutcome(ctx context.Context, leadID, callID string, details map[string]any) error {
	return s.Append(ctx, Event{
		Type:     EventTypeCallOutcome,
		LeadID:   leadID,
		CallID:   callID,
		Message:  "call classified",
		Metadata: encode(details),
	})
}

// LogCRMWriteFailed records a CRM write that did not land.
func (s *Service) LogCRMWriteFailed(ctx context.Context, leadID, callID, op string, cause error) error {
	return s.Append(ctx, Event{
		Type:    EventTypeCRMWriteFailed,
		LeadID:  leadID,
		CallID:  callID,
		Message: op + ": " + cause.Error(),
	})
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
