// Package intake turns a CRM contact-creation event into an outbound call.
package intake

import (
	"context"
	"log/slog"

	"call-orchestrator/internal/crm"
	"call-orchestrator/internal/telephony"
	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/utils"
)

const (
	SubscriptionContactCreation = "contact.creation"

	nodeIntake       = "intake"
	nodeCallInitiate = "call_initiate"
	nodeErrorReport  = "error_report"
)

// Event is one raw CRM webhook event.
type Event map[string]any

func (e Event) SubscriptionType() string { return utils.StringOf(e["subscriptionType"]) }

// ObjectID is the contact id, or "" when absent or falsy.
func (e Event) ObjectID() string {
	if !utils.Truthy(e["objectId"]) {
		return ""
	}
	return utils.StringOf(e["objectId"])
}

type ContactReader interface {
	GetContact(ctx context.Context, id string) (crm.Contact, error)
}

type Auditor interface {
	LogIntakeFailed(ctx context.Context, leadID, reason string) error
	LogCallInitiated(ctx context.Context, leadID, callID, phone string) error
}

type Options struct {
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
	Logger      *slog.Logger
}

// Service runs the lead intake workflow.
type Service struct {
	contacts ContactReader
	calls    telephony.CallPlatform
	audit    Auditor
	region   string
	log      *slog.Logger
	pipeline *Pipeline
}

func NewService(contacts ContactReader, platform telephony.CallPlatform, audit Auditor, opts Options) (*Service, error) {
	s := &Service{
		contacts: contacts,
		calls:    platform,
		audit:    audit,
		region:   opts.PhoneRegion,
		log:      logger.Module(opts.Logger, "intake"),
	}
	p, err := NewPipeline(nodeIntake,
		Node{Name: nodeIntake, Run: s.intakeStep, OnSuccess: nodeCallInitiate, OnFailure: nodeErrorReport},
		Node{Name: nodeCallInitiate, Run: s.callInitiateStep, OnFailure: nodeErrorReport},
		Node{Name: nodeErrorReport, Run: s.errorReportStep},
	)
	if err != nil {
		return nil, err
	}
	s.pipeline = p
	return s, nil
}

// HandleEvent processes one CRM webhook event. Only auth-configuration failures
// are returned; everything else is logged.
func (s *Service) HandleEvent(ctx context.Context, ev Event) error {
	log := logger.From(ctx)

	if st := ev.SubscriptionType(); st != SubscriptionContactCreation {
		log.Info("ignoring crm event", "subscription_type", st)
		return nil
	}
	id := ev.ObjectID()
	if id == "" {
		log.Warn("crm event missing objectId")
		return nil
	}

	contact, err := s.contacts.GetContact(ctx, id)
	if err != nil {
		if crm.IsFatal(err) {
			return err
		}
		log.Error("crm contact fetch failed", "lead_id", id, "err", err)
		return nil
	}

	st := s.Run(ctx, contact)
	log.Info("lead processed",
		"lead_id", contact.ID,
		"phone", contact.Properties.Phone,
		"call_id", st.Call.ProviderCallID,
		"error", st.Error,
	)
	return nil
}

// Run executes the workflow for an already-fetched contact.
func (s *Service) Run(ctx context.Context, contact crm.Contact) *State {
	st := &State{Contact: contact}
	if _, err := s.pipeline.Run(ctx, st); err != nil {
		s.log.Error("intake pipeline aborted", "lead_id", contact.ID, "err", err)
	}
	return st
}
