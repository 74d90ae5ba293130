package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"call-orchestrator/internal/crm"
	"call-orchestrator/internal/telephony"
	"call-orchestrator/pkg/phone"
)

// Lead is a contact normalised for calling.
type Lead struct {
	ID       string
	Phone    string
	FullName string
}

// State is the workflow state shared by the pipeline nodes.
//
// Once Error is set, downstream nodes are no-ops except the error report.
type State struct {
	Contact crm.Contact
	Lead    Lead
	Call    telephony.OutboundCallResult
	Error   string
}

// Failed reports whether the error slot is set.
func (s *State) Failed() bool { return s.Error != "" }

const leadStatusNew = "NEW"

// NormalizeLead validates that the contact is a new lead with a phone number.
func NormalizeLead(c crm.Contact, region string) (Lead, error) {
	status := strings.ToUpper(c.Properties.LeadStatus)
	if status != leadStatusNew {
		return Lead{}, fmt.Errorf("Contact status is %s, not NEW. Skipping.", status)
	}
	number := phone.NormalizeE164(c.Properties.Phone, region)
	if number == "" {
		return Lead{}, errors.New("No phone on contact.")
	}

	name := strings.TrimSpace(c.Properties.FirstName + " " + c.Properties.LastName)
	if name == "" {
		name = "there"
	}
	return Lead{
		ID:       c.ID,
		Phone:    number,
		FullName: name,
	}, nil
}

func (s *Service) intakeStep(_ context.Context, st *State) error {
	lead, err := NormalizeLead(st.Contact, s.region)
	if err != nil {
		return err
	}
	st.Lead = lead
	return nil
}

func (s *Service) callInitiateStep(ctx context.Context, st *State) error {
	if st.Failed() {
		return nil
	}
	res, err := s.calls.CreateCall(ctx, telephony.OutboundCallRequest{
		LeadID:      st.Lead.ID,
		To:          st.Lead.Phone,
		DisplayName: st.Lead.FullName,
	})
	if err != nil {
		return fmt.Errorf("Failed to initiate call: %w", err)
	}
	st.Call = res

	if err := s.audit.LogCallInitiated(ctx, st.Lead.ID, res.ProviderCallID, st.Lead.Phone); err != nil {
		s.log.Warn("audit append failed", "lead_id", st.Lead.ID, "err", err)
	}
	return nil
}

func (s *Service) errorReportStep(ctx context.Context, st *State) error {
	if !st.Failed() {
		return nil
	}
	s.log.Warn("workflow error", "lead_id", st.Contact.ID, "error", st.Error)
	if err := s.audit.LogIntakeFailed(ctx, st.Contact.ID, st.Error); err != nil {
		s.log.Warn("audit append failed", "lead_id", st.Contact.ID, "err", err)
	}
	return nil
}
