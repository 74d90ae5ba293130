package calls

import (
	"strings"
	"time"
)

// Verdict is the qualification outcome of a finished call.
type Verdict string

const (
	VerdictQualified     Verdict = "qualified"
	VerdictUnqualified   Verdict = "unqualified"
	VerdictNotApplicable Verdict = "not_applicable"
)

// ParseVerdict lowercases and trims s. Values outside the known set are kept
// as-is so status mapping can fall through to the contacted status.
func ParseVerdict(s string) Verdict {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return VerdictNotApplicable
	}
	return Verdict(s)
}

// Outcome is the classification of one finished call.
type Outcome struct {
	Connected  bool    `json:"connected"`
	Qualified  Verdict `json:"qualified"`
	Reasoning  string  `json:"reasoning"`
	CRMSummary string  `json:"hubspot_summary"`
}

// EndOfCallReport is the provider-agnostic view of a call-platform completion event.
//
// LeadID comes from the metadata attached at call creation and is the only link
// back to the CRM contact.
type EndOfCallReport struct {
	CallID      string `json:"call_id"`
	LeadID      string `json:"lead_id,omitempty"`
	EndedReason string `json:"ended_reason,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	Summary     string `json:"summary,omitempty"`

	StructuredData map[string]any `json:"structured_data,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	// Timestamp is the provider's event timestamp as sent (opaque).
	Timestamp string `json:"timestamp,omitempty"`
}

// StatusMap holds the CRM lead-status values written for each verdict.
type StatusMap struct {
	OpenDeal    string
	Unqualified string
	Contacted   string
}

// For returns the CRM status for v. Anything that is not qualified or
// unqualified maps to the contacted status.
func (m StatusMap) For(v Verdict) string {
	switch ParseVerdict(string(v)) {
	case VerdictQualified:
		return m.OpenDeal
	case VerdictUnqualified:
		return m.Unqualified
	default:
		return m.Contacted
	}
}

// LoggedCall is the activity record attached to a contact after an outbound call.
type LoggedCall struct {
	ContactID string
	Body      string
	Status    string
	Timestamp time.Time
}

// LoggedCallStatusCompleted is the activity status for a finished call.
const LoggedCallStatusCompleted = "COMPLETED"
