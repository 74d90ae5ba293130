package telephony

import (
	"bytes"
	"encoding/json"
	"errors"

	"call-orchestrator/internal/calls"
	"call-orchestrator/pkg/utils"
)

// EventEndOfCallReport is the only Vapi server message the orchestrator acts on.
const EventEndOfCallReport = "end-of-call-report"

var ErrInvalidPayload = errors.New("telephony: invalid vapi payload")

// VapiEvent captures the subset of a Vapi server message we care about.
// Ref: https://docs.vapi.ai/server-url/events
//
// Fields are read leniently: ids and timestamps may arrive as strings or numbers.
type VapiEvent struct {
	Type           string
	CallID         string
	EndedReason    string
	Transcript     string
	Summary        string
	Timestamp      string
	Metadata       map[string]any
	StructuredData map[string]any
}

type vapiEnvelope struct {
	Message struct {
		Type        json.RawMessage `json:"type"`
		EndedReason json.RawMessage `json:"endedReason"`
		Timestamp   json.RawMessage `json:"timestamp"`
		Call        struct {
			ID       json.RawMessage `json:"id"`
			Metadata json.RawMessage `json:"metadata"`
		} `json:"call"`
		Artifact struct {
			Transcript json.RawMessage `json:"transcript"`
			Summary    json.RawMessage `json:"summary"`
		} `json:"artifact"`
		Analysis struct {
			Summary        json.RawMessage `json:"summary"`
			StructuredData json.RawMessage `json:"structuredData"`
		} `json:"analysis"`
	} `json:"message"`
}

// ParseVapiEvent decodes a Vapi webhook body. Only malformed JSON or a
// non-object body is an error; missing fields come back empty.
func ParseVapiEvent(body []byte) (VapiEvent, error) {
	var env vapiEnvelope
	if err := utils.DecodeJSON(body, &env); err != nil {
		return VapiEvent{}, errors.Join(ErrInvalidPayload, err)
	}

	m := env.Message
	ev := VapiEvent{
		Type:           rawText(m.Type),
		CallID:         rawText(m.Call.ID),
		EndedReason:    rawText(m.EndedReason),
		Transcript:     rawText(m.Artifact.Transcript),
		Timestamp:      rawText(m.Timestamp),
		Metadata:       rawObject(m.Call.Metadata),
		StructuredData: rawObject(m.Analysis.StructuredData),
	}
	ev.Summary = rawText(m.Analysis.Summary)
	if ev.Summary == "" {
		ev.Summary = rawText(m.Artifact.Summary)
	}
	return ev, nil
}

// DedupKey identifies one delivery of one message type for one call.
func (e VapiEvent) DedupKey() string {
	return e.Type + ":" + e.CallID + ":" + e.Timestamp
}

// LeadID returns metadata.lead_id as a string, or "" when absent.
func (e VapiEvent) LeadID() string {
	if e.Metadata == nil {
		return ""
	}
	return utils.StringOf(e.Metadata["lead_id"])
}

func (e VapiEvent) ToEndOfCallReport() calls.EndOfCallReport {
	return calls.EndOfCallReport{
		CallID:         e.CallID,
		LeadID:         e.LeadID(),
		EndedReason:    e.EndedReason,
		Transcript:     e.Transcript,
		Summary:        e.Summary,
		StructuredData: e.StructuredData,
		Metadata:       e.Metadata,
		Timestamp:      e.Timestamp,
	}
}

// rawText renders a JSON scalar as text: strings unquoted, numbers and bools
// as written, null or missing as "". Objects and arrays are kept verbatim.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func rawObject(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var out map[string]any
	if err := utils.DecodeJSON(raw, &out); err != nil {
		return nil
	}
	return out
}
