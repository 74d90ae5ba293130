package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"call-orchestrator/internal/calls"
	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// Oracle is a single-shot text completion backend.
type Oracle interface {
	Name() string
	Generate(ctx context.Context, contents []*genai.Content) (string, error)
}

// ModelAssisted asks a language model for a strict-JSON classification and
// degrades to a fixed not_applicable outcome on any failure.
type ModelAssisted struct {
	oracle Oracle
	log    *slog.Logger
}

func NewModelAssisted(oracle Oracle, log *slog.Logger) *ModelAssisted {
	return &ModelAssisted{oracle: oracle, log: logger.Module(log, "classify")}
}

type modelReply struct {
	Connected      bool   `json:"connected"`
	Qualified      string `json:"qualified"`
	Reasoning      string `json:"reasoning"`
	HubspotSummary string `json:"hubspot_summary"`
}

func (m *ModelAssisted) Classify(ctx context.Context, transcript, summary, endedReason string) calls.Outcome {
	ctx, span := tracing.Start(ctx, "classify.model", attribute.String("orchestrator.llm.oracle", m.oracle.Name()))
	defer span.End()

	out, err := m.classify(ctx, transcript, summary, endedReason)
	if err != nil {
		tracing.SetError(span, err)
		m.log.Warn("call analysis failed", "oracle", m.oracle.Name(), "err", err)
		return calls.Outcome{
			Connected:  false,
			Qualified:  calls.VerdictNotApplicable,
			Reasoning:  "Analysis failed: " + err.Error(),
			CRMSummary: fallbackSummary(summary, transcript, "Call analysis failed."),
		}
	}
	span.SetAttributes(attribute.String(tracing.VerdictKey, string(out.Qualified)))
	return out
}

func (m *ModelAssisted) classify(ctx context.Context, transcript, summary, endedReason string) (out calls.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("oracle panic: %v", p)
		}
	}()

	text, err := m.oracle.Generate(ctx, genai.Text(BuildPrompt(endedReason, summary, transcript)))
	if err != nil {
		return calls.Outcome{}, err
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &reply); err != nil {
		return calls.Outcome{}, fmt.Errorf("parse model reply: %w", err)
	}
	return calls.Outcome{
		Connected:  reply.Connected,
		Qualified:  calls.ParseVerdict(reply.Qualified),
		Reasoning:  reply.Reasoning,
		CRMSummary: reply.HubspotSummary,
	}, nil
}

// BuildPrompt renders the classification prompt.
func BuildPrompt(endedReason, summary, transcript string) string {
	var b strings.Builder
	b.WriteString("Return ONLY valid JSON.\n")
	b.WriteString("EndedReason: " + endedReason + "\n")
	b.WriteString("Summary: " + summary + "\n")
	b.WriteString("Transcript: " + transcript + "\n")
	b.WriteString("\nFields:\n")
	b.WriteString("- connected: boolean\n")
	b.WriteString(`- qualified: "qualified" | "unqualified" | "not_applicable"` + "\n")
	b.WriteString("- reasoning: short string\n")
	b.WriteString("- hubspot_summary: compact professional summary\n")
	return b.String()
}

// ExtractJSON trims text and, if it does not start with "{", cuts it to the
// span between the first "{" and the last "}". With no such span it returns "{}".
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		return text
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return text[start : end+1]
}
