// Package classify turns the unstructured result of a finished call into a
// qualification verdict and a CRM-ready summary.
package classify

import (
	"context"
	"strings"
	"unicode/utf8"

	"call-orchestrator/internal/calls"
)

// transcriptSummaryLimit caps how much raw transcript stands in for a missing summary.
const transcriptSummaryLimit = 950

// Classifier never fails: degraded inputs produce a degraded Outcome.
type Classifier interface {
	Classify(ctx context.Context, transcript, summary, endedReason string) calls.Outcome
}

// Heuristic classifies by keyword when no language model is configured.
type Heuristic struct{}

var qualifyingKeywords = []string{"forward", "approved", "qualified"}

func (Heuristic) Classify(_ context.Context, transcript, summary, endedReason string) calls.Outcome {
	text := strings.ToLower(summary + " " + transcript + " " + endedReason)

	verdict := calls.VerdictUnqualified
	for _, kw := range qualifyingKeywords {
		if strings.Contains(text, kw) {
			verdict = calls.VerdictQualified
			break
		}
	}

	return calls.Outcome{
		Connected:  strings.TrimSpace(text) != "",
		Qualified:  verdict,
		Reasoning:  "Heuristic (no LLM).",
		CRMSummary: fallbackSummary(summary, transcript, "No summary provided."),
	}
}

// fallbackSummary returns summary, else the head of transcript, else placeholder.
func fallbackSummary(summary, transcript, placeholder string) string {
	if summary != "" {
		return summary
	}
	if transcript != "" {
		return headRunes(transcript, transcriptSummaryLimit)
	}
	return placeholder
}

func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
