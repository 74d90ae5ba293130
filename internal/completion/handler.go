// Package completion writes the outcome of a finished call back to the CRM.
package completion

import (
	"context"
	"log/slog"
	"time"

	"call-orchestrator/internal/calls"
	"call-orchestrator/internal/classify"
	"call-orchestrator/internal/crm"
	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const noSummaryBody = "Call summary unavailable."

// CRM is the write side of the CRM client used after a call.
type CRM interface {
	UpdateContactStatus(ctx context.Context, id, status, summary string) error
	CreateLoggedCall(ctx context.Context, lc calls.LoggedCall) (string, error)
}

type Auditor interface {
	LogCallOutcome(ctx context.Context, leadID, callID string, details map[string]any) error
	LogCRMWriteFailed(ctx context.Context, leadID, callID, op string, cause error) error
}

type Handler struct {
	crm        CRM
	classifier classify.Classifier
	statuses   calls.StatusMap
	audit      Auditor
	log        *slog.Logger

	Now func() time.Time
}

func NewHandler(c CRM, classifier classify.Classifier, statuses calls.StatusMap, audit Auditor, log *slog.Logger) *Handler {
	return &Handler{
		crm:        c,
		classifier: classifier,
		statuses:   statuses,
		audit:      audit,
		log:        logger.Module(log, "completion"),
		Now:        time.Now,
	}
}

// Handle classifies a finished call, updates the lead status and attaches a
// logged call. CRM transport failures are logged; only auth-configuration
// failures are returned.
func (h *Handler) Handle(ctx context.Context, r calls.EndOfCallReport) error {
	log := logger.From(ctx).With("call_id", r.CallID, "lead_id", r.LeadID)
	if r.LeadID == "" {
		log.Warn("end-of-call report without lead_id, skipping")
		return nil
	}

	ctx, span := tracing.Start(ctx, "completion.handle",
		attribute.String(tracing.LeadIDKey, r.LeadID),
		attribute.String(tracing.CallIDKey, r.CallID),
	)
	defer span.End()

	outcome := h.classifier.Classify(ctx, r.Transcript, r.Summary, r.EndedReason)
	status := h.statuses.For(outcome.Qualified)
	span.SetAttributes(attribute.String(tracing.VerdictKey, string(outcome.Qualified)))

	statusErr := h.crm.UpdateContactStatus(ctx, r.LeadID, status, outcome.CRMSummary)
	if statusErr != nil {
		if crm.IsFatal(statusErr) {
			tracing.SetError(span, statusErr)
			return statusErr
		}
		log.Error("crm status update failed", "status", status, "err", statusErr)
		h.auditFailure(ctx, r, "update_status", statusErr)
	}

	body := outcome.CRMSummary
	if body == "" {
		body = r.Summary
	}
	if body == "" {
		body = noSummaryBody
	}
	engagementID, callErr := h.crm.CreateLoggedCall(ctx, calls.LoggedCall{
		ContactID: r.LeadID,
		Body:      body,
		Status:    calls.LoggedCallStatusCompleted,
		Timestamp: h.Now(),
	})
	if callErr != nil {
		if crm.IsFatal(callErr) {
			tracing.SetError(span, callErr)
			return callErr
		}
		log.Error("crm logged call failed", "err", callErr)
		h.auditFailure(ctx, r, "create_logged_call", callErr)
	}

	log.Info("call outcome written",
		"verdict", outcome.Qualified,
		"connected", outcome.Connected,
		"status", status,
		"status_ok", statusErr == nil,
		"engagement_id", engagementID,
	)
	if err := h.audit.LogCallOutcome(ctx, r.LeadID, r.CallID, map[string]any{
		"verdict":       outcome.Qualified,
		"connected":     outcome.Connected,
		"reasoning":     outcome.Reasoning,
		"status":        status,
		"ended_reason":  r.EndedReason,
		"engagement_id": engagementID,
	}); err != nil {
		log.Warn("audit append failed", "err", err)
	}
	return nil
}

func (h *Handler) auditFailure(ctx context.Context, r calls.EndOfCallReport, op string, cause error) {
	if err := h.audit.LogCRMWriteFailed(ctx, r.LeadID, r.CallID, op, cause); err != nil {
		h.log.Warn("audit append failed", "lead_id", r.LeadID, "err", err)
	}
}
