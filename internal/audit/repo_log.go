package audit

import (
	"context"
	"log/slog"

	"call-orchestrator/pkg/logger"
)

// LogRepo writes audit events to the structured log. It is the default sink
// when no database is configured.
type LogRepo struct {
	log *slog.Logger
}

func NewLogRepo(log *slog.Logger) *LogRepo {
	return &LogRepo{log: logger.Module(log, "audit")}
}

func (r *LogRepo) Append(ctx context.Context, e Event) error {
	r.log.InfoContext(ctx, "audit event",
		"audit_id", e.ID,
		"type", e.Type,
		"lead_id", e.LeadID,
		"call_id", e.CallID,
		"message", e.Message,
		"metadata", e.Metadata,
		"created_at", e.CreatedAt,
	)
	return nil
}
