package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the audit schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("audit: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// PostgresRepo appends events to the audit_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEvent = `
INSERT INTO audit_events (id, type, lead_id, call_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	if _, err := r.db.ExecContext(ctx, insertEvent,
		e.ID, string(e.Type), e.LeadID, e.CallID, e.Message, metadata, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
