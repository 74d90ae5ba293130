// Package dedup suppresses repeated webhook deliveries within an hour bucket.
//
// It is a best-effort cache, not a ledger: keys are lost on restart (memory
// store), on overflow (memory store clears itself) and on TTL expiry (Redis).
package dedup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"call-orchestrator/pkg/logger"
)

// Store records first sightings of event keys.
type Store interface {
	// FirstSeen marks key for the current hour bucket and reports whether it was new.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// bucketKey scopes key to the hour containing t.
func bucketKey(key string, t time.Time) string {
	return key + ":" + strconv.FormatInt(t.Unix()/3600, 10)
}

// Guard admits events through a Store. Store failures admit the event.
type Guard struct {
	store Store
	log   *slog.Logger
}

func NewGuard(store Store, log *slog.Logger) *Guard {
	return &Guard{store: store, log: logger.Module(log, "dedup")}
}

// Admit reports whether the event identified by key should be processed.
func (g *Guard) Admit(ctx context.Context, key string) bool {
	ok, err := g.store.FirstSeen(ctx, key)
	if err != nil {
		g.log.Warn("dedup store failed, admitting event", "key", key, "err", err)
		return true
	}
	if !ok {
		g.log.Debug("duplicate event", "key", key)
	}
	return ok
}
