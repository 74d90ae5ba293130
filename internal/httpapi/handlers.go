package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"call-orchestrator/internal/dispatch"
	"call-orchestrator/internal/intake"
	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type Admitter interface {
	Admit(ctx context.Context, key string) bool
}

type Submitter interface {
	Submit(ctx context.Context, job dispatch.Job) error
}

type IntakeHandler interface {
	HandleEvent(ctx context.Context, ev intake.Event) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, dedup, enqueue, return JSON.
type Handlers struct {
	Dedup  Admitter
	Jobs   Submitter
	Intake IntakeHandler
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// --- CRM webhook ---

// HubSpotWebhook accepts a single event object or a batch array.
func (h Handlers) HubSpotWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Dedup == nil || h.Jobs == nil || h.Intake == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "crm webhook not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("crm webhook read failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "bad json"})
		return
	}
	log.Debug("crm webhook raw", "body", logger.Truncate(string(body), 1200))

	var payload any
	if err := utils.DecodeJSON(body, &payload); err != nil {
		log.Warn("crm webhook parse failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "bad json"})
		return
	}

	var events []map[string]any
	switch v := payload.(type) {
	case map[string]any:
		events = append(events, v)
	case []any:
		for _, item := range v {
			if ev, ok := item.(map[string]any); ok {
				events = append(events, ev)
			}
		}
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := c.Request.Context()
	for _, raw := range events {
		ev := intake.Event(raw)
		if !h.Dedup.Admit(ctx, "hs:"+EventKey(raw)) {
			log.Info("duplicate crm event", "object_id", ev.ObjectID())
			continue
		}
		err := h.Jobs.Submit(ctx, dispatch.Job{
			Name: "hubspot.contact_event",
			Run: func(ctx context.Context) error {
				return h.Intake.HandleEvent(ctx, ev)
			},
		})
		if err != nil {
			log.Error("crm event enqueue failed", "object_id", ev.ObjectID(), "err", err)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// EventKey identifies a CRM event for dedup: eventId, else objectId, else
// the event's canonical JSON with sorted keys.
func EventKey(ev map[string]any) string {
	for _, k := range []string{"eventId", "objectId"} {
		if v := ev[k]; utils.Truthy(v) {
			return utils.StringOf(v)
		}
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return ""
	}
	return string(b)
}
