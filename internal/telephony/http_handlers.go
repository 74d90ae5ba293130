package telephony

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"call-orchestrator/internal/calls"
	"call-orchestrator/internal/dispatch"
	"call-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"
)

const (
	headerVapiSecret = "x-vapi-secret"
	maxWebhookBody   = 1 << 20
)

type Admitter interface {
	Admit(ctx context.Context, key string) bool
}

type Submitter interface {
	Submit(ctx context.Context, job dispatch.Job) error
}

type CompletionHandler interface {
	Handle(ctx context.Context, report calls.EndOfCallReport) error
}

// VapiWebhookHandler authenticates and dedups Vapi server messages and hands
// end-of-call reports to the completion handler off the request path.
//
// No business logic here.
type VapiWebhookHandler struct {
	// Secret, when set, must match the x-vapi-secret header.
	Secret string

	Dedup      Admitter
	Jobs       Submitter
	Completion CompletionHandler
}

func (h VapiWebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Dedup == nil || h.Jobs == nil || h.Completion == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "vapi webhook not configured"})
		return
	}

	if h.Secret != "" {
		got := c.GetHeader(headerVapiSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			log.Warn("vapi webhook rejected: bad secret")
			problem := problems.NewStatusProblem(http.StatusUnauthorized).
				WithInstance(c.Request.URL.Path).
				WithType("unauthorized").
				WithDetail("invalid webhook secret")
			c.Header("Content-Type", "application/problem+json")
			c.AbortWithStatusJSON(http.StatusUnauthorized, problem)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("vapi webhook read failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "bad json"})
		return
	}
	log.Debug("vapi webhook raw", "body", logger.Truncate(string(body), 1500))

	ev, err := ParseVapiEvent(body)
	if err != nil {
		log.Warn("vapi webhook parse failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "bad json"})
		return
	}

	log.Info("vapi event",
		"type", ev.Type,
		"call_id", ev.CallID,
		"ended_reason", ev.EndedReason,
		"summary_preview", logger.Truncate(ev.Summary, 200),
		"transcript_len", len(ev.Transcript),
	)

	ctx := c.Request.Context()
	if !h.Dedup.Admit(ctx, "vapi:"+ev.DedupKey()) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	if ev.Type == EventEndOfCallReport {
		report := ev.ToEndOfCallReport()
		err := h.Jobs.Submit(ctx, dispatch.Job{
			Name: "vapi.end_of_call",
			Run: func(ctx context.Context) error {
				ctx = logger.With(ctx, logger.From(ctx).With("call_id", report.CallID, "lead_id", report.LeadID))
				return h.Completion.Handle(ctx, report)
			},
		})
		if err != nil {
			log.Error("vapi end-of-call enqueue failed", "call_id", ev.CallID, "err", err)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
