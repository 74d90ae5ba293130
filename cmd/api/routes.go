package main

import (
	"call-orchestrator/internal/httpapi"
	"call-orchestrator/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, vapi telephony.VapiWebhookHandler) {
	r.GET("/health", h.Health)

	// Webhooks (public). The call platform is authenticated by shared secret.
	webhooks := r.Group("/webhook")
	{
		webhooks.POST("/hubspot", h.HubSpotWebhook)
		webhooks.POST("/vapi", vapi.HandleEvent)
	}
}
