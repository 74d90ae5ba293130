package telephony

import "context"

// CallPlatform defines the provider-agnostic outbound-call interface used by business logic.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Lead identity travels in call metadata so completion events can be joined back to the CRM.
type CallPlatform interface {
	Name() string
	CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
}

// OutboundCallRequest asks the platform to dial a lead.
type OutboundCallRequest struct {
	LeadID string `json:"lead_id" validate:"required"`

	// To is E.164 where possible.
	To string `json:"to" validate:"required"`

	// DisplayName is how the voice agent addresses the lead.
	DisplayName string `json:"name"`
}

// OutboundCallResult is the platform's acknowledgement of a created call.
type OutboundCallResult struct {
	ProviderCallID string `json:"provider_call_id,omitempty"`

	// Raw is the provider response body as returned.
	Raw map[string]any `json:"raw,omitempty"`
}
