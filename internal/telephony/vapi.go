package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/tracing"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

var ErrProviderNotConfigured = errors.New("telephony: provider not configured")

// StatusError is returned for non-2xx call platform responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telephony: vapi create call: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// VapiConfig configures the Vapi adapter.
type VapiConfig struct {
	BaseURL    string
	APIKey     string
	WorkflowID string

	// WebhookURL receives completion events for calls created here.
	WebhookURL string
}

// VapiProvider creates outbound calls through the Vapi REST API.
type VapiProvider struct {
	cfg      VapiConfig
	http     *http.Client
	validate *validator.Validate
}

func NewVapiProvider(cfg VapiConfig, httpClient *http.Client) *VapiProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.vapi.ai"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &VapiProvider{cfg: cfg, http: httpClient, validate: validator.New()}
}

func (p *VapiProvider) Name() string { return "vapi" }

type vapiCallMetadata struct {
	LeadID string `json:"lead_id" validate:"required"`
	Name   string `json:"name"`
}

type vapiCreateCall struct {
	WorkflowID string           `json:"workflow_id" validate:"required"`
	To         string           `json:"to" validate:"required"`
	Metadata   vapiCallMetadata `json:"metadata"`
	WebhookURL string           `json:"webhook_url" validate:"omitempty,url"`
}

// CreateCall starts an outbound call for a lead.
func (p *VapiProvider) CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	ctx, span := tracing.Start(ctx, "vapi.create_call", attribute.String(tracing.LeadIDKey, req.LeadID))
	defer span.End()

	if p.cfg.APIKey == "" {
		tracing.SetError(span, ErrProviderNotConfigured)
		return OutboundCallResult{}, fmt.Errorf("%w: missing api key", ErrProviderNotConfigured)
	}
	if err := p.validate.Struct(req); err != nil {
		tracing.SetError(span, err)
		return OutboundCallResult{}, fmt.Errorf("telephony: invalid call request: %w", err)
	}

	payload := vapiCreateCall{
		WorkflowID: p.cfg.WorkflowID,
		To:         req.To,
		Metadata:   vapiCallMetadata{LeadID: req.LeadID, Name: req.DisplayName},
		WebhookURL: p.cfg.WebhookURL,
	}
	if err := p.validate.Struct(payload); err != nil {
		tracing.SetError(span, err)
		return OutboundCallResult{}, fmt.Errorf("telephony: invalid vapi payload: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OutboundCallResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return OutboundCallResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		tracing.SetError(span, err)
		return OutboundCallResult{}, fmt.Errorf("telephony: vapi create call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		tracing.SetError(span, err)
		return OutboundCallResult{}, fmt.Errorf("telephony: read vapi response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: logger.Truncate(string(raw), 500)}
		tracing.SetError(span, serr)
		return OutboundCallResult{}, serr
	}

	out := OutboundCallResult{Raw: map[string]any{}}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out.Raw); err != nil {
			return OutboundCallResult{}, fmt.Errorf("telephony: decode vapi response: %w", err)
		}
	}
	if id, ok := out.Raw["id"].(string); ok {
		out.ProviderCallID = id
		span.SetAttributes(attribute.String(tracing.CallIDKey, id))
	}
	return out, nil
}
