package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client

	// Limiter paces outbound requests; nil means unlimited.
	Limiter *rate.Limiter

	// SummaryProperty is the contact property that receives the call summary.
	SummaryProperty string

	Logger *slog.Logger
}

// Client talks to the CRM REST API with bearer auth and one-shot token refresh.
type Client struct {
	baseURL         string
	http            *http.Client
	tokens          *TokenManager
	limiter         *rate.Limiter
	summaryProperty string
	log             *slog.Logger
}

func NewClient(tokens *TokenManager, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.hubapi.com"
	}
	if opts.SummaryProperty == "" {
		opts.SummaryProperty = "contact_summary"
	}
	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		http:            opts.HTTPClient,
		tokens:          tokens,
		limiter:         opts.Limiter,
		summaryProperty: opts.SummaryProperty,
		log:             logger.Module(opts.Logger, "crm"),
	}
}

// Response is a fully-read CRM response.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

// Err returns a *StatusError for non-2xx responses.
func (r *Response) Err() error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	return &StatusError{
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: r.StatusCode,
		Body:       logger.Truncate(string(r.Body), 500),
	}
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("crm: decode %s %s: %w", r.Method, r.Path, err)
	}
	return nil
}

// Send performs an authenticated CRM request. On an expired-auth 401 it refreshes
// the token once and retries once; a second 401 is returned as a normal response.
// Transport failures are returned as errors; refresh failures wrap ErrAuthConfig.
func (c *Client) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, method, path, payload, c.tokens.Token())
	if err != nil {
		return nil, err
	}
	if !isExpiredAuth(resp) {
		return resp, nil
	}

	c.log.Info("crm token expired, refreshing", "method", method, "path", path)
	tok, err := c.tokens.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, path, payload, tok)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, token string) (*Response, error) {
	ctx, span := tracing.Start(ctx, "crm.request",
		attribute.String("http.request.method", method),
		attribute.String(tracing.HTTPPathKey, path),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			tracing.SetError(span, err)
			return nil, fmt.Errorf("crm: rate limiter: %w", err)
		}
	}

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		tracing.SetError(span, err)
		return nil, fmt.Errorf("crm: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		tracing.SetError(span, err)
		return nil, fmt.Errorf("crm: read %s %s: %w", method, path, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))

	return &Response{Method: method, Path: path, StatusCode: res.StatusCode, Body: raw}, nil
}

// isExpiredAuth reports a 401 whose JSON category names an expired or invalid token.
func isExpiredAuth(r *Response) bool {
	if r.StatusCode != http.StatusUnauthorized {
		return false
	}
	var body struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return false
	}
	switch body.Category {
	case "EXPIRED_AUTHENTICATION", "INVALID_AUTHENTICATION":
		return true
	default:
		return false
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("crm: encode body: %w", err)
	}
	return b, nil
}
