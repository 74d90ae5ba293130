package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the orchestrator process.
// All values come from env (optionally seeded from an env file by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	HubSpot    HubSpotConfig
	Vapi       VapiConfig
	LLM        LLMConfig
	Dispatch   DispatchConfig
	Dedup      DedupConfig
	Phone      PhoneConfig
	Redis      RedisConfig
	DB         DBConfig
	Telemetry  TelemetryConfig
	Statuses   StatusConfig
	HTTPClient HTTPClientConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string

	// BaseURL is the public URL the call platform posts completion events back to.
	BaseURL string
}

type HubSpotConfig struct {
	BaseURL      string
	AccessToken  string
	ClientID     string
	ClientSecret string
	RefreshToken string

	// RateLimitRPS paces outbound CRM requests.
	RateLimitRPS float64

	// SummaryProperty is the contact property receiving the call summary.
	SummaryProperty string
}

type StatusConfig struct {
	OpenDeal    string
	Unqualified string
	Contacted   string
}

type VapiConfig struct {
	BaseURL       string
	APIKey        string
	WorkflowID    string
	WebhookSecret string
}

type LLMConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string
}

type DispatchConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

type DedupConfig struct {
	MaxKeys int
}

type PhoneConfig struct {
	DefaultRegion string
}

type RedisConfig struct {
	Addr string
}

type DBConfig struct {
	// URL is a pgx-compatible DSN; empty keeps the audit trail in the log sink.
	URL string
}

type TelemetryConfig struct {
	OTLPEndpoint string
}

type HTTPClientConfig struct {
	Timeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := optionalInt("APP_PORT", 8000)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/")

	c.HubSpot.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("HUBSPOT_BASE_URL")), "/")
	c.HubSpot.AccessToken = strings.TrimSpace(os.Getenv("HUBSPOT_ACCESS_TOKEN"))
	c.HubSpot.ClientID = strings.TrimSpace(os.Getenv("HUBSPOT_CLIENT_ID"))
	c.HubSpot.ClientSecret = os.Getenv("HUBSPOT_CLIENT_SECRET")
	c.HubSpot.RefreshToken = os.Getenv("HUBSPOT_REFRESH_TOKEN")
	{
		f, err := optionalFloat("HUBSPOT_RATE_LIMIT_RPS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.HubSpot.RateLimitRPS = f
	}
	c.HubSpot.SummaryProperty = strings.TrimSpace(os.Getenv("CALL_SUMMARY_PROPERTY"))

	c.Statuses.OpenDeal = strings.TrimSpace(os.Getenv("HS_STATUS_OPEN_DEAL"))
	c.Statuses.Unqualified = strings.TrimSpace(os.Getenv("HS_STATUS_UNQUALIFIED"))
	c.Statuses.Contacted = strings.TrimSpace(os.Getenv("HS_STATUS_CONTACTED"))

	c.Vapi.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("VAPI_BASE_URL")), "/")
	c.Vapi.APIKey = strings.TrimSpace(os.Getenv("VAPI_API_KEY"))
	c.Vapi.WorkflowID = strings.TrimSpace(os.Getenv("VAPI_WORKFLOW_ID"))
	c.Vapi.WebhookSecret = os.Getenv("VAPI_WEBHOOK_SECRET")

	c.LLM.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	c.LLM.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")), "/")
	c.LLM.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.LLM.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	c.LLM.GeminiModel = strings.TrimSpace(os.Getenv("GEMINI_MODEL"))

	{
		n, err := optionalInt("DISPATCH_WORKERS", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dispatch.Workers = n
	}
	{
		n, err := optionalInt("DISPATCH_QUEUE_SIZE", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dispatch.QueueSize = n
	}
	{
		n, err := optionalInt("DEDUP_MAX_KEYS", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dedup.MaxKeys = n
	}
	// Duration env vars are optional; defaults applied in Validate().
	c.Dispatch.JobTimeout = mustDuration("JOB_TIMEOUT")
	c.HTTPClient.Timeout = mustDuration("OUTBOUND_TIMEOUT")

	c.Phone.DefaultRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	c.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.DB.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills in defaults for optional values.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.LogLevel != "" && !isValidLogLevel(c.App.LogLevel) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn(ing), error, got %q", c.App.LogLevel))
	}
	if c.App.BaseURL != "" {
		if u, err := url.Parse(c.App.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.App.BaseURL))
		}
	}

	if c.IsProduction() {
		if c.App.BaseURL == "" {
			errs = append(errs, errors.New("BASE_URL is required in production"))
		}
		if c.Vapi.APIKey == "" {
			errs = append(errs, errors.New("VAPI_API_KEY is required in production"))
		}
		if c.Vapi.WorkflowID == "" {
			errs = append(errs, errors.New("VAPI_WORKFLOW_ID is required in production"))
		}
		if c.HubSpot.AccessToken == "" && c.HubSpot.RefreshToken == "" {
			errs = append(errs, errors.New("HUBSPOT_ACCESS_TOKEN or HUBSPOT_REFRESH_TOKEN is required in production"))
		}
	}

	if c.HubSpot.BaseURL == "" {
		c.HubSpot.BaseURL = "https://api.hubapi.com"
	}
	if c.HubSpot.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("HUBSPOT_RATE_LIMIT_RPS must be >= 0, got %v", c.HubSpot.RateLimitRPS))
	} else if c.HubSpot.RateLimitRPS == 0 {
		c.HubSpot.RateLimitRPS = 10
	}
	if c.HubSpot.SummaryProperty == "" {
		c.HubSpot.SummaryProperty = "contact_summary"
	}

	if c.Statuses.OpenDeal == "" {
		c.Statuses.OpenDeal = "OPEN_DEAL"
	}
	if c.Statuses.Unqualified == "" {
		c.Statuses.Unqualified = "UNQUALIFIED"
	}
	if c.Statuses.Contacted == "" {
		c.Statuses.Contacted = "CONNECTED"
	}

	if c.Vapi.BaseURL == "" {
		c.Vapi.BaseURL = "https://api.vapi.ai"
	}

	if c.LLM.OpenAIBaseURL == "" {
		c.LLM.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.OpenAIModel == "" {
		c.LLM.OpenAIModel = "gpt-4o-mini"
	}
	if c.LLM.GeminiModel == "" {
		c.LLM.GeminiModel = "gemini-2.0-flash"
	}

	if c.Dispatch.Workers < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_WORKERS must be >= 0, got %d", c.Dispatch.Workers))
	} else if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 8
	}
	if c.Dispatch.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_QUEUE_SIZE must be >= 0, got %d", c.Dispatch.QueueSize))
	} else if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 256
	}
	if c.Dispatch.JobTimeout <= 0 {
		c.Dispatch.JobTimeout = 2 * time.Minute
	}
	if c.HTTPClient.Timeout <= 0 {
		c.HTTPClient.Timeout = 30 * time.Second
	}
	if c.Dispatch.JobTimeout < c.HTTPClient.Timeout {
		errs = append(errs, errors.New("JOB_TIMEOUT must not be shorter than OUTBOUND_TIMEOUT"))
	}

	if c.Dedup.MaxKeys < 0 {
		errs = append(errs, fmt.Errorf("DEDUP_MAX_KEYS must be >= 0, got %d", c.Dedup.MaxKeys))
	} else if c.Dedup.MaxKeys == 0 {
		c.Dedup.MaxKeys = 10_000
	}

	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = "US"
	} else if len(c.Phone.DefaultRegion) != 2 {
		errs = append(errs, fmt.Errorf("PHONE_DEFAULT_REGION must be an ISO 3166-1 alpha-2 code, got %q", c.Phone.DefaultRegion))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// VapiCallbackURL is where the call platform posts completion events.
// Empty when BASE_URL is unset.
func (c Config) VapiCallbackURL() string {
	if c.App.BaseURL == "" {
		return ""
	}
	return c.App.BaseURL + "/webhook/vapi"
}

// UsesModelClassifier reports whether an LLM credential is configured.
func (c Config) UsesModelClassifier() bool {
	return c.LLM.OpenAIAPIKey != "" || c.LLM.GeminiAPIKey != ""
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
