package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ReportsMissingEnv(t *testing.T) {
	c := Config{App: AppConfig{Port: 8000}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_LocalAppliesDefaults(t *testing.T) {
	c := Config{App: AppConfig{Env: "local", Port: 8000}}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.HubSpot.BaseURL != "https://api.hubapi.com" {
		t.Fatalf("unexpected hubspot base url %q", c.HubSpot.BaseURL)
	}
	if c.HubSpot.SummaryProperty != "contact_summary" {
		t.Fatalf("unexpected summary property %q", c.HubSpot.SummaryProperty)
	}
	if c.Statuses.OpenDeal != "OPEN_DEAL" || c.Statuses.Unqualified != "UNQUALIFIED" || c.Statuses.Contacted != "CONNECTED" {
		t.Fatalf("unexpected status defaults %+v", c.Statuses)
	}
	if c.Dedup.MaxKeys != 10_000 {
		t.Fatalf("expected dedup cap default, got %d", c.Dedup.MaxKeys)
	}
	if c.HTTPClient.Timeout != 30*time.Second {
		t.Fatalf("expected 30s outbound timeout, got %v", c.HTTPClient.Timeout)
	}
	if c.Phone.DefaultRegion != "US" {
		t.Fatalf("expected US region default, got %q", c.Phone.DefaultRegion)
	}
	if c.VapiCallbackURL() != "" {
		t.Fatalf("expected no callback url without BASE_URL")
	}
	if c.UsesModelClassifier() {
		t.Fatalf("expected heuristic classifier without llm keys")
	}
}

func TestValidate_ProductionRequiresCallPlatform(t *testing.T) {
	c := Config{App: AppConfig{Env: "production", Port: 8000}}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without credentials")
	}
	for _, want := range []string{"BASE_URL", "VAPI_API_KEY", "VAPI_WORKFLOW_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidate_RejectsRelativeBaseURL(t *testing.T) {
	c := Config{App: AppConfig{Env: "dev", Port: 8000, BaseURL: "example.com"}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for relative BASE_URL")
	}
}

func TestLoad_TrimsBaseURLAndBuildsCallback(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("BASE_URL", "https://orchestrator.example.com/")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := c.VapiCallbackURL(); got != "https://orchestrator.example.com/webhook/vapi" {
		t.Fatalf("unexpected callback url %q", got)
	}
	if c.App.Port != 8000 {
		t.Fatalf("expected default port, got %d", c.App.Port)
	}
	if !c.UsesModelClassifier() {
		t.Fatalf("expected model classifier with openai key")
	}
}

func TestLoad_LogLevelMatchesLoggerLevels(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error"} {
		t.Setenv("LOG_LEVEL", lvl)
		if _, err := Load(); err != nil {
			t.Fatalf("LOG_LEVEL=%s rejected: %v", lvl, err)
		}
	}
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Fatalf("expected LOG_LEVEL error, got %v", err)
	}
}

func TestLoad_ReportsParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DISPATCH_WORKERS", "many")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !strings.Contains(err.Error(), "APP_PORT") || !strings.Contains(err.Error(), "DISPATCH_WORKERS") {
		t.Fatalf("expected both keys reported, got %v", err)
	}
}
