package classify

import (
	"context"
	"log/slog"
	"net/http"

	"call-orchestrator/internal/config"
)

// New picks the strategy once at startup: an OpenAI-compatible model when its key
// is set, else Gemini, else the keyword heuristic.
func New(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client, log *slog.Logger) (Classifier, error) {
	switch {
	case cfg.OpenAIAPIKey != "":
		oracle := NewOpenAIOracle(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, httpClient)
		return NewModelAssisted(oracle, log), nil
	case cfg.GeminiAPIKey != "":
		oracle, err := NewGeminiOracle(ctx, GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		return NewModelAssisted(oracle, log), nil
	default:
		return Heuristic{}, nil
	}
}
