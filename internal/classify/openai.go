package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIOracle calls /chat/completions with temperature 0.
type OpenAIOracle struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAIOracle(cfg OpenAIConfig, client *http.Client) *OpenAIOracle {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if client == nil {
		client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIOracle{cfg: cfg, client: client}
}

func (o *OpenAIOracle) Name() string { return "openai:" + o.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAIOracle) Generate(ctx context.Context, contents []*genai.Content) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.cfg.Model,
		Messages:    convertMessages(contents),
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode completion (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("completion api error: %s", result.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion api status %d", resp.StatusCode)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("completion api error: empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

func convertMessages(contents []*genai.Content) []chatMessage {
	out := make([]chatMessage, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			continue
		}
		var text strings.Builder
		for _, p := range c.Parts {
			if p != nil && p.Text != "" {
				text.WriteString(p.Text)
			}
		}
		if text.Len() == 0 {
			continue
		}
		out = append(out, chatMessage{Role: roleForContent(c.Role), Content: text.String()})
	}
	return out
}

func roleForContent(role string) string {
	if role == "model" {
		return "assistant"
	}
	return "user"
}
