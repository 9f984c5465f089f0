// Package summarizer produces insight JSON from CRM record content. The
// OpenAI-backed implementation asks the model for a strict JSON object; the
// stub gives deterministic output for local runs and tests.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crm-insights/internal/common/errors"
	"crm-insights/internal/common/logging"
)

// systemPrompt pins the output contract for the model.
const systemPrompt = `You are an assistant that analyzes CRM meeting and note content.
Respond with a single JSON object and nothing else, using this shape:
{"summary": string, "decisions": [string], "action_items": [{"title": string, "owner_email": string, "suggested_due_date": "YYYY-MM-DD", "priority": "low"|"normal"|"high"}], "next_steps": [string]}
Omit owner_email, suggested_due_date, and priority when the content does not state them.`

// Summarizer turns record content into raw insight JSON.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// OpenAIConfig configures the chat-completions client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient calls the chat completions API in JSON mode.
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient creates a summarizer backed by the chat completions API.
func NewOpenAIClient(config OpenAIConfig, logger logging.Logger) *OpenAIClient {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summarize sends the content to the model and returns its raw response
// text. Parsing and validation happen in the caller, which owns the retry
// policy for malformed output.
func (c *OpenAIClient) Summarize(ctx context.Context, content string) (string, error) {
	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0.2,
	}
	reqBody.ResponseFormat.Type = "json_object"

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.InternalError("failed to encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", errors.InternalError("failed to create completion request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.WrapRemoteError("chat completion", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", errors.WrapRemoteError("chat completion", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewRemoteError("chat completion", resp.StatusCode, string(respBody))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", errors.InternalError("failed to decode completion response", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.InternalError("completion response has no choices", nil)
	}
	return out.Choices[0].Message.Content, nil
}

// Stub is a deterministic summarizer for local runs without an API key.
type Stub struct{}

// NewStub creates the deterministic summarizer.
func NewStub() *Stub {
	return &Stub{}
}

// Summarize returns a minimal valid insight built from the content itself.
func (s *Stub) Summarize(_ context.Context, content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) > 80 {
		trimmed = trimmed[:80] + "..."
	}
	out, err := json.Marshal(map[string]interface{}{
		"summary":      fmt.Sprintf("Auto summary: %s", trimmed),
		"decisions":    []string{},
		"action_items": []interface{}{},
		"next_steps":   []string{},
	})
	if err != nil {
		return "", errors.InternalError("failed to encode stub insight", err)
	}
	return string(out), nil
}
