/**
 * @description
 * Lightweight OpenAI-compatible Chat Completions client.
 * Used by the analysis pipeline to run each rendered prompt.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 *
 * @notes
 * - No retries: a failed call surfaces as a ModelCallError and the caller degrades that prompt.
 */

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/logger"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1/chat/completions"
	DefaultModel     = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1200

	systemPrompt = `You are a helpful financial analyst. When given a prompt, you return a JSON object with the keys: score (integer 1-100), rating (BUY, HOLD or SELL), target_buy_price (number), and rationale (string).
Return ONLY the JSON object. No markdown, no code fences.`
)

// ModelClient turns a rendered prompt into raw model output.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// ModelCallError wraps any failure talking to the completion provider.
type ModelCallError struct {
	Model      string
	StatusCode int
	Err        error
}

func (e *ModelCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %s: status %d: %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

var (
	ErrNoAPIKey     = errors.New("openai api key is not configured")
	ErrEmptyPrompt  = errors.New("prompt is required")
	ErrNoChoices    = errors.New("no choices returned from openai")
	ErrEmptyContent = errors.New("openai response missing content")
)

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewClient(cfg *config.Config) *Client {
	baseURL := strings.TrimSpace(cfg.Model.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Model.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  cfg.Model.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewModelClient returns the network client when a credential is configured and the
// deterministic offline stub otherwise.
func NewModelClient(cfg *config.Config) ModelClient {
	if cfg.UseStubModel() {
		logger.Warn("OPENAI_API_KEY not set; using offline stub model")
		return NewStub()
	}
	return NewClient(cfg)
}

// Model returns the model name being used by this client
func (c *Client) Model() string {
	return c.model
}

// Complete sends the rendered prompt as the user message and returns the first choice content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", &ModelCallError{Model: c.model, Err: ErrNoAPIKey}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", &ModelCallError{Model: c.model, Err: ErrEmptyPrompt}
	}

	payload := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.0,
		MaxTokens:      defaultMaxTokens,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", &ModelCallError{Model: c.model, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", &ModelCallError{Model: c.model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ModelCallError{Model: c.model, Err: fmt.Errorf("openai request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ModelCallError{Model: c.model, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("OpenAI API error: %d - %s", resp.StatusCode, truncateForLog(string(respBody), 1000))
		return "", &ModelCallError{Model: c.model, StatusCode: resp.StatusCode, Err: fmt.Errorf("openai api returned status %d", resp.StatusCode)}
	}

	var result ChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		logger.Error("Failed to decode OpenAI response: %v | raw: %s", err, truncateForLog(string(respBody), 1000))
		return "", &ModelCallError{Model: c.model, Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(result.Choices) == 0 {
		return "", &ModelCallError{Model: c.model, Err: ErrNoChoices}
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", &ModelCallError{
			Model: c.model,
			Err:   fmt.Errorf("%w (finish_reason: %s)", ErrEmptyContent, result.Choices[0].FinishReason),
		}
	}

	logger.Debug("OpenAI completion %s used %d tokens", result.ID, result.Usage.TotalTokens)
	return content, nil
}

func truncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
