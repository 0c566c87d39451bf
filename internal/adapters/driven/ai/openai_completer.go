package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Ensure OpenAICompleter implements Completer
var _ driven.Completer = (*OpenAICompleter)(nil)

// Per-token prices in USD, used to report attempt cost. Unknown models
// fall back to the gpt-4o-mini rates.
var openAIModelPrices = map[string]tokenPrices{
	"gpt-4o":      {prompt: 2.50e-6, completion: 10.00e-6},
	"gpt-4o-mini": {prompt: 0.15e-6, completion: 0.60e-6},
}

type tokenPrices struct {
	prompt     float64
	completion float64
}

// OpenAICompleter implements Completer against an OpenAI-compatible
// chat completions API. Errors are classified for the extraction state
// machine: rate limits, 5xx and transport failures are transient;
// undecodable bodies and empty responses are malformed.
type OpenAICompleter struct {
	apiKey  string
	model   string
	baseURL string
	prices  tokenPrices
	limiter *rate.Limiter
	client  *http.Client
}

// CompleterConfig holds configuration for the OpenAI completer.
type CompleterConfig struct {
	APIKey  string
	Model   string // default gpt-4o-mini
	BaseURL string // default https://api.openai.com/v1
	// RequestsPerSecond throttles outgoing calls across all concurrent
	// extractors (default 5).
	RequestsPerSecond float64
	Timeout           time.Duration // per-request (default 60s)
}

// NewOpenAICompleter creates a new OpenAI-compatible completer.
func NewOpenAICompleter(cfg CompleterConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	prices, ok := openAIModelPrices[model]
	if !ok {
		prices = openAIModelPrices["gpt-4o-mini"]
	}
	return &OpenAICompleter{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		prices:  prices,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// chatRequest is the request body for the chat completions API
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from the chat completions API
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one prompt and returns the model's reply with its cost.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (*driven.Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCompleterTransient, err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCompleterTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrCompleterTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: API returned status %d", domain.ErrCompleterTransient, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", domain.ErrCompleterMalformed, err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s)", chat.Error.Message, chat.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", domain.ErrCompleterMalformed)
	}

	cost := float64(chat.Usage.PromptTokens)*c.prices.prompt +
		float64(chat.Usage.CompletionTokens)*c.prices.completion
	return &driven.Completion{
		Text: chat.Choices[0].Message.Content,
		Cost: cost,
	}, nil
}

// Model returns the model name being used
func (c *OpenAICompleter) Model() string {
	return c.model
}

// Close releases idle connections.
func (c *OpenAICompleter) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
