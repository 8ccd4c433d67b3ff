// Package providers contains concrete llm.Provider implementations for the
// hosted and local backends the runner can talk to.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ensemble-run/ensemble/pkg/errors"
	"github.com/ensemble-run/ensemble/pkg/httpclient"
	"github.com/ensemble-run/ensemble/pkg/llm"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultModel   = "claude-sonnet-4-20250514"

	// The Messages API requires max_tokens; used when the request leaves it unset.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicProvider implements llm.Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicBaseURL overrides the API base URL, mainly for tests.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(p *AnthropicProvider) {
		p.baseURL = baseURL
	}
}

// WithAnthropicHTTPClient overrides the HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) {
		p.client = client
	}
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	p := &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: anthropicDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = 120 * time.Second
		// Transport-level retry stays off; the runner owns retry policy.
		cfg.RetryAttempts = 0
		cfg.UserAgent = "ensemble-anthropic/1.0"
		client, err := httpclient.New(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "creating HTTP client")
		}
		p.client = client
	}

	return p, nil
}

// Name implements llm.Provider.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements llm.Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	// Anthropic takes the system prompt as a top-level field, not a message.
	var system string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == llm.MessageRoleSystem {
			system = m.Content
			continue
		}
		messages = append(messages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body := anthropicRequest{
		Model:         model,
		Messages:      messages,
		System:        system,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("request failed: %v", err),
			Cause:    err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.apiError(httpResp, respBody)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}

	var content string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &llm.CompletionResponse{
		Content:      content,
		FinishReason: mapAnthropicStopReason(apiResp.StopReason),
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Model:     apiResp.Model,
		RequestID: apiResp.ID,
		Created:   time.Now(),
	}, nil
}

func (p *AnthropicProvider) apiError(resp *http.Response, body []byte) error {
	message := fmt.Sprintf("API returned status %d", resp.StatusCode)
	var apiErr anthropicErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	return &errors.ProviderError{
		Provider:   p.Name(),
		StatusCode: resp.StatusCode,
		Message:    message,
		Suggestion: suggestionForStatus(resp.StatusCode, "ANTHROPIC_API_KEY"),
		RequestID:  resp.Header.Get("request-id"),
	}
}

func mapAnthropicStopReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	default:
		return llm.FinishReasonError
	}
}

// suggestionForStatus gives users an actionable hint for common API failures.
func suggestionForStatus(statusCode int, keyEnv string) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Sprintf("Check that %s is set to a valid API key", keyEnv)
	case http.StatusForbidden:
		return "Your API key does not have access to this model"
	case http.StatusNotFound:
		return "Check the model name; it may be misspelled or unavailable"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded; wait and retry, or reduce request frequency"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "Provider is experiencing issues; retry shortly"
	default:
		return ""
	}
}
