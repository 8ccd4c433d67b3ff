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
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"
)

// OpenAIProvider implements llm.Provider for the OpenAI Chat Completions API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL overrides the API base URL, mainly for tests and
// OpenAI-compatible gateways.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.baseURL = baseURL
	}
}

// WithOpenAIHTTPClient overrides the HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.client = client
	}
}

// NewOpenAIProvider creates a provider for the OpenAI Chat Completions API.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}

	p := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: openAIDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = 120 * time.Second
		cfg.RetryAttempts = 0
		cfg.UserAgent = "ensemble-openai/1.0"
		client, err := httpclient.New(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "creating HTTP client")
		}
		p.client = client
	}

	return p, nil
}

// Name implements llm.Provider.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete implements llm.Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = openAIDefaultModel
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body := openAIRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	if len(apiResp.Choices) == 0 {
		return nil, &errors.ProviderError{
			Provider:  p.Name(),
			Message:   "response contained no choices",
			RequestID: apiResp.ID,
		}
	}

	choice := apiResp.Choices[0]
	created := time.Now()
	if apiResp.Created > 0 {
		created = time.Unix(apiResp.Created, 0)
	}

	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
		Model:     apiResp.Model,
		RequestID: apiResp.ID,
		Created:   created,
	}, nil
}

func (p *OpenAIProvider) apiError(resp *http.Response, body []byte) error {
	message := fmt.Sprintf("API returned status %d", resp.StatusCode)
	var apiErr openAIErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	return &errors.ProviderError{
		Provider:   p.Name(),
		StatusCode: resp.StatusCode,
		Message:    message,
		Suggestion: suggestionForStatus(resp.StatusCode, "OPENAI_API_KEY"),
		RequestID:  resp.Header.Get("x-request-id"),
	}
}

func mapOpenAIFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	default:
		return llm.FinishReasonError
	}
}
