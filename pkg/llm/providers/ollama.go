package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ensemble-run/ensemble/pkg/errors"
	"github.com/ensemble-run/ensemble/pkg/httpclient"
	"github.com/ensemble-run/ensemble/pkg/llm"
)

const (
	ollamaDefaultBaseURL = "http://localhost:11434"
	ollamaDefaultModel   = "llama3.1"
)

// OllamaProvider implements llm.Provider for a local Ollama server.
// No API key is required; the base URL comes from OLLAMA_HOST when set.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithOllamaBaseURL overrides the server base URL.
func WithOllamaBaseURL(baseURL string) OllamaOption {
	return func(p *OllamaProvider) {
		p.baseURL = baseURL
	}
}

// WithOllamaHTTPClient overrides the HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		p.client = client
	}
}

// NewOllamaProvider creates a provider for a local Ollama server.
func NewOllamaProvider(opts ...OllamaOption) (*OllamaProvider, error) {
	p := &OllamaProvider{
		baseURL: ollamaDefaultBaseURL,
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		p.baseURL = host
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		cfg := httpclient.DefaultConfig()
		// Local models can be slow to load on first request.
		cfg.Timeout = 300 * time.Second
		cfg.RetryAttempts = 0
		cfg.UserAgent = "ensemble-ollama/1.0"
		client, err := httpclient.New(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "creating HTTP client")
		}
		p.client = client
	}

	return p, nil
}

// Name implements llm.Provider.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete implements llm.Provider.
func (p *OllamaProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = ollamaDefaultModel
	}

	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature != nil || req.MaxTokens != nil || len(req.StopSequences) > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			Stop:        req.StopSequences,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   p.Name(),
			Message:    fmt.Sprintf("request failed: %v", err),
			Suggestion: "Check that the Ollama server is running (ollama serve)",
			Cause:      err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	if httpResp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("API returned status %d", httpResp.StatusCode)
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		suggestion := ""
		if httpResp.StatusCode == http.StatusNotFound {
			suggestion = fmt.Sprintf("Pull the model first: ollama pull %s", model)
		}
		return nil, &errors.ProviderError{
			Provider:   p.Name(),
			StatusCode: httpResp.StatusCode,
			Message:    message,
			Suggestion: suggestion,
		}
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}

	finish := llm.FinishReasonStop
	if apiResp.DoneReason == "length" {
		finish = llm.FinishReasonLength
	}

	return &llm.CompletionResponse{
		Content:      apiResp.Message.Content,
		FinishReason: finish,
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
			TotalTokens:  apiResp.PromptEvalCount + apiResp.EvalCount,
		},
		Model:   apiResp.Model,
		Created: time.Now(),
	}, nil
}
