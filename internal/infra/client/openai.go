package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o"
)

// OpenAIClient calls the chat-completions endpoint in JSON mode.
// Requests go through a rate limiter and a circuit breaker and are never
// retried.
type OpenAIClient struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
	cb         *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	metrics    *observability.Metrics
}

// NewOpenAIClient creates a new OpenAIClient. A nil limiter disables rate
// limiting.
func NewOpenAIClient(
	httpClient *http.Client,
	apiURL, apiKey, model string,
	cb *gobreaker.CircuitBreaker,
	limiter *rate.Limiter,
	metrics *observability.Metrics,
) *OpenAIClient {
	if apiURL == "" {
		apiURL = defaultOpenAIURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &OpenAIClient{
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		cb:         cb,
		limiter:    limiter,
		metrics:    metrics,
	}
}

// NewRequestLimiter turns a requests-per-minute budget into a limiter. A
// budget of zero or less means unlimited.
func NewRequestLimiter(perMinute float64) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), max(1, int(perMinute/60)))
}

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    float64              `json:"temperature"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage domain.TokenUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one completion request and returns the model's content.
func (c *OpenAIClient) Complete(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("operation", req.Operation), attribute.String("model", c.model))

	if c.apiKey == "" {
		return nil, &domain.ErrNotConfigured{Setting: "OPENAI_API_KEY"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.IncrLLMRequest("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ErrTimeout{Operation: "openai " + req.Operation}
		}
		return nil, &domain.ErrExternalService{Service: "openai", Err: err}
	}

	body := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body.ResponseFormat.Type = "json_object"
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	result, err := c.cb.Execute(func() (any, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read chat response: %w", err)
		}

		var out chatResponse
		decodeErr := json.Unmarshal(raw, &out)
		if resp.StatusCode != http.StatusOK {
			if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
				return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, out.Error.Message)
			}
			return nil, fmt.Errorf("openai returned status %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decode chat response: %w", decodeErr)
		}
		if len(out.Choices) == 0 {
			return nil, errors.New("openai returned no choices")
		}
		return &out, nil
	})
	if err != nil {
		c.metrics.IncrLLMRequest("error")
		c.metrics.IncrExternalError("openai")
		if resilience.IsOpen(err) {
			return nil, &domain.ErrCircuitOpen{Service: "openai"}
		}
		return nil, &domain.ErrExternalService{Service: "openai", Err: err}
	}

	out := result.(*chatResponse)
	c.metrics.RecordTokens(out.Usage.PromptTokens, out.Usage.CompletionTokens)

	model := out.Model
	if model == "" {
		model = c.model
	}
	return &domain.LLMResponse{
		Content: out.Choices[0].Message.Content,
		Model:   model,
		Usage:   out.Usage,
	}, nil
}
