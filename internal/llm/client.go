package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/circuitbreaker"
	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/retry"
)

// Client is the text reasoning engine. Any OpenAI-compatible chat
// completion endpoint works; Gemini is reached via its compatibility layer.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	configured  bool
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// Breaker is shared across clients talking to the same provider. A
	// private one is created when nil.
	Breaker *circuitbreaker.CircuitBreaker
	Retry   *retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	JSONMode     bool
}

type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	cb := cfg.Breaker
	if cb == nil {
		cb = circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           logger.GetLogger(),
		})
	}

	retryConfig := retry.Config{
		Op:             "llm.complete",
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       8 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}
	if cfg.Retry != nil {
		retryConfig = *cfg.Retry
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", oc.BaseURL),
	)

	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		configured:  cfg.APIKey != "",
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Model() string    { return c.model }
func (c *Client) Configured() bool { return c.configured }

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return nil, apperr.Validation("llm.complete", "empty prompt")
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return retry.DoWithResult(ctx, c.retryConfig, func() (*CompletionResponse, error) {
		return circuitbreaker.Run(ctx, c.cb, func() (*CompletionResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.api.CreateChatCompletion(callCtx, chatReq)
			if err != nil {
				return nil, classify("llm.complete", ctx, err)
			}
			if len(resp.Choices) == 0 {
				return nil, apperr.Transient("llm.complete", errors.New("response carried no choices"))
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			return &CompletionResponse{
				Content:      resp.Choices[0].Message.Content,
				FinishReason: string(resp.Choices[0].FinishReason),
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}, nil
		})
	})
}

// Generate sends a single user prompt and returns the raw text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{UserPrompt: prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// classify maps go-openai errors onto the apperr taxonomy. parent is the
// caller's context: a per-call timeout is transient, a cancelled run is not.
func classify(op string, parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apperr.FromStatus(op, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return apperr.FromStatus(op, reqErr.HTTPStatusCode, []byte(msg))
	}
	return apperr.Transient(op, fmt.Errorf("chat completion: %w", err))
}

// GenerateJSON is Generate with the provider's JSON response mode switched
// on. Callers still run the output through jsonx, since not every
// compatible endpoint honours the flag.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{UserPrompt: prompt, JSONMode: true})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
