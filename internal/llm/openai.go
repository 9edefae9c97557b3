package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/prismata/internal/faults"
)

// ErrEmptyResponse is returned when the backend answers without choices.
var ErrEmptyResponse = errors.New("no response from model")

// maxPromptDetail bounds the prompt excerpt attached to llm faults.
const maxPromptDetail = 200

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIClient creates a client from cfg.
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c := &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Complete sends p as a chat completion. Backend failures are returned as
// llm faults carrying the model and a prompt excerpt.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages(p),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Warn("chat completion failed", zap.String("model", c.cfg.Model), zap.Error(err))
		return "", faults.LLM(describe(err), c.cfg.Model, excerpt(p.User), err)
	}
	if len(resp.Choices) == 0 {
		return "", faults.LLM("chat completion returned no choices", c.cfg.Model, excerpt(p.User), ErrEmptyResponse)
	}

	c.logger.Debug("chat completion",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

func messages(p Prompt) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, 2+2*len(p.Examples))
	if p.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	for _, ex := range p.Examples {
		out = append(out,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.User},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Assistant},
		)
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})
}

func describe(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("model backend returned status %d", apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("model backend request failed with status %d", reqErr.HTTPStatusCode)
	}
	return "model backend request failed"
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= maxPromptDetail {
		return s
	}
	return string(r[:maxPromptDetail]) + "..."
}
