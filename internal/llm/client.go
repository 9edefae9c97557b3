// Package llm is the boundary to the language model backend.
package llm

import (
	"context"
	"time"
)

// Client sends one prompt and returns the generated text.
type Client interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Model() string
}

// Example is a few-shot exchange sent ahead of the user message.
type Example struct {
	User      string `json:"user" koanf:"user"`
	Assistant string `json:"assistant" koanf:"assistant"`
}

// Prompt is a rendered request: system message, examples, then user message.
type Prompt struct {
	System   string
	User     string
	Examples []Example
}

// Config configures the OpenAI-compatible client.
type Config struct {
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second
)
