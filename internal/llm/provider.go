// Package llm defines the capability contract Consolidator and Dreamer use
// to get structured plans out of a language model, plus the two concrete
// providers that satisfy it.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider is the interface for single-call completions.
type Provider interface {
	// Complete sends one system+user prompt pair and returns the model's
	// full response text. No streaming: callers need the complete response
	// before they can apply a structured plan.
	Complete(ctx context.Context, system, user, model string, maxTokens int) (string, error)
	// Name returns a human-readable provider identifier for logging.
	Name() string
}

// Config selects and configures a Provider.
type Config struct {
	Provider string // "anthropic" or "signed"
	Model    string
	APIKey   string // empty reads from env

	// Signed-provider fields (Bedrock-shaped).
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	BaseHost        string // e.g. bedrock-runtime.<region>.amazonaws.com

	// Deadline bounds the wall-clock time a single Complete call may take.
	Deadline time.Duration
}

const defaultModel = "claude-haiku-4-5"
const defaultDeadline = 60 * time.Second

// NewProvider constructs the configured Provider.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY env var")
		}
		return newAnthropicProvider(key, cfg.Model, cfg.Deadline), nil

	case "signed":
		if cfg.Region == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("signed provider requires region, access key id, and secret access key")
		}
		return newSignedProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: anthropic, signed)", cfg.Provider)
	}
}

// AuthError indicates a permanent credential failure; retrying will not help.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// TransportError indicates a transient network or server-side failure.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// RateLimited indicates a transient 429 with an optional retry-after hint.
type RateLimited struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// Timeout indicates the configured wall-clock deadline elapsed.
type Timeout struct {
	Provider string
	Deadline time.Duration
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("%s: exceeded %s deadline", e.Provider, e.Deadline)
}
