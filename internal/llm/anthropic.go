package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// anthropicProvider is the direct API-token provider.
type anthropicProvider struct {
	client   anthropic.Client
	deadline time.Duration
}

func newAnthropicProvider(apiKey, _ string, deadline time.Duration) *anthropicProvider {
	return &anthropicProvider{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		deadline: deadline,
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Complete(ctx context.Context, system, user, model string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}

	var text string
	operation := func() error {
		message, err := p.client.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&Timeout{Provider: p.Name(), Deadline: p.deadline})
			}
			classified := classifyAnthropicError(p.Name(), err)
			if !isRetryableClassified(classified) {
				return backoff.Permanent(classified)
			}
			return classified
		}
		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("%s: empty response", p.Name()))
		}
		block := message.Content[0]
		if block.Type != "text" {
			return backoff.Permanent(fmt.Errorf("%s: unexpected response block type %q", p.Name(), block.Type))
		}
		text = block.Text
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", unwrapPermanent(err)
	}
	return text, nil
}

// classifyAnthropicError partitions SDK errors: AuthError is permanent,
// RateLimited and TransportError are transient.
func classifyAnthropicError(provider string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &AuthError{Provider: provider, Err: err}
		case apiErr.StatusCode == 429:
			return &RateLimited{Provider: provider, RetryAfter: time.Second}
		case apiErr.StatusCode >= 500:
			return &TransportError{Provider: provider, Err: err}
		default:
			return &AuthError{Provider: provider, Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Provider: provider, Err: err}
	}
	return &TransportError{Provider: provider, Err: err}
}

func isRetryableClassified(err error) bool {
	switch err.(type) {
	case *RateLimited, *TransportError:
		return true
	default:
		return false
	}
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
