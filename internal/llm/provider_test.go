package llm

import (
	"testing"
	"time"
)

func TestNewProviderRejectsUnknownName(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewProviderAnthropicRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewProvider(Config{Provider: "anthropic"}); err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}

func TestNewProviderAnthropicFromConfigKey(t *testing.T) {
	p, err := NewProvider(Config{Provider: "anthropic", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", p.Name())
	}
}

func TestNewProviderSignedRequiresCredentials(t *testing.T) {
	_, err := NewProvider(Config{Provider: "signed", Region: "us-east-1"})
	if err == nil {
		t.Fatal("expected error for missing access keys")
	}
}

func TestNewProviderSignedDefaults(t *testing.T) {
	p, err := NewProvider(Config{
		Provider:        "signed",
		Region:          "us-east-1",
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	sp, ok := p.(*signedProvider)
	if !ok {
		t.Fatalf("expected *signedProvider, got %T", p)
	}
	if sp.baseHost != "bedrock-runtime.us-east-1.amazonaws.com" {
		t.Errorf("baseHost = %q", sp.baseHost)
	}
	if sp.deadline != defaultDeadline {
		t.Errorf("deadline = %v, want %v", sp.deadline, defaultDeadline)
	}
}

func TestErrorTypesDistinguishable(t *testing.T) {
	var err error = &AuthError{Provider: "anthropic"}
	if isRetryableClassified(err) {
		t.Error("AuthError should not be retryable")
	}
	err = &RateLimited{Provider: "anthropic", RetryAfter: time.Second}
	if !isRetryableClassified(err) {
		t.Error("RateLimited should be retryable")
	}
	err = &TransportError{Provider: "anthropic"}
	if !isRetryableClassified(err) {
		t.Error("TransportError should be retryable")
	}
}

func TestDeriveSigningKeyIsDeterministic(t *testing.T) {
	a := deriveSigningKey("secret", "20260802", "us-east-1", "bedrock")
	b := deriveSigningKey("secret", "20260802", "us-east-1", "bedrock")
	if string(a) != string(b) {
		t.Error("expected identical keys for identical inputs")
	}
	c := deriveSigningKey("other", "20260802", "us-east-1", "bedrock")
	if string(a) == string(c) {
		t.Error("expected different keys for different secrets")
	}
}
