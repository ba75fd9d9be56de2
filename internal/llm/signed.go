package llm

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// signedProvider is the cloud-signed-request provider (Bedrock-shaped):
// region plus access key, secret key, and session token credentials,
// percent-encoded model id in the request path, time-bounded signature.
// Built directly on net/http and crypto/hmac; pulling in a full cloud SDK
// for one invoke endpoint isn't worth the dependency weight.
type signedProvider struct {
	region          string
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
	baseHost        string
	httpClient      *http.Client
	deadline        time.Duration
}

func newSignedProvider(cfg Config) *signedProvider {
	host := cfg.BaseHost
	if host == "" {
		host = fmt.Sprintf("bedrock-runtime.%s.amazonaws.com", cfg.Region)
	}
	return &signedProvider{
		region:          cfg.Region,
		accessKeyID:     cfg.AccessKeyID,
		secretAccessKey: cfg.SecretAccessKey,
		sessionToken:    cfg.SessionToken,
		baseHost:        host,
		httpClient:      &http.Client{Timeout: cfg.Deadline},
		deadline:        cfg.Deadline,
	}
}

func (p *signedProvider) Name() string { return "signed" }

type signedInvokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []signedMessage `json:"messages"`
}

type signedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type signedInvokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *signedProvider) Complete(ctx context.Context, system, user, model string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(signedInvokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         []signedMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", p.Name(), err)
	}

	// Model identifiers can contain ':', which url.PathEscape leaves as is,
	// so it is percent-encoded here; '.' is unreserved and stays literal.
	path := "/model/" + strings.ReplaceAll(url.PathEscape(model), ":", "%3A") + "/invoke"
	endpoint := "https://" + p.baseHost + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", p.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := p.signRequest(req, body); err != nil {
		return "", fmt.Errorf("%s: sign request: %w", p.Name(), err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Timeout{Provider: p.Name(), Deadline: p.deadline}
		}
		return "", &TransportError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Provider: p.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &RateLimited{Provider: p.Name(), RetryAfter: retryAfterFromHeader(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return "", &TransportError{Provider: p.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%s: unexpected status %d: %s", p.Name(), resp.StatusCode, respBody)
	}

	var parsed signedInvokeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.Name(), err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("%s: empty response", p.Name())
	}
	return parsed.Content[0].Text, nil
}

func retryAfterFromHeader(v string) time.Duration {
	if v == "" {
		return time.Second
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return time.Second
}

// signRequest applies a time-bounded SigV4-style signature: a canonical
// request hash signed with a date-and-service-scoped derived key, attached
// as an Authorization header alongside the session token.
func (p *signedProvider) signRequest(req *http.Request, body []byte) error {
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	req.Header.Set("X-Amz-Date", amzDate)
	if p.sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", p.sessionToken)
	}
	req.Header.Set("Host", req.URL.Host)

	payloadHash := sha256Hex(body)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-content-sha256:%s\nx-amz-date:%s\n",
		req.URL.Host, payloadHash, amzDate)
	signedHeaders := "host;x-amz-content-sha256;x-amz-date"

	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/bedrock/aws4_request", dateStamp, p.region)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(p.secretAccessKey, dateStamp, p.region, "bedrock")
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authHeader := fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		p.accessKeyID, scope, signedHeaders, signature,
	)
	req.Header.Set("Authorization", authHeader)
	return nil
}

func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
