package retrieval

import "testing"

func TestParseQueryEmpty(t *testing.T) {
	q, err := parseQuery("   ")
	if err != nil {
		t.Fatalf("parseQuery: %v", err)
	}
	if q != "" {
		t.Errorf("expected empty query to parse to empty string, got %q", q)
	}
}

func TestParseQueryBareTokensGetPrefixWildcard(t *testing.T) {
	q, err := parseQuery("Retry Backoff")
	if err != nil {
		t.Fatalf("parseQuery: %v", err)
	}
	if q != "retry* backoff*" {
		t.Errorf("expected %q, got %q", "retry* backoff*", q)
	}
}

func TestParseQueryPreservesQuotedPhrase(t *testing.T) {
	q, err := parseQuery(`error "connection reset" timeout`)
	if err != nil {
		t.Fatalf("parseQuery: %v", err)
	}
	want := `error* "connection reset" timeout*`
	if q != want {
		t.Errorf("expected %q, got %q", want, q)
	}
}

func TestParseQueryUnterminatedPhraseErrors(t *testing.T) {
	_, err := parseQuery(`some "unterminated phrase`)
	if err == nil {
		t.Error("expected error for unterminated quoted phrase")
	}
}
