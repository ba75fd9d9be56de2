package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := testutil.OpenStore(t)
	return NewServer(s, nil, testutil.NewSkillsWriter(t), config.DefaultConfig()), s
}

func TestHandleRequestToolsList(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := srv.handleRequest(context.Background(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(ToolsListResult)
	if !ok {
		t.Fatalf("expected ToolsListResult, got %T", resp.Result)
	}
	if len(result.Tools) != 5 {
		t.Errorf("expected 5 tools, got %d", len(result.Tools))
	}
}

func TestHandleRequestCortexSaveAndRecall(t *testing.T) {
	srv, _ := newTestServer(t)

	saveResp := srv.handleRequest(context.Background(), `{"jsonrpc":"2.0","id":1,"method":"cortex_save","params":{"content":"fixed a flaky test","type":"bugfix"}}`)
	if saveResp.Error != nil {
		t.Fatalf("cortex_save error: %v", saveResp.Error)
	}
	saveResult, ok := saveResp.Result.(SaveResult)
	if !ok || saveResult.ID == 0 {
		t.Fatalf("expected a valid SaveResult, got %+v", saveResp.Result)
	}

	recallResp := srv.handleRequest(context.Background(), `{"jsonrpc":"2.0","id":2,"method":"cortex_recall","params":{"query":"flaky"}}`)
	if recallResp.Error != nil {
		t.Fatalf("cortex_recall error: %v", recallResp.Error)
	}
}

func TestHandleRequestMalformedJSONReturnsParseError(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := srv.handleRequest(context.Background(), `not json`)
	if resp.Error == nil || resp.Error.Code != ParseError {
		t.Fatalf("expected ParseError, got %+v", resp.Error)
	}
}

func TestHandleRequestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := srv.handleRequest(context.Background(), `{"jsonrpc":"2.0","id":1,"method":"nonexistent"}`)
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestRunProcessesLineDelimitedRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	input := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"cortex_stats"}` + "\n")
	var output bytes.Buffer
	srv.stdin = input
	srv.stdout = &output

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(output.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response line: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}
