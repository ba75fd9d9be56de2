package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/consolidate"
	"github.com/cortexmem/cortex/internal/contextdoc"
	"github.com/cortexmem/cortex/internal/dream"
	"github.com/cortexmem/cortex/internal/llm"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/retrieval"
	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "cortex"
	serverVersion   = "0.1.0"
)

// Server implements the cortex JSON-RPC stdio surface.
type Server struct {
	store    *store.Store
	provider llm.Provider
	writer   *skills.Writer
	cfg      *config.Config
	log      *logging.Logger

	stdin  io.Reader
	stdout io.Writer

	mu sync.Mutex
}

// NewServer constructs a Server bound to an already-open Store.
func NewServer(s *store.Store, provider llm.Provider, writer *skills.Writer, cfg *config.Config) *Server {
	return &Server{
		store:    s,
		provider: provider,
		writer:   writer,
		cfg:      cfg,
		log:      logging.GetLogger("rpc"),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
	}
}

// Run reads line-delimited JSON-RPC requests from stdin until EOF or ctx is
// cancelled, writing one response line per request.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting rpc server main loop")
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		resp := s.handleRequest(ctx, line)
		if resp != nil {
			s.sendResponse(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	s.log.Info("rpc server shutdown complete")
	return nil
}

func (s *Server) handleRequest(ctx context.Context, line string) *Response {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return &Response{JSONRPC: "2.0", Error: &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}}
	}

	if req.JSONRPC != "2.0" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: InvalidRequest, Message: "Invalid Request", Data: "jsonrpc must be '2.0'"}}
	}

	switch req.Method {
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: toolDefinitions()}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "cortex_save":
		return s.handleSave(req)
	case "cortex_recall":
		return s.handleRecall(req)
	case "cortex_context":
		return s.handleContext(req)
	case "cortex_sleep":
		return s.handleSleep(ctx, req)
	case "cortex_stats":
		return s.handleStats(req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	default:
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: MethodNotFound, Message: "Method not found", Data: req.Method}}
	}
}

func (s *Server) sendResponse(resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.stdout, string(data))
}

func (s *Server) handleSave(req Request) *Response {
	var p SaveParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return invalidParams(req, err)
	}
	kind := p.Type
	if kind == "" {
		kind = string(store.KindObservation)
	}

	id, err := s.store.InsertRaw(p.Content, kind, store.DetectSessionID())
	if err != nil {
		return errorResponse(req, err)
	}

	if p.Global {
		consolidatedID, cerr := s.store.InsertConsolidated(p.Content, kind, 0.6, []int64{id})
		if cerr == nil {
			s.store.PromoteGlobal(consolidatedID)
		}
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: SaveResult{ID: id}}
}

func (s *Server) handleRecall(req Request) *Response {
	var p RecallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return invalidParams(req, err)
	}

	env, err := retrieval.Recall(s.store, p.Query, p.Limit, time.Now())
	if err != nil {
		return errorResponse(req, err)
	}

	items := make([]RecallResultItem, len(env.Results))
	for i, r := range env.Results {
		source := "project"
		if r.Source == retrieval.SourceGlobalConsolidated {
			source = "global"
		}
		items[i] = RecallResultItem{ID: r.ID, Content: r.Content, Kind: string(r.Kind), Score: r.Score, Source: source}
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: RecallResult{Results: items}}
}

func (s *Server) handleContext(req Request) *Response {
	var p ContextParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(req, err)
		}
	}

	doc, err := contextdoc.Format(s.store, s.writer, contextdoc.Options{Query: p.Query, Limit: p.Limit}, time.Now())
	if err != nil {
		return errorResponse(req, err)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: ContextResult{Markdown: doc}}
}

func (s *Server) handleSleep(ctx context.Context, req Request) *Response {
	var p SleepParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(req, err)
		}
	}

	cfg := s.cfg.Consolidation
	if p.Micro || s.provider == nil {
		micro, err := consolidate.MicroPass(s.store, cfg)
		if err != nil {
			return errorResponse(req, err)
		}
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: SleepResult{Deleted: micro.Decayed + micro.StaleDeleted}}
	}

	result, err := consolidate.QuickSleep(ctx, s.store, s.provider, s.writer, cfg, time.Now())
	if err != nil {
		return errorResponse(req, err)
	}
	if result.ScheduleDream {
		if _, derr := dream.Run(ctx, s.store, s.provider, s.writer, true, cfg.Model, time.Now()); derr != nil {
			s.log.Warn("scheduled global dream failed", "error", derr)
		}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: SleepResult{
		Consolidated:  result.Consolidated,
		Promoted:      result.Promoted,
		Deleted:       result.Deleted,
		SkillsWritten: result.SkillsWritten,
	}}
}

func (s *Server) handleStats(req Request) *Response {
	var p StatsParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(req, err)
		}
	}

	skillCount := 0
	if s.writer != nil {
		if p.Global {
			skillCount = s.writer.GlobalCount()
		} else {
			skillCount = s.writer.ProjectCount()
		}
	}

	var (
		stats *store.Stats
		err   error
	)
	if p.Global {
		stats, err = s.store.GlobalStats(skillCount)
	} else {
		stats, err = s.store.Stats(skillCount)
	}
	if err != nil {
		return errorResponse(req, err)
	}

	out := StatsResult{
		Raw:            stats.Raw,
		Unconsolidated: stats.Unconsolidated,
		Consolidated:   stats.Consolidated,
		Skills:         stats.Skills,
	}
	if stats.LastSleepAt != nil {
		out.LastSleepAt = stats.LastSleepAt.Format(time.RFC3339)
	}
	if stats.LastDreamAt != nil {
		out.LastDreamAt = stats.LastDreamAt.Format(time.RFC3339)
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: out}
}

func invalidParams(req Request, err error) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}}
}

// errorResponse maps Cortex's error taxonomy onto the server-error code
// range (see CodeValidation etc. in types.go).
func errorResponse(req Request, err error) *Response {
	code := InternalError
	switch err.(type) {
	case *store.ValidationError:
		code = CodeValidation
	case *store.StoreUnavailableError:
		code = CodeStoreUnavailable
	case *store.IncompatibleSchemaError:
		code = CodeIncompatibleSchema
	case *store.LockContentionError:
		code = CodeLockContention
	case *llm.AuthError:
		code = CodeAuth
	case *llm.TransportError:
		code = CodeTransport
	case *llm.RateLimited:
		code = CodeRateLimited
	case *llm.Timeout:
		code = CodeTimeout
	case *consolidate.LlmProtocolError:
		code = CodeLlmProtocol
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: code, Message: err.Error()}}
}
