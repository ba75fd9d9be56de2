package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// toolDefinitions returns the MCP-shaped tool descriptors for tools/list.
// Each tool mirrors one of the cortex_* methods so agents that only speak
// the generic tools/call convention can still reach every capability.
func toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "cortex_save",
			Description: "Save an episodic observation to the memory store",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"content": {Type: "string", Description: "The observation to record"},
					"type":    {Type: "string", Description: "Memory kind", Enum: []string{"bugfix", "decision", "pattern", "preference", "observation"}, Default: "observation"},
					"global":  {Type: "boolean", Description: "Also promote to the global store", Default: false},
				},
				Required: []string{"content"},
			},
		},
		{
			Name:        "cortex_recall",
			Description: "Search project and global memory, ranked by relevance or recency",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "Free-text query; empty falls back to recency mode"},
					"limit": {Type: "integer", Description: "Maximum number of results", Default: 15},
				},
			},
		},
		{
			Name:        "cortex_context",
			Description: "Assemble the prompt-injection context document",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "Optional query to focus the Patterns & Decisions section"},
					"limit": {Type: "integer", Description: "Maximum entries per section", Default: 15},
				},
			},
		},
		{
			Name:        "cortex_sleep",
			Description: "Run a consolidation pass (micro or quick-sleep)",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"micro":  {Type: "boolean", Description: "Force the SQL-only micro pass, skipping the LLM call"},
					"global": {Type: "boolean", Description: "Accepted but not read; global promotion follows the quick-sleep plan"},
				},
			},
		},
		{
			Name:        "cortex_stats",
			Description: "Return the read-only stats snapshot",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"global": {Type: "boolean", Description: "Report global store counts instead of project"},
				},
			},
		},
	}
}

// handleToolsCall dispatches tools/call to the matching cortex_* handler,
// wrapping its JSON-RPC result/error into an MCP CallToolResult content
// block.
func (s *Server) handleToolsCall(ctx context.Context, req Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return invalidParams(req, err)
	}

	argsJSON, err := json.Marshal(params.Arguments)
	if err != nil {
		return invalidParams(req, err)
	}

	inner := Request{JSONRPC: "2.0", ID: req.ID, Method: params.Name, Params: argsJSON}

	var resp *Response
	switch params.Name {
	case "cortex_save":
		resp = s.handleSave(inner)
	case "cortex_recall":
		resp = s.handleRecall(inner)
	case "cortex_context":
		resp = s.handleContext(inner)
	case "cortex_sleep":
		resp = s.handleSleep(ctx, inner)
	case "cortex_stats":
		resp = s.handleStats(inner)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: CallToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", params.Name)}},
				IsError: true,
			},
		}
	}

	if resp.Error != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: CallToolResult{
				Content: []ContentBlock{{Type: "text", Text: resp.Error.Message}},
				IsError: true,
			},
		}
	}

	data, err := json.Marshal(resp.Result)
	if err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: CallToolResult{
				Content: []ContentBlock{{Type: "text", Text: err.Error()}},
				IsError: true,
			},
		}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: string(data)}},
		},
	}
}
