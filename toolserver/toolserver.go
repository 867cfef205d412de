// Package toolserver is a small runtime for stdio tool backends: it
// serves the newline-delimited JSON-RPC protocol over a reader/writer
// pair and dispatches callTool requests to registered handlers.
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "toolserver")

// maxLineSize bounds a single request line.
const maxLineSize = 10 * 1024 * 1024

// Handler executes one tool call and returns a JSON-encodable result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named handler with its advertised schema.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

// Server hosts a set of tools behind the stdio wire protocol.
type Server struct {
	mu    sync.Mutex
	tools map[string]*Tool
	order []string
}

// NewServer creates an empty server.
func NewServer() *Server {
	return &Server{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (s *Server) Register(t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[t.Name]; exists {
		return errors.Newf("tool %q already registered", t.Name)
	}
	s.tools[t.Name] = t
	s.order = append(s.order, t.Name)
	return nil
}

// MustRegister adds tools and panics on a duplicate name. For use at
// program initialization.
func (s *Server) MustRegister(list ...*Tool) *Server {
	for _, t := range list {
		if err := s.Register(t); err != nil {
			panic(err)
		}
	}
	return s
}

// Serve reads requests line by line until EOF or context cancellation,
// writing one response line per request. Invalid lines are dropped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	enc := json.NewEncoder(w)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req transport.Request
		if err := json.Unmarshal(line, &req); err != nil {
			logger.KV(xlog.WARNING,
				"status", "invalid_request_line",
				"err", err.Error(),
			)
			continue
		}

		resp := s.Handle(ctx, &req)
		if err := enc.Encode(resp); err != nil {
			return errors.WithMessage(err, "failed to write response")
		}
	}
	return scanner.Err()
}

// Handle processes one request. It is used directly by HTTP hosts that
// carry the same protocol over POST bodies instead of stdio lines.
func (s *Server) Handle(ctx context.Context, req *transport.Request) *transport.Response {
	resp := &transport.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case transport.MethodListTools:
		result, _ := json.Marshal(transport.ListToolsResult{Tools: s.specs()})
		resp.Result = result

	case transport.MethodCallTool:
		var params transport.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &transport.ResponseError{
				Code:    transport.CodeInvalidParams,
				Message: "invalid callTool params",
			}
			break
		}
		resp.Result, resp.Error = s.call(ctx, &params)

	default:
		resp.Error = &transport.ResponseError{
			Code:    transport.CodeMethodNotFound,
			Message: "method not found: " + req.Method,
		}
	}
	return resp
}

func (s *Server) call(ctx context.Context, params *transport.CallToolParams) (json.RawMessage, *transport.ResponseError) {
	s.mu.Lock()
	tool := s.tools[params.Name]
	s.mu.Unlock()
	if tool == nil {
		return nil, &transport.ResponseError{
			Code:    transport.CodeInvalidParams,
			Message: "unknown tool: " + params.Name,
		}
	}

	out, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		return nil, &transport.ResponseError{
			Code:    transport.CodeToolError,
			Message: err.Error(),
		}
	}

	result, err := json.Marshal(out)
	if err != nil {
		return nil, &transport.ResponseError{
			Code:    transport.CodeToolError,
			Message: "failed to encode result: " + err.Error(),
		}
	}
	return result, nil
}

func (s *Server) specs() []transport.ToolSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.ToolSpec, 0, len(s.order))
	for _, name := range s.order {
		t := s.tools[name]
		out = append(out, transport.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}
