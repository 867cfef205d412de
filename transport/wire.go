package transport

import (
	"encoding/json"

	"github.com/effective-security/toolrouter/tools"
)

// Wire methods of the tool protocol. The framing is fixed by the tool
// backends: one JSON-RPC 2.0 request object per call, one response
// object per request, newline-delimited on stdio.
const (
	MethodListTools = "listTools"
	MethodCallTool  = "callTool"
)

// JSON-RPC error codes used by tool backends.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeToolError      = -32000
)

// RequestID correlates a response with its request.
type RequestID int64

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest marshals params into a request envelope.
func NewRequest(id RequestID, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
	}
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = bs
	}
	return req, nil
}

// Response is a JSON-RPC 2.0 response carrying either a result or an error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CallToolParams are the params of a callTool request.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ListToolsResult is the result of a listTools request.
type ListToolsResult struct {
	Tools []ToolSpec `json:"tools"`
}

// ToolSpec is a tool as reported on the wire.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Descriptors converts wire tool specs to catalog descriptors owned by
// the given transport.
func Descriptors(transportID string, specs []ToolSpec) []tools.Descriptor {
	out := make([]tools.Descriptor, 0, len(specs))
	for _, s := range specs {
		out = append(out, tools.Descriptor{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
			TransportID: transportID,
		})
	}
	return out
}
