package tools

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Descriptor describes a single tool exposed by a backend.
// Descriptors are immutable once fetched; a new set is produced
// only when the owning transport reconnects.
type Descriptor struct {
	// Name is unique within the merged catalog.
	Name string `json:"name" yaml:"name"`
	// Description is included in the LLM tool-use prompt.
	// Should not exceed LLM model limit.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// InputSchema is the JSON Schema of the tool arguments.
	InputSchema map[string]any `json:"inputSchema,omitempty" yaml:"input_schema,omitempty"`
	// TransportID identifies the transport that owns the tool.
	TransportID string `json:"-" yaml:"transport"`
}

// CallRequest is a single tool invocation requested by the agent.
// It is consumed exactly once by the dispatcher.
type CallRequest struct {
	// CallID is an opaque unique identifier used to correlate the result.
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// NewCallRequest creates a request with a generated call ID.
func NewCallRequest(toolName string, args map[string]any) CallRequest {
	return CallRequest{
		CallID:    uuid.NewString(),
		ToolName:  toolName,
		Arguments: args,
	}
}

// CallStatus is the outcome status of a tool call.
type CallStatus string

const (
	StatusOk    CallStatus = "ok"
	StatusError CallStatus = "error"
)

// CallResult is the normalized outcome of one tool call.
// Exactly one result is produced per request, never both Ok and Error.
type CallResult struct {
	CallID string     `json:"call_id"`
	Status CallStatus `json:"status"`
	// Content is the JSON-encoded tool payload when Status is Ok.
	Content json.RawMessage `json:"content,omitempty"`
	// ErrorKind and Error are set when Status is Error.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// OkResult creates a successful result.
func OkResult(callID string, content json.RawMessage) CallResult {
	return CallResult{
		CallID:  callID,
		Status:  StatusOk,
		Content: content,
	}
}

// ErrorResult creates a failed result with a classified kind.
func ErrorResult(callID string, kind ErrorKind, message string) CallResult {
	return CallResult{
		CallID:    callID,
		Status:    StatusError,
		ErrorKind: kind,
		Error:     message,
	}
}

// IsError reports whether the result carries a failure.
func (r CallResult) IsError() bool {
	return r.Status == StatusError
}

// String renders the result for inclusion in an LLM prompt: the raw
// payload for Ok, or a short classified error the model can reason about.
func (r CallResult) String() string {
	if r.IsError() {
		return "tool call failed (" + string(r.ErrorKind) + "): " + r.Error
	}
	return string(r.Content)
}
