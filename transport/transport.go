// Package transport defines the channel abstraction used to reach one
// tool backend, and the wire protocol spoken over it. Implementations
// must not retry internally: retry policy is centralized in the
// dispatcher so backoff and timeout behavior is uniform across kinds.
package transport

import (
	"context"
	"encoding/json"

	"github.com/effective-security/toolrouter/tools"
)

// Kind identifies the transport implementation.
type Kind string

const (
	// KindStdio is a local subprocess spoken to over stdin/stdout.
	KindStdio Kind = "stdio"
	// KindStreamableHTTP is a remote service behind an authenticated HTTP endpoint.
	KindStreamableHTTP Kind = "streamable_http"
)

// Transport is a channel to one tool backend.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//     Multiplexing reports whether concurrent in-flight calls are supported;
//     when false, the session layer serializes calls.
//   - Context: Call and ListTools must honor cancellation and deadlines.
//   - Errors: failures are classified via *Error so the dispatcher can
//     decide retryability; tool-reported failures are *ToolError.
type Transport interface {
	// ID returns the unique transport instance identifier.
	ID() string
	// Kind returns the transport kind.
	Kind() Kind
	// Multiplexing reports whether the backend supports concurrent in-flight calls.
	Multiplexing() bool

	// Connect establishes the channel: spawns the subprocess or verifies
	// the remote endpoint is reachable with the supplied credential.
	Connect(ctx context.Context) error
	// ListTools fetches the tool descriptors exposed by the backend.
	ListTools(ctx context.Context) ([]tools.Descriptor, error)
	// Call invokes a tool by name and returns its raw JSON payload.
	Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	// Close releases the subprocess or connection. Safe to call more than once.
	Close() error
}
