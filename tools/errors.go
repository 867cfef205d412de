package tools

// ErrorKind classifies a failed tool call so the caller can decide
// retryability without parsing error text.
type ErrorKind string

const (
	// ErrUnknownTool is returned when the tool name does not resolve in the catalog.
	ErrUnknownTool ErrorKind = "unknown_tool"
	// ErrInvalidArguments is returned when the arguments do not match the tool's input schema.
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	// ErrTransportUnavailable is returned when the owning session is not Ready.
	ErrTransportUnavailable ErrorKind = "transport_unavailable"
	// ErrProcessUnavailable is returned when a local tool process has exited or is unresponsive.
	ErrProcessUnavailable ErrorKind = "process_unavailable"
	// ErrNetworkUnavailable is returned when a remote service cannot be reached.
	ErrNetworkUnavailable ErrorKind = "network_unavailable"
	// ErrUnauthorized is returned when the remote service rejects the credential.
	ErrUnauthorized ErrorKind = "unauthorized"
	// ErrTimeout is returned when the per-call deadline expired.
	ErrTimeout ErrorKind = "timeout"
	// ErrToolExecution is returned when the tool itself reported a failure.
	// The agent may retry with different arguments.
	ErrToolExecution ErrorKind = "tool_execution"
)

// Retryable reports whether the dispatcher may retry a call that
// failed with this kind. Tool-reported failures are not retried here:
// the agent decides whether to call again with different arguments.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrProcessUnavailable, ErrNetworkUnavailable, ErrTimeout:
		return true
	default:
		return false
	}
}
