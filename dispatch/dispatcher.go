// Package dispatch routes tool-call requests to the owning transport
// session: catalog lookup, argument validation, per-call deadlines,
// bounded retries, and error normalization into typed results.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/registry"
	"github.com/effective-security/toolrouter/schema"
	"github.com/effective-security/toolrouter/session"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "dispatch")

// Defaults applied when the config leaves a knob zero.
const (
	DefaultCallTimeout    = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
)

// Resolver maps a tool name to its catalog descriptor.
type Resolver interface {
	Resolve(name string) (tools.Descriptor, error)
}

// Sessions provides the live session for a transport id.
type Sessions interface {
	Get(transportID string) (*session.Session, bool)
}

// Config holds dispatch knobs.
type Config struct {
	// CallTimeout bounds each call attempt.
	CallTimeout time.Duration
	// MaxAttempts is the total number of attempts per call, including
	// the first. Only transient transport failures are retried.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry; subsequent
	// delays grow exponentially.
	InitialBackoff time.Duration
}

// Dispatcher routes tool calls. Exactly one result is produced per
// request regardless of outcome.
type Dispatcher struct {
	cfg      Config
	resolver Resolver
	sessions Sessions
}

// New creates a dispatcher over a catalog resolver and a session
// provider.
func New(cfg Config, resolver Resolver, sessions Sessions) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{
		cfg:      cfg,
		resolver: resolver,
		sessions: sessions,
	}
}

// Dispatch routes one tool call. An unknown tool or invalid arguments
// short-circuit without contacting any transport; transport failures
// are retried up to MaxAttempts with exponential backoff and then
// normalized into a typed Error result.
func (d *Dispatcher) Dispatch(ctx context.Context, req tools.CallRequest) tools.CallResult {
	desc, err := d.resolver.Resolve(req.ToolName)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, req.ToolName)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", req.ToolName,
		)
		return tools.ErrorResult(req.CallID, tools.ErrUnknownTool, err.Error())
	}

	if err := schema.ValidateArguments(req.Arguments, desc.InputSchema); err != nil {
		return tools.ErrorResult(req.CallID, tools.ErrInvalidArguments,
			errors.WithMessagef(err, "tool %q", req.ToolName).Error())
	}

	s, ok := d.sessions.Get(desc.TransportID)
	if !ok {
		return tools.ErrorResult(req.CallID, tools.ErrTransportUnavailable,
			errors.Newf("no session for transport %q", desc.TransportID).Error())
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, req.ToolName)

	res := d.callWithRetry(ctx, s, req)
	if res.Status == tools.StatusOk {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, req.ToolName, desc.TransportID)
	} else {
		metricskey.StatsToolCallsFailed.IncrCounter(1, req.ToolName, string(res.ErrorKind))
	}
	return res
}

func (d *Dispatcher) callWithRetry(ctx context.Context, s *session.Session, req tools.CallRequest) tools.CallResult {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2

	var kind tools.ErrorKind
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		content, err := s.Call(cctx, req.ToolName, req.Arguments)
		cancel()
		if err == nil {
			s.RecordSuccess()
			return tools.OkResult(req.CallID, content)
		}

		kind = classify(err)
		lastErr = err
		if kind == tools.ErrToolExecution {
			// The tool ran and reported an error; the transport is
			// healthy and retrying would re-execute a side effect.
			s.RecordSuccess()
			return tools.ErrorResult(req.CallID, kind, err.Error())
		}

		metricskey.StatsTransportFailures.IncrCounter(1, s.TransportID(), string(kind))
		if tripped := s.RecordFailure(); tripped {
			logger.ContextKV(ctx, xlog.WARNING,
				"transport", s.TransportID(),
				"status", "session_errored",
				"tool", req.ToolName,
			)
			break
		}

		if !kind.Retryable() || attempt == d.cfg.MaxAttempts {
			break
		}

		metricskey.StatsToolCallsRetried.IncrCounter(1, req.ToolName, s.TransportID())
		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", req.ToolName,
			"attempt", attempt,
			"kind", kind,
			"err", err.Error(),
		)
		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return tools.ErrorResult(req.CallID, tools.ErrTimeout, ctx.Err().Error())
		}
	}
	return tools.ErrorResult(req.CallID, kind, lastErr.Error())
}

// classify normalizes any error from the session or transport layer
// into an error kind for the result.
func classify(err error) tools.ErrorKind {
	switch {
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrNotReady):
		return tools.ErrTransportUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return tools.ErrTimeout
	default:
		return transport.Classify(err, tools.ErrTransportUnavailable)
	}
}

// DispatchAll routes a batch of tool calls concurrently. The returned
// slice has the same length and order as the requests, each result
// correlated by index, independent of completion order.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []tools.CallRequest) []tools.CallResult {
	results := make([]tools.CallResult, len(reqs))

	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(index int, req tools.CallRequest) {
			defer wg.Done()
			results[index] = d.Dispatch(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

// ensure the registry satisfies the resolver contract
var _ Resolver = (*registry.Registry)(nil)
