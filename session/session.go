// Package session owns transport lifecycles: one session per transport
// instance, a state machine per session, and a manager that guarantees
// every session is closed exactly once on shutdown, with no leaked
// subprocesses or connections on any exit path.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "session")

// State of a session.
//
// Transitions: Disconnected → Connecting → Ready ⇄ Busy;
// Ready|Connecting → Error → Disconnected on irrecoverable failure;
// any state → Closed on shutdown, exactly once.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateBusy         State = "busy"
	StateError        State = "error"
	StateClosed       State = "closed"
)

var (
	// ErrClosed is returned for any operation on a session after shutdown.
	ErrClosed = errors.New("session closed")
	// ErrNotReady is returned when a call is issued against a session
	// that is not Ready or Busy.
	ErrNotReady = errors.New("session not ready")
)

// Session is the live connection state for one transport instance.
// It is created by the Manager at startup and destroyed at shutdown;
// the Manager is the only mutator of session state, the dispatcher
// borrows a session per call.
type Session struct {
	id string
	tr transport.Transport

	mu       sync.Mutex
	state    State
	inflight int
	failures int

	// slots admits in-flight calls: one slot for a transport that does
	// not multiplex, a configurable cap otherwise.
	slots chan struct{}

	failureThreshold int
}

func newSession(tr transport.Transport, maxConcurrent, failureThreshold int) *Session {
	slots := 1
	if tr.Multiplexing() {
		slots = maxConcurrent
	}
	return &Session{
		id:               tr.ID(),
		tr:               tr,
		state:            StateDisconnected,
		slots:            make(chan struct{}, slots),
		failureThreshold: failureThreshold,
	}
}

// TransportID returns the identifier of the owned transport.
func (s *Session) TransportID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		logger.KV(xlog.DEBUG,
			"transport", s.id,
			"from", prev,
			"to", state,
		)
	}
}

// ListTools fetches the transport's catalog; the session must be Ready.
func (s *Session) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	if err := s.checkCallable(); err != nil {
		return nil, err
	}
	return s.tr.ListTools(ctx)
}

// Call invokes a tool on the owned transport. Calls are admitted
// through the session's slots: serialized for a non-multiplexing
// transport, capped concurrency otherwise. While any call is in flight
// the session reads as Busy.
func (s *Session) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.tr.Call(ctx, name, args)
}

func (s *Session) checkCallable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return errors.WithMessagef(ErrClosed, "transport %q", s.id)
	case StateReady, StateBusy:
		return nil
	default:
		return errors.WithMessagef(ErrNotReady, "transport %q is %s", s.id, s.state)
	}
}

func (s *Session) acquire(ctx context.Context) error {
	if err := s.checkCallable(); err != nil {
		return err
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	if s.state != StateReady && s.state != StateBusy {
		state := s.state
		s.mu.Unlock()
		<-s.slots
		if state == StateClosed {
			return errors.WithMessagef(ErrClosed, "transport %q", s.id)
		}
		return errors.WithMessagef(ErrNotReady, "transport %q is %s", s.id, state)
	}
	s.inflight++
	s.state = StateBusy
	s.mu.Unlock()
	return nil
}

func (s *Session) release() {
	<-s.slots
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 && s.state == StateBusy {
		s.state = StateReady
	}
	s.mu.Unlock()
}

// RecordFailure counts a transport-level failure. Once the consecutive
// failure threshold is crossed the session transitions to Error and
// needs an explicit reconnect; a single timeout never tears down a
// slow-but-alive backend.
func (s *Session) RecordFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures < s.failureThreshold {
		return false
	}
	if s.state == StateReady || s.state == StateBusy {
		s.state = StateError
		logger.KV(xlog.WARNING,
			"transport", s.id,
			"status", "failure_threshold_reached",
			"failures", s.failures,
		)
	}
	return true
}

// RecordSuccess resets the consecutive failure counter.
func (s *Session) RecordSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

// close transitions the session to Closed exactly once and releases
// the transport.
func (s *Session) close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()
	return s.tr.Close()
}
