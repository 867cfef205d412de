package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

// ErrStartup is returned when a required transport never became Ready.
// It is fatal: a half-initialized catalog is unsafe to expose.
var ErrStartup = errors.New("startup failed")

// Defaults applied by the Manager when the config leaves a knob zero.
const (
	DefaultConnectTimeout     = 30 * time.Second
	DefaultMaxConcurrentCalls = 4
	DefaultFailureThreshold   = 3
)

// Config holds session lifecycle knobs.
type Config struct {
	// ConnectTimeout bounds Connecting: a session stuck connecting
	// beyond it transitions to Error.
	ConnectTimeout time.Duration
	// MaxConcurrentCalls caps in-flight calls on a multiplexing session.
	MaxConcurrentCalls int
	// FailureThreshold is the number of consecutive transport failures
	// before a session is marked Error.
	FailureThreshold int
}

// Manager exclusively owns the sessions and their transport handles.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Start connects every transport and fails fast: if any transport
// cannot reach Ready, the sessions already established are shut down
// and ErrStartup is returned, leaving no subprocess or connection
// behind.
func (m *Manager) Start(ctx context.Context, transports []transport.Transport) (map[string]*Session, error) {
	for _, tr := range transports {
		s := newSession(tr, m.cfg.MaxConcurrentCalls, m.cfg.FailureThreshold)

		m.mu.Lock()
		if _, exists := m.sessions[s.id]; exists {
			m.mu.Unlock()
			_ = m.Shutdown()
			return nil, errors.Mark(errors.Newf("duplicate transport id %q", s.id), ErrStartup)
		}
		m.sessions[s.id] = s
		m.order = append(m.order, s.id)
		m.mu.Unlock()

		s.setState(StateConnecting)
		started := time.Now()
		cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		err := tr.Connect(cctx)
		cancel()
		metricskey.PerfTransportConnect.MeasureSince(started, s.id)
		if err != nil {
			s.setState(StateError)
			_ = m.Shutdown()
			return nil, errors.Mark(
				errors.WithMessagef(err, "transport %q failed to become ready", s.id),
				ErrStartup)
		}
		s.setState(StateReady)
		logger.ContextKV(ctx, xlog.INFO,
			"transport", s.id,
			"kind", tr.Kind(),
			"status", "ready",
		)
	}
	return m.snapshot(), nil
}

// Get returns the session for a transport id.
func (m *Manager) Get(transportID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[transportID]
	return s, ok
}

// Sessions returns all sessions in startup order.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

func (m *Manager) snapshot() map[string]*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		out[id] = s
	}
	return out
}

// Reconnect tears down and re-establishes one session's transport.
// Failure leaves the session in Error without affecting other sessions.
func (m *Manager) Reconnect(ctx context.Context, transportID string) error {
	s, ok := m.Get(transportID)
	if !ok {
		return errors.Newf("unknown transport %q", transportID)
	}
	if s.State() == StateClosed {
		return errors.WithMessagef(ErrClosed, "transport %q", transportID)
	}

	s.setState(StateConnecting)
	_ = s.tr.Close()

	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	err := s.tr.Connect(cctx)
	cancel()
	metricskey.PerfTransportConnect.MeasureSince(started, transportID)
	if err != nil {
		s.setState(StateError)
		return errors.WithMessagef(err, "failed to reconnect transport %q", transportID)
	}

	// a call admitted before the reconnect may still be draining; its
	// release balances inflight, so only the failure count is reset
	s.mu.Lock()
	s.failures = 0
	if s.inflight > 0 {
		s.state = StateBusy
	} else {
		s.state = StateReady
	}
	s.mu.Unlock()

	logger.ContextKV(ctx, xlog.INFO,
		"transport", transportID,
		"status", "reconnected",
	)
	return nil
}

// Shutdown closes every session, releasing subprocess and network
// resources. Each session transitions to Closed exactly once; errors
// are combined rather than aborting the sweep. Idempotent.
func (m *Manager) Shutdown() error {
	var err error
	for _, s := range m.Sessions() {
		if cerr := s.close(); cerr != nil {
			err = errors.CombineErrors(err, errors.WithMessagef(cerr, "transport %q", s.id))
		}
	}
	return err
}
