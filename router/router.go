// Package router is the composition root: it owns the session manager,
// the merged catalog and the dispatcher, and exposes the surface the
// agent consumes.
package router

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/config"
	"github.com/effective-security/toolrouter/dispatch"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/registry"
	"github.com/effective-security/toolrouter/session"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/toolrouter/transport/stdio"
	"github.com/effective-security/toolrouter/transport/streamhttp"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "router")

// Config holds the session and dispatch knobs.
type Config struct {
	Session  session.Config
	Dispatch dispatch.Config
}

// Router routes tool calls from an agent to the transports that own
// the tools.
type Router struct {
	cfg        Config
	transports []transport.Transport

	mgr  *session.Manager
	reg  *registry.Registry
	disp *dispatch.Dispatcher
}

// New creates a router over the given transports. Start must be called
// before dispatching.
func New(cfg Config, transports []transport.Transport) *Router {
	mgr := session.NewManager(cfg.Session)
	reg := registry.New()
	return &Router{
		cfg:        cfg,
		transports: transports,
		mgr:        mgr,
		reg:        reg,
		disp:       dispatch.New(cfg.Dispatch, reg, mgr),
	}
}

// Open builds transports from the configuration file model and creates
// the router.
func Open(cfg *config.Config) (*Router, error) {
	transports := make([]transport.Transport, 0, len(cfg.Transports))
	for _, tc := range cfg.Transports {
		switch tc.Kind {
		case config.KindStdio:
			transports = append(transports, stdio.New(tc.ID, stdio.Config{
				Command: tc.Command,
				Args:    tc.Args,
				Env:     tc.Env,
				Dir:     tc.Dir,
			}))
		case config.KindStreamableHTTP:
			transports = append(transports, streamhttp.New(tc.ID, streamhttp.Config{
				BaseURL: tc.URL,
				APIKey:  tc.APIKey,
			}))
		default:
			return nil, errors.Newf("transport %q: unsupported kind %q", tc.ID, tc.Kind)
		}
	}

	return New(Config{
		Session: session.Config{
			ConnectTimeout:     cfg.Dispatch.ConnectTimeout,
			MaxConcurrentCalls: cfg.Dispatch.MaxConcurrentCalls,
			FailureThreshold:   cfg.Dispatch.FailureThreshold,
		},
		Dispatch: dispatch.Config{
			CallTimeout:    cfg.Dispatch.CallTimeout,
			MaxAttempts:    cfg.Dispatch.MaxAttempts,
			InitialBackoff: cfg.Dispatch.InitialBackoff,
		},
	}, transports), nil
}

// Start connects every transport and builds the initial catalog.
// Any failure tears down everything already started and is fatal.
func (r *Router) Start(ctx context.Context) error {
	started := time.Now()
	if _, err := r.mgr.Start(ctx, r.transports); err != nil {
		return err
	}
	if err := r.refresh(ctx); err != nil {
		_ = r.mgr.Shutdown()
		return errors.Mark(err, session.ErrStartup)
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "started",
		"transports", len(r.transports),
		"tools", r.reg.Catalog().Len(),
		"elapsed", time.Since(started).String(),
	)
	return nil
}

func (r *Router) refresh(ctx context.Context) error {
	started := time.Now()
	defer metricskey.PerfCatalogRefresh.MeasureSince(started, "all")

	// only callable sessions contribute to the catalog; an errored
	// transport keeps its own tools out without poisoning the refresh
	sessions := r.mgr.Sessions()
	listers := make([]registry.Lister, 0, len(sessions))
	for _, s := range sessions {
		switch s.State() {
		case session.StateReady, session.StateBusy:
			listers = append(listers, s)
		default:
			logger.ContextKV(ctx, xlog.DEBUG,
				"transport", s.TransportID(),
				"state", s.State(),
				"status", "excluded_from_refresh",
			)
		}
	}
	_, err := r.reg.Refresh(ctx, listers)
	if err != nil {
		metricskey.StatsCatalogRefreshFailed.IncrCounter(1, "all")
	}
	return err
}

// Catalog returns the current merged catalog snapshot.
func (r *Router) Catalog() *registry.Catalog {
	return r.reg.Catalog()
}

// Refresh rebuilds the catalog from all sessions. On failure the
// previous snapshot stays current.
func (r *Router) Refresh(ctx context.Context) error {
	return r.refresh(ctx)
}

// Dispatch routes one tool call to the transport owning the tool.
func (r *Router) Dispatch(ctx context.Context, req tools.CallRequest) tools.CallResult {
	return r.disp.Dispatch(ctx, req)
}

// DispatchAll routes a batch concurrently; results are returned in
// request order.
func (r *Router) DispatchAll(ctx context.Context, reqs []tools.CallRequest) []tools.CallResult {
	return r.disp.DispatchAll(ctx, reqs)
}

// Reconnect re-establishes one transport and refreshes the catalog so
// its descriptors are current. Other sessions are unaffected.
func (r *Router) Reconnect(ctx context.Context, transportID string) error {
	if err := r.mgr.Reconnect(ctx, transportID); err != nil {
		return err
	}
	return r.refresh(ctx)
}

// Session returns the session for a transport id.
func (r *Router) Session(transportID string) (*session.Session, bool) {
	return r.mgr.Get(transportID)
}

// Close shuts down every session, killing subprocesses and closing
// connections. Idempotent.
func (r *Router) Close() error {
	return r.mgr.Shutdown()
}
