// Package registry maintains the merged tool catalog across all
// transports. The catalog is an immutable snapshot built from every
// Ready session and swapped in atomically: readers always observe a
// consistent version, never a partially refreshed one.
package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "registry")

var (
	// ErrDuplicateTool is returned when two transports report the same
	// tool name. Silent shadowing of a tool is a correctness hazard for
	// the agent, so this is fatal rather than resolved by priority.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrUnknownTool is returned when a tool name does not resolve.
	ErrUnknownTool = errors.New("unknown tool")
)

// Lister is the view of a session the registry needs: an identity and
// a tool list. The registry holds read-only descriptor references and
// never owns a transport.
type Lister interface {
	TransportID() string
	ListTools(ctx context.Context) ([]tools.Descriptor, error)
}

// Registry owns the current catalog snapshot.
type Registry struct {
	mu      sync.RWMutex
	catalog *Catalog
}

// New creates a registry with an empty catalog.
func New() *Registry {
	return &Registry{
		catalog: emptyCatalog(),
	}
}

// Refresh queries every session for its tools and builds a new merged
// catalog. On any failure, including a duplicate name, the previous
// snapshot remains current.
func (r *Registry) Refresh(ctx context.Context, sessions []Lister) (*Catalog, error) {
	b := newCatalogBuilder()
	for _, s := range sessions {
		list, err := s.ListTools(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to list tools on transport %q", s.TransportID())
		}
		for _, d := range list {
			if prev, ok := b.get(d.Name); ok {
				return nil, errors.WithMessagef(ErrDuplicateTool,
					"tool %q reported by transports %q and %q", d.Name, prev.TransportID, d.TransportID)
			}
			b.add(d)
		}
	}

	catalog := b.build()
	r.mu.Lock()
	r.catalog = catalog
	r.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "catalog_refreshed",
		"tools", catalog.Len(),
		"transports", len(sessions),
	)
	return catalog, nil
}

// Catalog returns the current snapshot.
func (r *Registry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Resolve looks up the descriptor owning a tool name. It is a pure
// lookup against the current snapshot and contacts no transport.
func (r *Registry) Resolve(name string) (tools.Descriptor, error) {
	d, ok := r.Catalog().Get(name)
	if !ok {
		return tools.Descriptor{}, errors.WithMessagef(ErrUnknownTool, "%q", name)
	}
	return d, nil
}
