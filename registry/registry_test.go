package registry_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/registry"
	"github.com/effective-security/toolrouter/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	id    string
	tools []tools.Descriptor
	err   error
}

func (f *fakeLister) TransportID() string { return f.id }

func (f *fakeLister) ListTools(_ context.Context) ([]tools.Descriptor, error) {
	return f.tools, f.err
}

func lister(id string, names ...string) *fakeLister {
	f := &fakeLister{id: id}
	for _, name := range names {
		f.tools = append(f.tools, tools.Descriptor{Name: name, TransportID: id})
	}
	return f
}

func TestRegistry_Refresh(t *testing.T) {
	reg := registry.New()
	assert.Equal(t, 0, reg.Catalog().Len())

	catalog, err := reg.Refresh(context.Background(), []registry.Lister{
		lister("math", "add", "subtract", "divide"),
		lister("expense", "trackExpense"),
	})
	require.NoError(t, err)

	// cardinality is the sum over transports, order follows transports
	assert.Equal(t, 4, catalog.Len())
	assert.Equal(t, []string{"add", "subtract", "divide", "trackExpense"}, catalog.Names())

	d, err := reg.Resolve("trackExpense")
	require.NoError(t, err)
	assert.Equal(t, "expense", d.TransportID)
}

func TestRegistry_DuplicateToolFatal(t *testing.T) {
	reg := registry.New()
	_, err := reg.Refresh(context.Background(), []registry.Lister{
		lister("math", "add"),
		lister("other", "add"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.Contains(t, err.Error(), `"math"`)
	assert.Contains(t, err.Error(), `"other"`)

	// nothing was published
	assert.Equal(t, 0, reg.Catalog().Len())
}

func TestRegistry_RefreshKeepsSnapshotOnFailure(t *testing.T) {
	reg := registry.New()
	_, err := reg.Refresh(context.Background(), []registry.Lister{
		lister("math", "add"),
	})
	require.NoError(t, err)

	t.Run("list error", func(t *testing.T) {
		broken := lister("math", "add")
		broken.err = errors.New("connection lost")
		_, err := reg.Refresh(context.Background(), []registry.Lister{broken})
		require.Error(t, err)
		assert.Equal(t, []string{"add"}, reg.Catalog().Names())
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := reg.Refresh(context.Background(), []registry.Lister{
			lister("a", "x"),
			lister("b", "x"),
		})
		require.Error(t, err)
		assert.Equal(t, []string{"add"}, reg.Catalog().Names())
	})
}

func TestRegistry_Resolve(t *testing.T) {
	reg := registry.New()
	_, err := reg.Resolve("add")
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))
}
