package registry

import (
	"github.com/effective-security/toolrouter/tools"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Catalog is the merged, de-duplicated set of tools available to the
// agent across all transports. It is immutable after construction;
// insertion order is preserved so the tool list presented to the LLM
// is deterministic.
type Catalog struct {
	byName *orderedmap.OrderedMap[string, tools.Descriptor]
}

func emptyCatalog() *Catalog {
	return &Catalog{
		byName: orderedmap.New[string, tools.Descriptor](),
	}
}

// Len returns the number of tools in the catalog.
func (c *Catalog) Len() int {
	return c.byName.Len()
}

// Get returns the descriptor for a tool name.
func (c *Catalog) Get(name string) (tools.Descriptor, bool) {
	return c.byName.Get(name)
}

// Descriptors returns all descriptors in catalog order.
func (c *Catalog) Descriptors() []tools.Descriptor {
	out := make([]tools.Descriptor, 0, c.byName.Len())
	for pair := c.byName.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Names returns all tool names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, c.byName.Len())
	for pair := c.byName.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// catalogBuilder accumulates descriptors before the snapshot is
// published; the build-then-swap keeps readers off partial state.
type catalogBuilder struct {
	byName *orderedmap.OrderedMap[string, tools.Descriptor]
}

func newCatalogBuilder() *catalogBuilder {
	return &catalogBuilder{
		byName: orderedmap.New[string, tools.Descriptor](),
	}
}

func (b *catalogBuilder) get(name string) (tools.Descriptor, bool) {
	return b.byName.Get(name)
}

func (b *catalogBuilder) add(d tools.Descriptor) {
	b.byName.Set(d.Name, d)
}

func (b *catalogBuilder) build() *Catalog {
	return &Catalog{byName: b.byName}
}
