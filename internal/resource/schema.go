// Package resource implements the uniform resource dispatch of spec.md
// §4.6: one generic handler family parameterized by a per-resource
// Schema, instead of ~30 hand-written CRUD handlers. Grounded on the
// teacher's repository-interface + decorator layering
// (internal/products/repository.go + cached_repository.go) generalized
// from one Go interface per resource type down to a single
// Schema-parameterized dispatcher, per spec.md §9's explicit direction.
package resource

import (
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// Schema describes one resource type's id shape and mutation rules.
type Schema struct {
	// Prefix is the short mnemonic before the underscore in generated
	// ids (e.g. "cus" for customers), per spec.md §3.
	Prefix string
	// Object is the resource-type tag echoed in responses.
	Object string
	// PathName is the plural path segment this resource is mounted
	// under, e.g. "customers" for /v1/customers.
	PathName string
	// Required lists top-level fields that must be present (after
	// defaults are applied) for create to succeed.
	Required []string
	// ExtraImmutable lists fields beyond id/object/created that update
	// must not overlay, e.g. "subscription" on subscription items.
	ExtraImmutable []string
	// BuildFromParams populates resource-specific defaults from the
	// caller-supplied params, run before the generic id/object/created/
	// livemode/metadata fields are set. It may return an error to reject
	// the request (e.g. a referenced price/plan id does not exist).
	BuildFromParams func(params store.Record) (store.Record, error)
	// SoftDeleteField/SoftDeleteValue, when set, make delete a state
	// transition (e.g. subscription.status -> "canceled") instead of a
	// physical removal, per spec.md §4.6.
	SoftDeleteField string
	SoftDeleteValue any
}

// Entry binds a Schema to its backing Store.
type Entry struct {
	Schema Schema
	Store  *store.Store
}

// Catalog is the prefix/path registry every dispatch and hydration
// lookup goes through — the "single source of truth for id shapes"
// spec.md §4.7 requires.
type Catalog struct {
	byPrefix map[string]*Entry
	byPath   map[string]*Entry
	clock    *clock.Clock
}

// NewCatalog constructs an empty Catalog holding clk. Created-time
// stamping is done by the Dispatcher, not by the Catalog.
func NewCatalog(clk *clock.Clock) *Catalog {
	return &Catalog{
		byPrefix: map[string]*Entry{},
		byPath:   map[string]*Entry{},
		clock:    clk,
	}
}

// Register adds an Entry, indexed by both its schema's prefix and path
// name.
func (c *Catalog) Register(e *Entry) {
	c.byPrefix[e.Schema.Prefix] = e
	c.byPath[e.Schema.PathName] = e
}

// ByPath looks up an Entry by its URL path segment.
func (c *Catalog) ByPath(path string) (*Entry, bool) {
	e, ok := c.byPath[path]
	return e, ok
}

// ByPrefix looks up an Entry by a resource id's prefix.
func (c *Catalog) ByPrefix(prefix string) (*Entry, bool) {
	e, ok := c.byPrefix[prefix]
	return e, ok
}

// Entries returns every registered Entry, used by the admin "flush all
// stores" endpoint (DELETE /_config/data) to clear every resource table
// without each caller having to know the full schema list.
func (c *Catalog) Entries() []*Entry {
	out := make([]*Entry, 0, len(c.byPath))
	for _, e := range c.byPath {
		out = append(out, e)
	}
	return out
}

// Lookup resolves an arbitrary id string to its record by extracting the
// prefix and consulting byPrefix, satisfying hydrate.Lookup.
func (c *Catalog) Lookup(id string) (store.Record, bool) {
	prefix := idPrefix(id)
	e, ok := c.byPrefix[prefix]
	if !ok {
		return nil, false
	}
	return e.Store.Get(id)
}

func idPrefix(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '_' {
			return id[:i]
		}
	}
	return id
}
