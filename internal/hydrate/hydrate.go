// Package hydrate implements the read-time reference expansion of
// spec.md §4.7: given a record and a list of dotted paths, replace
// string-id fields along each path with the referenced record, looked up
// by its id prefix. New code — the teacher's storage layer always
// returns flat records and never expands references generically.
package hydrate

import (
	"strings"

	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// Lookup resolves an id to its record. internal/resource's registry
// implements this by dispatching on the id's prefix.
type Lookup func(id string) (store.Record, bool)

// Hydrator applies expansion paths against a single prefix→lookup table,
// the "single source of truth" for id shapes spec.md §4.7 calls for.
type Hydrator struct {
	lookup Lookup
}

// New constructs a Hydrator backed by the given id resolver.
func New(lookup Lookup) *Hydrator {
	return &Hydrator{lookup: lookup}
}

// Apply returns a shallow-copied record in which every string id along
// each path is replaced by its resolved record, where resolvable. Unresolvable
// steps (unknown prefix, missing record, non-string field) leave the
// remaining path unexpanded rather than erroring. Applying Apply twice
// with the same paths is idempotent: already-expanded nested records are
// traversed through without re-fetching.
func (h *Hydrator) Apply(rec store.Record, paths []string) store.Record {
	if len(paths) == 0 {
		return rec
	}
	out := rec.Clone()
	for _, path := range paths {
		segments := strings.Split(path, ".")
		h.expand(out, segments)
	}
	return out
}

// expand descends rec along segments, mutating it in place to replace a
// resolved string id with its record, then recursing into that record
// for any remaining segments.
func (h *Hydrator) expand(rec store.Record, segments []string) {
	if len(segments) == 0 {
		return
	}
	field := segments[0]
	rest := segments[1:]

	val, ok := rec[field]
	if !ok {
		return
	}

	switch v := val.(type) {
	case string:
		resolved, found := h.lookup(v)
		if !found {
			return // unknown id or unknown prefix: leave as string, per spec
		}
		child := resolved.Clone()
		rec[field] = child
		if len(rest) > 0 {
			h.expand(child, rest)
		}
	case store.Record:
		// Already expanded (e.g. by a previous Apply call, or because an
		// earlier path already expanded this field): traverse through
		// without re-fetching.
		if len(rest) > 0 {
			h.expand(v, rest)
		}
	default:
		// Not a reference we know how to expand (e.g. a list, a number);
		// leave untouched.
	}
}
