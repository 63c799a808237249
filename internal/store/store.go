package store

import (
	"sort"
	"sync"
)

// Store is a concurrent, per-resource-type key-value table of Records.
// Reads (Get, List) are safe to run concurrently with each other and with
// at most one in-flight write; writes (Insert, Update, Delete, Clear) are
// totally ordered by the single RWMutex, mirroring the teacher's
// MemoryStore discipline in internal/storage/storage.go. Different Store
// instances never share a lock, so writes across resource types proceed
// in parallel.
type Store struct {
	mu        sync.RWMutex
	tableName string
	data      map[string]Record

	// global, when set, is consulted on Get misses in this instance's
	// own map; List does not include the global store's records. Used by the tokens/payment_methods stores to
	// serve pre-seeded fixtures shared across otherwise-isolated test
	// runs (spec.md §4.2).
	global *Store
}

// New creates an empty store for the given resource table name (used only
// for introspection/metrics, e.g. "customers").
func New(tableName string) *Store {
	return &Store{
		tableName: tableName,
		data:      make(map[string]Record),
	}
}

// NewWithGlobal creates a store that falls back to global on lookup miss.
func NewWithGlobal(tableName string, global *Store) *Store {
	s := New(tableName)
	s.global = global
	return s
}

// TableName reports the resource table name.
func (s *Store) TableName() string {
	return s.tableName
}

// Get performs a lock-free-relative-to-other-reads lookup, falling back
// to the global namespace (if configured) on miss.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	rec, ok := s.data[id]
	s.mu.RUnlock()
	if ok {
		return rec.Clone(), true
	}
	if s.global != nil {
		return s.global.Get(id)
	}
	return nil, false
}

// Insert stores rec under its id, overwriting any prior value. It is a
// serialized write: at most one Insert/Update/Delete/Clear runs at a time
// against this store.
func (s *Store) Insert(rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ID()] = rec.Clone()
	return rec.Clone()
}

// Update overwrites the stored record for rec's id. Merge semantics
// (which fields to keep vs overlay) are the caller's responsibility; the
// store itself just replaces the whole record (internal/resource performs
// the merge before calling Update).
func (s *Store) Update(rec Record) Record {
	return s.Insert(rec)
}

// Delete removes id from the store. A miss is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}

// Clear removes every entry in this instance's own map. It does not
// affect the global namespace, if any.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]Record)
}

// Count returns the number of entries in this instance's own map (not
// including the global namespace).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All returns every record in this instance's own map, unsorted and
// unpaginated, for internal background workers (e.g. the billing engine's
// eligibility scan) that need a full scan rather than the wire-facing
// cursor page. Not used by any HTTP-facing list endpoint.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec.Clone())
	}
	return out
}

// Filter decides whether a record should be included in a List result.
type Filter func(Record) bool

// ListOptions configures cursor-based pagination, per spec.md §4.2.
//
// Limit follows the wire semantics: a negative value means "not supplied"
// and defaults to 10; 0 is a valid explicit request that yields an empty
// page; values above 100 clamp to 100. Callers parsing the ?limit= query
// parameter should pass -1 when the parameter is absent.
type ListOptions struct {
	Limit         int
	StartingAfter string // skip up to and including this id
	EndingBefore  string // stop before this id; wins over StartingAfter if both set
	Filter        Filter
}

// Page is the cursor-paginated result of a List call.
type Page struct {
	Data    []Record
	HasMore bool
}

// List snapshots the store under the read lock, then sorts and paginates
// outside the lock so slow filters/sorts never hold up writers.
func (s *Store) List(opts ListOptions) Page {
	limit := opts.Limit
	if limit < 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	s.mu.RLock()
	snapshot := make([]Record, 0, len(s.data))
	for _, rec := range s.data {
		snapshot = append(snapshot, rec.Clone())
	}
	s.mu.RUnlock()

	if opts.Filter != nil {
		filtered := snapshot[:0:0]
		for _, rec := range snapshot {
			if opts.Filter(rec) {
				filtered = append(filtered, rec)
			}
		}
		snapshot = filtered
	}

	sort.SliceStable(snapshot, func(i, j int) bool {
		ci, cj := snapshot[i].Created(), snapshot[j].Created()
		if ci != cj {
			return ci > cj // created desc
		}
		return snapshot[i].ID() < snapshot[j].ID() // id asc tie-break
	})

	start := 0
	end := len(snapshot)

	if opts.EndingBefore != "" {
		idx := indexOf(snapshot, opts.EndingBefore)
		if idx >= 0 {
			end = idx
		}
		start = end - limit
		if start < 0 {
			start = 0
		}
		if limit > 0 && end-start > limit {
			start = end - limit
		}
		page := append([]Record(nil), snapshot[start:end]...)
		return Page{Data: page, HasMore: start > 0}
	}

	if opts.StartingAfter != "" {
		idx := indexOf(snapshot, opts.StartingAfter)
		if idx >= 0 {
			start = idx + 1
		}
	}

	probeEnd := start + limit + 1
	if probeEnd > len(snapshot) {
		probeEnd = len(snapshot)
	}
	probe := snapshot[start:probeEnd]

	hasMore := len(probe) > limit
	data := probe
	if hasMore {
		data = probe[:limit]
	}
	return Page{Data: append([]Record(nil), data...), HasMore: hasMore}
}

func indexOf(records []Record, id string) int {
	for i, r := range records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
