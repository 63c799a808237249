package resource

import (
	"fmt"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
	"github.com/EnaiaInc/paper-tiger/internal/hydrate"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
)

// Dispatcher implements the five uniform CRUD operations of spec.md
// §4.6 against any Entry in a Catalog, plus hydration and telemetry
// emission common to all of them.
type Dispatcher struct {
	catalog  *Catalog
	hydrator *hydrate.Hydrator
	bus      *telemetry.Bus
	clock    clockSource
}

// clockSource is the minimal surface Dispatcher needs from *clock.Clock,
// kept narrow so tests can supply a fake.
type clockSource interface {
	Now() int64
}

// NewDispatcher wires a Dispatcher to its collaborators.
func NewDispatcher(catalog *Catalog, hydrator *hydrate.Hydrator, bus *telemetry.Bus, clk clockSource) *Dispatcher {
	return &Dispatcher{catalog: catalog, hydrator: hydrator, bus: bus, clock: clk}
}

// alwaysImmutable fields no schema may overlay on update.
var alwaysImmutable = map[string]bool{"id": true, "object": true, "created": true, "livemode": true}

// Create validates params against the schema, assigns generic fields,
// merges caller-provided fields, inserts, emits "<object>.created", and
// applies hydration.
func (d *Dispatcher) Create(e *Entry, params store.Record, expand []string) (store.Record, *apierror.Response) {
	built := params
	if e.Schema.BuildFromParams != nil {
		var err error
		built, err = e.Schema.BuildFromParams(params)
		if err != nil {
			return nil, apierror.New(apierror.InvalidRequest, err.Error(), "", "")
		}
	}
	if built == nil {
		built = store.Record{}
	}

	for _, field := range e.Schema.Required {
		if _, ok := built[field]; !ok {
			return nil, apierror.New(apierror.InvalidRequest, fmt.Sprintf("missing required parameter: %s", field), "", field)
		}
	}

	rec := built.Clone()
	if _, hasID := rec["id"]; !hasID {
		rec["id"] = GenerateID(e.Schema.Prefix)
	}
	rec["object"] = e.Schema.Object
	rec["created"] = d.clock.Now()
	rec["livemode"] = false
	if _, ok := rec["metadata"]; !ok {
		rec["metadata"] = store.Record{}
	}

	stored := e.Store.Insert(rec)
	d.bus.Emit(e.Schema.Object+".created", stored)

	return d.hydrator.Apply(stored, expand), nil
}

// Retrieve fetches id from the store, 404ing per spec.md §4.6/§6 on
// miss, and applies hydration.
func (d *Dispatcher) Retrieve(e *Entry, id string, expand []string) (store.Record, *apierror.Response) {
	rec, ok := e.Store.Get(id)
	if !ok {
		return nil, apierror.New(apierror.NotFound, fmt.Sprintf("No such %s: '%s'", e.Schema.Object, id), "", "")
	}
	return d.hydrator.Apply(rec, expand), nil
}

// Update fetches id, overlays the provided fields (dropping nil values,
// skipping always-immutable and schema-declared-immutable fields),
// re-inserts, emits "<object>.updated", and applies hydration.
func (d *Dispatcher) Update(e *Entry, id string, overlay store.Record, expand []string) (store.Record, *apierror.Response) {
	rec, ok := e.Store.Get(id)
	if !ok {
		return nil, apierror.New(apierror.NotFound, fmt.Sprintf("No such %s: '%s'", e.Schema.Object, id), "", "")
	}

	immutable := alwaysImmutable
	extra := map[string]bool{}
	for _, f := range e.Schema.ExtraImmutable {
		extra[f] = true
	}

	for k, v := range overlay {
		if immutable[k] || extra[k] {
			continue
		}
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}

	stored := e.Store.Update(rec)
	d.bus.Emit(e.Schema.Object+".updated", stored)
	return d.hydrator.Apply(stored, expand), nil
}

// Delete removes id, or — for schemas configured with a soft-delete
// transition (e.g. subscriptions cancel rather than vanish) — updates it
// in place instead of physically removing it. The wire response is
// identical either way, per spec.md §4.6.
func (d *Dispatcher) Delete(e *Entry, id string) (store.Record, *apierror.Response) {
	rec, ok := e.Store.Get(id)
	if !ok {
		return nil, apierror.New(apierror.NotFound, fmt.Sprintf("No such %s: '%s'", e.Schema.Object, id), "", "")
	}

	if e.Schema.SoftDeleteField != "" {
		rec[e.Schema.SoftDeleteField] = e.Schema.SoftDeleteValue
		stored := e.Store.Update(rec)
		d.bus.Emit(e.Schema.Object+".deleted", stored)
	} else {
		e.Store.Delete(id)
		d.bus.Emit(e.Schema.Object+".deleted", rec)
	}

	return store.Record{"deleted": true, "id": id, "object": e.Schema.Object}, nil
}

// List applies cursor pagination and an optional caller filter.
func (d *Dispatcher) List(e *Entry, opts store.ListOptions, expand []string) store.Record {
	page := e.Store.List(opts)
	data := make([]any, len(page.Data))
	for i, rec := range page.Data {
		data[i] = d.hydrator.Apply(rec, expand)
	}
	return store.Record{
		"object":   "list",
		"data":     data,
		"has_more": page.HasMore,
		"url":      "/v1/" + e.Schema.PathName,
	}
}
