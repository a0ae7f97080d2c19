// Package wrapper implements C7, the Local Repository Wrapper: the single
// mediator between callers and the embedded storage engine. Grounded on
// the teacher's database.Client (queries.go, graph_queries.go) — one small
// method per verb, consistent error wrapping — generalized from SQL-backed
// CRUD into the validate→authorize→delegate→stamp-provenance→emit pipeline
// spec §4.1 describes for every operation.
package wrapper

import (
	"context"
	"time"

	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/security"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/validator"
)

// Wrapper is C7.
type Wrapper struct {
	store    collection.MetadataCollection
	types    typedefs.TypeRegistry
	validate validator.Validator
	authz    security.Verifier
	emitter  *events.Emitter

	localCollectionID   string
	localCollectionName string
	produceEvents       bool
}

func New(store collection.MetadataCollection, types typedefs.TypeRegistry, v validator.Validator, authz security.Verifier, emitter *events.Emitter, localCollectionID, localCollectionName string, produceEvents bool) *Wrapper {
	return &Wrapper{
		store:               store,
		types:               types,
		validate:            v,
		authz:               authz,
		emitter:             emitter,
		localCollectionID:   localCollectionID,
		localCollectionName: localCollectionName,
		produceEvents:       produceEvents,
	}
}

// stampEntity implements spec §4.1's provenance-stamping rule (and
// stampRelationship its relationship equivalent): a
// locally-created instance with no metadataCollectionId is stamped as the
// local home; one that already claims the local id but has no collection
// name gets the name filled in from configuration.
func (w *Wrapper) stampEntity(e *instance.Entity) {
	if e == nil {
		return
	}
	if e.MetadataCollectionID == "" {
		e.MetadataCollectionID = w.localCollectionID
		e.Provenance = instance.ProvenanceLocalCohort
	}
	if e.MetadataCollectionID == w.localCollectionID && e.MetadataCollectionName == "" {
		e.MetadataCollectionName = w.localCollectionName
	}
}

func (w *Wrapper) stampRelationship(r *instance.Relationship) {
	if r == nil {
		return
	}
	if r.MetadataCollectionID == "" {
		r.MetadataCollectionID = w.localCollectionID
		r.Provenance = instance.ProvenanceLocalCohort
	}
	if r.MetadataCollectionID == w.localCollectionID && r.MetadataCollectionName == "" {
		r.MetadataCollectionName = w.localCollectionName
	}
}

func (w *Wrapper) emit(ctx context.Context, ev events.InstanceEvent) {
	if !w.produceEvents || w.emitter == nil {
		return
	}
	ev.OriginatingMetadataCollectionID = w.localCollectionID
	_ = w.emitter.Emit(ctx, ev)
}

func (w *Wrapper) authorize(ctx context.Context, operation string) error {
	if w.authz == nil {
		return nil
	}
	if err := w.authz.Authorize(ctx, operation); err != nil {
		return omrserrors.New(omrserrors.KindUserNotAuthorized, "%s: %w", operation, err)
	}
	return nil
}

// =============================================================================
// INSTANCE READS
// =============================================================================

func (w *Wrapper) IsEntityKnown(ctx context.Context, guid string) (bool, error) {
	lookup, err := w.GetEntitySummary(ctx, guid)
	if err != nil {
		return false, err
	}
	return !lookup.IsNotFound(), nil
}

// GetEntitySummary returns the entity or its proxy if only a proxy is
// locally materialized — callers that require a full entity should check
// EntityLookup.IsProxyOnly() themselves rather than the wrapper raising an
// EntityProxyOnly exception (spec §9 design note).
func (w *Wrapper) GetEntitySummary(ctx context.Context, guid string) (instance.EntityLookup, error) {
	if guid == "" {
		return instance.EntityLookup{}, omrserrors.InvalidParameter("guid", "guid must not be empty")
	}
	if err := w.authorize(ctx, "getEntitySummary"); err != nil {
		return instance.EntityLookup{}, err
	}
	lookup, err := w.store.GetEntitySummary(ctx, guid)
	if err != nil {
		return instance.EntityLookup{}, omrserrors.Repository(true, err)
	}
	if lookup.Full != nil {
		w.stampEntity(lookup.Full)
	}
	return lookup, nil
}

// GetEntityDetail fetches the full entity, forbidding a proxy-only result:
// callers asking for "detail" need the real thing (spec §4.1 instance
// reads), so a proxy-only lookup is surfaced as a KindInvalidEntity error
// here specifically rather than silently handing back a proxy's stub
// properties.
//
// asOf is accepted for API parity with the historical-query surface spec §4.1
// describes, but this core keeps no change history, so it is ignored and
// every call returns the current state (same limitation as UndoEntityUpdate).
func (w *Wrapper) GetEntityDetail(ctx context.Context, guid string, asOf *time.Time) (*instance.Entity, error) {
	if guid == "" {
		return nil, omrserrors.InvalidParameter("guid", "guid must not be empty")
	}
	if err := w.authorize(ctx, "getEntityDetail"); err != nil {
		return nil, err
	}
	lookup, err := w.store.GetEntitySummary(ctx, guid)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	if lookup.IsNotFound() {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if lookup.IsProxyOnly() {
		return nil, omrserrors.New(omrserrors.KindInvalidEntity, "entity %s is a proxy, not a full entity", guid)
	}
	w.stampEntity(lookup.Full)
	return lookup.Full, nil
}

func (w *Wrapper) FindEntities(ctx context.Context, typeGUID string, page collection.PageSpec) ([]*instance.Entity, error) {
	if err := w.authorize(ctx, "findEntities"); err != nil {
		return nil, err
	}
	out, err := w.store.FindEntities(ctx, typeGUID, page)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	for _, e := range out {
		w.stampEntity(e)
	}
	return out, nil
}

func (w *Wrapper) IsRelationshipKnown(ctx context.Context, guid string) (bool, error) {
	_, err := w.GetRelationship(ctx, guid, nil)
	if err != nil {
		if omrserrors.KindOf(err) == omrserrors.KindRelationshipNotKnown {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (w *Wrapper) GetRelationship(ctx context.Context, guid string, asOf *time.Time) (*instance.Relationship, error) {
	if guid == "" {
		return nil, omrserrors.InvalidParameter("guid", "guid must not be empty")
	}
	if err := w.authorize(ctx, "getRelationship"); err != nil {
		return nil, err
	}
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		if _, ok := err.(*collection.ErrNotFound); ok {
			return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
		}
		return nil, omrserrors.Repository(true, err)
	}
	w.stampRelationship(r)
	return r, nil
}

func (w *Wrapper) FindRelationships(ctx context.Context, typeGUID string, page collection.PageSpec) ([]*instance.Relationship, error) {
	if err := w.authorize(ctx, "findRelationships"); err != nil {
		return nil, err
	}
	out, err := w.store.FindRelationships(ctx, typeGUID, page)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	for _, r := range out {
		w.stampRelationship(r)
	}
	return out, nil
}

// GetRelationshipsForEntity returns every relationship with guid as one of
// its endpoints (spec §4.1 instance reads).
func (w *Wrapper) GetRelationshipsForEntity(ctx context.Context, guid string, page collection.PageSpec) ([]*instance.Relationship, error) {
	if err := w.authorize(ctx, "getRelationshipsForEntity"); err != nil {
		return nil, err
	}
	all, err := w.store.FindRelationships(ctx, "", collection.PageSpec{})
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	var matched []*instance.Relationship
	for _, r := range all {
		if r.EntityOneProxy.GUID == guid || r.EntityTwoProxy.GUID == guid {
			w.stampRelationship(r)
			matched = append(matched, r)
		}
	}
	return paginateRelationships(matched, page), nil
}

// GetEntityNeighborhood returns the sub-graph reachable from guid within
// depth hops, following relationship endpoints breadth-first (spec §4.1
// instance reads).
func (w *Wrapper) GetEntityNeighborhood(ctx context.Context, guid string, depth int) (*instance.InstanceGraph, error) {
	if err := w.authorize(ctx, "getEntityNeighborhood"); err != nil {
		return nil, err
	}
	if depth < 0 {
		depth = 0
	}

	seenEntities := map[string]*instance.Entity{}
	seenRelationships := map[string]*instance.Relationship{}
	frontier := []string{guid}

	for hop := 0; hop <= depth && len(frontier) > 0; hop++ {
		var next []string
		for _, g := range frontier {
			if _, ok := seenEntities[g]; !ok {
				e, err := w.store.GetEntityDetail(ctx, g)
				if err != nil {
					continue
				}
				w.stampEntity(e)
				seenEntities[g] = e
			}
			rels, err := w.GetRelationshipsForEntity(ctx, g, collection.PageSpec{})
			if err != nil {
				continue
			}
			for _, r := range rels {
				if _, ok := seenRelationships[r.GUID]; ok {
					continue
				}
				seenRelationships[r.GUID] = r
				for _, end := range []string{r.EntityOneProxy.GUID, r.EntityTwoProxy.GUID} {
					if _, ok := seenEntities[end]; !ok {
						next = append(next, end)
					}
				}
			}
		}
		frontier = next
	}

	graph := &instance.InstanceGraph{}
	for _, e := range seenEntities {
		graph.Entities = append(graph.Entities, e)
	}
	for _, r := range seenRelationships {
		graph.Relationships = append(graph.Relationships, r)
	}
	return graph, nil
}

func paginateRelationships(all []*instance.Relationship, page collection.PageSpec) []*instance.Relationship {
	if page.PageSize <= 0 {
		if page.Offset >= len(all) {
			return nil
		}
		return all[page.Offset:]
	}
	if page.Offset >= len(all) {
		return nil
	}
	end := page.Offset + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end]
}
