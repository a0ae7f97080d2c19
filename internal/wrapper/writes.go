package wrapper

import (
	"context"

	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/helper"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
)

// =============================================================================
// INSTANCE WRITES — entities
// =============================================================================

// AddEntity creates a new, locally-homed entity (spec §4.1 instance
// writes).
func (w *Wrapper) AddEntity(ctx context.Context, typeSummary instance.TypeDefSummary, properties map[string]any, createdBy string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "addEntity"); err != nil {
		return nil, err
	}
	e := helper.NewEntity(typeSummary, w.localCollectionID, w.localCollectionName, properties, createdBy)
	if err := w.validate.ValidateEntity(ctx, e); err != nil {
		return nil, err
	}
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.NewEntityEvent, Entity: e})
	return e, nil
}

// AddExternalEntity implements the external-source write protocol (spec
// §4.1): the instance's true home is externalSourceID, not this server; the
// wrapper records that it is merely replicating the instance on the
// external source's behalf.
func (w *Wrapper) AddExternalEntity(ctx context.Context, typeSummary instance.TypeDefSummary, properties map[string]any, externalSourceID, externalSourceName, createdBy string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "addExternalEntity"); err != nil {
		return nil, err
	}
	if externalSourceID == "" {
		return nil, omrserrors.InvalidParameter("externalSourceId", "external source id must not be empty")
	}
	e := helper.NewEntity(typeSummary, externalSourceID, externalSourceName, properties, createdBy)
	helper.StampProvenance(&e.Header, instance.ProvenanceExternalSource, externalSourceID, externalSourceName, w.localCollectionID)
	if err := w.validate.ValidateEntity(ctx, e); err != nil {
		return nil, err
	}
	if err := w.store.SaveEntityReferenceCopy(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.NewEntityEvent, Entity: e})
	return e, nil
}

// AddEntityProxy stores a proxy-only entity, used as a placeholder
// relationship endpoint when the full entity is not materializable locally
// (spec §3).
func (w *Wrapper) AddEntityProxy(ctx context.Context, proxy *instance.EntityProxy) error {
	if err := w.authorize(ctx, "addEntityProxy"); err != nil {
		return err
	}
	if proxy == nil || proxy.GUID == "" {
		return omrserrors.InvalidParameter("proxy", "proxy must have a GUID")
	}
	e := &instance.Entity{Header: proxy.Header, Properties: proxy.UniqueProperties, IsProxy: true}
	return w.store.SaveEntity(ctx, e)
}

// forbidProxyMutation implements spec §4.1's write-protocol invariant: a
// caller that tries to mutate a proxy as if it were a home entity gets a
// specific, named error rather than a generic failure.
func (w *Wrapper) forbidProxyMutation(lookup instance.EntityLookup, guid string) error {
	if lookup.IsProxyOnly() {
		return omrserrors.New(omrserrors.KindInvalidEntity, "entity %s is a proxy, not updatable as a home entity", guid)
	}
	return nil
}

func (w *Wrapper) UpdateEntityStatus(ctx context.Context, guid string, status instance.InstanceStatus) (*instance.Entity, error) {
	if err := w.authorize(ctx, "updateEntityStatus"); err != nil {
		return nil, err
	}
	lookup, err := w.store.GetEntitySummary(ctx, guid)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	if lookup.IsNotFound() {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if err := w.forbidProxyMutation(lookup, guid); err != nil {
		return nil, err
	}
	e := lookup.Full
	e.Status = status
	helper.IncrementVersion(&e.Header)
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: e})
	return e, nil
}

func (w *Wrapper) UpdateEntityProperties(ctx context.Context, guid string, properties map[string]any) (*instance.Entity, error) {
	if err := w.authorize(ctx, "updateEntityProperties"); err != nil {
		return nil, err
	}
	lookup, err := w.store.GetEntitySummary(ctx, guid)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	if lookup.IsNotFound() {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if err := w.forbidProxyMutation(lookup, guid); err != nil {
		return nil, err
	}
	e := lookup.Full
	e.Properties = properties
	helper.IncrementVersion(&e.Header)
	if err := w.validate.ValidateEntity(ctx, e); err != nil {
		return nil, err
	}
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: e})
	return e, nil
}

// UndoEntityUpdate does not restore prior property values (spec §4.1): this
// core has no change-history store. It calls UpdateEntityStatus with
// ACTIVE, so the entity's properties stay as they are, its status becomes
// ACTIVE, its version is incremented and an UPDATED_ENTITY event is
// emitted.
func (w *Wrapper) UndoEntityUpdate(ctx context.Context, guid string) (*instance.Entity, error) {
	return w.UpdateEntityStatus(ctx, guid, instance.StatusActive)
}

func (w *Wrapper) DeleteEntity(ctx context.Context, guid string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "deleteEntity"); err != nil {
		return nil, err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if err := w.store.DeleteEntity(ctx, guid); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	e.Status = instance.StatusDeleted
	w.emit(ctx, events.InstanceEvent{EventType: events.DeletedEntityEvent, Entity: e})
	return e, nil
}

// PurgeEntity hard-removes an entity. I8 requires the soft-delete to have
// happened first.
func (w *Wrapper) PurgeEntity(ctx context.Context, guid string) error {
	if err := w.authorize(ctx, "purgeEntity"); err != nil {
		return err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if e.Status != instance.StatusDeleted {
		return omrserrors.New(omrserrors.KindEntityNotDeleted, "entity %s must be deleted before it can be purged (I8)", guid)
	}
	if err := w.store.PurgeEntity(ctx, guid); err != nil {
		return omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.PurgedEntityEvent, Entity: e})
	return nil
}

func (w *Wrapper) RestoreEntity(ctx context.Context, guid string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "restoreEntity"); err != nil {
		return nil, err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if e.Status != instance.StatusDeleted {
		return nil, omrserrors.New(omrserrors.KindEntityNotDeleted, "entity %s is not deleted", guid)
	}
	e.Status = instance.StatusActive
	helper.IncrementVersion(&e.Header)
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: e})
	return e, nil
}

func (w *Wrapper) ClassifyEntity(ctx context.Context, guid string, c instance.Classification) (*instance.Entity, error) {
	if err := w.authorize(ctx, "classifyEntity"); err != nil {
		return nil, err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	for _, existing := range e.Classifications {
		if existing.Name == c.Name {
			return nil, omrserrors.New(omrserrors.KindClassificationError, "entity %s is already classified %s", guid, c.Name)
		}
	}
	if err := w.validate.ValidateClassification(ctx, &c); err != nil {
		return nil, err
	}
	e.Classifications = append(e.Classifications, c)
	helper.IncrementVersion(&e.Header)
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.ClassifiedEntityEvent, Entity: e})
	return e, nil
}

func (w *Wrapper) DeclassifyEntity(ctx context.Context, guid, classificationName string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "declassifyEntity"); err != nil {
		return nil, err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	kept := e.Classifications[:0]
	found := false
	for _, c := range e.Classifications {
		if c.Name == classificationName {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return nil, omrserrors.New(omrserrors.KindClassificationError, "entity %s has no classification %s", guid, classificationName)
	}
	e.Classifications = kept
	helper.IncrementVersion(&e.Header)
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.DeclassifiedEntityEvent, Entity: e})
	return e, nil
}

func (w *Wrapper) UpdateEntityClassification(ctx context.Context, guid string, c instance.Classification) (*instance.Entity, error) {
	if err := w.authorize(ctx, "updateEntityClassification"); err != nil {
		return nil, err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	if err := w.validate.ValidateClassification(ctx, &c); err != nil {
		return nil, err
	}
	found := false
	for i := range e.Classifications {
		if e.Classifications[i].Name == c.Name {
			e.Classifications[i] = c
			found = true
			break
		}
	}
	if !found {
		return nil, omrserrors.New(omrserrors.KindClassificationError, "entity %s has no classification %s", guid, c.Name)
	}
	helper.IncrementVersion(&e.Header)
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.ReClassifiedEntityEvent, Entity: e})
	return e, nil
}

// =============================================================================
// INSTANCE WRITES — relationships (symmetric to the entity set above)
// =============================================================================

func (w *Wrapper) AddRelationship(ctx context.Context, typeSummary instance.TypeDefSummary, one, two instance.EntityProxy, properties map[string]any, createdBy string) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "addRelationship"); err != nil {
		return nil, err
	}
	r := helper.NewRelationship(typeSummary, w.localCollectionID, w.localCollectionName, one, two, properties, createdBy)
	if err := w.validate.ValidateRelationship(ctx, r); err != nil {
		return nil, err
	}
	if err := w.store.SaveRelationship(ctx, r); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.NewRelationshipEvent, Relationship: r})
	return r, nil
}

func (w *Wrapper) AddExternalRelationship(ctx context.Context, typeSummary instance.TypeDefSummary, one, two instance.EntityProxy, properties map[string]any, externalSourceID, externalSourceName, createdBy string) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "addExternalRelationship"); err != nil {
		return nil, err
	}
	if externalSourceID == "" {
		return nil, omrserrors.InvalidParameter("externalSourceId", "external source id must not be empty")
	}
	r := helper.NewRelationship(typeSummary, externalSourceID, externalSourceName, one, two, properties, createdBy)
	helper.StampProvenance(&r.Header, instance.ProvenanceExternalSource, externalSourceID, externalSourceName, w.localCollectionID)
	if err := w.validate.ValidateRelationship(ctx, r); err != nil {
		return nil, err
	}
	if err := w.store.SaveRelationshipReferenceCopy(ctx, r); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.NewRelationshipEvent, Relationship: r})
	return r, nil
}

func (w *Wrapper) UpdateRelationshipStatus(ctx context.Context, guid string, status instance.InstanceStatus) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "updateRelationshipStatus"); err != nil {
		return nil, err
	}
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
	}
	r.Status = status
	helper.IncrementVersion(&r.Header)
	if err := w.store.SaveRelationship(ctx, r); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.UpdatedRelationshipEvent, Relationship: r})
	return r, nil
}

func (w *Wrapper) UpdateRelationshipProperties(ctx context.Context, guid string, properties map[string]any) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "updateRelationshipProperties"); err != nil {
		return nil, err
	}
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
	}
	r.Properties = properties
	helper.IncrementVersion(&r.Header)
	if err := w.validate.ValidateRelationship(ctx, r); err != nil {
		return nil, err
	}
	if err := w.store.SaveRelationship(ctx, r); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.UpdatedRelationshipEvent, Relationship: r})
	return r, nil
}

func (w *Wrapper) DeleteRelationship(ctx context.Context, guid string) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "deleteRelationship"); err != nil {
		return nil, err
	}
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
	}
	if err := w.store.DeleteRelationship(ctx, guid); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	r.Status = instance.StatusDeleted
	w.emit(ctx, events.InstanceEvent{EventType: events.DeletedRelationshipEvent, Relationship: r})
	return r, nil
}

func (w *Wrapper) PurgeRelationship(ctx context.Context, guid string) error {
	if err := w.authorize(ctx, "purgeRelationship"); err != nil {
		return err
	}
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		return omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
	}
	if r.Status != instance.StatusDeleted {
		return omrserrors.New(omrserrors.KindRelationshipNotDeleted, "relationship %s must be deleted before it can be purged (I8)", guid)
	}
	if err := w.store.PurgeRelationship(ctx, guid); err != nil {
		return omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.PurgedRelationshipEvent, Relationship: r})
	return nil
}

// =============================================================================
// CONTROL-PLANE WRITES — reIdentify / reHome
// =============================================================================

func (w *Wrapper) ReIdentifyEntity(ctx context.Context, originalGUID string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "reIdentifyEntity"); err != nil {
		return nil, err
	}
	newGUID := helper.NewGUID()
	e, err := w.store.ReIdentifyEntity(ctx, originalGUID, newGUID)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", originalGUID)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.ReIdentifiedEntityEvent, Entity: e, OriginalGUID: originalGUID})
	return e, nil
}

func (w *Wrapper) ReIdentifyRelationship(ctx context.Context, originalGUID string) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "reIdentifyRelationship"); err != nil {
		return nil, err
	}
	newGUID := helper.NewGUID()
	r, err := w.store.ReIdentifyRelationship(ctx, originalGUID, newGUID)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", originalGUID)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.ReIdentifiedRelationshipEvent, Relationship: r, OriginalGUID: originalGUID})
	return r, nil
}

// ReHomeEntity changes an entity's declared home collection, used when a
// cohort member that used to be authoritative for an instance hands that
// role to another member.
func (w *Wrapper) ReHomeEntity(ctx context.Context, guid, newHomeCollectionID, newHomeCollectionName string) (*instance.Entity, error) {
	if err := w.authorize(ctx, "reHomeEntity"); err != nil {
		return nil, err
	}
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	e.MetadataCollectionID = newHomeCollectionID
	e.MetadataCollectionName = newHomeCollectionName
	helper.IncrementVersion(&e.Header)
	if err := w.store.SaveEntity(ctx, e); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.ReHomedEntityEvent, Entity: e})
	return e, nil
}

func (w *Wrapper) ReHomeRelationship(ctx context.Context, guid, newHomeCollectionID, newHomeCollectionName string) (*instance.Relationship, error) {
	if err := w.authorize(ctx, "reHomeRelationship"); err != nil {
		return nil, err
	}
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
	}
	r.MetadataCollectionID = newHomeCollectionID
	r.MetadataCollectionName = newHomeCollectionName
	helper.IncrementVersion(&r.Header)
	if err := w.store.SaveRelationship(ctx, r); err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	w.emit(ctx, events.InstanceEvent{EventType: events.ReHomedRelationshipEvent, Relationship: r})
	return r, nil
}

// =============================================================================
// REFERENCE-COPY MAINTENANCE
// =============================================================================

func (w *Wrapper) SaveEntityReferenceCopy(ctx context.Context, e *instance.Entity) error {
	if e.MetadataCollectionID == w.localCollectionID {
		return omrserrors.New(omrserrors.KindLogicError, "refusing to store a locally-homed entity as a reference copy (I2)")
	}
	if err := w.validate.ValidateEntity(ctx, e); err != nil {
		return err
	}
	return w.store.SaveEntityReferenceCopy(ctx, e)
}

func (w *Wrapper) SaveRelationshipReferenceCopy(ctx context.Context, r *instance.Relationship) error {
	if r.MetadataCollectionID == w.localCollectionID {
		return omrserrors.New(omrserrors.KindLogicError, "refusing to store a locally-homed relationship as a reference copy (I2)")
	}
	if err := w.validate.ValidateRelationship(ctx, r); err != nil {
		return err
	}
	return w.store.SaveRelationshipReferenceCopy(ctx, r)
}

// PurgeEntityReferenceCopy removes a local reference copy of an
// externally-homed entity. The underlying collection call is given the
// entity's own declared home, not a caller-supplied one; the collection
// refuses to purge a locally-homed master.
func (w *Wrapper) PurgeEntityReferenceCopy(ctx context.Context, guid string) error {
	e, err := w.store.GetEntityDetail(ctx, guid)
	if err != nil {
		return omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", guid)
	}
	return w.store.PurgeEntityReferenceCopy(ctx, guid, e.MetadataCollectionID)
}

func (w *Wrapper) PurgeRelationshipReferenceCopy(ctx context.Context, guid string) error {
	r, err := w.store.GetRelationship(ctx, guid)
	if err != nil {
		return omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known", guid)
	}
	return w.store.PurgeRelationshipReferenceCopy(ctx, guid, r.MetadataCollectionID)
}

// RefreshEntityReferenceCopy asks the home repository to re-publish an
// entity's current state by emitting a REFRESH_ENTITY_REQUEST; the actual
// refreshed content arrives later as a REFRESHED_ENTITY_EVENT handled by
// C8 (spec §4.3).
func (w *Wrapper) RefreshEntityReferenceCopy(ctx context.Context, guid, homeMetadataCollectionID string) error {
	w.emit(ctx, events.InstanceEvent{
		EventType:    events.RefreshEntityRequest,
		OriginalGUID: guid,
	})
	return nil
}

func (w *Wrapper) RefreshRelationshipReferenceCopy(ctx context.Context, guid, homeMetadataCollectionID string) error {
	w.emit(ctx, events.InstanceEvent{
		EventType:    events.RefreshRelationshipRequest,
		OriginalGUID: guid,
	})
	return nil
}
