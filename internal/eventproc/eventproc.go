// Package eventproc implements C8, the Instance Event Processor: the
// inbound half of cohort exchange, reacting to events published by remote
// members and to retrieval results handed to it by the federator (C10).
// Grounded on the teacher's internal/temporal/activities.go
// MetadataActivities — one method per distinct unit of work, logged through
// a structured logger, dependencies held on the receiver rather than
// threaded as parameters — generalized from one activity per collection
// step to one handler per cohort event kind (spec §4.3's dispatch table).
package eventproc

import (
	"context"
	"log/slog"
	"time"

	"github.com/nucleus/omrs-core/internal/audit"
	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/exchange"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/validator"
	"github.com/nucleus/omrs-core/internal/wrapper"
)

// Processor is C8.
type Processor struct {
	wrapper           *wrapper.Wrapper
	store             collection.MetadataCollection
	validate          validator.Validator
	types             typedefs.TypeRegistry
	exchangeRule      *exchange.Rule
	emitter           *events.Emitter
	audit             *audit.Trail
	localCollectionID string
	log               *slog.Logger

	initialized bool
}

func New(w *wrapper.Wrapper, store collection.MetadataCollection, v validator.Validator, types typedefs.TypeRegistry, rule *exchange.Rule, emitter *events.Emitter, trail *audit.Trail, localCollectionID string, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		wrapper:           w,
		store:             store,
		validate:          v,
		types:             types,
		exchangeRule:      rule,
		emitter:           emitter,
		audit:             trail,
		localCollectionID: localCollectionID,
		log:               log,
		initialized:       true,
	}
}

var referenceUpdateEntityEvents = map[events.EventType]struct{}{
	events.NewEntityEvent:          {},
	events.UpdatedEntityEvent:      {},
	events.ReIdentifiedEntityEvent: {},
	events.ReTypedEntityEvent:      {},
	events.ReHomedEntityEvent:      {},
	events.ClassifiedEntityEvent:   {},
	events.DeclassifiedEntityEvent: {},
	events.ReClassifiedEntityEvent: {},
	events.DeletedEntityEvent:      {},
	events.RefreshedEntityEvent:    {},
}

var referenceUpdateRelationshipEvents = map[events.EventType]struct{}{
	events.NewRelationshipEvent:          {},
	events.UpdatedRelationshipEvent:      {},
	events.ReIdentifiedRelationshipEvent: {},
	events.ReHomedRelationshipEvent:      {},
	events.DeletedRelationshipEvent:      {},
	events.RefreshedRelationshipEvent:    {},
}

// Process is the dispatch table of spec §4.3. A failure handling one event
// is logged and the event dropped; it never halts the stream (spec §5
// "failure isolation").
func (p *Processor) Process(ctx context.Context, ev events.InstanceEvent) {
	var err error
	switch {
	case ev.EventType == events.PurgedEntityEvent:
		err = p.handlePurgedEntity(ctx, ev)
	case ev.EventType == events.PurgedRelationshipEvent:
		err = p.handlePurgedRelationship(ctx, ev)
	case ev.EventType == events.RefreshEntityRequest:
		err = p.handleRefreshEntityRequest(ctx, ev)
	case ev.EventType == events.RefreshRelationshipRequest:
		err = p.handleRefreshRelationshipRequest(ctx, ev)
	case ev.EventType == events.BatchInstancesEvent:
		err = p.saveInstanceReferenceCopies(ctx, ev.Graph)
	case ev.EventType == events.ConflictingInstancesEvent:
		err = p.handleConflictingInstances(ctx, ev)
	case ev.EventType == events.ConflictingTypeEvent:
		err = p.handleConflictingType(ctx, ev)
	default:
		if _, ok := referenceUpdateEntityEvents[ev.EventType]; ok {
			err = p.updateReferenceEntity(ctx, ev)
			break
		}
		if _, ok := referenceUpdateRelationshipEvents[ev.EventType]; ok {
			err = p.updateReferenceRelationship(ctx, ev)
			break
		}
		p.log.Warn("event processor: unrecognized event type, dropping", "eventType", ev.EventType)
		return
	}
	if err != nil {
		p.log.Error("event processor: handling failed, event dropped", "eventType", ev.EventType, "error", err)
	}
}

// updateReferenceEntity is the reference-update path of spec §4.3 for every
// entity-shaped inbound event.
func (p *Processor) updateReferenceEntity(ctx context.Context, ev events.InstanceEvent) error {
	if !p.initialized {
		return omrserrors.New(omrserrors.KindLogicError, "event processor not initialized")
	}
	incoming := ev.Entity
	if incoming == nil {
		return omrserrors.InvalidParameter("entity", "entity event carries no entity")
	}
	if incoming.MetadataCollectionID == p.localCollectionID {
		// I2: never overwrite the local master with an inbound reference copy.
		return nil
	}
	if err := p.validate.ValidateEntity(ctx, incoming); err != nil {
		return err
	}

	stored, err := p.store.GetEntityDetail(ctx, incoming.GUID)
	if err != nil {
		if _, ok := err.(*collection.ErrNotFound); !ok {
			return omrserrors.Repository(true, err)
		}
		stored = nil
	}

	if stored != nil {
		if !stored.CreateTime.Equal(incoming.CreateTime) {
			p.recordAudit(audit.CategoryConflict, incoming.GUID, "entity create-time mismatch, possible GUID collision")
			return p.emitConflictingEntityInstances(ctx, stored, incoming)
		}
		if incoming.Version <= stored.Version {
			p.recordAudit(audit.CategoryDroppedStale, incoming.GUID, "out-of-order entity event dropped")
			return nil
		}
		if incoming.Type.Version < stored.Type.Version {
			return p.emitConflictingType(ctx, incoming.GUID, stored.Type, incoming.Type)
		}
		if incoming.MetadataCollectionID != stored.MetadataCollectionID || incoming.Type.GUID != stored.Type.GUID {
			p.recordAudit(audit.CategoryInfo, incoming.GUID, "entity home or type changed on refresh")
		}
	}

	active, _ := p.types.IsActive(ctx, incoming.Type.GUID)
	if !p.exchangeRule.ProcessInstanceEvent(incoming.Type, active) {
		return nil
	}
	return p.wrapper.SaveEntityReferenceCopy(ctx, incoming)
}

// updateReferenceRelationship is the symmetric path for relationship events.
func (p *Processor) updateReferenceRelationship(ctx context.Context, ev events.InstanceEvent) error {
	if !p.initialized {
		return omrserrors.New(omrserrors.KindLogicError, "event processor not initialized")
	}
	incoming := ev.Relationship
	if incoming == nil {
		return omrserrors.InvalidParameter("relationship", "relationship event carries no relationship")
	}
	if incoming.MetadataCollectionID == p.localCollectionID {
		return nil
	}
	if err := p.validate.ValidateRelationship(ctx, incoming); err != nil {
		return err
	}

	stored, err := p.store.GetRelationship(ctx, incoming.GUID)
	if err != nil {
		if _, ok := err.(*collection.ErrNotFound); !ok {
			return omrserrors.Repository(true, err)
		}
		stored = nil
	}

	if stored != nil {
		if !stored.CreateTime.Equal(incoming.CreateTime) {
			p.recordAudit(audit.CategoryConflict, incoming.GUID, "relationship create-time mismatch, possible GUID collision")
			return p.emitConflictingRelationshipInstances(ctx, stored, incoming)
		}
		if incoming.Version <= stored.Version {
			p.recordAudit(audit.CategoryDroppedStale, incoming.GUID, "out-of-order relationship event dropped")
			return nil
		}
		if incoming.Type.Version < stored.Type.Version {
			return p.emitConflictingType(ctx, incoming.GUID, stored.Type, incoming.Type)
		}
		if incoming.MetadataCollectionID != stored.MetadataCollectionID || incoming.Type.GUID != stored.Type.GUID {
			p.recordAudit(audit.CategoryInfo, incoming.GUID, "relationship home or type changed on refresh")
		}
	}

	active, _ := p.types.IsActive(ctx, incoming.Type.GUID)
	if !p.exchangeRule.ProcessInstanceEvent(incoming.Type, active) {
		return nil
	}
	return p.wrapper.SaveRelationshipReferenceCopy(ctx, incoming)
}

func (p *Processor) handlePurgedEntity(ctx context.Context, ev events.InstanceEvent) error {
	if ev.Entity == nil {
		return omrserrors.InvalidParameter("entity", "purge event carries no entity")
	}
	return p.wrapper.PurgeEntityReferenceCopy(ctx, ev.Entity.GUID)
}

func (p *Processor) handlePurgedRelationship(ctx context.Context, ev events.InstanceEvent) error {
	if ev.Relationship == nil {
		return omrserrors.InvalidParameter("relationship", "purge event carries no relationship")
	}
	return p.wrapper.PurgeRelationshipReferenceCopy(ctx, ev.Relationship.GUID)
}

// handleRefreshEntityRequest answers a REFRESH_ENTITY_REQUEST when this
// server is the entity's home, by emitting its current state as a
// REFRESHED_ENTITY_EVENT (spec §4.3).
func (p *Processor) handleRefreshEntityRequest(ctx context.Context, ev events.InstanceEvent) error {
	e, err := p.store.GetEntityDetail(ctx, ev.OriginalGUID)
	if err != nil {
		if _, ok := err.(*collection.ErrNotFound); ok {
			return nil
		}
		return omrserrors.Repository(true, err)
	}
	if e.MetadataCollectionID != p.localCollectionID {
		return nil
	}
	if p.emitter != nil {
		_ = p.emitter.Emit(ctx, events.InstanceEvent{
			EventType:                       events.RefreshedEntityEvent,
			OriginatingMetadataCollectionID: p.localCollectionID,
			Entity:                          e,
		})
	}
	return nil
}

func (p *Processor) handleRefreshRelationshipRequest(ctx context.Context, ev events.InstanceEvent) error {
	r, err := p.store.GetRelationship(ctx, ev.OriginalGUID)
	if err != nil {
		if _, ok := err.(*collection.ErrNotFound); ok {
			return nil
		}
		return omrserrors.Repository(true, err)
	}
	if r.MetadataCollectionID != p.localCollectionID {
		return nil
	}
	if p.emitter != nil {
		_ = p.emitter.Emit(ctx, events.InstanceEvent{
			EventType:                       events.RefreshedRelationshipEvent,
			OriginatingMetadataCollectionID: p.localCollectionID,
			Relationship:                    r,
		})
	}
	return nil
}

// saveInstanceReferenceCopies ingests a BATCH_INSTANCES graph, one instance
// at a time, tolerating individual failures (spec §4.3, §5 "a failure
// inside the event processor for one event does not halt subsequent
// events").
func (p *Processor) saveInstanceReferenceCopies(ctx context.Context, graph *instance.InstanceGraph) error {
	if graph == nil {
		return omrserrors.InvalidParameter("graph", "batch event carries no graph")
	}
	for _, e := range graph.Entities {
		if err := p.updateReferenceEntity(ctx, events.InstanceEvent{EventType: events.NewEntityEvent, Entity: e}); err != nil {
			p.log.Error("batch ingestion: entity failed, continuing", "guid", e.GUID, "error", err)
		}
	}
	for _, r := range graph.Relationships {
		if err := p.updateReferenceRelationship(ctx, events.InstanceEvent{EventType: events.NewRelationshipEvent, Relationship: r}); err != nil {
			p.log.Error("batch ingestion: relationship failed, continuing", "guid", r.GUID, "error", err)
		}
	}
	return nil
}

// handleConflictingInstances implements spec §4.3's CONFLICTING_INSTANCES
// resolution: if the conflict targets this server's own local metadata
// collection, re-identify the local instance with a fresh GUID; otherwise
// purge whatever local reference copy exists for the target GUID. The
// local-vs-remote decision is made off the wire's explicit
// TargetMetadataCollectionID (spec §6), never off the embedded
// Entity/Relationship's own MetadataCollectionID — that field is the
// instance's home, which for an externally-sourced instance replicated
// locally differs from who the conflict is actually targeted at (scenario
// S3).
func (p *Processor) handleConflictingInstances(ctx context.Context, ev events.InstanceEvent) error {
	targetGUID := ev.TargetInstanceGUID
	if targetGUID == "" {
		targetGUID = ev.OriginalGUID
	}
	isLocalTarget := ev.TargetMetadataCollectionID == p.localCollectionID

	if ev.Entity != nil {
		if isLocalTarget {
			_, err := p.wrapper.ReIdentifyEntity(ctx, targetGUID)
			return err
		}
		return p.wrapper.PurgeEntityReferenceCopy(ctx, targetGUID)
	}
	if ev.Relationship != nil {
		if isLocalTarget {
			_, err := p.wrapper.ReIdentifyRelationship(ctx, targetGUID)
			return err
		}
		return p.wrapper.PurgeRelationshipReferenceCopy(ctx, targetGUID)
	}
	return omrserrors.InvalidParameter("event", "conflicting instances event carries neither entity nor relationship")
}

// handleConflictingType audits a type-version conflict and, if the
// instance is not locally homed, removes the reference copy (spec §4.3).
func (p *Processor) handleConflictingType(ctx context.Context, ev events.InstanceEvent) error {
	if e := ev.Entity; e != nil {
		p.recordAudit(audit.CategoryConflict, e.GUID, "conflicting type for entity")
		if e.MetadataCollectionID != p.localCollectionID {
			return p.wrapper.PurgeEntityReferenceCopy(ctx, e.GUID)
		}
		return nil
	}
	if r := ev.Relationship; r != nil {
		p.recordAudit(audit.CategoryConflict, r.GUID, "conflicting type for relationship")
		if r.MetadataCollectionID != p.localCollectionID {
			return p.wrapper.PurgeRelationshipReferenceCopy(ctx, r.GUID)
		}
		return nil
	}
	return omrserrors.InvalidParameter("event", "conflicting type event carries neither entity nor relationship")
}

// emitConflictingEntityInstances publishes CONFLICTING_INSTANCES_EVENT for a
// GUID collision between the entity already stored locally (target: its
// home must resolve the collision) and the newly-observed, differently
// -timestamped entity carrying the same GUID (other). Both instances ride
// the wire in full (spec §6 "all embedded instances contain full
// provenance") so every cohort member, not just the target, can audit the
// collision.
func (p *Processor) emitConflictingEntityInstances(ctx context.Context, target, other *instance.Entity) error {
	if p.emitter == nil {
		return nil
	}
	return p.emitter.Emit(ctx, events.InstanceEvent{
		EventType:                       events.ConflictingInstancesEvent,
		OriginatingMetadataCollectionID: p.localCollectionID,
		OriginalGUID:                    target.GUID,
		Entity:                          target,
		TargetMetadataCollectionID:      target.MetadataCollectionID,
		TargetInstanceGUID:              target.GUID,
		TargetTypeDefSummary:            &target.Type,
		OtherMetadataCollectionID:       other.MetadataCollectionID,
		OtherInstanceGUID:               other.GUID,
		OtherTypeDefSummary:             &other.Type,
		OtherOrigin:                     "incoming",
	})
}

// emitConflictingRelationshipInstances is the relationship equivalent of
// emitConflictingEntityInstances.
func (p *Processor) emitConflictingRelationshipInstances(ctx context.Context, target, other *instance.Relationship) error {
	if p.emitter == nil {
		return nil
	}
	return p.emitter.Emit(ctx, events.InstanceEvent{
		EventType:                       events.ConflictingInstancesEvent,
		OriginatingMetadataCollectionID: p.localCollectionID,
		OriginalGUID:                    target.GUID,
		Relationship:                    target,
		TargetMetadataCollectionID:      target.MetadataCollectionID,
		TargetInstanceGUID:              target.GUID,
		TargetTypeDefSummary:            &target.Type,
		OtherMetadataCollectionID:       other.MetadataCollectionID,
		OtherInstanceGUID:               other.GUID,
		OtherTypeDefSummary:             &other.Type,
		OtherOrigin:                     "incoming",
	})
}

func (p *Processor) emitConflictingType(ctx context.Context, guid string, stored, incoming instance.TypeDefSummary) error {
	p.recordAudit(audit.CategoryConflict, guid, "incoming type-version regression")
	if p.emitter == nil {
		return nil
	}
	return p.emitter.Emit(ctx, events.InstanceEvent{
		EventType:                       events.ConflictingTypeEvent,
		OriginatingMetadataCollectionID: p.localCollectionID,
		OriginalGUID:                    guid,
		OriginalType:                    &stored,
		TypeDef:                         &incoming,
	})
}

func (p *Processor) recordAudit(cat audit.Category, guid, detail string) {
	if p.audit == nil {
		return
	}
	p.audit.Record(audit.Entry{Time: time.Now(), Category: cat, GUID: guid, Detail: detail})
}

// =============================================================================
// RETRIEVAL SUB-INTERFACE
// =============================================================================
//
// Entry points driven by C10 after a federated read (spec §4.2 "retrieval
// learning hook", §4.3 "retrieval sub-interface"). Each applies the weaker
// learn rule and, if the instance is unknown locally, asks the home to
// refresh it properly rather than caching the query result directly — so a
// security-filtered view returned by a remote connector never becomes a
// locally-trusted reference copy.

func (p *Processor) ProcessRetrievedEntitySummary(ctx context.Context, lookup instance.EntityLookup) error {
	if lookup.IsNotFound() || lookup.Full == nil {
		return nil
	}
	return p.ProcessRetrievedEntityDetail(ctx, lookup.Full)
}

func (p *Processor) ProcessRetrievedEntityDetail(ctx context.Context, e *instance.Entity) error {
	if e == nil || e.MetadataCollectionID == p.localCollectionID {
		return nil
	}
	if !p.exchangeRule.LearnInstanceEvent() {
		return nil
	}
	_, err := p.store.GetEntityDetail(ctx, e.GUID)
	if err == nil {
		return nil // already known locally
	}
	if _, ok := err.(*collection.ErrNotFound); !ok {
		return omrserrors.Repository(true, err)
	}
	return p.wrapper.RefreshEntityReferenceCopy(ctx, e.GUID, e.MetadataCollectionID)
}

func (p *Processor) ProcessRetrievedRelationship(ctx context.Context, r *instance.Relationship) error {
	if r == nil || r.MetadataCollectionID == p.localCollectionID {
		return nil
	}
	if !p.exchangeRule.LearnInstanceEvent() {
		return nil
	}
	_, err := p.store.GetRelationship(ctx, r.GUID)
	if err == nil {
		return nil
	}
	if _, ok := err.(*collection.ErrNotFound); !ok {
		return omrserrors.Repository(true, err)
	}
	return p.wrapper.RefreshRelationshipReferenceCopy(ctx, r.GUID, r.MetadataCollectionID)
}
