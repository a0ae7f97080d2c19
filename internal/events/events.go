// Package events implements C6, the Outbound Event Emitter, and the cohort
// event envelope of spec §6. Grounded on the teacher's temporal activity
// logging style (activity.GetLogger(ctx).Info(...) with key/value pairs,
// see internal/temporal/activities.go) for structured logging, and on the
// bounded-queue back-pressure note in spec §9's design notes for the
// channel sizing and drop-oldest/block overflow policy.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nucleus/omrs-core/internal/instance"
)

// EventType enumerates the OMRS topic event types (spec §6).
type EventType string

const (
	NewEntityEvent            EventType = "NEW_ENTITY_EVENT"
	UpdatedEntityEvent        EventType = "UPDATED_ENTITY_EVENT"
	DeletedEntityEvent        EventType = "DELETED_ENTITY_EVENT"
	PurgedEntityEvent         EventType = "PURGED_ENTITY_EVENT"
	ReIdentifiedEntityEvent   EventType = "RE_IDENTIFIED_ENTITY_EVENT"
	ReTypedEntityEvent        EventType = "RE_TYPED_ENTITY_EVENT"
	ReHomedEntityEvent        EventType = "RE_HOMED_ENTITY_EVENT"
	ClassifiedEntityEvent     EventType = "CLASSIFIED_ENTITY_EVENT"
	DeclassifiedEntityEvent   EventType = "DECLASSIFIED_ENTITY_EVENT"
	ReClassifiedEntityEvent   EventType = "RECLASSIFIED_ENTITY_EVENT"

	NewRelationshipEvent          EventType = "NEW_RELATIONSHIP_EVENT"
	UpdatedRelationshipEvent      EventType = "UPDATED_RELATIONSHIP_EVENT"
	DeletedRelationshipEvent      EventType = "DELETED_RELATIONSHIP_EVENT"
	PurgedRelationshipEvent       EventType = "PURGED_RELATIONSHIP_EVENT"
	ReIdentifiedRelationshipEvent EventType = "RE_IDENTIFIED_RELATIONSHIP_EVENT"
	ReHomedRelationshipEvent      EventType = "RE_HOMED_RELATIONSHIP_EVENT"

	RefreshEntityRequest       EventType = "REFRESH_ENTITY_REQUEST"
	RefreshRelationshipRequest EventType = "REFRESH_RELATIONSHIP_REQUEST"
	RefreshedEntityEvent       EventType = "REFRESHED_ENTITY_EVENT"
	RefreshedRelationshipEvent EventType = "REFRESHED_RELATIONSHIP_EVENT"

	BatchInstancesEvent     EventType = "BATCH_INSTANCES_EVENT"
	ConflictingInstancesEvent EventType = "CONFLICTING_INSTANCES_EVENT"
	ConflictingTypeEvent    EventType = "CONFLICTING_TYPE_EVENT"

	NewTypeDefEvent        EventType = "NEW_TYPEDEF_EVENT"
	UpdatedTypeDefEvent    EventType = "UPDATED_TYPEDEF_EVENT"
	DeletedTypeDefEvent    EventType = "DELETED_TYPEDEF_EVENT"
	ReIdentifiedTypeDefEvent EventType = "RE_IDENTIFIED_TYPEDEF_EVENT"
)

// InstanceEvent is the wire envelope exchanged over a cohort's event topic
// (spec §6). At most one of Entity/Relationship/Graph is populated,
// depending on EventType: type-def events, refresh requests and
// CONFLICTING_TYPE_EVENT carry none of them.
type InstanceEvent struct {
	EventType                EventType              `json:"eventType"`
	OriginatingMetadataCollectionID string          `json:"originatingMetadataCollectionId"`
	Entity                   *instance.Entity       `json:"entity,omitempty"`
	Relationship             *instance.Relationship `json:"relationship,omitempty"`
	Graph                    *instance.InstanceGraph `json:"graph,omitempty"`

	// Used by RE_IDENTIFIED_*, REFRESH_*_REQUEST, CONFLICTING_INSTANCES_EVENT
	// and CONFLICTING_TYPE_EVENT.
	OriginalGUID string `json:"originalGuid,omitempty"`

	// Used by RE_TYPED_ENTITY_EVENT and CONFLICTING_TYPE_EVENT.
	OriginalType *instance.TypeDefSummary `json:"originalType,omitempty"`

	// Target* identifies which instance the conflict is "targeted at" (spec
	// §6): the repository that must re-identify its own copy versus the one
	// that must purge a stale reference copy. This is independent of the
	// embedded Entity/Relationship's own MetadataCollectionID, which is the
	// instance's home, not necessarily the target of the conflict (spec §4.3
	// CONFLICTING_INSTANCES_EVENT / scenario S3).
	TargetMetadataCollectionID string                   `json:"targetMetadataCollectionId,omitempty"`
	TargetTypeDefSummary       *instance.TypeDefSummary `json:"targetTypeDefSummary,omitempty"`
	TargetInstanceGUID         string                   `json:"targetInstanceGuid,omitempty"`

	// Other* carries the second instance in the collision pair, so a
	// receiver that is neither the target nor the original can still audit
	// the full conflict (spec §6).
	OtherMetadataCollectionID string                   `json:"otherMetadataCollectionId,omitempty"`
	OtherTypeDefSummary       *instance.TypeDefSummary `json:"otherTypeDefSummary,omitempty"`
	OtherInstanceGUID         string                   `json:"otherInstanceGuid,omitempty"`
	OtherOrigin               string                   `json:"otherOrigin,omitempty"`

	// Used by the *_TYPEDEF_EVENT family, and by CONFLICTING_TYPE_EVENT for
	// the incoming instance's type.
	TypeDef *instance.TypeDefSummary `json:"typeDef,omitempty"`
}

// Connector is the narrow publish contract an event emitter drives; the
// cohort message bus itself is external (spec §1), reached only through
// this interface.
type Connector interface {
	Publish(ctx context.Context, event InstanceEvent) error
}

// Emitter is C6: accepts locally-generated instance changes and forwards
// them to the configured Connector, buffered through a bounded queue so a
// slow or unavailable bus cannot block the caller that triggered the change
// (spec §5 concurrency notes).
type Emitter struct {
	connector Connector
	queue     chan InstanceEvent
	overflow  string // "drop-oldest" | "block"
	log       *slog.Logger

	mu      sync.Mutex
	dropped int64

	done chan struct{}
}

// NewEmitter starts the emitter's background dispatch loop. depth bounds the
// number of buffered events; overflow selects the back-pressure policy when
// the queue is full.
func NewEmitter(connector Connector, depth int, overflow string, log *slog.Logger) *Emitter {
	if depth <= 0 {
		depth = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Emitter{
		connector: connector,
		queue:     make(chan InstanceEvent, depth),
		overflow:  overflow,
		log:       log,
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues event for publication. Under "drop-oldest" it never blocks:
// a full queue evicts its oldest member to make room. Under "block" it
// blocks until space frees or ctx is cancelled.
func (e *Emitter) Emit(ctx context.Context, event InstanceEvent) error {
	if e.overflow == "block" {
		select {
		case e.queue <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case e.queue <- event:
		return nil
	default:
		select {
		case <-e.queue:
			e.mu.Lock()
			e.dropped++
			e.mu.Unlock()
			e.log.Warn("outbound event queue full, dropped oldest event", "eventType", event.EventType)
		default:
		}
		select {
		case e.queue <- event:
		default:
		}
		return nil
	}
}

// Dropped reports how many events have been evicted under drop-oldest
// back-pressure since startup.
func (e *Emitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Emitter) run() {
	for {
		select {
		case ev, ok := <-e.queue:
			if !ok {
				return
			}
			if e.connector == nil {
				continue
			}
			if err := e.connector.Publish(context.Background(), ev); err != nil {
				e.log.Error("failed to publish outbound event", "eventType", ev.EventType, "error", err)
			}
		case <-e.done:
			return
		}
	}
}

// Close stops the dispatch loop. Queued events not yet published are
// discarded.
func (e *Emitter) Close() {
	close(e.done)
}
