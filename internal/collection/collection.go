// Package collection defines MetadataCollection, the storage-engine
// interface spec §2 names as the boundary between the Local Repository
// Wrapper (C7) and whatever engine actually persists instances and types.
// This package also ships two implementations: a Postgres-backed one
// grounded on store-core/pkg/entity/postgres_registry.go (transactional
// writes, JSONB properties via encoding/json, pq.Array for string slices,
// golang-migrate-driven schema setup instead of that file's inline
// CREATE TABLE IF NOT EXISTS), and an in-memory one for tests and for
// simulating remote cohort members in federated-read scenarios.
package collection

import (
	"context"

	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/typedefs"
)

// PageSpec bounds a paged instance read (spec §4.1 "paging operations").
type PageSpec struct {
	Offset   int
	PageSize int // 0 means "no limit"
}

// MetadataCollection is the storage-engine contract the wrapper and
// federator both depend on. One implementation backs the local repository;
// remote cohort members are reached only through Connector-derived
// instances of this same interface (spec §4.2).
type MetadataCollection interface {
	MetadataCollectionID() string
	MetadataCollectionName() string

	// Instance reads
	GetEntitySummary(ctx context.Context, guid string) (instance.EntityLookup, error)
	GetEntityDetail(ctx context.Context, guid string) (*instance.Entity, error)
	GetRelationship(ctx context.Context, guid string) (*instance.Relationship, error)
	FindEntities(ctx context.Context, typeGUID string, page PageSpec) ([]*instance.Entity, error)
	FindRelationships(ctx context.Context, typeGUID string, page PageSpec) ([]*instance.Relationship, error)

	// Instance writes
	SaveEntity(ctx context.Context, e *instance.Entity) error
	SaveRelationship(ctx context.Context, r *instance.Relationship) error
	DeleteEntity(ctx context.Context, guid string) error // soft-delete (I8)
	PurgeEntity(ctx context.Context, guid string) error
	DeleteRelationship(ctx context.Context, guid string) error
	PurgeRelationship(ctx context.Context, guid string) error

	// Reference-copy maintenance (spec §4.1 "reference copies")
	SaveEntityReferenceCopy(ctx context.Context, e *instance.Entity) error
	SaveRelationshipReferenceCopy(ctx context.Context, r *instance.Relationship) error
	PurgeEntityReferenceCopy(ctx context.Context, guid, homeMetadataCollectionID string) error
	PurgeRelationshipReferenceCopy(ctx context.Context, guid, homeMetadataCollectionID string) error

	// Control-plane operations (spec §4.1 "re-identify / re-type / re-home")
	ReIdentifyEntity(ctx context.Context, originalGUID, newGUID string) (*instance.Entity, error)
	ReIdentifyRelationship(ctx context.Context, originalGUID, newGUID string) (*instance.Relationship, error)

	// TypeDefs are delegated to the TypeRegistry (C1); the storage engine
	// only needs to know which types currently have instances, for
	// TypeDefInUse checks ahead of a delete.
	Registry() typedefs.TypeRegistry
}

// ErrNotFound is returned by single-instance reads when nothing matches.
type ErrNotFound struct {
	Kind string // "entity" | "relationship"
	GUID string
}

func (e *ErrNotFound) Error() string {
	return e.Kind + " " + e.GUID + " not known"
}
