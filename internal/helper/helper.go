// Package helper implements C3, the Repository Helper: construction and
// cloning utilities for entities, relationships, and proxies. Grounded on
// the teacher's internal/database/queries.go, which assigns a fresh
// uuid.New().String() whenever a caller-supplied ID is absent (see
// UpsertEndpoint, CreateCollectionRun) — the same pattern generalized here
// to every instance-creation path (spec §4.1 "Instance creation").
package helper

import (
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/omrs-core/internal/instance"
)

// NewGUID returns a fresh, globally unique identifier (I1).
func NewGUID() string {
	return uuid.New().String()
}

// NewEntity builds a new Entity in ACTIVE status, homed at homeCollectionID,
// with a fresh GUID and version 1 (spec §3 "a newly created instance has
// version 1").
func NewEntity(typeSummary instance.TypeDefSummary, homeCollectionID, homeCollectionName string, properties map[string]any, createdBy string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		Header: instance.Header{
			GUID:                   NewGUID(),
			Type:                   typeSummary,
			Status:                 instance.StatusActive,
			Version:                1,
			CreateTime:             now,
			UpdateTime:             now,
			Provenance:             instance.ProvenanceLocalCohort,
			MetadataCollectionID:   homeCollectionID,
			MetadataCollectionName: homeCollectionName,
			CreatedBy:              createdBy,
		},
		Properties: properties,
	}
}

// Entity is a re-export so callers of this package don't need to import
// internal/instance solely to name the return type.
type Entity = instance.Entity

// NewRelationship builds a new Relationship connecting the two supplied
// proxies, homed at homeCollectionID.
func NewRelationship(typeSummary instance.TypeDefSummary, homeCollectionID, homeCollectionName string, one, two instance.EntityProxy, properties map[string]any, createdBy string) *instance.Relationship {
	now := time.Now().UTC()
	return &instance.Relationship{
		Header: instance.Header{
			GUID:                   NewGUID(),
			Type:                   typeSummary,
			Status:                 instance.StatusActive,
			Version:                1,
			CreateTime:             now,
			UpdateTime:             now,
			Provenance:             instance.ProvenanceLocalCohort,
			MetadataCollectionID:   homeCollectionID,
			MetadataCollectionName: homeCollectionName,
			CreatedBy:              createdBy,
		},
		Properties:     properties,
		EntityOneProxy: one,
		EntityTwoProxy: two,
	}
}

// GetEntityProxy derives the proxy representation of e: its header plus
// whichever properties the type marks as "unique" (spec §3). Since this
// core has no type-registry-driven uniqueness metadata wired through yet,
// every entity property is treated as a unique property candidate — callers
// that need a narrower proxy should filter the result.
func GetEntityProxy(e *instance.Entity) *instance.EntityProxy {
	if e == nil {
		return nil
	}
	p := &instance.EntityProxy{Header: e.Header}
	if e.Properties != nil {
		p.UniqueProperties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			p.UniqueProperties[k] = v
		}
	}
	return p
}

// IncrementVersion bumps an instance's Version and UpdateTime in place,
// ahead of a storage-engine write (I4: version strictly increases on every
// content-changing update).
func IncrementVersion(h *instance.Header) {
	h.Version++
	h.UpdateTime = time.Now().UTC()
}

// StampProvenance sets the provenance fields a freshly-received reference
// copy must carry (I3): its true home collection and, if it arrived via a
// local delegate, the delegate's ID in ReplicatedBy.
func StampProvenance(h *instance.Header, provenance instance.ProvenanceType, homeCollectionID, homeCollectionName, replicatedBy string) {
	h.Provenance = provenance
	h.MetadataCollectionID = homeCollectionID
	h.MetadataCollectionName = homeCollectionName
	h.ReplicatedBy = replicatedBy
}
