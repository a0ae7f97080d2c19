// Package instance defines the core OMRS data model: entities, relationships,
// entity proxies, and classifications (spec §3). These are plain data types —
// no I/O, no locking — mirroring the teacher's internal/database/models.go
// shape of one struct per domain concept with json tags.
package instance

import "time"

// InstanceStatus is the lifecycle status of an entity or relationship.
type InstanceStatus string

const (
	StatusUnknown  InstanceStatus = "UNKNOWN"
	StatusDraft    InstanceStatus = "DRAFT"
	StatusPrepared InstanceStatus = "PREPARED"
	StatusActive   InstanceStatus = "ACTIVE"
	StatusDeleted  InstanceStatus = "DELETED"
)

// ProvenanceType is the origin category of an instance (spec §3, I3).
type ProvenanceType string

const (
	ProvenanceLocalCohort    ProvenanceType = "LOCAL_COHORT"
	ProvenanceExternalSource ProvenanceType = "EXTERNAL_SOURCE"
	ProvenanceDeregistered   ProvenanceType = "DEREGISTERED"
	ProvenanceConfiguration  ProvenanceType = "CONFIGURATION"
)

// TypeDefSummary identifies the type of an instance: GUID, name, and version.
// Used for type-version non-regression checks (I5).
type TypeDefSummary struct {
	GUID    string `json:"guid"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

// Header carries the fields common to entities and relationships.
type Header struct {
	GUID       string         `json:"guid"`
	Type       TypeDefSummary `json:"type"`
	Status     InstanceStatus `json:"status"`
	Version    int64          `json:"version"`
	CreateTime time.Time      `json:"createTime"`
	UpdateTime time.Time      `json:"updateTime"`

	Provenance ProvenanceType `json:"provenance"`

	// MetadataCollectionID is the home collection (I2). Never empty once an
	// instance has left the wrapper to the outside world (I3).
	MetadataCollectionID   string `json:"metadataCollectionId"`
	MetadataCollectionName string `json:"metadataCollectionName"`

	// ReplicatedBy is set when an externally-sourced instance is routed
	// through a local delegate home (spec §4.1 external-source write
	// protocol).
	ReplicatedBy string `json:"replicatedBy,omitempty"`

	CreatedBy string `json:"createdBy,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// Classification is a typed, named property bundle attached to exactly one
// entity. Not independently identified (spec §3).
type Classification struct {
	Name       string         `json:"name"`
	Type       TypeDefSummary `json:"type"`
	Status     InstanceStatus `json:"status"`
	Version    int64          `json:"version"`
	Properties map[string]any `json:"properties,omitempty"`
	CreateTime time.Time      `json:"createTime"`
	UpdateTime time.Time      `json:"updateTime"`
}

// Entity is a typed metadata object identified by a GUID (spec §3).
type Entity struct {
	Header
	Properties      map[string]any   `json:"properties,omitempty"`
	Classifications []Classification `json:"classifications,omitempty"`

	// IsProxy marks a stored record as a stub registered only as a
	// relationship endpoint (addEntityProxy), never as a home entity. A
	// proxy's Properties holds only EntityProxy.UniqueProperties, not the
	// full entity property set, and it is not updatable as if it were a
	// home entity (spec §4.1, the EntityProxyOnly result variant of §9).
	IsProxy bool `json:"isProxy,omitempty"`
}

// Clone returns a deep-enough copy of the entity so that callers that mutate
// a returned instance (e.g. provenance stamping) never alias storage-owned
// state (spec §5 "provenance stamping mutates the returned instance in place;
// the wrapper must own the instance").
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Properties != nil {
		out.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	if e.Classifications != nil {
		out.Classifications = make([]Classification, len(e.Classifications))
		copy(out.Classifications, e.Classifications)
	}
	return &out
}

// EntityProxy is a stub representation of an entity used as a relationship
// endpoint when the full entity is not locally materializable (spec §3).
type EntityProxy struct {
	Header
	UniqueProperties map[string]any `json:"uniqueProperties,omitempty"`
}

func (p *EntityProxy) Clone() *EntityProxy {
	if p == nil {
		return nil
	}
	out := *p
	if p.UniqueProperties != nil {
		out.UniqueProperties = make(map[string]any, len(p.UniqueProperties))
		for k, v := range p.UniqueProperties {
			out.UniqueProperties[k] = v
		}
	}
	return &out
}

// Relationship connects exactly two entity endpoints, each an EntityProxy
// (spec §3).
type Relationship struct {
	Header
	Properties  map[string]any `json:"properties,omitempty"`
	EntityOneProxy EntityProxy `json:"entityOneProxy"`
	EntityTwoProxy EntityProxy `json:"entityTwoProxy"`
}

func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	out := *r
	if r.Properties != nil {
		out.Properties = make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			out.Properties[k] = v
		}
	}
	one := r.EntityOneProxy.Clone()
	two := r.EntityTwoProxy.Clone()
	out.EntityOneProxy = *one
	out.EntityTwoProxy = *two
	return &out
}

// InstanceGraph bundles entities and relationships together, used for
// BATCH_INSTANCES events (spec §4.3) and for getEntityNeighborhood-style
// reads.
type InstanceGraph struct {
	Entities      []*Entity       `json:"entities,omitempty"`
	Relationships []*Relationship `json:"relationships,omitempty"`
}

// EntityLookup is the result variant spec §9's design notes call for in
// place of an "EntityProxyOnly" thrown exception: a storage-engine lookup
// either finds a full entity, finds only a proxy, or finds nothing. The
// wrapper decides whether ProxyOnly is an error based on whether the calling
// operation forbids proxies.
type EntityLookup struct {
	Full      *Entity
	ProxyOnly *EntityProxy
}

func FoundFull(e *Entity) EntityLookup      { return EntityLookup{Full: e} }
func FoundProxyOnly(p *EntityProxy) EntityLookup { return EntityLookup{ProxyOnly: p} }
func NotFound() EntityLookup                { return EntityLookup{} }

// AsProxy extracts the EntityProxy view of a stored entity marked IsProxy,
// for storage engines that persist proxies as Entity rows (memory.go,
// postgres.go) rather than a separate table.
func (e *Entity) AsProxy() *EntityProxy {
	if e == nil {
		return nil
	}
	return &EntityProxy{Header: e.Header, UniqueProperties: e.Properties}
}

func (l EntityLookup) IsNotFound() bool { return l.Full == nil && l.ProxyOnly == nil }
func (l EntityLookup) IsProxyOnly() bool { return l.Full == nil && l.ProxyOnly != nil }
