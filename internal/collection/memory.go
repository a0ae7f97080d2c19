package collection

import (
	"context"
	"sync"

	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/typedefs"
)

// MemoryCollection is an in-process MetadataCollection, used by this
// module's own tests and to stand in for remote cohort members in
// federated-read scenarios (S3/S4 in spec §8), the same role
// typedefs.MemoryRegistry plays for C1.
type MemoryCollection struct {
	mu   sync.RWMutex
	id   string
	name string
	reg  typedefs.TypeRegistry

	entities      map[string]*instance.Entity
	relationships map[string]*instance.Relationship

	// Down simulates a remote connector that is unreachable, forcing
	// federated reads through the soft-error path (P7: resilience to a
	// remote being down).
	Down bool
}

func NewMemoryCollection(id, name string, reg typedefs.TypeRegistry) *MemoryCollection {
	return &MemoryCollection{
		id:            id,
		name:          name,
		reg:           reg,
		entities:      map[string]*instance.Entity{},
		relationships: map[string]*instance.Relationship{},
	}
}

func (c *MemoryCollection) MetadataCollectionID() string    { return c.id }
func (c *MemoryCollection) MetadataCollectionName() string  { return c.name }
func (c *MemoryCollection) Registry() typedefs.TypeRegistry { return c.reg }

// checkDown returns a retryable RepositoryError when Down is set, so that a
// federated read fan-out (internal/federator) classifies it as a soft
// connector failure rather than aborting the whole read (spec §4.2 step 3,
// P7 resilience to a remote being down).
func (c *MemoryCollection) checkDown() error {
	if c.Down {
		return omrserrors.Repository(true, errUnreachable(c.id))
	}
	return nil
}

type unreachableErr string

func (e unreachableErr) Error() string { return "metadata collection " + string(e) + " is unreachable" }

func errUnreachable(collectionID string) error { return unreachableErr(collectionID) }

func (c *MemoryCollection) GetEntitySummary(_ context.Context, guid string) (instance.EntityLookup, error) {
	if err := c.checkDown(); err != nil {
		return instance.EntityLookup{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entities[guid]; ok {
		if e.IsProxy {
			return instance.FoundProxyOnly(e.Clone().AsProxy()), nil
		}
		return instance.FoundFull(e.Clone()), nil
	}
	return instance.NotFound(), nil
}

func (c *MemoryCollection) GetEntityDetail(_ context.Context, guid string) (*instance.Entity, error) {
	if err := c.checkDown(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[guid]
	if !ok {
		return nil, &ErrNotFound{Kind: "entity", GUID: guid}
	}
	return e.Clone(), nil
}

func (c *MemoryCollection) GetRelationship(_ context.Context, guid string) (*instance.Relationship, error) {
	if err := c.checkDown(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.relationships[guid]
	if !ok {
		return nil, &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	return r.Clone(), nil
}

func (c *MemoryCollection) FindEntities(_ context.Context, typeGUID string, page PageSpec) ([]*instance.Entity, error) {
	if err := c.checkDown(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*instance.Entity
	for _, e := range c.entities {
		if e.Status == instance.StatusDeleted {
			continue
		}
		if typeGUID != "" && e.Type.GUID != typeGUID {
			continue
		}
		matched = append(matched, e.Clone())
	}
	return paginateEntities(matched, page), nil
}

func (c *MemoryCollection) FindRelationships(_ context.Context, typeGUID string, page PageSpec) ([]*instance.Relationship, error) {
	if err := c.checkDown(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*instance.Relationship
	for _, r := range c.relationships {
		if r.Status == instance.StatusDeleted {
			continue
		}
		if typeGUID != "" && r.Type.GUID != typeGUID {
			continue
		}
		matched = append(matched, r.Clone())
	}
	return paginateRelationships(matched, page), nil
}

func (c *MemoryCollection) SaveEntity(_ context.Context, e *instance.Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities[e.GUID] = e.Clone()
	return nil
}

func (c *MemoryCollection) SaveEntityReferenceCopy(ctx context.Context, e *instance.Entity) error {
	return c.SaveEntity(ctx, e)
}

func (c *MemoryCollection) SaveRelationship(_ context.Context, r *instance.Relationship) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relationships[r.GUID] = r.Clone()
	return nil
}

func (c *MemoryCollection) SaveRelationshipReferenceCopy(ctx context.Context, r *instance.Relationship) error {
	return c.SaveRelationship(ctx, r)
}

func (c *MemoryCollection) DeleteEntity(_ context.Context, guid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[guid]
	if !ok {
		return &ErrNotFound{Kind: "entity", GUID: guid}
	}
	e.Status = instance.StatusDeleted
	return nil
}

func (c *MemoryCollection) PurgeEntity(_ context.Context, guid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entities, guid)
	return nil
}

func (c *MemoryCollection) DeleteRelationship(_ context.Context, guid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.relationships[guid]
	if !ok {
		return &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	r.Status = instance.StatusDeleted
	return nil
}

func (c *MemoryCollection) PurgeRelationship(_ context.Context, guid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.relationships, guid)
	return nil
}

func (c *MemoryCollection) PurgeEntityReferenceCopy(_ context.Context, guid, homeMetadataCollectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[guid]
	if !ok {
		return &ErrNotFound{Kind: "entity", GUID: guid}
	}
	if e.MetadataCollectionID != homeMetadataCollectionID || e.MetadataCollectionID == c.id {
		return &ErrNotFound{Kind: "entity", GUID: guid}
	}
	delete(c.entities, guid)
	return nil
}

func (c *MemoryCollection) PurgeRelationshipReferenceCopy(_ context.Context, guid, homeMetadataCollectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.relationships[guid]
	if !ok {
		return &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	if r.MetadataCollectionID != homeMetadataCollectionID || r.MetadataCollectionID == c.id {
		return &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	delete(c.relationships, guid)
	return nil
}

func (c *MemoryCollection) ReIdentifyEntity(_ context.Context, originalGUID, newGUID string) (*instance.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[originalGUID]
	if !ok {
		return nil, &ErrNotFound{Kind: "entity", GUID: originalGUID}
	}
	delete(c.entities, originalGUID)
	e.GUID = newGUID
	c.entities[newGUID] = e
	return e.Clone(), nil
}

func (c *MemoryCollection) ReIdentifyRelationship(_ context.Context, originalGUID, newGUID string) (*instance.Relationship, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.relationships[originalGUID]
	if !ok {
		return nil, &ErrNotFound{Kind: "relationship", GUID: originalGUID}
	}
	delete(c.relationships, originalGUID)
	r.GUID = newGUID
	c.relationships[newGUID] = r
	return r.Clone(), nil
}

func paginateEntities(all []*instance.Entity, page PageSpec) []*instance.Entity {
	if page.Offset >= len(all) {
		return nil
	}
	end := len(all)
	if page.PageSize > 0 && page.Offset+page.PageSize < end {
		end = page.Offset + page.PageSize
	}
	return all[page.Offset:end]
}

func paginateRelationships(all []*instance.Relationship, page PageSpec) []*instance.Relationship {
	if page.Offset >= len(all) {
		return nil
	}
	end := len(all)
	if page.PageSize > 0 && page.Offset+page.PageSize < end {
		end = page.Offset + page.PageSize
	}
	return all[page.Offset:end]
}
