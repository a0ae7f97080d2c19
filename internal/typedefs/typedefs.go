// Package typedefs models C1, the Type Registry: names, GUIDs, versions and
// compatibility rules of entity/relationship/classification types. Spec §2
// marks this component "external" — the core only depends on the
// TypeRegistry interface below. This package also ships a minimal in-memory
// implementation, grounded on the sibling ucl-core module's pattern of
// providing an in-memory stand-in for an otherwise-external dependency
// (ucl-core/pkg/orchestration/staging_registry.go's staging.NewMemoryProvider),
// used by this module's own tests and by cmd/server's single-process demo.
package typedefs

import (
	"context"
	"fmt"
	"sync"

	"github.com/nucleus/omrs-core/internal/instance"
)

// Category distinguishes the kinds of TypeDef.
type Category string

const (
	CategoryEntity         Category = "ENTITY"
	CategoryRelationship   Category = "RELATIONSHIP"
	CategoryClassification Category = "CLASSIFICATION"
)

// AttributeTypeDef describes a primitive attribute type.
type AttributeTypeDef struct {
	GUID    string `json:"guid"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

// TypeDef is a schema for entities, relationships, or classifications.
// Keyed by (GUID, Name); versioned (spec §3).
type TypeDef struct {
	GUID       string             `json:"guid"`
	Name       string             `json:"name"`
	Version    int64              `json:"version"`
	Category   Category           `json:"category"`
	Attributes []AttributeTypeDef `json:"attributes,omitempty"`
	Active     bool               `json:"active"`
}

func (t TypeDef) Summary() instance.TypeDefSummary {
	return instance.TypeDefSummary{GUID: t.GUID, Name: t.Name, Version: t.Version}
}

// TypeRegistry is the narrow contract the core calls C1 through (spec §2,
// §4.1 "Type operations").
type TypeRegistry interface {
	GetByGUID(ctx context.Context, guid string) (*TypeDef, error)
	GetByName(ctx context.Context, name string) (*TypeDef, error)
	ListByCategory(ctx context.Context, category Category) ([]*TypeDef, error)
	Add(ctx context.Context, td *TypeDef) error
	Verify(ctx context.Context, td *TypeDef) (bool, error)
	Update(ctx context.Context, td *TypeDef) error
	Delete(ctx context.Context, guid, name string) error
	ReIdentify(ctx context.Context, originalGUID, newGUID, newName string) (*TypeDef, error)
	IsActive(ctx context.Context, typeGUID string) (bool, error)
}

// MemoryRegistry is an in-memory TypeRegistry for tests and local demos.
type MemoryRegistry struct {
	mu    sync.RWMutex
	byGUID map[string]*TypeDef
	byName map[string]*TypeDef
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byGUID: map[string]*TypeDef{}, byName: map[string]*TypeDef{}}
}

func (r *MemoryRegistry) GetByGUID(_ context.Context, guid string) (*TypeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.byGUID[guid]
	if !ok {
		return nil, fmt.Errorf("typedef %s not known", guid)
	}
	return cloneTypeDef(td), nil
}

func (r *MemoryRegistry) GetByName(_ context.Context, name string) (*TypeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("typedef %q not known", name)
	}
	return cloneTypeDef(td), nil
}

func (r *MemoryRegistry) ListByCategory(_ context.Context, category Category) ([]*TypeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*TypeDef
	for _, td := range r.byGUID {
		if td.Category == category {
			out = append(out, cloneTypeDef(td))
		}
	}
	return out, nil
}

func (r *MemoryRegistry) Add(_ context.Context, td *TypeDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byGUID[td.GUID]; exists {
		return fmt.Errorf("typedef %s already exists", td.GUID)
	}
	cp := cloneTypeDef(td)
	r.byGUID[td.GUID] = cp
	r.byName[td.Name] = cp
	return nil
}

func (r *MemoryRegistry) Verify(_ context.Context, td *TypeDef) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	existing, ok := r.byGUID[td.GUID]
	if !ok {
		return false, nil
	}
	return existing.Version == td.Version, nil
}

func (r *MemoryRegistry) Update(_ context.Context, td *TypeDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byGUID[td.GUID]
	if !ok {
		return fmt.Errorf("typedef %s not known", td.GUID)
	}
	if td.Version < existing.Version {
		return fmt.Errorf("typedef %s: version regression", td.GUID)
	}
	cp := cloneTypeDef(td)
	r.byGUID[td.GUID] = cp
	r.byName[td.Name] = cp
	return nil
}

func (r *MemoryRegistry) Delete(_ context.Context, guid, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byGUID, guid)
	delete(r.byName, name)
	return nil
}

func (r *MemoryRegistry) ReIdentify(_ context.Context, originalGUID, newGUID, newName string) (*TypeDef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	td, ok := r.byGUID[originalGUID]
	if !ok {
		return nil, fmt.Errorf("typedef %s not known", originalGUID)
	}
	delete(r.byGUID, originalGUID)
	delete(r.byName, td.Name)
	cp := cloneTypeDef(td)
	cp.GUID = newGUID
	cp.Name = newName
	r.byGUID[newGUID] = cp
	r.byName[newName] = cp
	return cloneTypeDef(cp), nil
}

func (r *MemoryRegistry) IsActive(_ context.Context, typeGUID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.byGUID[typeGUID]
	if !ok {
		return false, nil
	}
	return td.Active, nil
}

func cloneTypeDef(td *TypeDef) *TypeDef {
	cp := *td
	if td.Attributes != nil {
		cp.Attributes = make([]AttributeTypeDef, len(td.Attributes))
		copy(cp.Attributes, td.Attributes)
	}
	return &cp
}
