// Package validator implements C2, the Repository Validator: structural
// checks on instances and type compatibility ahead of a storage-engine
// write. Grounded on the teacher's database.Client query layer, which
// rejects malformed rows at the SQL boundary (NOT NULL columns, foreign
// keys); here those same checks are made explicit and run in Go ahead of
// any storage call, per spec §4.1 step (c) "structural validation".
package validator

import (
	"context"

	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/typedefs"
)

// Validator is C2: the narrow contract the wrapper calls before persisting
// or accepting any instance.
type Validator interface {
	ValidateEntity(ctx context.Context, e *instance.Entity) error
	ValidateRelationship(ctx context.Context, r *instance.Relationship) error
	ValidateClassification(ctx context.Context, c *instance.Classification) error

	// ValidateTypeDefVersion enforces I5: a replacement TypeDefSummary must
	// not regress the version of what is already known for that GUID.
	ValidateTypeDefVersion(ctx context.Context, existing, incoming instance.TypeDefSummary) error
}

// TypeAwareValidator is a Validator that consults a typedefs.TypeRegistry
// (C1) for type compatibility, the same separation of concerns the teacher
// keeps between database.Client (storage) and its callers (business rules).
type TypeAwareValidator struct {
	Registry typedefs.TypeRegistry
}

func New(registry typedefs.TypeRegistry) *TypeAwareValidator {
	return &TypeAwareValidator{Registry: registry}
}

func (v *TypeAwareValidator) ValidateEntity(ctx context.Context, e *instance.Entity) error {
	if e == nil {
		return omrserrors.InvalidParameter("entity", "entity must not be nil")
	}
	if e.GUID == "" {
		return omrserrors.InvalidParameter("entity.guid", "entity GUID must not be empty")
	}
	if e.Type.GUID == "" {
		return omrserrors.InvalidParameter("entity.type", "entity type must be set")
	}
	if e.MetadataCollectionID == "" {
		return omrserrors.New(omrserrors.KindLogicError, "entity %s has no home metadata collection (I2)", e.GUID)
	}
	if err := v.checkTypeKnown(ctx, e.Type); err != nil {
		return err
	}
	for i := range e.Classifications {
		if err := v.ValidateClassification(ctx, &e.Classifications[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *TypeAwareValidator) ValidateRelationship(ctx context.Context, r *instance.Relationship) error {
	if r == nil {
		return omrserrors.InvalidParameter("relationship", "relationship must not be nil")
	}
	if r.GUID == "" {
		return omrserrors.InvalidParameter("relationship.guid", "relationship GUID must not be empty")
	}
	if r.EntityOneProxy.GUID == "" || r.EntityTwoProxy.GUID == "" {
		return omrserrors.New(omrserrors.KindInvalidRelationship, "relationship %s is missing an endpoint (I6)", r.GUID)
	}
	if r.EntityOneProxy.GUID == r.EntityTwoProxy.GUID {
		return omrserrors.New(omrserrors.KindInvalidRelationship, "relationship %s has identical endpoints", r.GUID)
	}
	return v.checkTypeKnown(ctx, r.Type)
}

func (v *TypeAwareValidator) ValidateClassification(ctx context.Context, c *instance.Classification) error {
	if c == nil {
		return omrserrors.InvalidParameter("classification", "classification must not be nil")
	}
	if c.Name == "" {
		return omrserrors.InvalidParameter("classification.name", "classification name must not be empty")
	}
	return v.checkTypeKnown(ctx, c.Type)
}

func (v *TypeAwareValidator) ValidateTypeDefVersion(_ context.Context, existing, incoming instance.TypeDefSummary) error {
	if existing.GUID != "" && existing.GUID == incoming.GUID && incoming.Version < existing.Version {
		return omrserrors.New(omrserrors.KindTypeError,
			"type %s: incoming version %d regresses known version %d (I5)",
			incoming.GUID, incoming.Version, existing.Version)
	}
	return nil
}

func (v *TypeAwareValidator) checkTypeKnown(ctx context.Context, t instance.TypeDefSummary) error {
	if v.Registry == nil || t.GUID == "" {
		return nil
	}
	td, err := v.Registry.GetByGUID(ctx, t.GUID)
	if err != nil {
		return omrserrors.New(omrserrors.KindTypeDefNotKnown, "type %s: %w", t.GUID, err)
	}
	if !td.Active {
		return omrserrors.New(omrserrors.KindTypeDefNotSupported, "type %s is not active", t.GUID)
	}
	return nil
}
