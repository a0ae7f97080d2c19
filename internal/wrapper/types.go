package wrapper

import (
	"context"

	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/typedefs"
)

// =============================================================================
// TYPE OPERATIONS
// =============================================================================
//
// Every mutation below is mirrored into the type registry (there is no
// separate local cache to keep in sync with — the registry passed to New
// already is the local type manager) and emits a corresponding type-def
// event (spec §4.1 "every mutation ... is mirrored ... and emits a
// corresponding type-def event").

func (w *Wrapper) GetTypeDefByGUID(ctx context.Context, guid string) (*typedefs.TypeDef, error) {
	if err := w.authorize(ctx, "getTypeDefByGUID"); err != nil {
		return nil, err
	}
	td, err := w.types.GetByGUID(ctx, guid)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindTypeDefNotKnown, "typedef %s not known", guid)
	}
	return td, nil
}

func (w *Wrapper) GetTypeDefByName(ctx context.Context, name string) (*typedefs.TypeDef, error) {
	if err := w.authorize(ctx, "getTypeDefByName"); err != nil {
		return nil, err
	}
	td, err := w.types.GetByName(ctx, name)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindTypeDefNotKnown, "typedef %q not known", name)
	}
	return td, nil
}

func (w *Wrapper) ListTypeDefsByCategory(ctx context.Context, category typedefs.Category) ([]*typedefs.TypeDef, error) {
	if err := w.authorize(ctx, "listTypeDefsByCategory"); err != nil {
		return nil, err
	}
	return w.types.ListByCategory(ctx, category)
}

func (w *Wrapper) AddTypeDef(ctx context.Context, td *typedefs.TypeDef) error {
	if err := w.authorize(ctx, "addTypeDef"); err != nil {
		return err
	}
	if td == nil || td.GUID == "" || td.Name == "" {
		return omrserrors.InvalidParameter("typeDef", "typedef must have a GUID and a name")
	}
	if err := w.types.Add(ctx, td); err != nil {
		return omrserrors.New(omrserrors.KindTypeDefConflict, "typedef %s: %w", td.GUID, err)
	}
	summary := td.Summary()
	w.emit(ctx, events.InstanceEvent{EventType: events.NewTypeDefEvent, TypeDef: &summary})
	return nil
}

func (w *Wrapper) VerifyTypeDef(ctx context.Context, td *typedefs.TypeDef) (bool, error) {
	if err := w.authorize(ctx, "verifyTypeDef"); err != nil {
		return false, err
	}
	return w.types.Verify(ctx, td)
}

// UpdateTypeDef applies a non-version-regressing patch to a known typedef
// (I5 — version must not regress).
func (w *Wrapper) UpdateTypeDef(ctx context.Context, td *typedefs.TypeDef) error {
	if err := w.authorize(ctx, "updateTypeDef"); err != nil {
		return err
	}
	existing, err := w.types.GetByGUID(ctx, td.GUID)
	if err != nil {
		return omrserrors.New(omrserrors.KindTypeDefNotKnown, "typedef %s not known", td.GUID)
	}
	if err := w.validate.ValidateTypeDefVersion(ctx, existing.Summary(), td.Summary()); err != nil {
		return err
	}
	if err := w.types.Update(ctx, td); err != nil {
		return omrserrors.New(omrserrors.KindPatchError, "typedef %s: %w", td.GUID, err)
	}
	summary := td.Summary()
	w.emit(ctx, events.InstanceEvent{EventType: events.UpdatedTypeDefEvent, TypeDef: &summary})
	return nil
}

func (w *Wrapper) DeleteTypeDef(ctx context.Context, guid, name string) error {
	if err := w.authorize(ctx, "deleteTypeDef"); err != nil {
		return err
	}
	td, err := w.types.GetByGUID(ctx, guid)
	if err != nil {
		return omrserrors.New(omrserrors.KindTypeDefNotKnown, "typedef %s not known", guid)
	}
	if err := w.types.Delete(ctx, guid, name); err != nil {
		return omrserrors.New(omrserrors.KindTypeDefInUse, "typedef %s: %w", guid, err)
	}
	summary := td.Summary()
	w.emit(ctx, events.InstanceEvent{EventType: events.DeletedTypeDefEvent, TypeDef: &summary})
	return nil
}

func (w *Wrapper) ReIdentifyTypeDef(ctx context.Context, originalGUID, newGUID, newName string) (*typedefs.TypeDef, error) {
	if err := w.authorize(ctx, "reIdentifyTypeDef"); err != nil {
		return nil, err
	}
	td, err := w.types.ReIdentify(ctx, originalGUID, newGUID, newName)
	if err != nil {
		return nil, omrserrors.New(omrserrors.KindTypeDefNotKnown, "typedef %s: %w", originalGUID, err)
	}
	summary := td.Summary()
	w.emit(ctx, events.InstanceEvent{EventType: events.ReIdentifiedTypeDefEvent, TypeDef: &summary})
	return td, nil
}
