package typedefs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/typedefs"
)

func TestMemoryRegistry_AddAndGet(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()

	td := &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1, Category: typedefs.CategoryEntity, Active: true}
	require.NoError(t, r.Add(ctx, td))

	byGUID, err := r.GetByGUID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Asset", byGUID.Name)

	byName, err := r.GetByName(ctx, "Asset")
	require.NoError(t, err)
	assert.Equal(t, "t1", byName.GUID)
}

func TestMemoryRegistry_AddDuplicateGUIDFails(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()
	td := &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1}
	require.NoError(t, r.Add(ctx, td))
	assert.Error(t, r.Add(ctx, td))
}

func TestMemoryRegistry_UpdateRejectsVersionRegression(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 3}))

	err := r.Update(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 2})
	assert.Error(t, err)

	require.NoError(t, r.Update(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 4}))
	td, err := r.GetByGUID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), td.Version)
}

func TestMemoryRegistry_VerifyComparesVersion(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1}))

	ok, err := r.Verify(ctx, &typedefs.TypeDef{GUID: "t1", Version: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Verify(ctx, &typedefs.TypeDef{GUID: "t1", Version: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRegistry_ReIdentify(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1}))

	renamed, err := r.ReIdentify(ctx, "t1", "t2", "AssetV2")
	require.NoError(t, err)
	assert.Equal(t, "t2", renamed.GUID)

	_, err = r.GetByGUID(ctx, "t1")
	assert.Error(t, err)
	byNew, err := r.GetByGUID(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "AssetV2", byNew.Name)
}

func TestMemoryRegistry_IsActive(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Active: true}))
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t2", Name: "Draft", Active: false}))

	active, err := r.IsActive(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = r.IsActive(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = r.IsActive(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryRegistry_ListByCategory(t *testing.T) {
	ctx := context.Background()
	r := typedefs.NewMemoryRegistry()
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Category: typedefs.CategoryEntity}))
	require.NoError(t, r.Add(ctx, &typedefs.TypeDef{GUID: "t2", Name: "Owns", Category: typedefs.CategoryRelationship}))

	entities, err := r.ListByCategory(ctx, typedefs.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "t1", entities[0].GUID)
}

func TestTypeDef_SummaryProjection(t *testing.T) {
	td := typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 5}
	s := td.Summary()
	assert.Equal(t, "t1", s.GUID)
	assert.Equal(t, "Asset", s.Name)
	assert.Equal(t, int64(5), s.Version)
}
