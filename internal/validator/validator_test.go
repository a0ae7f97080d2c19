package validator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/validator"
)

func registryWithActiveType(ctx context.Context, t *testing.T) typedefs.TypeRegistry {
	t.Helper()
	reg := typedefs.NewMemoryRegistry()
	require.NoError(t, reg.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1, Active: true}))
	require.NoError(t, reg.Add(ctx, &typedefs.TypeDef{GUID: "t2", Name: "Retired", Version: 1, Active: false}))
	return reg
}

func TestValidateEntity_RejectsMissingHome(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	e := &instance.Entity{Header: instance.Header{GUID: "e1", Type: instance.TypeDefSummary{GUID: "t1"}}}
	err := v.ValidateEntity(ctx, e)
	require.Error(t, err)
	assert.Equal(t, omrserrors.KindLogicError, omrserrors.KindOf(err))
}

func TestValidateEntity_RejectsInactiveType(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	e := &instance.Entity{Header: instance.Header{
		GUID: "e1", Type: instance.TypeDefSummary{GUID: "t2"}, MetadataCollectionID: "local-1",
	}}
	err := v.ValidateEntity(ctx, e)
	require.Error(t, err)
	assert.Equal(t, omrserrors.KindTypeDefNotSupported, omrserrors.KindOf(err))
}

func TestValidateEntity_AcceptsWellFormed(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	e := &instance.Entity{Header: instance.Header{
		GUID: "e1", Type: instance.TypeDefSummary{GUID: "t1"}, MetadataCollectionID: "local-1",
	}}
	assert.NoError(t, v.ValidateEntity(ctx, e))
}

func TestValidateRelationship_RejectsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	r := &instance.Relationship{Header: instance.Header{GUID: "r1", Type: instance.TypeDefSummary{GUID: "t1"}},
		EntityOneProxy: instance.EntityProxy{Header: instance.Header{GUID: "e1"}},
	}
	err := v.ValidateRelationship(ctx, r)
	require.Error(t, err)
	assert.Equal(t, omrserrors.KindInvalidRelationship, omrserrors.KindOf(err))
}

func TestValidateRelationship_RejectsIdenticalEndpoints(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	proxy := instance.EntityProxy{Header: instance.Header{GUID: "e1"}}
	r := &instance.Relationship{
		Header:         instance.Header{GUID: "r1", Type: instance.TypeDefSummary{GUID: "t1"}},
		EntityOneProxy: proxy,
		EntityTwoProxy: proxy,
	}
	err := v.ValidateRelationship(ctx, r)
	require.Error(t, err)
	assert.Equal(t, omrserrors.KindInvalidRelationship, omrserrors.KindOf(err))
}

func TestValidateRelationship_AcceptsDistinctEndpoints(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	r := &instance.Relationship{
		Header:         instance.Header{GUID: "r1", Type: instance.TypeDefSummary{GUID: "t1"}},
		EntityOneProxy: instance.EntityProxy{Header: instance.Header{GUID: "e1"}},
		EntityTwoProxy: instance.EntityProxy{Header: instance.Header{GUID: "e2"}},
	}
	assert.NoError(t, v.ValidateRelationship(ctx, r))
}

func TestValidateTypeDefVersion_RejectsRegression(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	existing := instance.TypeDefSummary{GUID: "t1", Version: 3}
	incoming := instance.TypeDefSummary{GUID: "t1", Version: 2}
	err := v.ValidateTypeDefVersion(ctx, existing, incoming)
	require.Error(t, err)
	assert.Equal(t, omrserrors.KindTypeError, omrserrors.KindOf(err))
}

func TestValidateTypeDefVersion_AllowsAdvance(t *testing.T) {
	ctx := context.Background()
	v := validator.New(registryWithActiveType(ctx, t))

	existing := instance.TypeDefSummary{GUID: "t1", Version: 3}
	incoming := instance.TypeDefSummary{GUID: "t1", Version: 4}
	assert.NoError(t, v.ValidateTypeDefVersion(ctx, existing, incoming))
}
