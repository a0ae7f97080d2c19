package helper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/helper"
	"github.com/nucleus/omrs-core/internal/instance"
)

func TestNewGUID_Unique(t *testing.T) {
	a := helper.NewGUID()
	b := helper.NewGUID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewEntity_StartsAtVersionOne(t *testing.T) {
	typeSummary := instance.TypeDefSummary{GUID: "t1", Name: "Asset", Version: 1}
	e := helper.NewEntity(typeSummary, "local-1", "Local", map[string]any{"k": "v"}, "alice")

	assert.NotEmpty(t, e.GUID)
	assert.Equal(t, int64(1), e.Version)
	assert.Equal(t, instance.StatusActive, e.Status)
	assert.Equal(t, instance.ProvenanceLocalCohort, e.Provenance)
	assert.Equal(t, "local-1", e.MetadataCollectionID)
	assert.Equal(t, "alice", e.CreatedBy)
	assert.False(t, e.CreateTime.IsZero())
	assert.Equal(t, e.CreateTime, e.UpdateTime)
}

func TestIncrementVersion_BumpsVersionAndTimestamp(t *testing.T) {
	h := &instance.Header{Version: 1, UpdateTime: time.Now().Add(-time.Hour)}
	before := h.UpdateTime
	helper.IncrementVersion(h)
	assert.Equal(t, int64(2), h.Version)
	assert.True(t, h.UpdateTime.After(before))
}

func TestStampProvenance_SetsReplicatedBy(t *testing.T) {
	h := &instance.Header{}
	helper.StampProvenance(h, instance.ProvenanceExternalSource, "remote-1", "Remote", "local-1")
	assert.Equal(t, instance.ProvenanceExternalSource, h.Provenance)
	assert.Equal(t, "remote-1", h.MetadataCollectionID)
	assert.Equal(t, "local-1", h.ReplicatedBy)
}

func TestGetEntityProxy_CopiesPropertiesAsUnique(t *testing.T) {
	e := &instance.Entity{
		Header:     instance.Header{GUID: "e1"},
		Properties: map[string]any{"name": "widget"},
	}
	p := helper.GetEntityProxy(e)
	require.NotNil(t, p)
	assert.Equal(t, "e1", p.GUID)
	assert.Equal(t, "widget", p.UniqueProperties["name"])

	p.UniqueProperties["name"] = "mutated"
	assert.Equal(t, "widget", e.Properties["name"])
}

func TestGetEntityProxy_NilEntity(t *testing.T) {
	assert.Nil(t, helper.GetEntityProxy(nil))
}

func TestNewRelationship_ConnectsProxies(t *testing.T) {
	one := instance.EntityProxy{Header: instance.Header{GUID: "e1"}}
	two := instance.EntityProxy{Header: instance.Header{GUID: "e2"}}
	typeSummary := instance.TypeDefSummary{GUID: "t1", Name: "Owns"}

	r := helper.NewRelationship(typeSummary, "local-1", "Local", one, two, nil, "alice")
	assert.Equal(t, "e1", r.EntityOneProxy.GUID)
	assert.Equal(t, "e2", r.EntityTwoProxy.GUID)
	assert.Equal(t, int64(1), r.Version)
}
