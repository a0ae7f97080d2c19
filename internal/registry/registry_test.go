package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/registry"
	"github.com/nucleus/omrs-core/internal/typedefs"
)

func TestRegistry_SnapshotIncludesLocalAndRemote(t *testing.T) {
	r := registry.New()
	local := collection.NewMemoryCollection("local-1", "Local", typedefs.NewMemoryRegistry())
	remoteA := collection.NewMemoryCollection("remote-a", "Remote A", typedefs.NewMemoryRegistry())
	remoteB := collection.NewMemoryCollection("remote-b", "Remote B", typedefs.NewMemoryRegistry())

	r.SetLocalConnector(local)
	r.AddRemoteConnector(remoteA)
	r.AddRemoteConnector(remoteB)

	snap := r.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, 2, r.RemoteCount())
}

func TestRegistry_SnapshotEmptyWithNoConnectors(t *testing.T) {
	r := registry.New()
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_ByMetadataCollectionID_PrefersLocal(t *testing.T) {
	r := registry.New()
	local := collection.NewMemoryCollection("shared-id", "Local", typedefs.NewMemoryRegistry())
	r.SetLocalConnector(local)

	c, ok := r.ByMetadataCollectionID("shared-id")
	require.True(t, ok)
	assert.Equal(t, local, c)
}

func TestRegistry_RemoveRemoteConnector(t *testing.T) {
	r := registry.New()
	remote := collection.NewMemoryCollection("remote-a", "Remote A", typedefs.NewMemoryRegistry())
	r.AddRemoteConnector(remote)
	require.Equal(t, 1, r.RemoteCount())

	r.RemoveRemoteConnector("remote-a")
	assert.Equal(t, 0, r.RemoteCount())
	_, ok := r.ByMetadataCollectionID("remote-a")
	assert.False(t, ok)
}

func TestRegistry_UnknownIDNotFound(t *testing.T) {
	r := registry.New()
	_, ok := r.ByMetadataCollectionID("nope")
	assert.False(t, ok)
}
