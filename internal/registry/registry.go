// Package registry implements C9, the Connector Registry: the set of
// cohort members (their MetadataCollection connectors) the local server
// currently knows about. Grounded on ucl-core/internal/orchestration's
// Manager — a mutex-guarded map with save/clone helpers — generalized from
// a single operations map to the local-connector-plus-remote-connectors
// split spec §4.2 describes, and from Mutex to RWMutex since federated
// reads (spec §4.2) take a read lock to snapshot while writers
// (addRemoteConnector/removeRemoteConnector) are comparatively rare.
package registry

import (
	"sync"

	"github.com/nucleus/omrs-core/internal/collection"
)

// Registry is C9: the authoritative, process-local view of cohort
// membership. The federator reads it via Snapshot;
// only cohort-membership-change code (triggered by REGISTRATION events,
// out of scope per spec §1) calls the mutating methods.
type Registry struct {
	mu     sync.RWMutex
	local  collection.MetadataCollection
	remote map[string]collection.MetadataCollection // keyed by metadataCollectionId
}

func New() *Registry {
	return &Registry{remote: map[string]collection.MetadataCollection{}}
}

// SetLocalConnector installs the connector for this server's own
// repository.
func (r *Registry) SetLocalConnector(c collection.MetadataCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = c
}

// LocalConnector returns the local repository's connector, or nil if unset.
func (r *Registry) LocalConnector() collection.MetadataCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local
}

// AddRemoteConnector registers (or replaces) a remote cohort member's
// connector.
func (r *Registry) AddRemoteConnector(c collection.MetadataCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote[c.MetadataCollectionID()] = c
}

// RemoveRemoteConnector drops a remote cohort member, e.g. on
// UNREGISTRATION (out of scope per spec §1, but the registry still needs to
// support removal so a stale connector can be evicted administratively).
func (r *Registry) RemoveRemoteConnector(metadataCollectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remote, metadataCollectionID)
}

// Snapshot returns the local connector (if set) plus every remote connector
// known at the time of the call, as an independent slice the caller may
// range over without holding the registry's lock — callers must not
// mutate the slice's lifetime assumptions across a register/unregister that
// happens concurrently with their iteration (spec §5: "iterate over a
// snapshot, not the live map").
func (r *Registry) Snapshot() []collection.MetadataCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]collection.MetadataCollection, 0, len(r.remote)+1)
	if r.local != nil {
		out = append(out, r.local)
	}
	for _, c := range r.remote {
		out = append(out, c)
	}
	return out
}

// ByMetadataCollectionID looks up a specific connector, local or remote, by
// its home collection ID — used to route writes homed elsewhere and to
// resolve REFRESH requests (spec §4.3).
func (r *Registry) ByMetadataCollectionID(id string) (collection.MetadataCollection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.local != nil && r.local.MetadataCollectionID() == id {
		return r.local, true
	}
	c, ok := r.remote[id]
	return c, ok
}

// RemoteCount reports the number of known remote cohort members, used for
// cohort-membership introspection (spec §6 supplemented feature).
func (r *Registry) RemoteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.remote)
}
