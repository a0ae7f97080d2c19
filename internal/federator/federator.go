// Package federator implements C10, the Enterprise Federator: a virtual
// repository presenting the union of the local repository and every
// currently-known remote cohort member. Grounded on the teacher's
// metadata-api-go's own federation instinct (graph_queries.go's
// multi-source neighborhood walk) generalized to the connector fan-out,
// soft/fatal error classification, and version-based merge spec §4.2
// specifies. GetEntityDetail aggregates skipped-connector errors with
// hashicorp/go-multierror and logs their count at debug level; every skip
// is logged as a warning. Skipped connectors are not recorded in the audit
// trail (internal/audit).
package federator

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/registry"
)

// RetrievalLearner is the narrow callback C10 drives after a successful
// remote-sourced read (spec §4.2 "retrieval learning hook") — satisfied by
// the event processor's retrieval sub-interface (C8).
type RetrievalLearner interface {
	ProcessRetrievedEntityDetail(ctx context.Context, e *instance.Entity) error
	ProcessRetrievedRelationship(ctx context.Context, r *instance.Relationship) error
}

// Federator is C10.
type Federator struct {
	registry *registry.Registry
	learner  RetrievalLearner
	log      *slog.Logger
}

func New(reg *registry.Registry, learner RetrievalLearner, log *slog.Logger) *Federator {
	if log == nil {
		log = slog.Default()
	}
	return &Federator{registry: reg, learner: learner, log: log}
}

func (f *Federator) localCollectionID() string {
	if c := f.registry.LocalConnector(); c != nil {
		return c.MetadataCollectionID()
	}
	return ""
}

// homeConnector resolves the connector that is authoritative for an
// instance: the one whose MetadataCollectionID equals either the
// instance's home id or its replicatedBy id (spec §4.2 "home resolution").
func (f *Federator) homeConnector(metadataCollectionID, replicatedBy string) (collection.MetadataCollection, error) {
	if c, ok := f.registry.ByMetadataCollectionID(metadataCollectionID); ok {
		return c, nil
	}
	if replicatedBy != "" {
		if c, ok := f.registry.ByMetadataCollectionID(replicatedBy); ok {
			return c, nil
		}
	}
	return nil, omrserrors.New(omrserrors.KindNoHomeForInstance, "no connector registered for home %s", metadataCollectionID)
}

// candidate tracks one fan-out response alongside the facts the merge rule
// (spec §4.2 step 4) needs: its version tuple and whether the connector
// that served it is the instance's own declared home (a master copy, not a
// reference copy).
type candidate struct {
	version     int64
	typeVersion int64
	isMaster    bool
}

// wins reports whether candidate a should replace candidate b as the merge
// winner: higher (version, typeVersion) wins outright; on a tie, a master
// copy is preferred over a reference copy (spec §4.2 step 4a/4b).
func (a candidate) wins(b candidate) bool {
	if a.version != b.version {
		return a.version > b.version
	}
	if a.typeVersion != b.typeVersion {
		return a.typeVersion > b.typeVersion
	}
	return a.isMaster && !b.isMaster
}

// GetEntityDetail fans the read out across every connector and merges the
// results (spec §4.2 read fan-out contract).
func (f *Federator) GetEntityDetail(ctx context.Context, guid string) (*instance.Entity, error) {
	conns := f.registry.Snapshot()
	if len(conns) == 0 {
		return nil, omrserrors.New(omrserrors.KindNoRepositories, "no connectors registered")
	}

	var best *instance.Entity
	var bestCandidate candidate
	var bestConnectorID string
	var skipped *multierror.Error
	var fatal error

	for _, c := range conns {
		e, err := c.GetEntityDetail(ctx, guid)
		if err != nil {
			if _, ok := err.(*collection.ErrNotFound); ok {
				continue
			}
			if omrserrors.IsSoftFederationError(err) {
				f.log.Warn("federated read: connector skipped", "connector", c.MetadataCollectionID(), "error", err)
				skipped = multierror.Append(skipped, err)
				continue
			}
			if fatal == nil {
				fatal = err
			}
			continue
		}
		cand := candidate{version: e.Version, typeVersion: e.Type.Version, isMaster: c.MetadataCollectionID() == e.MetadataCollectionID}
		if best == nil || cand.wins(bestCandidate) {
			best = e
			bestCandidate = cand
			bestConnectorID = c.MetadataCollectionID()
		}
	}

	if fatal != nil {
		return nil, fatal
	}
	if best == nil {
		return nil, omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known to any connector", guid)
	}
	if skipped != nil && skipped.Len() > 0 {
		f.log.Debug("federated read completed with skipped connectors", "guid", guid, "skipped", skipped.Len())
	}

	bestIsRemote := bestConnectorID != f.localCollectionID()
	if bestIsRemote && f.learner != nil {
		if err := f.learner.ProcessRetrievedEntityDetail(ctx, best); err != nil {
			f.log.Warn("retrieval learning hook failed", "guid", guid, "error", err)
		}
	}
	return best, nil
}

// GetRelationship is the relationship-read equivalent of GetEntityDetail.
func (f *Federator) GetRelationship(ctx context.Context, guid string) (*instance.Relationship, error) {
	conns := f.registry.Snapshot()
	if len(conns) == 0 {
		return nil, omrserrors.New(omrserrors.KindNoRepositories, "no connectors registered")
	}

	var best *instance.Relationship
	var bestCandidate candidate
	var bestConnectorID string
	var fatal error

	for _, c := range conns {
		r, err := c.GetRelationship(ctx, guid)
		if err != nil {
			if _, ok := err.(*collection.ErrNotFound); ok {
				continue
			}
			if omrserrors.IsSoftFederationError(err) {
				f.log.Warn("federated read: connector skipped", "connector", c.MetadataCollectionID(), "error", err)
				continue
			}
			if fatal == nil {
				fatal = err
			}
			continue
		}
		cand := candidate{version: r.Version, typeVersion: r.Type.Version, isMaster: c.MetadataCollectionID() == r.MetadataCollectionID}
		if best == nil || cand.wins(bestCandidate) {
			best = r
			bestCandidate = cand
			bestConnectorID = c.MetadataCollectionID()
		}
	}

	if fatal != nil {
		return nil, fatal
	}
	if best == nil {
		return nil, omrserrors.New(omrserrors.KindRelationshipNotKnown, "relationship %s not known to any connector", guid)
	}

	bestIsRemote := bestConnectorID != f.localCollectionID()
	if bestIsRemote && f.learner != nil {
		if err := f.learner.ProcessRetrievedRelationship(ctx, best); err != nil {
			f.log.Warn("retrieval learning hook failed", "guid", guid, "error", err)
		}
	}
	return best, nil
}

// FindEntities fans a paged entity search out across every connector,
// requesting a wider page from each source and re-paging the merged result
// (spec §4.2 step 4c).
func (f *Federator) FindEntities(ctx context.Context, typeGUID string, page collection.PageSpec) ([]*instance.Entity, error) {
	conns := f.registry.Snapshot()
	if len(conns) == 0 {
		return nil, omrserrors.New(omrserrors.KindNoRepositories, "no connectors registered")
	}

	widePage := collection.PageSpec{Offset: 0, PageSize: 0}
	if page.PageSize > 0 {
		widePage.PageSize = page.Offset + page.PageSize
	}

	byGUID := map[string]*instance.Entity{}
	candidates := map[string]candidate{}
	var fatal error

	for _, c := range conns {
		entities, err := c.FindEntities(ctx, typeGUID, widePage)
		if err != nil {
			if omrserrors.IsSoftFederationError(err) {
				f.log.Warn("federated find: connector skipped", "connector", c.MetadataCollectionID(), "error", err)
				continue
			}
			if fatal == nil {
				fatal = err
			}
			continue
		}
		for _, e := range entities {
			cand := candidate{version: e.Version, typeVersion: e.Type.Version, isMaster: c.MetadataCollectionID() == e.MetadataCollectionID}
			existing, ok := candidates[e.GUID]
			if !ok || cand.wins(existing) {
				byGUID[e.GUID] = e
				candidates[e.GUID] = cand
			}
		}
	}
	if fatal != nil {
		return nil, fatal
	}

	merged := make([]*instance.Entity, 0, len(byGUID))
	for _, e := range byGUID {
		merged = append(merged, e)
	}
	// byGUID is a map; iteration order is randomized. Sort before paginating
	// so that the merged set is deterministic given the same source data
	// (spec §5), and so Offset > 0 returns the same page on every call.
	sort.Slice(merged, func(i, j int) bool { return merged[i].GUID < merged[j].GUID })
	return paginateEntities(merged, page), nil
}

func paginateEntities(all []*instance.Entity, page collection.PageSpec) []*instance.Entity {
	if page.PageSize <= 0 {
		if page.Offset >= len(all) {
			return nil
		}
		return all[page.Offset:]
	}
	if page.Offset >= len(all) {
		return nil
	}
	end := page.Offset + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end]
}

// RouteWrite resolves the home connector for an instance and reports
// whether the caller should invoke the local wrapper directly (true) or
// the returned remote connector (spec §4.2 "write routing").
func (f *Federator) RouteWrite(metadataCollectionID, replicatedBy string) (isLocal bool, remote collection.MetadataCollection, err error) {
	c, err := f.homeConnector(metadataCollectionID, replicatedBy)
	if err != nil {
		return false, nil, err
	}
	if c.MetadataCollectionID() == f.localCollectionID() {
		return true, nil, nil
	}
	return false, c, nil
}
