package eventproc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/audit"
	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/config"
	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/eventproc"
	"github.com/nucleus/omrs-core/internal/exchange"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/security"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/validator"
	"github.com/nucleus/omrs-core/internal/wrapper"
)

type capturingConnector struct {
	mu        sync.Mutex
	published []events.InstanceEvent
}

func (c *capturingConnector) Publish(_ context.Context, ev events.InstanceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, ev)
	return nil
}

func (c *capturingConnector) all() []events.InstanceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.InstanceEvent, len(c.published))
	copy(out, c.published)
	return out
}

type fixture struct {
	proc  *eventproc.Processor
	store collection.MetadataCollection
	conn  *capturingConnector
}

func newFixture(t *testing.T, rule config.SaveExchangeRule) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := typedefs.NewMemoryRegistry()
	require.NoError(t, reg.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1, Active: true}))

	store := collection.NewMemoryCollection("local-1", "Local", reg)
	v := validator.New(reg)
	conn := &capturingConnector{}
	emitter := events.NewEmitter(conn, 32, "drop-oldest", nil)
	t.Cleanup(emitter.Close)

	w := wrapper.New(store, reg, v, security.AllowAllVerifier{}, emitter, "local-1", "Local", true)
	exRule := exchange.New(&config.Config{SaveExchangeRule: rule})
	trail := audit.NewTrail(16)

	proc := eventproc.New(w, store, v, reg, exRule, emitter, trail, "local-1", nil)
	return &fixture{proc: proc, store: store, conn: conn}
}

func remoteEntity(guid, home string, version int64) *instance.Entity {
	now := time.Unix(0, 0)
	return &instance.Entity{Header: instance.Header{
		GUID: guid, Type: instance.TypeDefSummary{GUID: "t1", Name: "Asset", Version: 1},
		Status: instance.StatusActive, Version: version, MetadataCollectionID: home,
		CreateTime: now, UpdateTime: now,
	}}
}

func TestProcessor_UpdateReferenceEntity_StoresNewRemoteEntity(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()

	f.proc.Process(ctx, events.InstanceEvent{EventType: events.NewEntityEvent, Entity: remoteEntity("e1", "remote-a", 1)})

	got, err := f.store.GetEntityDetail(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "remote-a", got.MetadataCollectionID)
}

func TestProcessor_UpdateReferenceEntity_NeverOverwritesLocalMaster(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()
	require.NoError(t, f.store.SaveEntity(ctx, remoteEntity("e1", "local-1", 5)))

	// I2: an inbound copy claiming to be locally homed must be ignored.
	f.proc.Process(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: remoteEntity("e1", "local-1", 99)})

	got, err := f.store.GetEntityDetail(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
}

func TestProcessor_UpdateReferenceEntity_DropsOutOfOrderUpdate(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()
	require.NoError(t, f.store.SaveEntityReferenceCopy(ctx, remoteEntity("e1", "remote-a", 5)))

	f.proc.Process(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: remoteEntity("e1", "remote-a", 3)})

	got, err := f.store.GetEntityDetail(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version, "stale event must not regress the stored version")
}

func TestProcessor_UpdateReferenceEntity_CreateTimeMismatchEmitsConflict(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()

	original := remoteEntity("e1", "remote-a", 1)
	require.NoError(t, f.store.SaveEntityReferenceCopy(ctx, original))

	colliding := remoteEntity("e1", "remote-b", 2)
	colliding.CreateTime = original.CreateTime.Add(time.Hour)
	f.proc.Process(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: colliding})

	found := false
	for _, ev := range f.conn.all() {
		if ev.EventType == events.ConflictingInstancesEvent && ev.OriginalGUID == "e1" {
			found = true
		}
	}
	assert.True(t, found, "a create-time mismatch (possible GUID collision) must emit CONFLICTING_INSTANCES")
}

func TestProcessor_UpdateReferenceEntity_SkippedWhenExchangeRuleIsNone(t *testing.T) {
	f := newFixture(t, config.SaveRuleNone)
	ctx := context.Background()

	f.proc.Process(ctx, events.InstanceEvent{EventType: events.NewEntityEvent, Entity: remoteEntity("e1", "remote-a", 1)})

	_, err := f.store.GetEntityDetail(ctx, "e1")
	assert.Error(t, err)
}

func TestProcessor_HandleRefreshEntityRequest_EmitsRefreshedEventForLocalHome(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()
	require.NoError(t, f.store.SaveEntity(ctx, remoteEntity("e1", "local-1", 1)))

	f.proc.Process(ctx, events.InstanceEvent{EventType: events.RefreshEntityRequest, OriginalGUID: "e1"})

	found := false
	for _, ev := range f.conn.all() {
		if ev.EventType == events.RefreshedEntityEvent {
			found = true
		}
	}
	assert.True(t, found)
}

// These two tests drive the handler off an event captured from a real
// emitConflictingEntityInstances call (via updateReferenceEntity's
// create-time-mismatch path), rather than a hand-constructed payload, so
// they exercise the actual wire shape a cohort member would receive.

func TestProcessor_ConflictingInstances_EmitThenHandle_ReIdentifiesWhenTargetIsLocal(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()
	// e1 is a locally-homed (master) entity on this server.
	require.NoError(t, f.store.SaveEntity(ctx, remoteEntity("e1", "local-1", 1)))

	// A remote member reports a different instance under the same GUID.
	colliding := remoteEntity("e1", "remote-b", 1)
	colliding.CreateTime = colliding.CreateTime.Add(time.Hour)
	f.proc.Process(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: colliding})

	conflict := findConflictEvent(t, f.conn.all())
	assert.Equal(t, "local-1", conflict.TargetMetadataCollectionID, "the locally-homed instance is the conflict's target")

	// Hand the captured wire event to the handler exactly as a real
	// receiver would.
	f.proc.Process(ctx, *conflict)

	_, err := f.store.GetEntityDetail(ctx, "e1")
	assert.Error(t, err, "the locally-homed instance must be re-identified away from its original GUID")
}

func TestProcessor_ConflictingInstances_EmitThenHandle_PurgesWhenTargetIsRemote(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()
	original := remoteEntity("e1", "remote-a", 1)
	require.NoError(t, f.store.SaveEntityReferenceCopy(ctx, original))

	colliding := remoteEntity("e1", "remote-b", 2)
	colliding.CreateTime = original.CreateTime.Add(time.Hour)
	f.proc.Process(ctx, events.InstanceEvent{EventType: events.UpdatedEntityEvent, Entity: colliding})

	conflict := findConflictEvent(t, f.conn.all())
	assert.Equal(t, "remote-a", conflict.TargetMetadataCollectionID, "the already-stored reference copy's home is the conflict's target")

	f.proc.Process(ctx, *conflict)

	_, err := f.store.GetEntityDetail(ctx, "e1")
	assert.Error(t, err, "a reference copy for a non-local target must be purged")
}

func findConflictEvent(t *testing.T, published []events.InstanceEvent) *events.InstanceEvent {
	t.Helper()
	for _, ev := range published {
		if ev.EventType == events.ConflictingInstancesEvent {
			e := ev
			return &e
		}
	}
	t.Fatal("no CONFLICTING_INSTANCES_EVENT was published")
	return nil
}

func TestProcessor_ProcessRetrievedEntityDetail_RequestsRefreshWhenUnknownLocally(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()

	err := f.proc.ProcessRetrievedEntityDetail(ctx, remoteEntity("e1", "remote-a", 1))
	require.NoError(t, err)

	found := false
	for _, ev := range f.conn.all() {
		if ev.EventType == events.RefreshEntityRequest && ev.OriginalGUID == "e1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProcessor_ProcessRetrievedEntityDetail_NoOpWhenAlreadyKnown(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()
	require.NoError(t, f.store.SaveEntityReferenceCopy(ctx, remoteEntity("e1", "remote-a", 1)))

	err := f.proc.ProcessRetrievedEntityDetail(ctx, remoteEntity("e1", "remote-a", 1))
	require.NoError(t, err)

	for _, ev := range f.conn.all() {
		assert.NotEqual(t, events.RefreshEntityRequest, ev.EventType)
	}
}

func TestProcessor_ProcessRetrievedEntityDetail_NoOpForLocallyHomedInstance(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()

	err := f.proc.ProcessRetrievedEntityDetail(ctx, remoteEntity("e1", "local-1", 1))
	assert.NoError(t, err)
}

func TestProcessor_SaveInstanceReferenceCopies_IngestsBatchGraph(t *testing.T) {
	f := newFixture(t, config.SaveRuleAll)
	ctx := context.Background()

	graph := &instance.InstanceGraph{
		Entities: []*instance.Entity{remoteEntity("e1", "remote-a", 1), remoteEntity("e2", "remote-a", 1)},
	}
	f.proc.Process(ctx, events.InstanceEvent{EventType: events.BatchInstancesEvent, Graph: graph})

	_, err1 := f.store.GetEntityDetail(ctx, "e1")
	_, err2 := f.store.GetEntityDetail(ctx, "e2")
	assert.NoError(t, err1)
	assert.NoError(t, err2)
}
