package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/audit"
)

func TestTrail_RecentReturnsOldestFirst(t *testing.T) {
	trail := audit.NewTrail(3)
	base := time.Now()
	trail.Record(audit.Entry{Time: base, Category: audit.CategoryInfo, GUID: "g1", Detail: "first"})
	trail.Record(audit.Entry{Time: base.Add(time.Second), Category: audit.CategoryInfo, GUID: "g2", Detail: "second"})
	trail.Record(audit.Entry{Time: base.Add(2 * time.Second), Category: audit.CategoryInfo, GUID: "g3", Detail: "third"})

	recent := trail.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "g1", recent[0].GUID)
	assert.Equal(t, "g2", recent[1].GUID)
	assert.Equal(t, "g3", recent[2].GUID)
}

func TestTrail_EvictsOldestPastCapacity(t *testing.T) {
	trail := audit.NewTrail(2)
	trail.Record(audit.Entry{GUID: "g1"})
	trail.Record(audit.Entry{GUID: "g2"})
	trail.Record(audit.Entry{GUID: "g3"})

	recent := trail.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "g2", recent[0].GUID)
	assert.Equal(t, "g3", recent[1].GUID)
}

func TestTrail_DefaultsCapacityWhenNonPositive(t *testing.T) {
	trail := audit.NewTrail(0)
	trail.Record(audit.Entry{GUID: "g1"})
	assert.Len(t, trail.Recent(), 1)
}

func TestTrail_EmptyTrailReturnsNoEntries(t *testing.T) {
	trail := audit.NewTrail(5)
	assert.Empty(t, trail.Recent())
}
