package registry

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/sqlive/internal/keysel"
	"github.com/leengari/sqlive/internal/mutate"
)

func TestRegisterAssignsStableUniqueIDs(t *testing.T) {
	r := New()
	q1 := r.Register("SELECT * FROM players", nil, keysel.ByColumns("id"), []mutate.Trigger{{Table: "players"}})
	q2 := r.Register("SELECT * FROM players WHERE id = 11", nil, keysel.ByColumns("id"), []mutate.Trigger{{Table: "players"}})

	assert.Assert(t, q1.ID != "")
	assert.Assert(t, q1.ID != q2.ID)

	got, ok := r.Get(q1.ID)
	assert.Assert(t, ok)
	assert.Equal(t, q1.SQL, got.SQL)
}

func TestTriggersForTableOmitsPausedQueries(t *testing.T) {
	r := New()
	q := r.Register("SELECT * FROM players", nil, keysel.ByIndex(), []mutate.Trigger{{Table: "players"}})

	subs := r.TriggersForTable("players")
	assert.Equal(t, 1, len(subs))
	assert.Equal(t, q.ID, subs[0].QueryID)

	r.Pause(q.ID)
	assert.Equal(t, 0, len(r.TriggersForTable("players")))

	r.Resume(q.ID)
	assert.Equal(t, 1, len(r.TriggersForTable("players")))
}

func TestStopRemovesFromTableIndex(t *testing.T) {
	r := New()
	q := r.Register("SELECT * FROM players", nil, keysel.ByIndex(), []mutate.Trigger{{Table: "players"}})

	r.Stop(q.ID)

	_, ok := r.Get(q.ID)
	assert.Assert(t, !ok)
	assert.Equal(t, 0, len(r.TriggersForTable("players")))
}

func TestTriggersForTableIgnoresUnrelatedTables(t *testing.T) {
	r := New()
	r.Register("SELECT * FROM players", nil, keysel.ByIndex(), []mutate.Trigger{{Table: "players"}})

	assert.Equal(t, 0, len(r.TriggersForTable("orders")))
}

func TestLastResultTracking(t *testing.T) {
	q := &Query{}
	_, ok := q.LastResult()
	assert.Assert(t, !ok)

	q.SetLastResult(nil)
	_, ok = q.LastResult()
	assert.Assert(t, ok, "an empty (nil) result set still counts as a prior execution")
}
