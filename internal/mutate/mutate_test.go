package mutate

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/sqlive/internal/row"
)

func TestTriggerMatchesTableOnly(t *testing.T) {
	trig := Trigger{Table: "players"}
	m := Mutation{Table: "players", Kind: Insert, New: row.Row{"id": int64(11)}}
	assert.Assert(t, trig.Matches(m))

	other := Mutation{Table: "orders", Kind: Insert, New: row.Row{"id": int64(11)}}
	assert.Assert(t, !trig.Matches(other))
}

func TestTriggerPredicateIdFilter(t *testing.T) {
	trig := Trigger{
		Table: "players",
		Predicate: func(newRow, oldRow row.Row, deleted bool) bool {
			if deleted {
				return oldRow["id"] == int64(11)
			}
			return newRow["id"] == int64(11)
		},
	}

	matchInsert := Mutation{Table: "players", Kind: Insert, New: row.Row{"id": int64(11)}}
	assert.Assert(t, trig.Matches(matchInsert))

	noMatchInsert := Mutation{Table: "players", Kind: Insert, New: row.Row{"id": int64(12)}}
	assert.Assert(t, !trig.Matches(noMatchInsert))

	matchDelete := Mutation{Table: "players", Kind: Delete, Old: row.Row{"id": int64(11)}}
	assert.Assert(t, trig.Matches(matchDelete))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "insert", Insert.String())
	assert.Equal(t, "update", Update.String())
	assert.Equal(t, "delete", Delete.String())
	assert.Equal(t, "ignored", Ignored.String())
}
