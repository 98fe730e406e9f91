package diff

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/sqlive/internal/keysel"
	"github.com/leengari/sqlive/internal/row"
)

func TestComputeWithNoOldResultMarksEverythingAdded(t *testing.T) {
	sel := keysel.ByColumns("id")
	newResult := []row.Row{{"id": int64(1)}, {"id": int64(2)}}

	d := Compute(nil, newResult, sel)
	assert.Equal(t, 2, len(d.Added))
	assert.Equal(t, 0, len(d.Changed))
	assert.Equal(t, 0, len(d.Removed))
}

func TestComputeDetectsAddedChangedRemoved(t *testing.T) {
	sel := keysel.ByColumns("id")
	old := []row.Row{
		{"id": int64(11), "name": "Alice"},
		{"id": int64(12), "name": "Carl"},
	}
	updated := []row.Row{
		{"id": int64(11), "name": "Bob"},   // changed
		{"id": int64(13), "name": "Dana"},  // added
	}

	d := Compute(old, updated, sel)
	assert.Equal(t, 1, len(d.Added))
	assert.Equal(t, "Dana", d.Added[0]["name"])
	assert.Equal(t, 1, len(d.Changed))
	assert.Equal(t, "Bob", d.Changed[0]["name"])
	assert.Equal(t, 1, len(d.Removed))
	assert.Equal(t, "Carl", d.Removed[0]["name"])
}

func TestComputeTreatsEqualDecodedJSONAsUnchanged(t *testing.T) {
	sel := keysel.ByColumns("id")
	old := []row.Row{{"id": int64(1), "profile": map[string]interface{}{"age": float64(30)}}}
	updated := []row.Row{{"id": int64(1), "profile": map[string]interface{}{"age": float64(30)}}}

	d := Compute(old, updated, sel)
	assert.Assert(t, d.Empty())
}

func TestComputeFlagsChangedJSONStructure(t *testing.T) {
	sel := keysel.ByColumns("id")
	old := []row.Row{{"id": int64(1), "profile": map[string]interface{}{"age": float64(30)}}}
	updated := []row.Row{{"id": int64(1), "profile": map[string]interface{}{"age": float64(31)}}}

	d := Compute(old, updated, sel)
	assert.Equal(t, 1, len(d.Changed))
}

func TestResultEmpty(t *testing.T) {
	assert.Assert(t, (Result{}).Empty())
	assert.Assert(t, !(Result{Added: []row.Row{{}}}).Empty())
}
