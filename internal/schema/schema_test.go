package schema

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestInferAffinity(t *testing.T) {
	cases := []struct {
		declared string
		want     Affinity
	}{
		{"INTEGER", AffinityInteger},
		{"int", AffinityInteger},
		{"VARCHAR(30)", AffinityText},
		{"TEXT", AffinityText},
		{"CLOB", AffinityText},
		{"", AffinityBlob},
		{"BLOB", AffinityBlob},
		{"REAL", AffinityReal},
		{"DOUBLE", AffinityReal},
		{"FLOAT", AffinityReal},
		{"NUMERIC", AffinityNumeric},
		{"DECIMAL(10,2)", AffinityNumeric},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, InferAffinity(c.declared), c.declared)
	}
}

func TestCacheSpecWantsIncludeOnly(t *testing.T) {
	spec := CacheSpec{Include: []string{"id", "name"}}
	assert.Assert(t, spec.Wants("id"))
	assert.Assert(t, !spec.Wants("password"))
}

func TestCacheSpecWantsExcludeOnly(t *testing.T) {
	spec := CacheSpec{Exclude: []string{"password"}}
	assert.Assert(t, !spec.Wants("password"))
	assert.Assert(t, spec.Wants("name"))
}

func TestCacheSpecWantsEverythingByDefault(t *testing.T) {
	var spec CacheSpec
	assert.Assert(t, spec.Wants("anything"))
}

func TestResolverRegisterAndLookup(t *testing.T) {
	r := NewResolver()
	table := &Table{
		Name:     "players",
		RootPage: 4,
		Columns: []Column{
			{Name: "id", Affinity: AffinityInteger, RowidAlias: true},
			{Name: "name", Affinity: AffinityText},
		},
	}
	r.Register(table)

	name, ok := r.TableForPage(4)
	assert.Assert(t, ok)
	assert.Equal(t, "players", name)

	_, ok = r.TableForPage(5)
	assert.Assert(t, !ok)

	got, ok := r.Table("players")
	assert.Assert(t, ok)
	assert.Equal(t, int64(4), got.RootPage)

	assert.Assert(t, r.Tracked("players"))
	assert.Assert(t, !r.Tracked("orders"))
}

func TestCachedColumnNamesRespectsExclude(t *testing.T) {
	table := &Table{
		Columns: []Column{
			{Name: "id"},
			{Name: "name"},
			{Name: "password"},
		},
		Cache: CacheSpec{Exclude: []string{"password"}},
	}
	assert.DeepEqual(t, []string{"id", "name"}, table.CachedColumnNames())
}
