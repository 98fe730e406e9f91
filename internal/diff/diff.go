// Package diff computes the added/changed/removed row sets between a live
// query's previously emitted result and a freshly executed one, keyed by
// the query's key selector.
package diff

import (
	"reflect"

	"github.com/leengari/sqlive/internal/keysel"
	"github.com/leengari/sqlive/internal/row"
)

// Result holds the three ordered diff sequences. Order within each
// sequence follows the order of appearance in new (for Added/Changed) or
// old (for Removed).
type Result struct {
	Added   []row.Row
	Changed []row.Row
	Removed []row.Row
}

// Empty reports whether the diff carries no changes at all.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Changed) == 0 && len(r.Removed) == 0
}

// Compute diffs newResult against oldResult (oldResult may be nil, meaning
// "no prior execution": every new row is then Added and the other
// sequences are empty).
func Compute(oldResult, newResult []row.Row, sel keysel.Selector) Result {
	if oldResult == nil {
		return Result{Added: append([]row.Row(nil), newResult...)}
	}

	oldByKey := make(map[interface{}]row.Row, len(oldResult))
	for i, r := range oldResult {
		oldByKey[sel.Key(r, i)] = r
	}
	newByKey := make(map[interface{}]struct{}, len(newResult))

	var out Result
	for i, r := range newResult {
		k := sel.Key(r, i)
		newByKey[k] = struct{}{}
		old, existed := oldByKey[k]
		switch {
		case !existed:
			out.Added = append(out.Added, r)
		case !rowsEqual(old, r):
			out.Changed = append(out.Changed, r)
		}
	}
	for i, r := range oldResult {
		k := sel.Key(r, i)
		if _, stillPresent := newByKey[k]; !stillPresent {
			out.Removed = append(out.Removed, r)
		}
	}
	return out
}

// rowsEqual performs a deep equality check across all cached columns.
// Values already carry whatever shape jsonval.Decode produced for
// JSON-affinity text columns (nested maps/slices included), so
// reflect.DeepEqual naturally treats two structurally-equal decoded JSON
// values as equal without any special casing here.
func rowsEqual(a, b row.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for col, av := range a {
		bv, ok := b[col]
		if !ok || !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
