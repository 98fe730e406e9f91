// Package keysel implements the live query's key selector: the function
// mapping a result row to a comparable key the diff engine uses to match
// rows across two executions of the same query.
//
// Modeled as a tagged variant ("polymorphic key selector... not
// inheritance") with three cases, dispatched by a type switch at diff time
// rather than by a shared interface method, so a Selector value stays a
// plain comparable-free data value until the moment it is used.
package keysel

import (
	"fmt"
	"strings"

	"github.com/leengari/sqlive/internal/row"
)

// Kind identifies which key-selector case a Selector holds.
type Kind int

const (
	Index Kind = iota
	Column
	Custom
)

// Selector picks a comparable key out of a result row. Exactly one of the
// three cases applies, chosen by Kind:
//   - Index: the key is the row's position in the result sequence, supplied
//     by the caller at key-computation time (Selector itself carries no
//     state for this case).
//   - Column: the key is a tuple of the named columns' values.
//   - Custom: the key is whatever the function passed to ByFunc returns.
type Selector struct {
	kind    Kind
	columns []string
	fn      func(row.Row) interface{}
}

// ByIndex returns an index-keyed selector.
func ByIndex() Selector { return Selector{kind: Index} }

// ByColumns returns a column-keyed selector over the given column names, in
// order; the resulting key is a single delimited string of each column's
// type and value (see Key), so it remains comparable (usable as a Go map
// key).
func ByColumns(columns ...string) Selector {
	cp := append([]string(nil), columns...)
	return Selector{kind: Column, columns: cp}
}

// ByFunc returns a custom-keyed selector. fn must return a comparable
// value (it is used as a map key by the diff engine).
func ByFunc(fn func(row.Row) interface{}) Selector {
	return Selector{kind: Custom, fn: fn}
}

// Kind reports which case this selector is.
func (s Selector) Kind() Kind { return s.kind }

// Key computes the key for row r at position idx within its result
// sequence. idx is only consulted for Index selectors.
//
// A []interface{} tuple cannot itself be used as a Go map key, so a
// Column-keyed selector joins each value's type and formatted value into a
// single delimited string; this keeps the key comparable for any number of
// columns while still distinguishing e.g. int64(1) from "1".
func (s Selector) Key(r row.Row, idx int) interface{} {
	switch s.kind {
	case Index:
		return idx
	case Column:
		var b strings.Builder
		for _, col := range s.columns {
			fmt.Fprintf(&b, "%T:%v\x1f", r[col], r[col])
		}
		return b.String()
	case Custom:
		return s.fn(r)
	default:
		return idx
	}
}
