// Package mutate defines the typed row-mutation event produced by
// reconciling a decoded WAL observation against the snapshot store, and the
// Trigger type whose predicates the applicator (internal/apply) evaluates
// to fan a batch of such mutations out to interested live queries.
//
// The Kind/Mutation shape generalizes a writer's own change-log pair from
// "operations logged by this engine's own writer" to "operations inferred
// by observing someone else's WAL".
package mutate

import "github.com/leengari/sqlive/internal/row"

// Kind classifies a reconciled mutation.
type Kind int

const (
	// Ignored marks a tombstone for a rowid the snapshot store never held
	// (e.g. a delete inferred for a row this session never cached).
	Ignored Kind = iota
	Insert
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "ignored"
	}
}

// Mutation is the reconciled result of applying one observation to the
// snapshot store. Insert has a nil Old; Delete has a nil New; Update has
// both.
type Mutation struct {
	Table string
	Rowid int64
	Kind  Kind
	Old   row.Row
	New   row.Row
}

// Trigger is a client-supplied (table, optional predicate) pair directing
// when a mutation should invalidate a live query. It is unrelated to
// database-side triggers; Predicate may be nil to mean "any mutation on
// this table invalidates".
type Trigger struct {
	Table     string
	Predicate func(newRow, oldRow row.Row, deleted bool) bool
}

// Matches reports whether mutation m should invalidate a query registered
// with this trigger.
func (t Trigger) Matches(m Mutation) bool {
	if t.Table != m.Table {
		return false
	}
	if t.Predicate == nil {
		return true
	}
	return t.Predicate(m.New, m.Old, m.Kind == Delete)
}
