// Package snapshot keeps an in-memory, rowid-keyed copy of each tracked
// table's cached columns. It is the engine's single source of truth for
// "what a table currently looks like" and is the only place mutation
// classification (insert vs. update vs. delete) happens.
package snapshot

import (
	"sync"

	"github.com/leengari/sqlive/internal/mutate"
	"github.com/leengari/sqlive/internal/row"
)

// Store holds a rowid -> row map per table, guarded by its own lock so the
// single-threaded executor can still be reasoned about independently of
// any concurrent fallback re-read issued on the primary connection.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[int64]row.Row
}

// New returns an empty snapshot store.
func New() *Store {
	return &Store{tables: make(map[string]map[int64]row.Row)}
}

// EnsureCached registers table (if not already present) with the supplied
// initial rows, loaded by the caller from the live database. Idempotent:
// calling it again for an already-cached table is a no-op, since the
// system is expected to track cached state incrementally from then on.
func (s *Store) EnsureCached(table string, initial map[int64]row.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; ok {
		return
	}
	cp := make(map[int64]row.Row, len(initial))
	for rowid, r := range initial {
		cp[rowid] = r.Copy()
	}
	s.tables[table] = cp
}

// IsCached reports whether table has been registered via EnsureCached.
func (s *Store) IsCached(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[table]
	return ok
}

// Get returns the cached row for (table, rowid), or (nil, false) if the
// rowid is absent, meaning either never-seen or deleted.
func (s *Store) Get(table string, rowid int64) (row.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	r, ok := rows[rowid]
	if !ok {
		return nil, false
	}
	return r.Copy(), true
}

// Apply reconciles an incoming observation for (table, rowid) against the
// store and returns the typed Mutation that occurred. newRow is nil for a
// tombstone (an inferred or observed deletion). After Apply returns, the
// store reflects the incoming row exactly for all cached columns, or the
// rowid is absent if this was a (non-ignored) delete.
func (s *Store) Apply(table string, rowid int64, newRow row.Row) mutate.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[int64]row.Row)
		s.tables[table] = rows
	}

	old, existed := rows[rowid]

	switch {
	case newRow != nil && !existed:
		rows[rowid] = newRow.Copy()
		return mutate.Mutation{Table: table, Rowid: rowid, Kind: mutate.Insert, New: newRow}
	case newRow != nil && existed:
		rows[rowid] = newRow.Copy()
		return mutate.Mutation{Table: table, Rowid: rowid, Kind: mutate.Update, Old: old, New: newRow}
	case newRow == nil && existed:
		delete(rows, rowid)
		return mutate.Mutation{Table: table, Rowid: rowid, Kind: mutate.Delete, Old: old}
	default: // newRow == nil && !existed
		return mutate.Mutation{Table: table, Rowid: rowid, Kind: mutate.Ignored}
	}
}

// RowidsForTable returns every rowid currently cached for table, used by
// the frame decoder's deletion-inference pass to diff the page image's new
// cell set against what the store still believes exists.
func (s *Store) RowidsForTable(table string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(rows))
	for rowid := range rows {
		out = append(out, rowid)
	}
	return out
}
