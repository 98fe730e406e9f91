// Package registry tracks every active live query: its bound statement and
// parameters, its key selector, the set of triggers that invalidate it, and
// the last result set recorded for it. Each query is assigned a stable identifier via
// google/uuid's uuid.NewString().
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/leengari/sqlive/internal/apply"
	"github.com/leengari/sqlive/internal/keysel"
	"github.com/leengari/sqlive/internal/mutate"
	"github.com/leengari/sqlive/internal/row"
)

// Query is one registered live query.
type Query struct {
	ID       string
	SQL      string
	Args     []interface{}
	Selector keysel.Selector
	Triggers []mutate.Trigger
	active   bool
	last     []row.Row
	hasLast  bool
}

// LastResult returns the most recently emitted result set for this query,
// and whether any result has been emitted yet.
func (q *Query) LastResult() ([]row.Row, bool) {
	return q.last, q.hasLast
}

// SetLastResult records the result set just emitted for this query.
func (q *Query) SetLastResult(rows []row.Row) {
	q.last = rows
	q.hasLast = true
}

// Active reports whether this query is currently live (not paused/stopped).
func (q *Query) Active() bool { return q.active }

// Registry is the set of all currently registered live queries, indexed by
// ID and by the tables each one's triggers reference.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Query
	byTable  map[string][]string // table -> query IDs subscribed to it
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[string]*Query),
		byTable: make(map[string][]string),
	}
}

// Register adds a new live query and returns it; its ID field holds the
// stable identifier.
func (r *Registry) Register(sql string, args []interface{}, sel keysel.Selector, triggers []mutate.Trigger) *Query {
	q := &Query{
		ID:       uuid.NewString(),
		SQL:      sql,
		Args:     append([]interface{}(nil), args...),
		Selector: sel,
		Triggers: append([]mutate.Trigger(nil), triggers...),
		active:   true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[q.ID] = q
	seen := make(map[string]struct{})
	for _, t := range q.Triggers {
		if _, dup := seen[t.Table]; dup {
			continue
		}
		seen[t.Table] = struct{}{}
		r.byTable[t.Table] = append(r.byTable[t.Table], q.ID)
	}
	return q
}

// Stop removes a live query from the registry entirely.
func (r *Registry) Stop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	for _, t := range q.Triggers {
		ids := r.byTable[t.Table]
		for i, existing := range ids {
			if existing == id {
				r.byTable[t.Table] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// Pause marks a query inactive without removing it: its triggers stop
// firing but its registration and last result are retained for Resume.
func (r *Registry) Pause(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.byID[id]; ok {
		q.active = false
	}
}

// Resume marks a paused query active again.
func (r *Registry) Resume(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.byID[id]; ok {
		q.active = true
	}
}

// Get returns the query registered under id.
func (r *Registry) Get(id string) (*Query, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.byID[id]
	return q, ok
}

// All returns every currently registered query, in no particular order.
func (r *Registry) All() []*Query {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Query, 0, len(r.byID))
	for _, q := range r.byID {
		out = append(out, q)
	}
	return out
}

// TriggersForTable implements apply.TriggerSource: it reports, for every
// active query subscribed to table, its ID and its trigger list. Paused
// queries are omitted, so an invalidated-but-paused query never fires.
func (r *Registry) TriggersForTable(table string) []apply.QuerySubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byTable[table]
	out := make([]apply.QuerySubscription, 0, len(ids))
	for _, id := range ids {
		q, ok := r.byID[id]
		if !ok || !q.active {
			continue
		}
		out = append(out, apply.QuerySubscription{QueryID: q.ID, Triggers: q.Triggers})
	}
	return out
}
