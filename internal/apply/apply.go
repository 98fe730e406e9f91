// Package apply implements the mutation applicator: it takes a
// batch of decoded observations, reconciles each one against the snapshot
// store to produce a typed Mutation, and then evaluates every live query's
// trigger list against that mutation to decide which queries are
// invalidated.
//
// Invalidations only fire once the whole batch has been applied to the
// snapshot store, so that predicates observe a coherent post-batch state:
// Apply applies every observation of the batch before evaluating any
// trigger.
package apply

import (
	"github.com/leengari/sqlive/internal/mutate"
	"github.com/leengari/sqlive/internal/row"
	"github.com/leengari/sqlive/internal/snapshot"
)

// Observation is one raw (table, rowid, row-or-tombstone) fact produced by
// the frame decoder, before reconciliation against the snapshot store.
type Observation struct {
	Table string
	Rowid int64
	New   row.Row // nil means tombstone (inferred or observed delete)
}

// TriggerSource is the subset of the live-query registry the applicator
// needs: given a table name, the set of (query ID, triggers) pairs
// subscribed to it.
type TriggerSource interface {
	TriggersForTable(table string) []QuerySubscription
}

// QuerySubscription pairs a live query's stable identifier with the
// triggers it registered for one table.
type QuerySubscription struct {
	QueryID  string
	Triggers []mutate.Trigger
}

// Applicator reconciles observations against a snapshot store and reports
// which live queries they invalidate.
type Applicator struct {
	store *snapshot.Store
}

// New returns an Applicator backed by store.
func New(store *snapshot.Store) *Applicator {
	return &Applicator{store: store}
}

// Apply reconciles every observation in order (frame order, then
// cell-pointer order within a page; the caller is responsible for
// supplying observations in that order) and returns the resulting
// mutations plus the set of invalidated query IDs, deduplicated.
func (a *Applicator) Apply(observations []Observation, triggers TriggerSource) ([]mutate.Mutation, []string) {
	mutations := make([]mutate.Mutation, 0, len(observations))
	for _, obs := range observations {
		m := a.store.Apply(obs.Table, obs.Rowid, obs.New)
		if m.Kind == mutate.Ignored {
			continue
		}
		mutations = append(mutations, m)
	}

	invalidated := make(map[string]struct{})
	var order []string
	for _, m := range mutations {
		for _, sub := range triggers.TriggersForTable(m.Table) {
			if _, already := invalidated[sub.QueryID]; already {
				continue
			}
			for _, trig := range sub.Triggers {
				if trig.Matches(m) {
					invalidated[sub.QueryID] = struct{}{}
					order = append(order, sub.QueryID)
					break
				}
			}
		}
	}
	return mutations, order
}
