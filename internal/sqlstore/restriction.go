package sqlstore

import (
	"sort"
	"sync"
)

// Restriction forces Column of Table to Value: reads and deletes filter on
// it, inserts set it.
type Restriction struct {
	Table  string
	Column string
	Value  any
}

// Restrictions is the set of table restrictions of one store. It is shared
// configuration, not per-request state; queries take a snapshot with For when
// they are built.
type Restrictions struct {
	mu      sync.RWMutex
	byTable map[string]map[string]any
}

// NewRestrictions returns an empty restriction set.
func NewRestrictions() *Restrictions {
	return &Restrictions{byTable: make(map[string]map[string]any)}
}

// Set adds or replaces the restriction on table.column.
func (r *Restrictions) Set(table, column string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cols, ok := r.byTable[table]
	if !ok {
		cols = make(map[string]any)
		r.byTable[table] = cols
	}
	cols[column] = value
}

// Remove drops the restriction on table.column, if any.
func (r *Restrictions) Remove(table, column string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cols, ok := r.byTable[table]
	if !ok {
		return
	}
	delete(cols, column)
	if len(cols) == 0 {
		delete(r.byTable, table)
	}
}

// Reset drops every restriction.
func (r *Restrictions) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTable = make(map[string]map[string]any)
}

// For returns the restrictions on table ordered by column name. A nil
// receiver has no restrictions.
func (r *Restrictions) For(table string) []Restriction {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	cols := r.byTable[table]
	if len(cols) == 0 {
		return nil
	}
	out := make([]Restriction, 0, len(cols))
	for col, val := range cols {
		out = append(out, Restriction{Table: table, Column: col, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}
