// Package schema resolves SQLite B-tree root page numbers to the tracked
// table they belong to, and caches each tracked table's ordered column list
// and declared affinity. Entries are built once per table, on first
// reference by a live query, by querying sqlite_master and PRAGMA
// table_info over the engine's own connection; apart from the
// PagesIncomplete flag, which the frame decoder updates, they are never
// mutated again within a session (schema change mid-session is out of
// scope, per the system's non-goals).
package schema

import "strings"

// Affinity is SQLite's column type affinity, inferred from the declared
// type name the same way SQLite itself does (see §3.1 of the SQLite
// file-format description). The leaf decoder does not consult it, since
// the record's own serial type is authoritative for the bytes actually
// stored; dbhandle uses it to recognise INTEGER PRIMARY KEY rowid aliases.
type Affinity int

const (
	AffinityBlob Affinity = iota
	AffinityText
	AffinityInteger
	AffinityReal
	AffinityNumeric
)

// InferAffinity applies SQLite's declared-type-name affinity rules.
func InferAffinity(declaredType string) Affinity {
	t := strings.ToUpper(declaredType)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	default:
		return AffinityNumeric
	}
}

// Column describes one column of a tracked table in declaration order.
type Column struct {
	Name     string
	Affinity Affinity
	// RowidAlias is true for the single INTEGER PRIMARY KEY column of a
	// WITHOUT ROWID-less rowid table: SQLite stores such a column's value
	// as a NULL serial type in the record body and supplies the real value
	// from the cell's own rowid field instead.
	RowidAlias bool
}

// CacheSpec selects which columns of a table the snapshot store retains.
// At most one of Include/Exclude is set; both empty means "all columns".
type CacheSpec struct {
	Include []string
	Exclude []string
}

// Wants reports whether column name should be cached/decoded.
func (c CacheSpec) Wants(name string) bool {
	if len(c.Include) > 0 {
		for _, n := range c.Include {
			if n == name {
				return true
			}
		}
		return false
	}
	for _, n := range c.Exclude {
		if n == name {
			return false
		}
	}
	return true
}

// Table is a tracked table's descriptor: its logical name, the B-tree root
// page number observed when the table was first resolved, its ordered
// columns, and the subset of those columns the engine caches.
type Table struct {
	Name     string
	RootPage int64
	Columns  []Column
	Cache    CacheSpec

	// PagesIncomplete is set once RootPage is observed holding an interior
	// page rather than a leaf page, meaning the table has outgrown a
	// single page and some of its rows now live on leaf pages this
	// resolver has no mapping for. While true, the frame decoder can no
	// longer trust a page image's cell set as the table's complete rowid
	// set and must fall back to a live re-read instead of inferring
	// deletions from what it did not see.
	PagesIncomplete bool
}

// CachedColumnNames returns the subset of Columns this table caches, in
// declaration order.
func (t *Table) CachedColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if t.Cache.Wants(c.Name) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Resolver maps B-tree root pages to tracked table names and holds each
// tracked table's descriptor. It is built lazily: a table descriptor is
// created the first time a live query references that table, via Catalog
// queries issued by the caller (see internal/dbhandle), and apart from its
// PagesIncomplete flag is then immutable for the life of the session.
type Resolver struct {
	byRootPage map[int64]string
	byName     map[string]*Table
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		byRootPage: make(map[int64]string),
		byName:     make(map[string]*Table),
	}
}

// Register adds or replaces a tracked table's descriptor and indexes it by
// root page number.
func (r *Resolver) Register(t *Table) {
	r.byName[t.Name] = t
	r.byRootPage[t.RootPage] = t.Name
}

// TableForPage returns the tracked table owning rootPage, or ("", false) if
// the page is unknown. On a miss the frame decoder skips the page. That
// includes pages of untracked tables and also non-root pages of a tracked
// table (e.g. leaf pages after a B-tree split), which the resolver has no
// mapping for.
func (r *Resolver) TableForPage(page int64) (string, bool) {
	name, ok := r.byRootPage[page]
	return name, ok
}

// Table returns the descriptor for a tracked table by name.
func (r *Resolver) Table(name string) (*Table, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Tracked reports whether name has been registered at all.
func (r *Resolver) Tracked(name string) bool {
	_, ok := r.byName[name]
	return ok
}
