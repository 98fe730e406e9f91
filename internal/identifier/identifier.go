// Package identifier escapes SQL identifiers (table and column names) for
// safe interpolation into generated statements such as the fallback
// row-refetch query: wrap in double quotes, doubling any
// internal double quote.
//
// Neither mattn/go-sqlite3 nor golang-migrate operate below the level of a
// whole statement or already-built query, so there is no library to wire
// here; this is a deliberate stdlib-only helper (see DESIGN.md).
package identifier

import "strings"

// Quote returns name wrapped in double quotes with internal double quotes
// doubled, per SQLite's quoted-identifier syntax.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
