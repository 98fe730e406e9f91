// Package row defines the typed row representation shared by the snapshot
// store, the mutation applicator, the diff engine, and emitted live-query
// results.
package row

import "encoding/json"

// Row maps a tracked column name to its decoded value. Values are one of
// int64, float64, string, []byte, nil, or a decoded JSON structure
// (map[string]interface{} / []interface{} / string / float64 / bool / nil)
// when the column held JSON-affinity text; see the jsonval package.
type Row map[string]interface{}

// Copy returns a shallow copy of the row. Column values themselves are
// treated as immutable once decoded, so a shallow copy is sufficient to
// prevent a caller from mutating the snapshot store's own map.
func (r Row) Copy() Row {
	if r == nil {
		return nil
	}
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// ToJSON serializes the row for logging and for WAL-adjacent diagnostics:
// dbhandle.Handle.RefetchRow logs its result this way at debug level.
func (r Row) ToJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(r))
}
