package framedecoder

import (
	"encoding/binary"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/sqlive/internal/apply"
	"github.com/leengari/sqlive/internal/btree"
	"github.com/leengari/sqlive/internal/row"
	"github.com/leengari/sqlive/internal/schema"
)

// encodeVarint mirrors SQLite's packed varint format; duplicated here (and
// in internal/btree's test file) rather than exported from production code,
// since it exists purely to construct synthetic fixtures.
func encodeVarint(v int64) []byte {
	u := uint64(v)
	var buf [10]byte
	n := 0
	for {
		buf[n] = byte(u&0x7f) | 0x80
		n++
		u >>= 7
		if u == 0 {
			break
		}
	}
	buf[0] &^= 0x80
	out := make([]byte, n)
	for i, j := 0, n-1; j >= 0; j, i = j-1, i+1 {
		out[i] = buf[j]
	}
	return out
}

// buildInsertOnlyRecord builds a two-column (rowid-alias id, text name)
// record. It assumes a single-byte header-length varint, true for every
// name used by these fixtures (short enough that header length stays
// under 128).
func buildInsertOnlyRecord(rowid int64, name string) []byte {
	nameSerial := int64(13 + 2*len(name))
	header := append([]byte{}, encodeVarint(0)...)
	header = append(header, encodeVarint(nameSerial)...)
	hlBytes := encodeVarint(int64(len(header) + 1))
	out := append([]byte{}, hlBytes...)
	out = append(out, header...)
	out = append(out, []byte(name)...)
	return out
}

func buildLeafPage(pageSize int, rows map[int64]string) []byte {
	page := make([]byte, pageSize)
	page[0] = btree.LeafTablePage

	var cells [][]byte
	for rowid, name := range rows {
		record := buildInsertOnlyRecord(rowid, name)
		cell := append([]byte{}, encodeVarint(int64(len(record)))...)
		cell = append(cell, encodeVarint(rowid)...)
		cell = append(cell, record...)
		cells = append(cells, cell)
	}

	binary.BigEndian.PutUint16(page[3:5], uint16(len(cells)))

	// Lay cells out from the end of the page backward, writing pointers in
	// cell-pointer-array order, matching SQLite's own leaf page layout.
	cellEnd := pageSize
	ptrOff := btree.CellPointerArrayOffset
	for _, cell := range cells {
		cellEnd -= len(cell)
		copy(page[cellEnd:], cell)
		binary.BigEndian.PutUint16(page[ptrOff:ptrOff+2], uint16(cellEnd))
		ptrOff += 2
	}
	return page
}

func buildFrame(pageNumber uint32, page []byte) []byte {
	header := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], pageNumber)
	return append(header, page...)
}

type fakeSnapshot struct {
	rowids map[string][]int64
}

func (f *fakeSnapshot) RowidsForTable(table string) []int64 { return f.rowids[table] }

func playersResolver() *schema.Resolver {
	r := schema.NewResolver()
	r.Register(&schema.Table{
		Name:     "players",
		RootPage: 4,
		Columns: []schema.Column{
			{Name: "id", Affinity: schema.AffinityInteger, RowidAlias: true},
			{Name: "name", Affinity: schema.AffinityText},
		},
	})
	return r
}

func TestDecodeProducesInsertObservation(t *testing.T) {
	pageSize := 512
	page := buildLeafPage(pageSize, map[int64]string{11: "Alice"})
	frame := buildFrame(4, page)

	resolver := playersResolver()
	snap := &fakeSnapshot{rowids: map[string][]int64{"players": {}}}

	observations, err := Decode(frame, pageSize, resolver, snap, nil)
	assert.NilError(t, err)
	assert.Equal(t, 1, len(observations))
	assert.Equal(t, "players", observations[0].Table)
	assert.Equal(t, int64(11), observations[0].Rowid)
	assert.Equal(t, "Alice", observations[0].New["name"])
}

func TestDecodeInfersDeletionFromMissingRowid(t *testing.T) {
	pageSize := 512
	page := buildLeafPage(pageSize, map[int64]string{11: "Alice"}) // rowid 12 no longer present
	frame := buildFrame(4, page)

	resolver := playersResolver()
	snap := &fakeSnapshot{rowids: map[string][]int64{"players": {11, 12}}}

	observations, err := Decode(frame, pageSize, resolver, snap, nil)
	assert.NilError(t, err)

	var sawDelete bool
	for _, o := range observations {
		if o.Rowid == 12 && o.New == nil {
			sawDelete = true
		}
	}
	assert.Assert(t, sawDelete, "rowid 12 absent from the new page image must be inferred as deleted")
}

func TestDecodeSkipsUnresolvedPageNumber(t *testing.T) {
	pageSize := 512
	page := buildLeafPage(pageSize, map[int64]string{1: "Whatever"})
	frame := buildFrame(99, page) // page 99 is not registered with any table

	resolver := playersResolver()
	snap := &fakeSnapshot{}

	observations, err := Decode(frame, pageSize, resolver, snap, nil)
	assert.NilError(t, err)
	assert.Equal(t, 0, len(observations))
}

func TestDecodeSkipsNonLeafPages(t *testing.T) {
	pageSize := 512
	page := make([]byte, pageSize)
	page[0] = btree.InteriorTablePage
	frame := buildFrame(4, page)

	resolver := playersResolver()
	snap := &fakeSnapshot{}

	observations, err := Decode(frame, pageSize, resolver, snap, nil)
	assert.NilError(t, err)
	assert.Equal(t, 0, len(observations))
}

type fakeFallback struct {
	rows map[int64]string // rowid -> name; absent rowid means "no longer exists"
}

func (f *fakeFallback) RefetchRow(table string, rowid int64) (row.Row, bool, error) {
	name, ok := f.rows[rowid]
	if !ok {
		return nil, false, nil
	}
	return row.Row{"id": rowid, "name": name}, true, nil
}

// TestDecodeReconcilesSplitRootThroughFallback covers a table whose root
// page has split into an interior page: rows 11 and 12 were cached before
// the split, and neither one is on the interior page image itself, so a
// naive diff against the page's (empty) cell set would wrongly tombstone
// both. Only row 12 has actually been deleted; row 11 still exists on some
// leaf page this resolver never learned about and must be reconfirmed
// through the fallback instead of guessed at.
func TestDecodeReconcilesSplitRootThroughFallback(t *testing.T) {
	pageSize := 512
	page := make([]byte, pageSize)
	page[0] = btree.InteriorTablePage
	frame := buildFrame(4, page)

	resolver := playersResolver()
	snap := &fakeSnapshot{rowids: map[string][]int64{"players": {11, 12}}}
	fallback := &fakeFallback{rows: map[int64]string{11: "Alice"}}

	observations, err := Decode(frame, pageSize, resolver, snap, fallback)
	assert.NilError(t, err)
	assert.Equal(t, 2, len(observations))

	byRowid := make(map[int64]apply.Observation, len(observations))
	for _, o := range observations {
		byRowid[o.Rowid] = o
	}
	assert.Assert(t, byRowid[11].New != nil, "row 11 must be reconfirmed alive, not tombstoned")
	assert.Equal(t, "Alice", byRowid[11].New["name"])
	assert.Assert(t, byRowid[12].New == nil, "row 12 is genuinely gone per the fallback")

	tbl, ok := resolver.Table("players")
	assert.Assert(t, ok)
	assert.Assert(t, tbl.PagesIncomplete, "root page observed as interior must mark the table incomplete")
}

// TestDecodeClearsPagesIncompleteOnFreshLeafImage covers the table
// recovering back to a single leaf page (e.g. after rows were deleted and
// SQLite merged the split back down): once the root is observed as a leaf
// again, its cell set is once more authoritative and PagesIncomplete must
// clear so ordinary diff-based deletion inference resumes.
func TestDecodeClearsPagesIncompleteOnFreshLeafImage(t *testing.T) {
	pageSize := 512
	resolver := playersResolver()
	tbl, ok := resolver.Table("players")
	assert.Assert(t, ok)
	tbl.PagesIncomplete = true

	page := buildLeafPage(pageSize, map[int64]string{11: "Alice"})
	frame := buildFrame(4, page)
	snap := &fakeSnapshot{rowids: map[string][]int64{"players": {11}}}

	_, err := Decode(frame, pageSize, resolver, snap, nil)
	assert.NilError(t, err)
	assert.Assert(t, !tbl.PagesIncomplete)
}
