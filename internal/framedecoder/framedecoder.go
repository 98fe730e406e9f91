// Package framedecoder walks the raw frame bytes a walwatch.Batch carries:
// 24-byte frame header, one page-size payload per frame, leaf table B-tree
// cell walk via internal/btree, and deletion inference by diffing the
// page's new rowid set against what the snapshot store still holds for
// that table. Index pages and unresolved page numbers are skipped; rows
// whose cell spills to an overflow page, and every cached row of a table
// whose root page has split into an interior page, are queued for a
// live-database fallback re-read instead of being decoded (or guessed at)
// from an incomplete local page image.
package framedecoder

import (
	"encoding/binary"

	"github.com/leengari/sqlive/internal/apply"
	"github.com/leengari/sqlive/internal/btree"
	"github.com/leengari/sqlive/internal/jsonval"
	"github.com/leengari/sqlive/internal/row"
	"github.com/leengari/sqlive/internal/schema"
)

// FrameHeaderSize is the fixed size of a SQLite WAL frame header.
const FrameHeaderSize = 24

// FrameHeader is one decoded 24-byte WAL frame header.
type FrameHeader struct {
	PageNumber uint32
	CommitSize uint32 // non-zero marks this frame as the last in a committed transaction
	Salt1      uint32
	Salt2      uint32
	Checksum1  uint32
	Checksum2  uint32
}

// Fallback re-fetches a row's current cached-column values live, used for
// rows whose cell spilled to an overflow page, and for every cached row of
// a table whose root page is observed as an interior page. Pages unknown to
// the resolver are skipped, not re-fetched. Implemented by internal/dbhandle.
type Fallback interface {
	RefetchRow(table string, rowid int64) (row.Row, bool, error)
}

// Snapshot is the subset of internal/snapshot's Store the decoder needs to
// infer deletions (the page's new rowid set vs. what the store still
// believes is cached for that table).
type Snapshot interface {
	RowidsForTable(table string) []int64
}

// Decode walks every frame in frameBytes and returns the observations it
// produced, in frame order (then cell-pointer order within a page), ready
// for the applicator to reconcile against the snapshot store. resolver maps
// a frame's page number to a tracked table (unresolved pages are skipped);
// fallback is consulted for overflowed cells and for tables whose root page
// has outgrown a single leaf page (see schema.Table.PagesIncomplete).
//
// Deletion inference (comparing a page's new cell set against what the
// snapshot store still holds for that table) is only valid when the page
// decoded this batch is provably the table's only page: a root page that
// has split into an interior page plus leaf children is no longer fully
// observed through this resolver, which only ever maps the root page
// number, so diffing against it would wrongly tombstone every cached row
// that happens to live on a leaf page this batch didn't touch. Such tables
// are instead reconciled by re-fetching every currently cached rowid
// through fallback.
func Decode(frameBytes []byte, pageSize int, resolver *schema.Resolver, snap Snapshot, fallback Fallback) ([]apply.Observation, error) {
	var observations []apply.Observation
	frameSize := FrameHeaderSize + pageSize

	seenRowids := make(map[string]map[int64]struct{})
	ambiguousTables := make(map[string]struct{})

	off := 0
	for off+frameSize <= len(frameBytes) {
		header := decodeFrameHeader(frameBytes[off : off+FrameHeaderSize])
		page := frameBytes[off+FrameHeaderSize : off+frameSize]
		off += frameSize

		table, ok := resolver.TableForPage(int64(header.PageNumber))
		if !ok {
			continue
		}

		t, ok := resolver.Table(table)
		if !ok {
			continue
		}

		if len(page) == 0 || page[0] != btree.LeafTablePage {
			// Index pages and anything else not a table B-tree page are
			// outside this module's scope. An interior table page means
			// the root has split: the table's rows no longer fit on the
			// one page this resolver tracks.
			if len(page) > 0 && page[0] == btree.InteriorTablePage {
				t.PagesIncomplete = true
				ambiguousTables[table] = struct{}{}
			}
			continue
		}

		// The root page is a leaf again (either it never split, or a
		// prior ambiguous state has been superseded by a fresh full page
		// image): this page's cell set is once more the table's complete
		// rowid set.
		t.PagesIncomplete = false

		cellCount, err := btree.CellCount(page)
		if err != nil {
			return observations, err
		}

		rowidsThisPage := seenRowids[table]
		if rowidsThisPage == nil {
			rowidsThisPage = make(map[int64]struct{})
			seenRowids[table] = rowidsThisPage
		}

		for i := 0; i < cellCount; i++ {
			ptr, err := btree.CellPointer(page, i)
			if err != nil {
				return observations, err
			}
			rowid, payload, overflowed, err := btree.DecodeLeafCell(page, ptr, pageSize)
			if err != nil {
				return observations, err
			}
			rowidsThisPage[rowid] = struct{}{}

			if overflowed {
				if fallback == nil {
					continue
				}
				r, found, err := fallback.RefetchRow(table, rowid)
				if err != nil {
					return observations, err
				}
				if !found {
					continue
				}
				observations = append(observations, apply.Observation{Table: table, Rowid: rowid, New: applyJSONAffinity(r)})
				continue
			}

			r, err := btree.DecodeRecord(payload, t, rowid)
			if err != nil {
				return observations, err
			}
			observations = append(observations, apply.Observation{Table: table, Rowid: rowid, New: applyJSONAffinity(r)})
		}
	}

	for table, rowids := range seenRowids {
		for _, cachedRowid := range snap.RowidsForTable(table) {
			if _, stillPresent := rowids[cachedRowid]; !stillPresent {
				observations = append(observations, apply.Observation{Table: table, Rowid: cachedRowid, New: nil})
			}
		}
	}

	if fallback != nil {
		for table := range ambiguousTables {
			for _, cachedRowid := range snap.RowidsForTable(table) {
				r, found, err := fallback.RefetchRow(table, cachedRowid)
				if err != nil {
					return observations, err
				}
				if !found {
					observations = append(observations, apply.Observation{Table: table, Rowid: cachedRowid, New: nil})
					continue
				}
				observations = append(observations, apply.Observation{Table: table, Rowid: cachedRowid, New: applyJSONAffinity(r)})
			}
		}
	}

	return observations, nil
}

// applyJSONAffinity rewrites every TEXT-affinity value in r that happens to
// decode as valid JSON into its decoded structure.
func applyJSONAffinity(r row.Row) row.Row {
	for col, v := range r {
		if decoded, ok := jsonval.Decode(v); ok {
			r[col] = decoded
		}
	}
	return r
}

func decodeFrameHeader(buf []byte) FrameHeader {
	return FrameHeader{
		PageNumber: binary.BigEndian.Uint32(buf[0:4]),
		CommitSize: binary.BigEndian.Uint32(buf[4:8]),
		Salt1:      binary.BigEndian.Uint32(buf[8:12]),
		Salt2:      binary.BigEndian.Uint32(buf[12:16]),
		Checksum1:  binary.BigEndian.Uint32(buf[16:20]),
		Checksum2:  binary.BigEndian.Uint32(buf[20:24]),
	}
}
