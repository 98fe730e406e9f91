// Package btree decodes the on-disk encoding of a SQLite leaf table B-tree
// page: the cell-pointer array, each cell's (payload size, rowid, payload)
// triple, and the record header / column body encoding within a cell's
// payload. Only leaf table B-tree pages (page-type byte 0x0D) are
// interpreted; interior pages and index pages are skipped by the caller,
// and overflow-chained payloads are not walked; both are documented
// limitations, not oversights.
package btree

import (
	"encoding/binary"
	"math"

	"github.com/leengari/sqlive/internal/engineerr"
	"github.com/leengari/sqlive/internal/row"
	"github.com/leengari/sqlive/internal/schema"
	"github.com/leengari/sqlive/internal/varint"
)

// LeafTablePage is the page-type byte for a leaf table B-tree page.
const LeafTablePage = 0x0D

// InteriorTablePage is the page-type byte for an interior table B-tree page.
const InteriorTablePage = 0x05

// CellPointerArrayOffset is the byte offset of the first two-byte cell
// pointer on a leaf page (after the 8-byte leaf page header).
const CellPointerArrayOffset = 8

// CellCountOffset is the byte offset of the 2-byte cell-count field.
const CellCountOffset = 3

// CellCount reads the number of cells on a leaf or interior page.
func CellCount(page []byte) (int, error) {
	if len(page) < CellCountOffset+2 {
		return 0, engineerr.CorruptFrame
	}
	return int(binary.BigEndian.Uint16(page[CellCountOffset : CellCountOffset+2])), nil
}

// CellPointer returns the byte offset within page of the i-th cell, reading
// the big-endian two-byte pointer at the usual leaf-page offset.
func CellPointer(page []byte, i int) (int, error) {
	off := CellPointerArrayOffset + i*2
	if len(page) < off+2 {
		return 0, engineerr.CorruptFrame
	}
	return int(binary.BigEndian.Uint16(page[off : off+2])), nil
}

// DecodeLeafCell decodes one leaf table B-tree cell starting at byte offset
// cellOffset within page: a payload-size varint, a rowid varint, then the
// payload bytes themselves. It does not follow an overflow page chain; if
// the locally-stored payload is shorter than the declared payload size
// (the cell spills to an overflow page), DecodeLeafCell returns
// overflowed=true and the caller must re-fetch the row from the live
// database instead of decoding the truncated bytes.
func DecodeLeafCell(page []byte, cellOffset int, pageSize int) (rowid int64, payload []byte, overflowed bool, err error) {
	if cellOffset < 0 || cellOffset >= len(page) {
		return 0, nil, false, engineerr.CorruptFrame
	}
	buf := page[cellOffset:]

	payloadSize, n1, err := varint.Read(buf)
	if err != nil {
		return 0, nil, false, err
	}
	buf = buf[n1:]

	rowid, n2, err := varint.Read(buf)
	if err != nil {
		return 0, nil, false, err
	}
	buf = buf[n2:]

	// SQLite's local-payload threshold for table leaf cells: payloads up to
	// (usableSize - 35) bytes are stored entirely in the cell; larger ones
	// spill the remainder onto an overflow chain. usableSize is
	// conservatively treated as pageSize here (no reserved-bytes-per-page
	// region is tracked by this module).
	localMax := int64(pageSize - 35)
	local := payloadSize
	if local > localMax {
		local = localMax
		overflowed = true
	}
	if int64(len(buf)) < local {
		return 0, nil, false, engineerr.CorruptFrame
	}
	return rowid, buf[:local], overflowed, nil
}

// DecodeRecord decodes a cell's payload (sans any overflow remainder) into
// a Row holding only the table's cached columns. Columns are parsed by
// walking the record header's serial-type varints in declaration order;
// bytes belonging to an uncached column are skipped by advancing past its
// serial-type size rather than materialized, per the snapshot store's
// invariant that non-cached columns are never observed.
func DecodeRecord(payload []byte, table *schema.Table, rowid int64) (row.Row, error) {
	headerLen, n, err := varint.Read(payload)
	if err != nil {
		return nil, err
	}
	header := payload[n:headerLen]
	body := payload[headerLen:]

	serialTypes := make([]int64, 0, len(table.Columns))
	for len(header) > 0 {
		st, sn, err := varint.Read(header)
		if err != nil {
			return nil, err
		}
		serialTypes = append(serialTypes, st)
		header = header[sn:]
	}

	out := make(row.Row, len(table.Columns))
	bodyOff := 0
	for i, col := range table.Columns {
		var st int64
		if i < len(serialTypes) {
			st = serialTypes[i]
		} else {
			st = 0 // trailing columns added by ALTER TABLE default to NULL
		}
		size := serialTypeSize(st)
		if bodyOff+size > len(body) {
			return nil, engineerr.CorruptFrame
		}
		chunk := body[bodyOff : bodyOff+size]
		bodyOff += size

		if !table.Cache.Wants(col.Name) {
			continue
		}

		if col.RowidAlias && st == 0 {
			out[col.Name] = rowid
			continue
		}
		out[col.Name] = decodeSerialValue(st, chunk)
	}
	return out, nil
}

// serialTypeSize returns the number of body bytes a serial type occupies.
func serialTypeSize(st int64) int {
	switch {
	case st == 0, st == 8, st == 9, st == 10, st == 11:
		return 0
	case st >= 1 && st <= 4:
		return int(st)
	case st == 5:
		return 6
	case st == 6, st == 7:
		return 8
	case st >= 12 && st%2 == 0:
		return int((st - 12) / 2)
	case st >= 12:
		return int((st - 13) / 2)
	default:
		return 0
	}
}

// decodeSerialValue materializes the typed Go value for one column body
// given its serial type.
func decodeSerialValue(st int64, chunk []byte) interface{} {
	switch {
	case st == 0:
		return nil
	case st == 8:
		return int64(0)
	case st == 9:
		return int64(1)
	case st == 10 || st == 11:
		return nil // reserved, not used by SQLite itself
	case st >= 1 && st <= 6:
		return decodeSignedInt(chunk)
	case st == 7:
		return math.Float64frombits(binary.BigEndian.Uint64(pad8(chunk)))
	case st >= 12 && st%2 == 0:
		return append([]byte(nil), chunk...)
	case st >= 12:
		return string(chunk)
	default:
		return nil
	}
}

// decodeSignedInt sign-extends a big-endian two's-complement integer of
// 1, 2, 3, 4, 6, or 8 bytes to int64.
func decodeSignedInt(chunk []byte) int64 {
	var u uint64
	for _, b := range chunk {
		u = u<<8 | uint64(b)
	}
	shift := uint(64 - 8*len(chunk))
	return int64(u<<shift) >> shift
}

func pad8(chunk []byte) []byte {
	if len(chunk) == 8 {
		return chunk
	}
	out := make([]byte, 8)
	copy(out, chunk)
	return out
}
