// Package walwatch watches a SQLite WAL file for new frames and hands the
// raw new bytes to a callback, keyed off a last-processed offset, via a
// stat-then-read-new-bytes loop driven by fsnotify write events on the WAL
// path rather than polling.
package walwatch

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// HeaderSize is the fixed size of the SQLite WAL file header.
const HeaderSize = 32

// walMagicBigEndian and walMagicLittleEndian identify a valid WAL file and
// also record the checksum byte order used for frames within it.
const (
	walMagicBigEndian    uint32 = 0x377f0683
	walMagicLittleEndian uint32 = 0x377f0682
)

// Header is the decoded 32-byte WAL file header.
type Header struct {
	Magic          uint32
	FormatVersion  uint32
	PageSize       uint32
	CheckpointSeq  uint32
	Salt1          uint32
	Salt2          uint32
	Checksum1      uint32
	Checksum2      uint32
	BigEndianCksum bool
}

// ParseHeader decodes the fixed 32-byte WAL header from buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("walwatch: header too short: %d bytes", len(buf))
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	bigEndian := magic == walMagicBigEndian
	if !bigEndian && magic != walMagicLittleEndian {
		return Header{}, fmt.Errorf("walwatch: bad WAL magic %#x", magic)
	}
	return Header{
		Magic:          magic,
		FormatVersion:  binary.BigEndian.Uint32(buf[4:8]),
		PageSize:       binary.BigEndian.Uint32(buf[8:12]),
		CheckpointSeq:  binary.BigEndian.Uint32(buf[12:16]),
		Salt1:          binary.BigEndian.Uint32(buf[16:20]),
		Salt2:          binary.BigEndian.Uint32(buf[20:24]),
		Checksum1:      binary.BigEndian.Uint32(buf[24:28]),
		Checksum2:      binary.BigEndian.Uint32(buf[28:32]),
		BigEndianCksum: bigEndian,
	}, nil
}

// Batch is the raw result of one watch pass: the new bytes appended to the
// WAL since the previous pass, plus whether the pass detected a
// checkpoint/restart (salt change or file truncation) that reset the read
// position back to just after the header.
type Batch struct {
	Header     Header
	FrameBytes []byte
	Restarted  bool
}

// Watcher tails one WAL file, tracking the offset it has already consumed
// and the salt-1 value observed at that offset so checkpoint restarts can
// be detected.
type Watcher struct {
	path      string
	lastPos   int64
	lastSalt1 uint32
	haveSalt  bool
}

// New returns a Watcher over path, initially positioned at the start of
// the file (nothing yet consumed).
func New(path string) *Watcher {
	return &Watcher{path: path}
}

// Poll reads whatever new WAL bytes exist since the last call to Poll, or
// returns (nil, nil) if nothing is new. It is safe to call repeatedly; it
// never blocks.
func (w *Watcher) Poll() (*Batch, error) {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walwatch: open %s: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("walwatch: stat %s: %w", w.path, err)
	}
	size := info.Size()
	if size < HeaderSize {
		// WAL was just created/truncated to nothing meaningful; wait for
		// the next pass.
		return nil, nil
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return nil, fmt.Errorf("walwatch: read header %s: %w", w.path, err)
	}
	header, err := ParseHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	restarted := false
	switch {
	case !w.haveSalt:
		w.haveSalt = true
		w.lastSalt1 = header.Salt1
		w.lastPos = HeaderSize
	case header.Salt1 != w.lastSalt1 || size < w.lastPos:
		// Checkpoint/restart: the WAL was reset (new salt) or truncated.
		// Reprocess from just after the header rather than going idle.
		restarted = true
		w.lastSalt1 = header.Salt1
		w.lastPos = HeaderSize
	}

	if size <= w.lastPos {
		if !restarted {
			return nil, nil
		}
	}

	if _, err := f.Seek(w.lastPos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("walwatch: seek %s: %w", w.path, err)
	}
	newBytes := make([]byte, size-w.lastPos)
	if _, err := io.ReadFull(f, newBytes); err != nil {
		return nil, fmt.Errorf("walwatch: read new bytes %s: %w", w.path, err)
	}
	w.lastPos = size

	return &Batch{Header: header, FrameBytes: newBytes, Restarted: restarted}, nil
}

// Run watches the WAL path for writes via fsnotify and invokes onBatch, on
// the goroutine running Run, for every non-empty pass, until stop is
// closed. Run never calls onBatch concurrently with itself, and the caller
// is expected to return from onBatch quickly (dbhandle only posts the batch
// onto its executor's work queue).
func (w *Watcher) Run(stop <-chan struct{}, onBatch func(*Batch), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("walwatch: new fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("walwatch: watch %s: %w", w.path, err)
	}

	// Catch up on anything already written before the watch started.
	if batch, err := w.Poll(); err != nil {
		onError(err)
	} else if batch != nil {
		onBatch(batch)
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			batch, err := w.Poll()
			if err != nil {
				onError(err)
				continue
			}
			if batch != nil {
				onBatch(batch)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("walwatch: fsnotify: %w", err))
		}
	}
}
