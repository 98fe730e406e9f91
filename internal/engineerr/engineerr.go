// Package engineerr defines the typed error kinds the live-query engine
// surfaces to callers, distinguishing the point of failure (schema
// introspection, WAL processing, frame parsing, column decode, or a live
// query's own re-execution) so callers can react differently to each.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of the pipeline produced an error.
type Kind string

const (
	KindCacheTableInfo Kind = "cache_table_info" // schema introspection failed
	KindCacheTable     Kind = "cache_table"      // initial table materialization failed
	KindWalProcess     Kind = "wal_process"      // stat/read failure on the WAL file
	KindWalParse       Kind = "wal_parse"        // frame structure inconsistency
	KindParseColumn    Kind = "parse_column"     // value decoding failed for a column
	KindQueryExecution Kind = "query_execution"  // user SQL failed at re-execution time
)

// Error wraps an underlying cause with the Kind that produced it. Every
// error this module emits on its error channels is an *Error, so callers
// can type-assert and switch on Kind without parsing strings.
type Error struct {
	Kind    Kind
	Table   string // table name, when applicable; empty otherwise
	Column  string // column name, when applicable; empty otherwise
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Table != "" && e.Column != "":
		return fmt.Sprintf("%s: %s.%s: %s", e.Kind, e.Table, e.Column, e.Message)
	case e.Table != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Table, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, engineerr.ErrWalParse) (or any of the other bare
// Err* sentinels below) match any *Error of the same Kind regardless of
// its Table/Column/Message/Cause, the same way errors.Is(err,
// sql.ErrNoRows) matches regardless of wrapping.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Table == "" && other.Column == "" && other.Message == ""
}

// New builds an *Error for the given kind, optionally wrapping cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Bare sentinels for errors.Is checks against a specific Kind, e.g.
// errors.Is(err, engineerr.ErrWalParse). None of these is ever returned
// directly; every error this package's callers build carries a real
// Message/Cause via New, but Is only compares Kind, so these still match.
var (
	ErrCacheTableInfo = New(KindCacheTableInfo, "", nil)
	ErrCacheTable     = New(KindCacheTable, "", nil)
	ErrWalProcess     = New(KindWalProcess, "", nil)
	ErrWalParse       = New(KindWalParse, "", nil)
	ErrParseColumn    = New(KindParseColumn, "", nil)
	ErrQueryExecution = New(KindQueryExecution, "", nil)
)

// WithTable attaches a table name to the error.
func (e *Error) WithTable(table string) *Error {
	clone := *e
	clone.Table = table
	return &clone
}

// WithColumn attaches a column name to the error.
func (e *Error) WithColumn(column string) *Error {
	clone := *e
	clone.Column = column
	return &clone
}

// CorruptFrame is returned by the varint and cell codecs when the supplied
// buffer is too short to hold the structure being decoded.
var CorruptFrame = errors.New("corrupt frame: buffer too short")
