package engineerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesSameKindRegardlessOfDetail(t *testing.T) {
	err := New(KindWalParse, "decode WAL frames", fmt.Errorf("short buffer")).WithTable("players")

	if !errors.Is(err, ErrWalParse) {
		t.Fatal("expected errors.Is to match ErrWalParse by Kind")
	}
	if errors.Is(err, ErrQueryExecution) {
		t.Fatal("expected errors.Is not to match a different Kind's sentinel")
	}
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := New(KindCacheTable, "load initial rows", nil).WithTable("orders")
	wrapped := fmt.Errorf("select: %w", inner)

	if !errors.Is(wrapped, ErrCacheTable) {
		t.Fatal("expected errors.Is to see through fmt.Errorf wrapping")
	}
}

func TestErrorMessageIncludesTableAndColumn(t *testing.T) {
	err := New(KindParseColumn, "bad serial type", nil).WithTable("players").WithColumn("score")
	got := err.Error()
	want := "parse_column: players.score: bad serial type"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(KindWalProcess, "wal watch", cause)
	if errors.Unwrap(err) != cause {
		t.Fatal("expected Unwrap to return the wrapped cause")
	}
}
