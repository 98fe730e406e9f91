// Command sqlive-demo wires construct/select/pause/resume/end against a
// real SQLite file: it bootstraps the demo schema (players, orders, users),
// registers one live query over players, and prints every update it
// receives until interrupted.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/leengari/sqlive/internal/config"
	"github.com/leengari/sqlive/internal/dbhandle"
	"github.com/leengari/sqlive/internal/engineerr"
	"github.com/leengari/sqlive/internal/fixtures"
	"github.com/leengari/sqlive/internal/keysel"
	"github.com/leengari/sqlive/internal/mutate"
)

func main() {
	dbPath := flag.String("db", "sqlive_demo.db", "path to the demo SQLite database")
	seqURL := flag.String("seq", "", "optional Seq ingestion endpoint for structured logs")
	flag.Parse()

	if err := run(*dbPath, *seqURL); err != nil {
		log.Fatal(err)
	}
}

func run(dbPath, seqURL string) error {
	bootstrapDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open %s for bootstrap: %w", dbPath, err)
	}
	if err := fixtures.Bootstrap(bootstrapDB); err != nil {
		bootstrapDB.Close()
		return fmt.Errorf("bootstrap demo schema: %w", err)
	}
	bootstrapDB.Close()

	cfg := config.New(dbPath,
		config.WithMinInterval(250*time.Millisecond),
		config.WithSeqLogging(seqURL),
	)

	h, err := dbhandle.New(cfg)
	if err != nil {
		return fmt.Errorf("construct handle: %w", err)
	}
	defer h.Close()
	<-h.Ready()

	lq, err := h.Select(
		"SELECT id, name, score FROM players",
		nil,
		keysel.ByColumns("id"),
		[]mutate.Trigger{{Table: "players"}},
	)
	if err != nil {
		return fmt.Errorf("select players: %w", err)
	}
	defer lq.Stop()

	fmt.Println("watching players: insert/update/delete rows via another connection to see live diffs")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return nil
		case upd := <-lq.Updates():
			fmt.Printf("update: +%d ~%d -%d -> %v\n",
				len(upd.Diff.Added), len(upd.Diff.Changed), len(upd.Diff.Removed), upd.Result)
		case err := <-lq.Errors():
			fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		case err := <-h.Errors():
			if errors.Is(err, engineerr.ErrWalParse) {
				fmt.Fprintf(os.Stderr, "WAL frame corrupt, results may be stale: %v\n", err)
				continue
			}
			fmt.Fprintf(os.Stderr, "handle error: %v\n", err)
		}
	}
}
