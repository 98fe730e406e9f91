// Package dbhandle is the engine's top-level handle: it owns the primary
// database/sql connection and the read-connection pool over
// mattn/go-sqlite3, issues the one-time schema/catalog queries that
// populate internal/schema's resolver, and wires the WAL observer, frame
// decoder, mutation applicator, live-query registry, diff engine, and
// update scheduler into a single-threaded executor loop.
//
// Construct/select/pause/resume/end are realized as New,
// (*Handle).Select, (*Handle).Pause/(*Handle).Resume, (*Handle).Close,
// with event delivery over typed channels: every live query gets its own
// Updates()/Errors() pair, and the handle itself exposes Ready() and
// Errors() for handle-scoped setup completion and WAL-processing errors.
package dbhandle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/leengari/sqlive/internal/apply"
	"github.com/leengari/sqlive/internal/config"
	"github.com/leengari/sqlive/internal/diff"
	"github.com/leengari/sqlive/internal/engineerr"
	"github.com/leengari/sqlive/internal/framedecoder"
	"github.com/leengari/sqlive/internal/identifier"
	"github.com/leengari/sqlive/internal/jsonval"
	"github.com/leengari/sqlive/internal/keysel"
	"github.com/leengari/sqlive/internal/mutate"
	"github.com/leengari/sqlive/internal/observability"
	"github.com/leengari/sqlive/internal/registry"
	"github.com/leengari/sqlive/internal/row"
	"github.com/leengari/sqlive/internal/schema"
	"github.com/leengari/sqlive/internal/scheduler"
	"github.com/leengari/sqlive/internal/snapshot"
	"github.com/leengari/sqlive/internal/walwatch"
)

// Update is delivered on a LiveQuery's Updates channel whenever a
// re-execution produces a non-empty diff.
type Update struct {
	Diff   diff.Result
	Result []row.Row
}

// LiveQuery is the handle a caller gets back from Select: a live,
// running query with its own event channels, stoppable independently of
// every other query.
type LiveQuery struct {
	ID string

	handle  *Handle
	updates chan Update
	errs    chan error
}

// Updates delivers one Update per non-empty re-execution diff, in order.
// The channel is buffered (8 entries) and sends do not block: an Update
// produced while the buffer is full is dropped.
func (lq *LiveQuery) Updates() <-chan Update { return lq.updates }

// Errors delivers this query's own re-execution failures without
// disturbing sibling queries.
func (lq *LiveQuery) Errors() <-chan error { return lq.errs }

// Stop removes this query from the registry, cancels any pending flush, and
// drops the handle's reference to it; its channels receive nothing further
// and are not closed.
func (lq *LiveQuery) Stop() {
	lq.handle.registry.Stop(lq.ID)
	lq.handle.scheduler.Cancel(lq.ID)
	lq.handle.liveQueries.Delete(lq.ID)
}

// Pause suppresses invalidations for this query without removing its
// registration or discarding its last result.
func (lq *LiveQuery) Pause() { lq.handle.registry.Pause(lq.ID) }

// Resume re-enables invalidations for a paused query.
func (lq *LiveQuery) Resume() { lq.handle.registry.Resume(lq.ID) }

// Handle is the engine's single entry point: one per SQLite database file.
type Handle struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()

	primary  *sql.DB
	pool     *sql.DB // nil when config.Pool is false; otherwise a second *sql.DB capped at PoolSize
	pageSize int

	resolver  *schema.Resolver
	snapshots *snapshot.Store
	registry  *registry.Registry
	applier   *apply.Applicator
	scheduler *scheduler.Scheduler
	watcher   *walwatch.Watcher

	mu     sync.Mutex // guards paused and the single-threaded executor's entry point
	paused bool
	held   []*walwatch.Batch // batches read while paused; touched only on the executor goroutine

	liveQueries sync.Map // queryID string -> *LiveQuery

	workCh chan func()
	stopCh chan struct{}
	ready  chan struct{}
	errs   chan error
}

// New constructs a Handle over cfg.Filename, performs the one-time setup
// (opening connections, reading PRAGMA page_size), and starts the
// single-threaded executor goroutine and the WAL watcher goroutine. Ready()
// closes once setup completes successfully.
func New(cfg config.Config) (*Handle, error) {
	logger, closeLog := observability.NewLogger(observability.Options{SeqURL: cfg.SeqURL, Level: slog.LevelInfo})

	primary, err := sql.Open("sqlite3", cfg.Filename)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("dbhandle: open primary connection: %w", err)
	}
	primary.SetMaxOpenConns(1) // the executor is single-threaded; one writer connection is enough

	var pool *sql.DB
	if cfg.Pool {
		pool, err = sql.Open("sqlite3", cfg.Filename)
		if err != nil {
			primary.Close()
			closeLog()
			return nil, fmt.Errorf("dbhandle: open pool connections: %w", err)
		}
		pool.SetMaxOpenConns(cfg.PoolSize)
	}

	h := &Handle{
		cfg:       cfg,
		logger:    logger,
		closeLog:  closeLog,
		primary:   primary,
		pool:      pool,
		resolver:  schema.NewResolver(),
		snapshots: snapshot.New(),
		registry:  registry.New(),
		workCh:    make(chan func(), 64),
		stopCh:    make(chan struct{}),
		ready:     make(chan struct{}),
		errs:      make(chan error, 16),
	}
	h.applier = apply.New(h.snapshots)

	if err := primary.QueryRow("PRAGMA page_size").Scan(&h.pageSize); err != nil {
		primary.Close()
		if pool != nil {
			pool.Close()
		}
		closeLog()
		return nil, engineerr.New(engineerr.KindCacheTableInfo, "read page_size", err)
	}

	// flush is funneled through workCh so that scheduler timer fires (their
	// own goroutine) never touch query/snapshot state directly; only the
	// executor goroutine drains workCh, preserving the single-threaded
	// executor invariant regardless of which goroutine armed the timer.
	h.scheduler = scheduler.New(cfg.MinInterval, func(queryID string) {
		h.workCh <- func() { h.flushQuery(queryID) }
	})
	h.watcher = walwatch.New(cfg.WalPath())

	go h.runExecutor()
	go h.runWatcher()

	close(h.ready)
	h.logger.Info("sqlive handle ready", "filename", cfg.Filename, "page_size", h.pageSize)
	return h, nil
}

// Ready closes once the handle has completed initial setup.
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// Errors delivers WAL-processing failures that are not scoped to any one
// live query: the engine remains live and continues with the
// next change event.
func (h *Handle) Errors() <-chan error { return h.errs }

// runExecutor is the single logical executor this package requires: every
// mutation to shared state (the resolver, the snapshot store, the
// registry, the scheduler) happens on this one goroutine. fsnotify events
// and timer fires are funneled in as closures over workCh rather than
// mutating state from their own goroutines directly.
func (h *Handle) runExecutor() {
	for {
		select {
		case <-h.stopCh:
			return
		case work := <-h.workCh:
			work()
		}
	}
}

// runWatcher drives the WAL watcher and posts each batch onto the
// executor's work queue.
func (h *Handle) runWatcher() {
	err := h.watcher.Run(h.stopCh, func(batch *walwatch.Batch) {
		h.workCh <- func() { h.processBatch(batch) }
	}, func(err error) {
		h.workCh <- func() { h.emitHandleError(engineerr.New(engineerr.KindWalProcess, "wal watch", err)) }
	})
	if err != nil {
		h.emitHandleError(engineerr.New(engineerr.KindWalProcess, "wal watcher exited", err))
	}
}

// processBatch runs on the executor goroutine: it decodes the batch's raw
// frame bytes, applies the resulting observations to the snapshot store,
// and schedules re-execution for every invalidated query. A batch that
// arrives while the handle is paused is held instead, and held batches are
// processed first, in arrival order, once the handle is no longer paused.
func (h *Handle) processBatch(batch *walwatch.Batch) {
	h.mu.Lock()
	paused := h.paused
	h.mu.Unlock()
	if paused {
		h.held = append(h.held, batch)
		return
	}
	h.processHeld()

	pageSize := int(batch.Header.PageSize)
	if pageSize == 0 {
		pageSize = h.pageSize
	}

	observations, err := framedecoder.Decode(batch.FrameBytes, pageSize, h.resolver, h.snapshots, h)
	if err != nil {
		h.emitHandleError(engineerr.New(engineerr.KindWalParse, "decode WAL frames", err))
		return
	}

	var triggers apply.TriggerSource = h.registry
	if !h.cfg.CheckConditionWhenQueued {
		triggers = skipQueuedTriggers{registry: h.registry, scheduler: h.scheduler}
	}

	_, invalidated := h.applier.Apply(observations, triggers)
	for _, queryID := range invalidated {
		h.scheduler.Notify(queryID)
	}
}

// skipQueuedTriggers implements apply.TriggerSource by filtering out
// queries the scheduler already has pending: the checkConditionWhenQueued
// option's "false" default means an already-queued query's
// trigger predicates are not re-evaluated against further invalidations
// before its coalesced flush runs.
type skipQueuedTriggers struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
}

func (s skipQueuedTriggers) TriggersForTable(table string) []apply.QuerySubscription {
	all := s.registry.TriggersForTable(table)
	out := make([]apply.QuerySubscription, 0, len(all))
	for _, sub := range all {
		if s.scheduler.Pending(sub.QueryID) {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// flushQuery re-executes a query's prepared statement, computes the diff
// against its last emitted result, and delivers a non-empty diff on its
// Updates channel. Always runs on the executor goroutine: the scheduler's
// FlushFunc posts this call onto workCh rather than invoking it directly.
func (h *Handle) flushQuery(queryID string) {
	q, ok := h.registry.Get(queryID)
	if !ok || !q.Active() {
		return
	}

	lqAny, ok := h.liveQueries.Load(queryID)
	if !ok {
		return
	}
	lq := lqAny.(*LiveQuery)

	result, err := h.execute(q.SQL, q.Args)
	if err != nil {
		select {
		case lq.errs <- engineerr.New(engineerr.KindQueryExecution, "re-execute live query", err):
		default:
		}
		return
	}

	old, hadOld := q.LastResult()
	var d diff.Result
	if hadOld {
		d = diff.Compute(old, result, q.Selector)
	} else {
		d = diff.Compute(nil, result, q.Selector)
	}
	q.SetLastResult(result)
	if d.Empty() {
		return
	}
	select {
	case lq.updates <- Update{Diff: d, Result: result}:
	default:
	}
}

// Select registers a live query (`select(sql, params, key-selector,
// triggers)`): it runs the statement once to establish a baseline result,
// ensures every trigger's table is resolved and snapshot-cached, and
// registers the query so future mutations on those tables can invalidate
// it. Schema/cache errors here propagate synchronously and the query is
// never registered.
func (h *Handle) Select(sqlText string, args []interface{}, sel keysel.Selector, triggers []mutate.Trigger) (*LiveQuery, error) {
	for _, t := range triggers {
		if err := h.ensureTableCached(t.Table); err != nil {
			return nil, err
		}
	}

	result, err := h.execute(sqlText, args)
	if err != nil {
		return nil, engineerr.New(engineerr.KindQueryExecution, "initial execution", err)
	}

	q := h.registry.Register(sqlText, args, sel, triggers)
	q.SetLastResult(result)

	lq := &LiveQuery{
		ID:      q.ID,
		handle:  h,
		updates: make(chan Update, 8),
		errs:    make(chan error, 8),
	}
	h.liveQueries.Store(q.ID, lq)
	return lq, nil
}

// execute runs sqlText with args against a read connection and returns
// every row's column values as a Row, in result order. It makes no
// assumption about which columns are "cached": a directly user-issued
// SELECT's result shape is whatever the statement projects.
func (h *Handle) execute(sqlText string, args []interface{}) ([]row.Row, error) {
	rows, err := h.readConn().Query(sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []row.Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(row.Row, len(cols))
		for i, c := range cols {
			v := vals[i]
			if decoded, ok := jsonval.Decode(v); ok {
				v = decoded
			}
			r[c] = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ensureTableCached resolves table's schema (root page, ordered columns,
// affinity) via sqlite_master and PRAGMA table_info if it has not already
// been resolved this session, and primes the snapshot store with its
// current rows so the first mutation observed is classified correctly
// against a real baseline rather than an empty table.
func (h *Handle) ensureTableCached(table string) error {
	if h.resolver.Tracked(table) {
		return nil
	}

	var rootPage int64
	err := h.primary.QueryRow(
		"SELECT rootpage FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&rootPage)
	if err != nil {
		return engineerr.New(engineerr.KindCacheTableInfo, "resolve root page", err).WithTable(table)
	}

	infoRows, err := h.primary.Query(fmt.Sprintf("PRAGMA table_info(%s)", identifier.Quote(table)))
	if err != nil {
		return engineerr.New(engineerr.KindCacheTableInfo, "read table_info", err).WithTable(table)
	}
	defer infoRows.Close()

	var cols []schema.Column
	for infoRows.Next() {
		var (
			cid        int
			name       string
			declType   string
			notNull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := infoRows.Scan(&cid, &name, &declType, &notNull, &dfltValue, &pk); err != nil {
			return engineerr.New(engineerr.KindCacheTableInfo, "scan table_info row", err).WithTable(table)
		}
		cols = append(cols, schema.Column{
			Name:       name,
			Affinity:   schema.InferAffinity(declType),
			RowidAlias: pk == 1 && schema.InferAffinity(declType) == schema.AffinityInteger,
		})
	}
	if err := infoRows.Err(); err != nil {
		return engineerr.New(engineerr.KindCacheTableInfo, "iterate table_info", err).WithTable(table)
	}

	t := &schema.Table{
		Name:     table,
		RootPage: rootPage,
		Columns:  cols,
		Cache:    h.cfg.CacheSpecFor(table),
	}
	h.resolver.Register(t)

	initial, err := h.loadInitialRows(t)
	if err != nil {
		return engineerr.New(engineerr.KindCacheTable, "load initial rows", err).WithTable(table)
	}
	h.snapshots.EnsureCached(table, initial)
	return nil
}

// loadInitialRows reads every current row of t's cached columns, keyed by
// rowid, to seed the snapshot store.
func (h *Handle) loadInitialRows(t *schema.Table) (map[int64]row.Row, error) {
	cols := t.CachedColumnNames()
	selected := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		selected = append(selected, identifier.Quote(c))
	}
	query := fmt.Sprintf("SELECT rowid, %s FROM %s", orPlaceholder(joinComma(selected)), identifier.Quote(t.Name))

	rows, err := h.primary.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]row.Row)
	for rows.Next() {
		vals := make([]interface{}, len(cols)+1)
		ptrs := make([]interface{}, len(cols)+1)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rowid := vals[0].(int64)
		r := make(row.Row, len(cols))
		for i, c := range cols {
			v := vals[i+1]
			if decoded, ok := jsonval.Decode(v); ok {
				v = decoded
			}
			r[c] = v
		}
		out[rowid] = r
	}
	return out, rows.Err()
}

// orPlaceholder guards against a table whose cache spec excludes every
// column: SQLite rejects "SELECT rowid, FROM t", so fall back to "1" (a
// constant column) rather than projecting nothing.
func orPlaceholder(cols string) string {
	if cols == "" {
		return "1"
	}
	return cols
}

// emitHandleError delivers err on the handle's error channel without
// blocking indefinitely if nobody is listening.
func (h *Handle) emitHandleError(err error) {
	h.logger.Error("wal processing error", "err", err)
	select {
	case h.errs <- err:
	default:
	}
}

// processHeld processes the batches held during a pause, in arrival order.
func (h *Handle) processHeld() {
	held := h.held
	h.held = nil
	for _, b := range held {
		h.processBatch(b)
	}
}

// Pause suppresses WAL processing: batches the watcher reads while paused
// are held unprocessed until Resume. In-flight passes run to completion.
func (h *Handle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

// Resume restarts WAL processing: the batches held during the pause are
// processed in arrival order, then one catch-up poll picks up any growth
// the watcher has not read yet.
func (h *Handle) Resume() {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
	h.workCh <- func() {
		h.processHeld()
		if batch, err := h.watcher.Poll(); err != nil {
			h.emitHandleError(engineerr.New(engineerr.KindWalProcess, "catch-up poll", err))
		} else if batch != nil {
			h.processBatch(batch)
		}
	}
}

// Close shuts the handle down: stops the watcher and executor, closes all
// connections, and flushes the logger.
func (h *Handle) Close() error {
	close(h.stopCh)
	var firstErr error
	if err := h.primary.Close(); err != nil {
		firstErr = err
	}
	if h.pool != nil {
		if err := h.pool.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.closeLog()
	return firstErr
}

// RefetchRow implements framedecoder.Fallback: it re-reads a row's current
// cached-column values live, used for overflow-spilled cells and ambiguous
// page mappings.
func (h *Handle) RefetchRow(table string, rowid int64) (row.Row, bool, error) {
	t, ok := h.resolver.Table(table)
	if !ok {
		return nil, false, nil
	}
	cols := t.CachedColumnNames()
	if len(cols) == 0 {
		return row.Row{}, true, nil
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = identifier.Quote(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", joinComma(quoted), identifier.Quote(table))

	conn := h.readConn()
	rows, err := conn.Query(query, rowid)
	if err != nil {
		return nil, false, engineerr.New(engineerr.KindCacheTable, "fallback refetch", err).WithTable(table)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, nil
	}
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, engineerr.New(engineerr.KindParseColumn, "scan fallback row", err).WithTable(table)
	}

	out := make(row.Row, len(cols))
	for i, c := range cols {
		v := vals[i]
		if decoded, ok := jsonval.Decode(v); ok {
			v = decoded
		}
		out[c] = v
	}
	if h.logger.Enabled(context.Background(), slog.LevelDebug) {
		if encoded, err := out.ToJSON(); err == nil {
			h.logger.Debug("wal fallback refetch", "table", table, "rowid", rowid, "row", string(encoded))
		}
	}
	return out, true, nil
}

// readConn returns the pool connection when one is configured, otherwise
// the primary connection.
func (h *Handle) readConn() *sql.DB {
	if h.pool != nil {
		return h.pool
	}
	return h.primary
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
