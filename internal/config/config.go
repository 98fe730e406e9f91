// Package config holds the typed settings bag every dbhandle.Handle is
// constructed from.
//
// Modeled as a plain struct built through functional options, the same
// shape operator-framework-operator-registry's sqlite.Migrator options
// use: the settings bag here has enough independently-optional fields
// that an options constructor reads far better than a long positional
// one.
package config

import (
	"time"

	"github.com/leengari/sqlive/internal/schema"
)

// ColumnCacheSpec mirrors schema.CacheSpec at the configuration boundary,
// before a table's columns are known (schema.CacheSpec is built against a
// resolved table's column list once the table is first referenced).
type ColumnCacheSpec struct {
	Include []string
	Exclude []string
}

func (c ColumnCacheSpec) toSchema() schema.CacheSpec {
	return schema.CacheSpec{Include: c.Include, Exclude: c.Exclude}
}

// defaultPoolSize is used when Pool is enabled but PoolSize is left at zero.
const defaultPoolSize = 5

// defaultMinInterval is the floor applied when MinInterval is left at zero:
// an un-set rate limit would otherwise mean "re-execute on every single
// invalidation", which defeats the scheduler's purpose for hot tables.
const defaultMinInterval = 200 * time.Millisecond

// Config is the fully-resolved construction settings for one Handle.
type Config struct {
	Filename                 string
	Pool                     bool
	PoolSize                 int
	MinInterval              time.Duration
	CheckConditionWhenQueued bool
	ColumnCache              map[string]ColumnCacheSpec
	SeqURL                   string
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithPool enables a fixed read-connection pool of the given size (0 means
// the default pool size).
func WithPool(size int) Option {
	return func(c *Config) {
		c.Pool = true
		c.PoolSize = size
	}
}

// WithMinInterval sets the per-query minimum re-execution interval.
func WithMinInterval(d time.Duration) Option {
	return func(c *Config) { c.MinInterval = d }
}

// WithCheckConditionWhenQueued enables re-evaluating trigger predicates even
// while a flush is already queued for a query.
func WithCheckConditionWhenQueued() Option {
	return func(c *Config) { c.CheckConditionWhenQueued = true }
}

// WithColumnCache restricts table to the given include/exclude column
// subset.
func WithColumnCache(table string, spec ColumnCacheSpec) Option {
	return func(c *Config) {
		if c.ColumnCache == nil {
			c.ColumnCache = make(map[string]ColumnCacheSpec)
		}
		c.ColumnCache[table] = spec
	}
}

// WithSeqLogging points the shared logger at a Seq ingestion endpoint.
func WithSeqLogging(url string) Option {
	return func(c *Config) { c.SeqURL = url }
}

// New builds a Config for filename, applying opts in order and then filling
// in defaults for anything left unset.
func New(filename string, opts ...Option) Config {
	c := Config{Filename: filename}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Pool && c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.MinInterval <= 0 {
		c.MinInterval = defaultMinInterval
	}
	return c
}

// WalPath returns the path SQLite uses for this database's write-ahead log.
func (c Config) WalPath() string {
	return c.Filename + "-wal"
}

// CacheSpecFor returns the resolved schema.CacheSpec for table, defaulting
// to "cache every column" when the table has no configured entry.
func (c Config) CacheSpecFor(table string) schema.CacheSpec {
	spec, ok := c.ColumnCache[table]
	if !ok {
		return schema.CacheSpec{}
	}
	return spec.toSchema()
}
