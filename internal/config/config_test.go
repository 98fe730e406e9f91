package config

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestNewAppliesPoolDefaultSize(t *testing.T) {
	c := New("demo.db", WithPool(0))
	assert.Assert(t, c.Pool)
	assert.Equal(t, defaultPoolSize, c.PoolSize)
}

func TestNewRespectsExplicitPoolSize(t *testing.T) {
	c := New("demo.db", WithPool(12))
	assert.Equal(t, 12, c.PoolSize)
}

func TestNewAppliesMinIntervalFloor(t *testing.T) {
	c := New("demo.db")
	assert.Equal(t, defaultMinInterval, c.MinInterval)
}

func TestNewRespectsExplicitMinInterval(t *testing.T) {
	c := New("demo.db", WithMinInterval(5*time.Second))
	assert.Equal(t, 5*time.Second, c.MinInterval)
}

func TestWalPath(t *testing.T) {
	c := New("demo.db")
	assert.Equal(t, "demo.db-wal", c.WalPath())
}

func TestCacheSpecForDefaultsToEverything(t *testing.T) {
	c := New("demo.db")
	spec := c.CacheSpecFor("players")
	assert.Assert(t, spec.Wants("anything"))
}

func TestCacheSpecForAppliesConfiguredExclude(t *testing.T) {
	c := New("demo.db", WithColumnCache("users", ColumnCacheSpec{Exclude: []string{"password"}}))
	spec := c.CacheSpecFor("users")
	assert.Assert(t, !spec.Wants("password"))
}
