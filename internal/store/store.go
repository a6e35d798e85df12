// Package store defines the counter store contract and its adapters.
//
// A store only needs pipelined batches: one round trip for a set of reads
// and one for a set of writes. Batches from different callers are not
// isolated from each other.
package store

import (
	"context"
	"time"

	"github.com/benvon/smaug/internal/models"
)

const (
	counterKeyPrefix = "counter#"
	configKeyPrefix  = "config#"
)

// CounterKey names the counter of period p for a config key.
func CounterKey(p models.Period, configKey string) string {
	return counterKeyPrefix + string(p) + "#" + configKey
}

// ConfigRecordKey names the config record for a config key.
func ConfigRecordKey(configKey string) string {
	return configKeyPrefix + configKey
}

// Increment adds Delta to Key and sets the key to expire at ExpireAt.
// Limit is only consulted by ApplyWithinLimits; models.Unlimited skips the check.
type Increment struct {
	Key      string
	Delta    int64
	ExpireAt time.Time
	Limit    int64
}

// Record upserts Fields into the hash at Key and resets its TTL.
type Record struct {
	Key    string
	Fields map[string]string
	TTL    time.Duration
}

// Batch is a set of writes submitted as one pipeline.
type Batch struct {
	Increments []Increment
	Record     *Record
}

// CounterStore is the minimal contract the rate limiter needs.
type CounterStore interface {
	// Counts reads keys in one round trip. Absent keys read as zero.
	Counts(ctx context.Context, keys []string) ([]int64, error)
	// Apply submits every write of b in one round trip.
	Apply(ctx context.Context, b Batch) error
}

// AtomicCounterStore can check limits and apply a batch as one atomic step.
type AtomicCounterStore interface {
	CounterStore
	// ApplyWithinLimits applies b only when every increment stays within its
	// limit, and reports whether it did.
	ApplyWithinLimits(ctx context.Context, b Batch) (bool, error)
}

// RecordReader reads config records back for debugging.
type RecordReader interface {
	// ConfigRecord returns the fields stored for configKey, or nil when absent.
	ConfigRecord(ctx context.Context, configKey string) (map[string]string, error)
}

// Ensure interface compliance at compile time.
var (
	_ AtomicCounterStore = (*RedisStore)(nil)
	_ RecordReader       = (*RedisStore)(nil)
	_ AtomicCounterStore = (*MemoryStore)(nil)
	_ RecordReader       = (*MemoryStore)(nil)
)
