package store

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/smaug/internal/models"
	"github.com/jonboulle/clockwork"
)

type memoryCounter struct {
	value    int64
	expireAt time.Time
}

type memoryRecord struct {
	fields   map[string]string
	expireAt time.Time
}

// MemoryStore is an in-process store with Redis-like expiry semantics.
// It serves tests and single-node development; state is lost on restart.
type MemoryStore struct {
	clock clockwork.Clock

	mu       sync.Mutex
	counters map[string]*memoryCounter
	records  map[string]*memoryRecord
}

// NewMemoryStore creates an empty store. A nil clock uses the real clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:    clock,
		counters: make(map[string]*memoryCounter),
		records:  make(map[string]*memoryRecord),
	}
}

// Counts returns the live value of every key.
func (m *MemoryStore) Counts(ctx context.Context, keys []string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	out := make([]int64, len(keys))
	for i, key := range keys {
		if c := m.liveCounter(key, now); c != nil {
			out[i] = c.value
		}
	}
	return out, nil
}

// Apply applies every write of b under one lock.
func (m *MemoryStore) Apply(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.applyLocked(b, m.clock.Now())
	return nil
}

// ApplyWithinLimits checks every limited increment and applies b only when all fit.
func (m *MemoryStore) ApplyWithinLimits(ctx context.Context, b Batch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for _, inc := range b.Increments {
		if inc.Limit == models.Unlimited {
			continue
		}
		var current int64
		if c := m.liveCounter(inc.Key, now); c != nil {
			current = c.value
		}
		if models.Exceeds(current, inc.Delta, inc.Limit) {
			return false, nil
		}
	}
	m.applyLocked(b, now)
	return true, nil
}

// ConfigRecord returns a copy of the live record for configKey, or nil.
func (m *MemoryStore) ConfigRecord(ctx context.Context, configKey string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := ConfigRecordKey(configKey)
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	if !m.clock.Now().Before(rec.expireAt) {
		delete(m.records, key)
		return nil, nil
	}
	out := make(map[string]string, len(rec.fields))
	for k, v := range rec.fields {
		out[k] = v
	}
	return out, nil
}

// ExpireAt reports when key expires, if it is live.
func (m *MemoryStore) ExpireAt(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.liveCounter(key, m.clock.Now()); c != nil {
		return c.expireAt, true
	}
	if rec, ok := m.records[key]; ok && m.clock.Now().Before(rec.expireAt) {
		return rec.expireAt, true
	}
	return time.Time{}, false
}

func (m *MemoryStore) applyLocked(b Batch, now time.Time) {
	for _, inc := range b.Increments {
		c := m.liveCounter(inc.Key, now)
		if c == nil {
			c = &memoryCounter{}
			m.counters[inc.Key] = c
		}
		c.value += inc.Delta
		c.expireAt = inc.ExpireAt
		// EXPIREAT in the past deletes the key.
		if !now.Before(c.expireAt) {
			delete(m.counters, inc.Key)
		}
	}

	if rec := b.Record; rec != nil {
		r, ok := m.records[rec.Key]
		if !ok || !now.Before(r.expireAt) {
			r = &memoryRecord{fields: make(map[string]string, len(rec.Fields))}
			m.records[rec.Key] = r
		}
		for k, v := range rec.Fields {
			r.fields[k] = v
		}
		r.expireAt = now.Add(rec.TTL)
	}
}

func (m *MemoryStore) liveCounter(key string, now time.Time) *memoryCounter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}
	if !now.Before(c.expireAt) {
		delete(m.counters, key)
		return nil
	}
	return c
}
