package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// applyWithinLimitsScript checks every limited counter before touching any of them.
//
// KEYS[1..k] are counter keys, KEYS[k+1] (optional) is the config record key.
// ARGV[1] is k, then one (delta, limit, expireAtUnix) triple per counter, then
// the record TTL in seconds followed by field/value pairs.
var applyWithinLimitsScript = redis.NewScript(`
local k = tonumber(ARGV[1])
for i = 1, k do
  local limit = tonumber(ARGV[3 * i])
  if limit ~= -1 then
    local current = tonumber(redis.call('GET', KEYS[i]) or '0')
    if tonumber(ARGV[3 * i - 1]) > limit - current then
      return 0
    end
  end
end
for i = 1, k do
  redis.call('INCRBY', KEYS[i], ARGV[3 * i - 1])
  redis.call('EXPIREAT', KEYS[i], ARGV[3 * i + 1])
end
if #KEYS > k then
  local base = 3 * k + 2
  local fields = {}
  for j = base + 1, #ARGV do
    fields[#fields + 1] = ARGV[j]
  end
  if #fields > 0 then
    redis.call('HSET', KEYS[k + 1], unpack(fields))
  end
  redis.call('EXPIRE', KEYS[k + 1], ARGV[base])
end
return 1
`)

// RedisStore implements the counter store on Redis pipelines.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps ownership of it.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying Redis client.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Counts reads every key with one pipelined batch of GETs.
func (r *RedisStore) Counts(ctx context.Context, keys []string) ([]int64, error) {
	out := make([]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read counters: %w", err)
	}

	for i, cmd := range cmds {
		n, err := cmd.Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read counter %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

// Apply sends increments, expirations and the record upsert as one pipeline.
// It is not a MULTI/EXEC transaction.
func (r *RedisStore) Apply(ctx context.Context, b Batch) error {
	if len(b.Increments) == 0 && b.Record == nil {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, inc := range b.Increments {
		pipe.IncrBy(ctx, inc.Key, inc.Delta)
		pipe.ExpireAt(ctx, inc.Key, inc.ExpireAt)
	}
	if rec := b.Record; rec != nil {
		if len(rec.Fields) > 0 {
			pipe.HSet(ctx, rec.Key, fieldPairs(rec.Fields)...)
		}
		pipe.Expire(ctx, rec.Key, rec.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply counter batch: %w", err)
	}
	return nil
}

// ApplyWithinLimits runs the check and the batch as one server-side script.
func (r *RedisStore) ApplyWithinLimits(ctx context.Context, b Batch) (bool, error) {
	keys := make([]string, 0, len(b.Increments)+1)
	args := make([]any, 0, 2+3*len(b.Increments)+2*len(recordFields(b.Record)))
	args = append(args, len(b.Increments))
	for _, inc := range b.Increments {
		keys = append(keys, inc.Key)
		args = append(args, inc.Delta, inc.Limit, inc.ExpireAt.Unix())
	}
	if rec := b.Record; rec != nil {
		keys = append(keys, rec.Key)
		args = append(args, ttlSeconds(rec.TTL))
		args = append(args, fieldPairs(rec.Fields)...)
	}

	applied, err := applyWithinLimitsScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("apply counter batch atomically: %w", err)
	}
	return applied == 1, nil
}

// ConfigRecord returns the hash stored for configKey, or nil when absent.
func (r *RedisStore) ConfigRecord(ctx context.Context, configKey string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, ConfigRecordKey(configKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("read config record: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// fieldPairs flattens fields into sorted name/value pairs.
func fieldPairs(fields map[string]string) []any {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]any, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, name, fields[name])
	}
	return pairs
}

func recordFields(rec *Record) map[string]string {
	if rec == nil {
		return nil
	}
	return rec.Fields
}

func ttlSeconds(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
