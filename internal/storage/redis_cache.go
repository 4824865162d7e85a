package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis key format: adreport:cache:{client}:{platform}:{tier}:{period}
// Each key is a hash with fields updated_at (unix micros) and payload (JSON).
const cacheKeyPrefix = "adreport:cache:"

// putScript writes the hash only if the stored updated_at is not newer.
// Both fields are set in one HSET so a reader never sees a mixed entry.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'updated_at')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCacheRepo implements CacheRepo on Redis hashes.
type RedisCacheRepo struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisCacheRepo creates a Redis-backed cache. retention is the key expiry,
// which only garbage-collects abandoned periods; staleness is decided by the
// resolver from LastUpdated.
func NewRedisCacheRepo(client redis.UniversalClient, retention time.Duration) *RedisCacheRepo {
	return &RedisCacheRepo{client: client, retention: retention}
}

func (r *RedisCacheRepo) redisKey(key models.CacheKey) string {
	return cacheKeyPrefix + key.String()
}

func (r *RedisCacheRepo) Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	fields, err := r.client.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	payload, ok := fields["payload"]
	if !ok {
		return nil, nil
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	if micros, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		entry.LastUpdated = time.UnixMicro(micros).UTC()
	}
	return &entry, nil
}

func (r *RedisCacheRepo) Put(ctx context.Context, entry *models.CacheEntry) (bool, error) {
	cp := *entry
	cp.LastUpdated = entry.LastUpdated.UTC().Truncate(time.Microsecond)

	payload, err := json.Marshal(&cp)
	if err != nil {
		return false, fmt.Errorf("failed to encode cache entry %s: %w", entry.Key, err)
	}

	res, err := putScript.Run(ctx, r.client,
		[]string{r.redisKey(entry.Key)},
		cp.LastUpdated.UnixMicro(),
		payload,
		r.retention.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write cache entry %s: %w", entry.Key, err)
	}
	return res == 1, nil
}

func (r *RedisCacheRepo) Invalidate(ctx context.Context, key models.CacheKey) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry %s: %w", key, err)
	}
	return nil
}
