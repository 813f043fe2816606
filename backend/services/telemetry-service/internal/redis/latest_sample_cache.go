package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"voltwatch/backend/services/telemetry-service/internal/models"
)

// storeLatestScript replaces the cached sample only when the incoming one is not older.
// KEYS[1] hash key; ARGV: payload, timestamp (µs), id, ttl (ms).
var storeLatestScript = redis.NewScript(`
local ts = tonumber(ARGV[2])
local id = tonumber(ARGV[3])
local cur = redis.call('HMGET', KEYS[1], 'ts', 'id')
if cur[1] then
	local curTs = tonumber(cur[1])
	local curID = tonumber(cur[2]) or 0
	if ts < curTs or (ts == curTs and id < curID) then
		return 0
	end
end
redis.call('HSET', KEYS[1], 'sample', ARGV[1], 'ts', ARGV[2], 'id', ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)

// LatestSampleCache keeps the newest sample per device in a redis hash.
type LatestSampleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLatestSampleCache returns a redis-backed cache. A zero ttl keeps entries until invalidated.
func NewLatestSampleCache(client *redis.Client, ttl time.Duration) *LatestSampleCache {
	return &LatestSampleCache{client: client, ttl: ttl}
}

func (c *LatestSampleCache) key(deviceID string) string {
	return fmt.Sprintf("telemetry:latest:%s", deviceID)
}

// StoreLatest caches sample unless a newer one is already cached.
func (c *LatestSampleCache) StoreLatest(ctx context.Context, sample models.VoltageSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	args := []interface{}{
		data,
		strconv.FormatInt(sample.Timestamp.UnixMicro(), 10),
		strconv.FormatInt(sample.ID, 10),
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	}
	return storeLatestScript.Run(ctx, c.client, []string{c.key(sample.DeviceID)}, args...).Err()
}

// Latest returns the cached sample or nil on a miss.
func (c *LatestSampleCache) Latest(ctx context.Context, deviceID string) (*models.VoltageSample, error) {
	result, err := c.client.HGet(ctx, c.key(deviceID), "sample").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sample models.VoltageSample
	if err := json.Unmarshal([]byte(result), &sample); err != nil {
		return nil, err
	}
	return &sample, nil
}

// Invalidate drops the cached entry.
func (c *LatestSampleCache) Invalidate(ctx context.Context, deviceID string) error {
	return c.client.Del(ctx, c.key(deviceID)).Err()
}
