package admission

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "ratelimit:"

// RedisBackend keeps each window in a sorted set scored by hit time, so
// multiple service instances share one view of a client's usage.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Allow(ctx context.Context, key string, now time.Time, window time.Duration, max int) (bool, error) {
	rkey := redisKeyPrefix + key
	cutoff := now.Add(-window).UnixMilli()

	pipe := b.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(cutoff, 10))
	count := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if count.Val() >= int64(max) {
		return false, nil
	}

	// Member must be unique per hit; two hits in the same millisecond
	// would otherwise collapse into one entry.
	member := uuid.NewString()
	if err := b.rdb.ZAdd(ctx, rkey, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: member,
	}).Err(); err != nil {
		return false, err
	}
	if err := b.rdb.Expire(ctx, rkey, window).Err(); err != nil {
		return false, err
	}
	return true, nil
}
