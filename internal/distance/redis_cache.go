package distance

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares resolved durations across server instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context
}

func NewRedisCache(addr, password string, ttl time.Duration) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c, ttl: ttl, ctx: context.Background()}
}

func redisKey(origin, destination string) string {
	return "walk:" + origin + "->" + destination
}

func (r *RedisCache) Get(origin, destination string) (float64, bool) {
	v, err := r.client.Get(r.ctx, redisKey(origin, destination)).Result()
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (r *RedisCache) Set(origin, destination string, seconds float64) {
	_ = r.client.Set(r.ctx, redisKey(origin, destination), strconv.FormatFloat(seconds, 'f', -1, 64), r.ttl).Err()
}
