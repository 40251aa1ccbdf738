package prediction

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type ErrorKey struct {
	TripID        string
	StopPathIndex int
}

func (k ErrorKey) String() string {
	return fmt.Sprintf("kalman_error:%s:%d", k.TripID, k.StopPathIndex)
}

// ErrorCache holds the Kalman filter error left behind by the last prediction for a stop path
type ErrorCache interface {
	Get(ctx context.Context, key ErrorKey) (float64, bool)
	Put(ctx context.Context, key ErrorKey, value float64)
}

type MemoryErrorCache struct {
	mutex  sync.RWMutex
	values map[ErrorKey]float64
}

func NewMemoryErrorCache() *MemoryErrorCache {
	return &MemoryErrorCache{values: map[ErrorKey]float64{}}
}

func (c *MemoryErrorCache) Get(_ context.Context, key ErrorKey) (float64, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	value, ok := c.values[key]
	return value, ok
}

func (c *MemoryErrorCache) Put(_ context.Context, key ErrorKey, value float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.values[key] = value
}

// RedisErrorCache shares filter errors between engine instances
type RedisErrorCache struct {
	cache *cache.Cache[string]
}

func NewRedisErrorCache(client *redis.Client, expiration time.Duration) *RedisErrorCache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(expiration))

	return &RedisErrorCache{
		cache: cache.New[string](redisStore),
	}
}

func (c *RedisErrorCache) Get(ctx context.Context, key ErrorKey) (float64, bool) {
	value, err := c.cache.Get(ctx, key.String())
	if err != nil || value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (c *RedisErrorCache) Put(ctx context.Context, key ErrorKey, value float64) {
	err := c.cache.Set(ctx, key.String(), strconv.FormatFloat(value, 'f', -1, 64))
	if err != nil {
		log.Error().Err(err).Str("key", key.String()).Msg("Failed to store kalman error")
	}
}
