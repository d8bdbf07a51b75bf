package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"amble/internal/store"
)

// RedisService provides the Redis-backed pieces of the companion:
// durable scheduler job state, the cross-instance tick lock and alert pub/sub.
type RedisService struct {
	client *redis.Client
	prefix string
}

// NewRedisService connects to Redis and verifies the connection.
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")

	return NewRedisServiceWithClient(client), nil
}

// NewRedisServiceWithClient wraps an existing client.
func NewRedisServiceWithClient(client *redis.Client) *RedisService {
	return &RedisService{client: client, prefix: "amble"}
}

// Client returns the underlying Redis client
func (r *RedisService) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish publishes a message to a channel
func (r *RedisService) Publish(ctx context.Context, channel string, message interface{}) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to channels
func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return r.client.Subscribe(ctx, channels...)
}

// AlertChannel is the pub/sub channel carrying one user's alerts.
func (r *RedisService) AlertChannel(userKey string) string {
	return r.prefix + ":alerts:" + userKey
}

func (r *RedisService) jobKey(job string) string {
	return r.prefix + ":jobs:" + job
}

// LastRun reads lastRun[job][userKey] from a per-job hash of unix milliseconds.
func (r *RedisService) LastRun(ctx context.Context, job, userKey string) (time.Time, bool, error) {
	v, err := r.client.HGet(ctx, r.jobKey(job), userKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read job state: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt job state for %s/%s: %w", job, userKey, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// SetLastRun writes lastRun[job][userKey]. Durability follows the Redis persistence settings.
func (r *RedisService) SetLastRun(ctx context.Context, job, userKey string, at time.Time) error {
	if err := r.client.HSet(ctx, r.jobKey(job), userKey, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to write job state: %w", err)
	}
	return nil
}

// AcquireLock attempts to acquire a distributed lock
func (r *RedisService) AcquireLock(ctx context.Context, lockKey string, lockValue string, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+":lock:"+lockKey, lockValue, expiration).Result()
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// ReleaseLock releases a distributed lock if it's still held by the given value
func (r *RedisService) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	result, err := releaseScript.Run(ctx, r.client, []string{r.prefix + ":lock:" + lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

var _ store.JobState = (*RedisService)(nil)
