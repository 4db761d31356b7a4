package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

// VisitCounter accumulates per-application visit deltas between flushes.
type VisitCounter interface {
	// Add increments an application's pending visit count.
	Add(ctx context.Context, applicationID string, delta int64) error
	// Drain atomically returns and resets all pending counts.
	Drain(ctx context.Context) (map[string]int64, error)
}

// MemoryCounter is the in-process counter used when Redis is not
// configured.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

var _ VisitCounter = (*MemoryCounter)(nil)

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

// Add implements VisitCounter.
func (c *MemoryCounter) Add(_ context.Context, applicationID string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[applicationID] += delta
	return nil
}

// Drain implements VisitCounter.
func (c *MemoryCounter) Drain(context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.counts
	c.counts = make(map[string]int64)
	return drained, nil
}

const redisVisitPrefix = "skydeck:visits:"

// RedisCounter keeps pending visit counts in Redis so they survive process
// restarts between flushes.
type RedisCounter struct {
	client *redis.Client
}

var _ VisitCounter = (*RedisCounter)(nil)

// NewRedisCounter wraps an existing Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Add implements VisitCounter.
func (c *RedisCounter) Add(ctx context.Context, applicationID string, delta int64) error {
	if err := c.client.IncrBy(ctx, redisVisitPrefix+applicationID, delta).Err(); err != nil {
		return fmt.Errorf("incr visit counter: %w", err)
	}
	return nil
}

// Drain implements VisitCounter. Keys are consumed with GETDEL so
// concurrent increments land in the next flush instead of being lost.
func (c *RedisCounter) Drain(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)

	iter := c.client.Scan(ctx, 0, redisVisitPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := c.client.GetDel(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return counts, fmt.Errorf("drain visit counter %s: %w", key, err)
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return counts, fmt.Errorf("parse visit counter %s: %w", key, err)
		}
		counts[strings.TrimPrefix(key, redisVisitPrefix)] += n
	}
	if err := iter.Err(); err != nil {
		return counts, fmt.Errorf("scan visit counters: %w", err)
	}
	return counts, nil
}
