package util

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 记录消息重试次数，rdb 为 nil 时使用进程内计数
type RetryCounter struct {
	rdb redis.Cmdable
	ttl time.Duration

	mu    sync.Mutex
	local map[string]int64
}

func NewRetryCounter(rdb redis.Cmdable, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl, local: make(map[string]int64)}
}

// IncrementAndGet increments the retry count for key and returns the new count
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if r.rdb == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.local[key]++
		return r.local[key], nil
	}

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}
	return count, nil
}

// Get returns the current retry count
func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	if r.rdb == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.local[key], nil
	}

	count, err := r.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// Reset resets the retry count
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	if r.rdb == nil {
		r.mu.Lock()
		delete(r.local, key)
		r.mu.Unlock()
		return nil
	}
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey formats a retry key for a handler and entity id
func FormatRetryKey(handler string, id int) string {
	return fmt.Sprintf("retry:%s:%d", handler, id)
}
