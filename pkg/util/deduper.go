package util

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 保证同一个 handler 对同一个实体只处理一次
// rdb 为 nil 时退化为进程内去重
type Deduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]time.Time
	now   func() time.Time
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		local:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// AcquireOnce returns true the first time handler sees id within ttl.
// Redis failures fail open so work is never dropped.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id int) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, id)

	var ok bool
	if d.rdb == nil {
		ok = d.acquireLocal(key)
	} else {
		var err error
		ok, err = d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
		if err != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int("id", id),
				zap.Error(err),
			)
			return true
		}
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.Int("id", id),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// Release drops the marker so a later delivery is processed again.
func (d *Deduper) Release(ctx context.Context, handler string, id int) {
	key := fmt.Sprintf("dedup:%s:%d", handler, id)
	if d.rdb == nil {
		d.mu.Lock()
		delete(d.local, key)
		d.mu.Unlock()
		return
	}
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key", zap.String("dedup_key", key), zap.Error(err))
	}
}

func (d *Deduper) acquireLocal(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.local[key]; ok && now.Before(exp) {
		return false
	}
	d.local[key] = now.Add(d.ttl)
	return true
}
