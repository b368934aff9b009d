package util

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 锁已被其他运行持有
var ErrLockHeld = errors.New("lock is held by another run")

// RunLock 互斥地运行一个长任务，返回的函数用于释放
type RunLock interface {
	TryAcquire(ctx context.Context, name string) (release func(), err error)
}

// releaseScript 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript 只续期自己持有的锁
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const defaultRunLockTTL = 30 * time.Second

// RedisRunLock 基于 SET NX 的跨进程锁。持有期间每 ttl/3 续期一次，
// 进程崩溃后锁在 ttl 内过期
type RedisRunLock struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisRunLock(rdb redis.Cmdable, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = defaultRunLockTTL
	}
	return &RedisRunLock{rdb: rdb, ttl: ttl}
}

func (l *RedisRunLock) TryAcquire(ctx context.Context, name string) (func(), error) {
	key := "lock:" + name
	token := uuid.NewString()
	acquired, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			releaseScript.Run(ctx, l.rdb, []string{key}, token)
		})
	}, nil
}

// keepAlive 续期直到释放，或锁已不属于自己
func (l *RedisRunLock) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

// LocalRunLock 进程内锁
type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: make(map[string]bool)}
}

func (l *LocalRunLock) TryAcquire(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, ErrLockHeld
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}
