package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"instapulse/pkg/trace"
)

type localMessage struct {
	routingKey string
	body       []byte
	traceID    string
	attempt    int
}

// LocalBus 进程内事件总线，未配置 RabbitMQ 时替代 Publisher + Consumer。
// 消息投递语义与 Consumer 一致：handler 返回 error 时延迟后重新投递。
type LocalBus struct {
	logger      *zap.Logger
	queue       chan localMessage
	maxAttempts int
	retryDelay  time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	dead     []localMessage
	wg       sync.WaitGroup
}

func NewLocalBus(logger *zap.Logger, buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBus{
		logger:      logger,
		queue:       make(chan localMessage, buffer),
		maxAttempts: 5,
		retryDelay:  time.Second,
		handlers:    make(map[string]MessageHandler),
	}
}

// WithRetry 设置重新投递策略
func (b *LocalBus) WithRetry(maxAttempts int, delay time.Duration) *LocalBus {
	b.maxAttempts = maxAttempts
	b.retryDelay = delay
	return b
}

// Subscribe 注册 routing key 的处理函数
func (b *LocalBus) Subscribe(routingKey string, h MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[routingKey] = h
}

// PublishWithContext 入队，不等待处理完成
func (b *LocalBus) PublishWithContext(ctx context.Context, routingKey string, body []byte) error {
	msg := localMessage{
		routingKey: routingKey,
		body:       append([]byte(nil), body...),
		traceID:    trace.FromContext(ctx),
		attempt:    1,
	}
	select {
	case b.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishToDLQ 本地模式下死信只保留在内存并记录日志
func (b *LocalBus) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	b.mu.Lock()
	b.dead = append(b.dead, localMessage{routingKey: routingKey, body: payload})
	b.mu.Unlock()

	b.logger.Warn("Message dead-lettered",
		zap.String("routing_key", routingKey),
		zap.String("original_error", originalError),
	)
	return nil
}

// DeadLetters 返回死信数量
func (b *LocalBus) DeadLetters() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.dead)
}

// Run 处理消息直到 ctx 结束，阻塞调用
func (b *LocalBus) Run(ctx context.Context) {
	b.logger.Info("Local event bus started")
	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return
		case msg := <-b.queue:
			b.dispatch(ctx, msg)
		}
	}
}

func (b *LocalBus) dispatch(ctx context.Context, msg localMessage) {
	b.mu.RLock()
	h, ok := b.handlers[msg.routingKey]
	b.mu.RUnlock()
	if !ok {
		b.logger.Debug("No handler for routing key", zap.String("routing_key", msg.routingKey))
		return
	}

	hctx := ctx
	if msg.traceID != "" {
		hctx = trace.WithContext(ctx, msg.traceID)
	}

	err := b.safeHandle(hctx, h, msg)
	if err == nil {
		return
	}

	if msg.attempt >= b.maxAttempts {
		b.logger.Error("Message dropped after max attempts",
			zap.String("routing_key", msg.routingKey),
			zap.Int("attempts", msg.attempt),
			zap.Error(err),
		)
		_ = b.PublishToDLQ(msg.routingKey, msg.body, err.Error())
		return
	}

	msg.attempt++
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		timer := time.NewTimer(b.retryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case b.queue <- msg:
			case <-ctx.Done():
			}
		}
	}()
}

func (b *LocalBus) safeHandle(ctx context.Context, h MessageHandler, msg localMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panic recovered",
				zap.String("routing_key", msg.routingKey),
				zap.Any("panic", r),
			)
			err = nil
		}
	}()
	return h(ctx, json.RawMessage(msg.body))
}
