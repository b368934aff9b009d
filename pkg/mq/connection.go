package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "events"
)

// MessageHandler 处理一条消息，返回 error 表示需要重新投递
type MessageHandler func(ctx context.Context, data json.RawMessage) error

// EventPublisher 发布事件，outbox dispatcher 和业务代码依赖此接口
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, body []byte) error
}

// DeadLetterPublisher 将无法处理的消息转入死信
type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// NewConnection creates a new RabbitMQ connection.
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the events exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
