package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBridge forwards dispatched events to a RabbitMQ topic exchange, using
// the event type as routing key.
type AMQPBridge struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPBridge dials the broker and declares a durable topic exchange.
func NewAMQPBridge(url, exchange string) (*AMQPBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPBridge{conn: conn, ch: ch, exchange: exchange}, nil
}

// Attach subscribes the bridge to every event type on the dispatcher.
func (b *AMQPBridge) Attach(dispatcher Dispatcher) {
	for _, eventType := range AllEventTypes {
		dispatcher.Subscribe(eventType, b.Forward)
	}
}

// Forward publishes one event as JSON.
func (b *AMQPBridge) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// amqp channels are not safe for concurrent publishing.
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch.PublishWithContext(ctx, b.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
}

// Close releases the channel and connection.
func (b *AMQPBridge) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
