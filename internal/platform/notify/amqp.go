package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpPublishTimeout = 5 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes notification envelopes to a RabbitMQ topic exchange, routed by kind.
type AMQPPublisher struct {
	ch       amqpChannel
	conn     *amqp.Connection
	exchange string
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		return nil, errors.New("amqp publisher: exchange is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp publisher: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp publisher: declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, conn: conn, exchange: exchange}, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

// Publish sends msg as a persistent JSON message. Attributes travel as headers.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	headers := amqp.Table{}
	for k, v := range msg.Attributes {
		if v != "" {
			headers[k] = v
		}
	}

	ctx, cancel := context.WithTimeout(ctx, amqpPublishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.exchange, msg.Kind, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

// Close closes the channel and, for dialled publishers, the connection.
func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil && !p.conn.IsClosed() {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
