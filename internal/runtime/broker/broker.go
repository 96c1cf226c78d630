// Package broker narrows the amqp091-go client to the operations warren
// needs, so consumer tasks can run against the real broker in production and
// against in-memory fakes in tests.
package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the slice of an AMQP channel the framework uses. One channel is
// created per consumer task; the handle is shared with sub-tasks for publish
// and acknowledgment calls, which amqp091 allows concurrently.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Connection hands out channels and reports transport failure.
type Connection interface {
	Channel() (Channel, error)
	// NotifyClose registers a listener for connection-level errors. The
	// channel is closed with a nil error on clean shutdown.
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dial connects to the broker at the given AMQP URL.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	return c.conn.Channel()
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}
