package events

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Channel is the part of an AMQP channel the publisher uses
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a fresh channel
type DialFunc func() (Channel, error)

// amqpChannel owns its connection so closing the channel releases both
type amqpChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c *amqpChannel) Close() error {
	chErr := c.Channel.Close()
	connErr := c.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

// DialAMQP returns a DialFunc that connects to url with one channel per connection
func DialAMQP(url string) DialFunc {
	return func() (Channel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		return &amqpChannel{Channel: ch, conn: conn}, nil
	}
}
