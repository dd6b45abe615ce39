// Package events publishes routing events to RabbitMQ for the dispatch
// collaborator and for audit.
//
// Every event goes to one durable topic exchange with its kind
// ("routing.decision", "routing.rule_exhausted") as the routing key, so
// consumers bind the kinds they care about. Bodies are the JSON form of
// routing.Event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"conversation-router/internal/circuitbreaker"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/routing"
)

// AMQPPublisher implements routing.Publisher on a topic exchange.
//
// The channel is opened lazily and dropped after any publish failure, so the
// next publish reconnects. A circuit breaker stops hammering a broker that is
// down; while it is open Publish fails fast.
type AMQPPublisher struct {
	mu       sync.Mutex
	dial     DialFunc
	ch       Channel
	exchange string
	breaker  *circuitbreaker.Breaker
	logger   logging.Logger
}

// NewAMQPPublisher connects and declares exchange. It fails when the broker
// cannot be reached so startup can retry.
func NewAMQPPublisher(dial DialFunc, exchange string, breakerConfig circuitbreaker.Config) (*AMQPPublisher, error) {
	if exchange == "" {
		return nil, fmt.Errorf("exchange is required")
	}

	logger := logging.Component("events").WithFields(logging.String("exchange", exchange))
	p := &AMQPPublisher{
		dial:     dial,
		exchange: exchange,
		breaker:  circuitbreaker.New("amqp-publisher", breakerConfig, logger),
		logger:   logger,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

// channel returns the open channel, dialing if needed. Callers hold p.mu.
func (p *AMQPPublisher) channel() (Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}

	ch, err := p.dial()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event routing.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Kind, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Kind),
		Body:         body,
	}
	if requestID, ok := logging.RequestIDFromContext(ctx); ok {
		msg.CorrelationId = requestID
	}

	return p.breaker.Execute(ctx, func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		ch, err := p.channel()
		if err != nil {
			return err
		}
		if err := ch.Publish(p.exchange, string(event.Kind), false, false, msg); err != nil {
			_ = ch.Close()
			p.ch = nil
			return fmt.Errorf("failed to publish %s event: %w", event.Kind, err)
		}

		p.logger.Debug("Routing event published",
			logging.String("kind", string(event.Kind)),
			logging.String("event_id", event.ID),
			logging.String("rule_id", event.RuleID),
		)
		return nil
	})
}

// BreakerStats reports the publisher's circuit breaker state
func (p *AMQPPublisher) BreakerStats() circuitbreaker.Stats {
	return p.breaker.Stats()
}

// Health fails while the circuit breaker is open
func (p *AMQPPublisher) Health(context.Context) error {
	if p.breaker.IsOpen() {
		return fmt.Errorf("publisher circuit breaker is open")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, routing.Event) error { return nil }

var (
	_ routing.Publisher = (*AMQPPublisher)(nil)
	_ routing.Publisher = NopPublisher{}
)
