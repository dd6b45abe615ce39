package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-router/internal/circuitbreaker"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/routing"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []published
	declared   []string
	publishErr error
	declareErr error
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeBroker struct {
	mu       sync.Mutex
	channels []*fakeChannel
	dialErr  error
	next     func() *fakeChannel
}

func (b *fakeBroker) dial() (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	ch := &fakeChannel{}
	if b.next != nil {
		ch = b.next()
	}
	b.channels = append(b.channels, ch)
	return ch, nil
}

func (b *fakeBroker) dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func decisionEvent() routing.Event {
	limit := 10
	return routing.Event{
		ID:             "evt-1",
		Kind:           routing.EventDecision,
		OccurredAt:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		ConversationID: "conv-1",
		RuleID:         "rule-1",
		RuleType:       routing.RuleTypeAllocateNextN,
		Target:         routing.TargetHuman,
		AllocatedCount: 3,
		AllocateCount:  &limit,
	}
}

func testBreaker() circuitbreaker.Config {
	return circuitbreaker.Config{MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1}
}

func TestNewAMQPPublisher_DeclaresTopicExchange(t *testing.T) {
	broker := &fakeBroker{}
	p, err := NewAMQPPublisher(broker.dial, "conversation.routing", testBreaker())
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 1, broker.dials())
	assert.Equal(t, []string{"conversation.routing:topic"}, broker.channels[0].declared)
}

func TestNewAMQPPublisher_Errors(t *testing.T) {
	_, err := NewAMQPPublisher((&fakeBroker{}).dial, "", testBreaker())
	assert.Error(t, err)

	_, err = NewAMQPPublisher((&fakeBroker{dialErr: stderrors.New("refused")}).dial, "x", testBreaker())
	assert.Error(t, err)

	declareFails := &fakeBroker{next: func() *fakeChannel { return &fakeChannel{declareErr: stderrors.New("denied")} }}
	_, err = NewAMQPPublisher(declareFails.dial, "x", testBreaker())
	require.Error(t, err)
	assert.True(t, declareFails.channels[0].closed)
}

func TestAMQPPublisher_Publish(t *testing.T) {
	broker := &fakeBroker{}
	p, err := NewAMQPPublisher(broker.dial, "conversation.routing", testBreaker())
	require.NoError(t, err)

	ctx := logging.ContextWithRequestID(context.Background(), "req-42")
	require.NoError(t, p.Publish(ctx, decisionEvent()))

	ch := broker.channels[0]
	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "conversation.routing", got.exchange)
	assert.Equal(t, "routing.decision", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "evt-1", got.msg.MessageId)
	assert.Equal(t, "req-42", got.msg.CorrelationId)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "routing.decision", body["kind"])
	assert.Equal(t, "conv-1", body["conversationId"])
	assert.Equal(t, "rule-1", body["ruleId"])
	assert.Equal(t, "allocate_next_n", body["ruleType"])
	assert.Equal(t, "human", body["target"])
	assert.Equal(t, float64(3), body["allocatedCount"])
	assert.Equal(t, float64(10), body["allocateCount"])
}

func TestAMQPPublisher_ReconnectsAfterFailure(t *testing.T) {
	first := true
	broker := &fakeBroker{next: func() *fakeChannel {
		if first {
			first = false
			return &fakeChannel{publishErr: stderrors.New("channel closed")}
		}
		return &fakeChannel{}
	}}
	p, err := NewAMQPPublisher(broker.dial, "conversation.routing", testBreaker())
	require.NoError(t, err)

	err = p.Publish(context.Background(), decisionEvent())
	require.Error(t, err)
	assert.True(t, broker.channels[0].closed)

	require.NoError(t, p.Publish(context.Background(), decisionEvent()))
	assert.Equal(t, 2, broker.dials())
	assert.Len(t, broker.channels[1].published, 1)
}

func TestAMQPPublisher_BreakerOpens(t *testing.T) {
	broker := &fakeBroker{}
	p, err := NewAMQPPublisher(broker.dial, "conversation.routing", testBreaker())
	require.NoError(t, err)

	assert.NoError(t, p.Health(context.Background()))

	broker.channels[0].publishErr = stderrors.New("broker down")
	broker.dialErr = stderrors.New("refused")

	for i := 0; i < 2; i++ {
		assert.Error(t, p.Publish(context.Background(), decisionEvent()))
	}
	assert.Equal(t, "open", p.BreakerStats().State)
	assert.Error(t, p.Health(context.Background()))

	err = p.Publish(context.Background(), decisionEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 1, broker.dials(), "an open breaker does not redial")
}

func TestAMQPPublisher_Close(t *testing.T) {
	broker := &fakeBroker{}
	p, err := NewAMQPPublisher(broker.dial, "conversation.routing", testBreaker())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, broker.channels[0].closed)
	assert.NoError(t, p.Close())
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), decisionEvent()))
}
