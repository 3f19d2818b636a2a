package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	messages []*kafka.Message
	err      error
	closed   bool
}

func (p *fakeProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() { p.closed = true }

func TestKafkaEventPublisher_Publish(t *testing.T) {
	producer := &fakeProducer{}
	publisher := newKafkaEventPublisher(producer, "", "")

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	queue, err := domain.NewQueue("Bakery", now)
	require.NoError(t, err)
	ticket := domain.NewTicket(queue.ID, "device-1", 1, now)
	event := domain.NewQueueEvent(domain.TicketEventIssued, queue, ticket, now)

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, "qode.queue-events", msg.Topic)
	assert.Equal(t, queue.ID, string(msg.Key))
	assert.Equal(t, "ticket.issued", msg.Headers["event_type"])
	assert.Equal(t, "qode-api", msg.Headers["source"])
	assert.Equal(t, now, msg.Timestamp)

	var decoded domain.QueueEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ticket.ID, decoded.TicketID)
	assert.Equal(t, int64(1), decoded.Position)

	require.NoError(t, publisher.Close())
	assert.True(t, producer.closed)
}

func TestKafkaEventPublisher_PublishError(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	publisher := newKafkaEventPublisher(producer, "custom-topic", "svc")

	event := &domain.QueueEvent{EventType: domain.QueueEventCreated, QueueID: "q1"}
	err := publisher.Publish(context.Background(), event)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.created")
}

func TestNewKafkaEventPublisher_Validation(t *testing.T) {
	_, err := NewKafkaEventPublisher(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewKafkaEventPublisher(context.Background(), &EventPublisherConfig{})
	assert.Error(t, err)
}

func TestNoOpEventPublisher(t *testing.T) {
	p := NewNoOpEventPublisher()
	assert.NoError(t, p.Publish(context.Background(), &domain.QueueEvent{}))
	assert.NoError(t, p.Close())
}
