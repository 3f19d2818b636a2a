package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YogevSaadon/Qode/internal/auth"
	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/internal/metrics"
	"github.com/YogevSaadon/Qode/internal/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledPublisher blocks every delivery until released or its context ends
type stalledPublisher struct {
	release chan struct{}
	started chan struct{}
	closed  chan struct{}
}

func newStalledPublisher() *stalledPublisher {
	return &stalledPublisher{
		release: make(chan struct{}),
		started: make(chan struct{}, 64),
		closed:  make(chan struct{}),
	}
}

func (p *stalledPublisher) Publish(ctx context.Context, event *domain.QueueEvent) error {
	p.started <- struct{}{}
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *stalledPublisher) Close() error {
	close(p.closed)
	return nil
}

func TestAsyncEventPublisher_DeliversInOrder(t *testing.T) {
	inner := &MockEventPublisher{}
	p := NewAsyncEventPublisher(inner, nil)

	types := []domain.QueueEventType{
		domain.QueueEventCreated,
		domain.TicketEventIssued,
		domain.TicketEventCompleted,
		domain.QueueEventPaused,
	}
	for _, typ := range types {
		require.NoError(t, p.Publish(context.Background(), &domain.QueueEvent{EventType: typ, QueueID: "q1"}))
	}

	require.NoError(t, p.Close())
	assert.Equal(t, types, inner.Types())
}

func TestAsyncEventPublisher_DoesNotOutliveRequestContext(t *testing.T) {
	inner := &MockEventPublisher{}
	p := NewAsyncEventPublisher(inner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Publish(ctx, &domain.QueueEvent{EventType: domain.QueueEventCreated, QueueID: "q1"}))
	cancel()

	require.NoError(t, p.Close())
	assert.Equal(t, []domain.QueueEventType{domain.QueueEventCreated}, inner.Types())
}

func TestAsyncEventPublisher_RejectsWhenBufferIsFull(t *testing.T) {
	inner := newStalledPublisher()
	p := NewAsyncEventPublisher(inner, &AsyncPublisherConfig{BufferSize: 1, Timeout: time.Minute})

	event := &domain.QueueEvent{EventType: domain.TicketEventIssued, QueueID: "q1"}
	require.NoError(t, p.Publish(context.Background(), event))
	<-inner.started // worker holds the first event

	require.NoError(t, p.Publish(context.Background(), event))
	assert.ErrorIs(t, p.Publish(context.Background(), event), ErrEventBufferFull)

	close(inner.release)
	require.NoError(t, p.Close())
}

func TestAsyncEventPublisher_CountsDeliveryFailures(t *testing.T) {
	inner := &MockEventPublisher{publishErr: errors.New("broker down")}
	p := NewAsyncEventPublisher(inner, nil)
	counter := metrics.EventPublishFailuresTotal.WithLabelValues(string(domain.QueueEventDeactivated))
	before := testutil.ToFloat64(counter)

	require.NoError(t, p.Publish(context.Background(), &domain.QueueEvent{EventType: domain.QueueEventDeactivated, QueueID: "q1"}))
	require.NoError(t, p.Close())

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestAsyncEventPublisher_Close(t *testing.T) {
	inner := newStalledPublisher()
	p := NewAsyncEventPublisher(inner, &AsyncPublisherConfig{Timeout: 20 * time.Millisecond})

	require.NoError(t, p.Publish(context.Background(), &domain.QueueEvent{EventType: domain.QueueEventCreated}))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	select {
	case <-inner.closed:
	default:
		t.Fatal("wrapped publisher was not closed")
	}
	assert.ErrorIs(t, p.Publish(context.Background(), &domain.QueueEvent{}), ErrPublisherClosed)
}

func TestJoin_DoesNotWaitForSlowBroker(t *testing.T) {
	inner := newStalledPublisher()
	publisher := NewAsyncEventPublisher(inner, &AsyncPublisherConfig{Timeout: 10 * time.Second})
	defer func() {
		close(inner.release)
		require.NoError(t, publisher.Close())
	}()

	svc := NewTicketingService(
		repository.NewMemoryStore(),
		newRecordingBroadcaster(),
		publisher,
		auth.NewAuthorizer(nil),
		nil,
	)
	ctx := context.Background()

	start := time.Now()
	q, err := svc.CreateQueue(ctx, "Slow broker")
	require.NoError(t, err)
	joined, err := svc.Join(ctx, q.ID, "device-1")
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.True(t, joined.Created)
	assert.Less(t, elapsed, 500*time.Millisecond)
}
