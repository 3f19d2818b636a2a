package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/internal/metrics"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrEventBufferFull is returned when the dispatch buffer cannot take another event
	ErrEventBufferFull = errors.New("event buffer is full")
	// ErrPublisherClosed is returned by Publish after Close
	ErrPublisherClosed = errors.New("event publisher is closed")
)

// AsyncPublisherConfig configures the background dispatcher
type AsyncPublisherConfig struct {
	// BufferSize is the number of events held while the broker is slow
	BufferSize int
	// Timeout bounds a single delivery to the wrapped publisher
	Timeout time.Duration
	Logger  *logger.Logger
}

type pendingEvent struct {
	ctx   context.Context
	event *domain.QueueEvent
}

// AsyncEventPublisher hands events to a single background worker so callers
// never wait on the broker. Events are delivered in the order they were accepted.
type AsyncEventPublisher struct {
	next    EventPublisher
	timeout time.Duration
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	events chan pendingEvent
	done   chan struct{}
}

// NewAsyncEventPublisher wraps next and starts the dispatch worker
func NewAsyncEventPublisher(next EventPublisher, cfg *AsyncPublisherConfig) *AsyncEventPublisher {
	bufferSize := 1024
	timeout := 5 * time.Second
	log := logger.Nop()
	if cfg != nil {
		if cfg.BufferSize > 0 {
			bufferSize = cfg.BufferSize
		}
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}

	p := &AsyncEventPublisher{
		next:    next,
		timeout: timeout,
		log:     log,
		events:  make(chan pendingEvent, bufferSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues the event and returns immediately
func (p *AsyncEventPublisher) Publish(ctx context.Context, event *domain.QueueEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.events <- pendingEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return ErrEventBufferFull
	}
}

// Close stops accepting events, drains the buffer and closes the wrapped publisher
func (p *AsyncEventPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}

func (p *AsyncEventPublisher) run() {
	defer close(p.done)
	for pending := range p.events {
		p.deliver(pending)
	}
}

func (p *AsyncEventPublisher) deliver(pending pendingEvent) {
	ctx, cancel := context.WithTimeout(pending.ctx, p.timeout)
	defer cancel()

	if err := p.next.Publish(ctx, pending.event); err != nil {
		metrics.EventPublishFailuresTotal.WithLabelValues(string(pending.event.EventType)).Inc()
		p.log.WarnContext(ctx, "Failed to deliver queue event",
			zap.String("event_type", string(pending.event.EventType)),
			zap.String("event_id", pending.event.EventID),
			zap.String("queue_id", pending.event.QueueID),
			zap.Error(err),
		)
	}
}
