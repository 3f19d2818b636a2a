package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/internal/metrics"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single delivery to one observer
const DefaultSendTimeout = 5 * time.Second

// Observer receives serialized queue events
type Observer interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

// Broadcaster delivers queue snapshots to whoever is watching a queue
type Broadcaster interface {
	Broadcast(ctx context.Context, queueID string, event domain.QueueUpdateEvent)
}

// Notifier keeps the observers of each queue and fans events out to them
type Notifier struct {
	mu          sync.RWMutex
	observers   map[string]map[string]Observer
	sendTimeout time.Duration
	log         *logger.Logger
}

// New creates a Notifier. A zero sendTimeout uses DefaultSendTimeout.
func New(sendTimeout time.Duration, log *logger.Logger) *Notifier {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{
		observers:   make(map[string]map[string]Observer),
		sendTimeout: sendTimeout,
		log:         log,
	}
}

// Register adds an observer to a queue
func (n *Notifier) Register(queueID string, obs Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	set, ok := n.observers[queueID]
	if !ok {
		set = make(map[string]Observer)
		n.observers[queueID] = set
	}
	if _, exists := set[obs.ID()]; !exists {
		metrics.ObserversConnected.Inc()
	}
	set[obs.ID()] = obs
}

// Unregister removes an observer. Removing an unknown observer is a no-op.
func (n *Notifier) Unregister(queueID string, obs Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	set, ok := n.observers[queueID]
	if !ok {
		return
	}
	if _, exists := set[obs.ID()]; !exists {
		return
	}
	delete(set, obs.ID())
	metrics.ObserversConnected.Dec()
	if len(set) == 0 {
		delete(n.observers, queueID)
	}
}

// Count returns the number of observers registered on a queue
func (n *Notifier) Count(queueID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers[queueID])
}

// Broadcast serializes event once and delivers it to every observer of the queue
func (n *Notifier) Broadcast(ctx context.Context, queueID string, event domain.QueueUpdateEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.ErrorContext(ctx, "Failed to marshal queue update",
			zap.String("queue_id", queueID),
			zap.Error(err),
		)
		return
	}
	n.BroadcastRaw(ctx, queueID, payload)
}

// BroadcastRaw delivers an already serialized payload. Observers whose send
// fails are unregistered. Delivery failures are never reported to the caller.
func (n *Notifier) BroadcastRaw(ctx context.Context, queueID string, payload []byte) {
	n.mu.RLock()
	set := n.observers[queueID]
	targets := make([]Observer, 0, len(set))
	for _, obs := range set {
		targets = append(targets, obs)
	}
	n.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []Observer
	)
	for _, obs := range targets {
		wg.Add(1)
		go func(obs Observer) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.sendTimeout)
			defer cancel()
			if err := obs.Send(sendCtx, payload); err != nil {
				n.log.Debug("Dropping observer",
					zap.String("queue_id", queueID),
					zap.String("observer_id", obs.ID()),
					zap.Error(err),
				)
				failMu.Lock()
				failed = append(failed, obs)
				failMu.Unlock()
			}
		}(obs)
	}
	wg.Wait()

	metrics.BroadcastsTotal.Inc()
	for _, obs := range failed {
		metrics.BroadcastFailuresTotal.Inc()
		n.Unregister(queueID, obs)
	}
}
