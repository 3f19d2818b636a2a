package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/YogevSaadon/Qode/pkg/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "qode:queue:"
	channelSuffix = ":updates"
)

var errSubscriptionClosed = errors.New("subscription channel closed")

// PubSubClient is the subset of the Redis wrapper the relay needs
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
}

// Subscription is a live pattern subscription
type Subscription interface {
	Channel() <-chan *redis.Message
	Close() error
}

// RedisRelay fans queue updates out across API instances. Broadcast publishes
// to Redis and Run delivers what every instance published to local observers.
// While Run is not subscribed, Broadcast also delivers locally.
type RedisRelay struct {
	client     PubSubClient
	local      *Notifier
	log        *logger.Logger
	backoff    *retry.Retrier
	subscribe  func(ctx context.Context) (Subscription, error)
	subscribed atomic.Bool
}

// NewRedisRelay creates a relay in front of the local notifier
func NewRedisRelay(client PubSubClient, local *Notifier, log *logger.Logger) *RedisRelay {
	if log == nil {
		log = logger.Nop()
	}
	r := &RedisRelay{
		client: client,
		local:  local,
		log:    log,
		backoff: retry.New(&retry.Config{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		}),
	}
	r.subscribe = r.psubscribe
	return r
}

// ChannelFor returns the pub/sub channel carrying a queue's updates
func ChannelFor(queueID string) string {
	return channelPrefix + queueID + channelSuffix
}

func queueIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) || !strings.HasSuffix(channel, channelSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(channel, channelPrefix), channelSuffix)
	return id, id != ""
}

// Broadcast publishes the event. Local observers get it directly when the
// subscription is down or Redis rejects the publish.
func (r *RedisRelay) Broadcast(ctx context.Context, queueID string, event domain.QueueUpdateEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to marshal queue update",
			zap.String("queue_id", queueID),
			zap.Error(err),
		)
		return
	}

	deliveredLocally := false
	if !r.subscribed.Load() {
		r.local.BroadcastRaw(ctx, queueID, payload)
		deliveredLocally = true
	}

	if err := r.client.Publish(ctx, ChannelFor(queueID), string(payload)).Err(); err != nil {
		r.log.WarnContext(ctx, "Failed to publish queue update",
			zap.String("queue_id", queueID),
			zap.Bool("delivered_locally", true),
			zap.Error(err),
		)
		if !deliveredLocally {
			r.local.BroadcastRaw(ctx, queueID, payload)
		}
	}
}

// Subscribed reports whether Run currently holds a live subscription
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Run keeps a subscription to every queue channel until ctx is done,
// resubscribing with backoff whenever it is lost.
func (r *RedisRelay) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}

		wait := r.backoff.Backoff(attempt)
		attempt++
		r.log.Warn("Queue update relay disconnected, resubscribing",
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// consume runs one subscription until it ends. connected reports whether
// the subscription was established at all.
func (r *RedisRelay) consume(ctx context.Context) (connected bool, err error) {
	sub, err := r.subscribe(ctx)
	if err != nil {
		return false, err
	}
	defer sub.Close()

	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.log.Info("Queue update relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errSubscriptionClosed
			}
			queueID, valid := queueIDFromChannel(msg.Channel)
			if !valid {
				continue
			}
			r.local.BroadcastRaw(ctx, queueID, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) psubscribe(ctx context.Context) (Subscription, error) {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return &redisSubscription{pubsub: pubsub, ch: pubsub.Channel()}, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

func (s *redisSubscription) Channel() <-chan *redis.Message { return s.ch }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }
