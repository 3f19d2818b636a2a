package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/YogevSaadon/Qode/internal/auth"
	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/internal/dto"
	"github.com/YogevSaadon/Qode/internal/estimator"
	"github.com/YogevSaadon/Qode/internal/metrics"
	"github.com/YogevSaadon/Qode/internal/notifier"
	"github.com/YogevSaadon/Qode/internal/repository"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/YogevSaadon/Qode/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TicketingService defines the queue ticketing operations
type TicketingService interface {
	// CreateQueue creates a queue and returns it with its host token
	CreateQueue(ctx context.Context, name string) (*dto.QueueResponse, error)
	// GetQueue returns the public view of a queue
	GetQueue(ctx context.Context, queueID string) (*dto.QueuePublicResponse, error)
	// Snapshot returns the observer payload describing the queue's current state
	Snapshot(ctx context.Context, queueID string) (domain.QueueUpdateEvent, error)

	// Join issues a ticket, or returns the device's active ticket if it has one
	Join(ctx context.Context, queueID, deviceToken string) (*dto.JoinResponse, error)
	// GetTicketWithETA returns a ticket with its wait estimate
	GetTicketWithETA(ctx context.Context, ticketID string) (*dto.TicketWithETAResponse, error)

	// Verify completes a WAITING ticket and advances the queue
	Verify(ctx context.Context, ticketID, queueID string) (*dto.TicketActionResponse, error)
	// NoShow drops a WAITING ticket without advancing the queue
	NoShow(ctx context.Context, ticketID, queueID string) (*dto.TicketActionResponse, error)
	// ListTickets lists a queue's tickets, optionally filtered by status
	ListTickets(ctx context.Context, queueID, status string) ([]*dto.TicketResponse, error)
	// SetPaused pauses or resumes joining
	SetPaused(ctx context.Context, queueID string, paused bool) (*dto.QueuePublicResponse, error)
	// Deactivate retires a queue; it never accepts joins again
	Deactivate(ctx context.Context, queueID string) (*dto.QueuePublicResponse, error)

	// AuthenticateHost checks the credentials grant host rights over the queue
	AuthenticateHost(ctx context.Context, queueID string, creds auth.Credentials) error
	// IssueHostSession exchanges host credentials for a session token
	IssueHostSession(ctx context.Context, queueID string, creds auth.Credentials) (*auth.HostSession, error)
}

// ServiceConfig contains configuration for the ticketing service
type ServiceConfig struct {
	// Now is the clock; defaults to time.Now
	Now    func() time.Time
	Logger *logger.Logger
}

type ticketingService struct {
	store       repository.Store
	broadcaster notifier.Broadcaster
	publisher   EventPublisher
	authorizer  *auth.Authorizer
	now         func() time.Time
	log         *logger.Logger
}

// NewTicketingService creates a new ticketing service
func NewTicketingService(
	store repository.Store,
	broadcaster notifier.Broadcaster,
	publisher EventPublisher,
	authorizer *auth.Authorizer,
	cfg *ServiceConfig,
) TicketingService {
	now := time.Now
	log := logger.Nop()
	if cfg != nil {
		if cfg.Now != nil {
			now = cfg.Now
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	if authorizer == nil {
		authorizer = auth.NewAuthorizer(nil)
	}
	return &ticketingService{
		store:       store,
		broadcaster: broadcaster,
		publisher:   publisher,
		authorizer:  authorizer,
		now:         now,
		log:         log,
	}
}

// CreateQueue creates a queue and returns it with its host token
func (s *ticketingService) CreateQueue(ctx context.Context, name string) (_ *dto.QueueResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticketing.create_queue")
	defer func() { telemetry.EndSpan(span, err) }()

	queue, err := domain.NewQueue(name, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateQueue(ctx, queue); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("queue_id", queue.ID))

	metrics.QueuesCreatedTotal.Inc()
	s.publish(ctx, domain.NewQueueEvent(domain.QueueEventCreated, queue, nil, s.now()))

	return dto.QueueFromDomain(queue), nil
}

// GetQueue returns the public view of a queue
func (s *ticketingService) GetQueue(ctx context.Context, queueID string) (*dto.QueuePublicResponse, error) {
	queue, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return dto.PublicQueueFromDomain(queue), nil
}

// Snapshot returns the queue_update payload for the queue's current state
func (s *ticketingService) Snapshot(ctx context.Context, queueID string) (domain.QueueUpdateEvent, error) {
	queue, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return domain.QueueUpdateEvent{}, err
	}
	return queue.Snapshot(), nil
}

// Join issues a ticket at the next position. A device holding an active
// ticket gets that ticket back instead of a second one.
func (s *ticketingService) Join(ctx context.Context, queueID, deviceToken string) (_ *dto.JoinResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticketing.join")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("queue_id", queueID))

	deviceToken, err = domain.ValidateDeviceToken(deviceToken)
	if err != nil {
		return nil, err
	}

	queue, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := queue.CheckJoinable(); err != nil {
		return nil, err
	}

	existing, err := s.store.FindActiveTicket(ctx, queueID, deviceToken)
	if err == nil {
		metrics.JoinsReplayedTotal.Inc()
		span.SetAttributes(attribute.Bool("replayed", true))
		return &dto.JoinResponse{TicketResponse: *dto.TicketFromDomain(existing)}, nil
	}
	if !errors.Is(err, domain.ErrTicketNotFound) {
		return nil, err
	}

	ticket, err := s.store.IssueTicket(ctx, queueID, deviceToken, s.now())
	if errors.Is(err, domain.ErrDuplicateActiveTicket) {
		// A concurrent join from the same device won; return its ticket
		existing, findErr := s.store.FindActiveTicket(ctx, queueID, deviceToken)
		if findErr != nil {
			return nil, findErr
		}
		metrics.JoinsReplayedTotal.Inc()
		span.SetAttributes(attribute.Bool("replayed", true))
		return &dto.JoinResponse{TicketResponse: *dto.TicketFromDomain(existing)}, nil
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("ticket_id", ticket.ID),
		attribute.Int64("position", ticket.PositionNumber),
	)
	metrics.TicketsIssuedTotal.Inc()

	if queue.IssuedCount < ticket.PositionNumber {
		queue.IssuedCount = ticket.PositionNumber
	}
	s.publish(ctx, domain.NewQueueEvent(domain.TicketEventIssued, queue, ticket, s.now()))

	return &dto.JoinResponse{TicketResponse: *dto.TicketFromDomain(ticket), Created: true}, nil
}

// GetTicketWithETA returns a ticket with its wait estimate
func (s *ticketingService) GetTicketWithETA(ctx context.Context, ticketID string) (*dto.TicketWithETAResponse, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	queue, err := s.store.GetQueue(ctx, ticket.QueueID)
	if err != nil {
		return nil, err
	}

	est := estimator.Calculate(ticket.PositionNumber, queue.ServedPointer, queue.AvgWaitSeconds)
	return dto.TicketWithETAFromDomain(ticket, est), nil
}

// Verify completes a WAITING ticket, advances the served pointer and updates
// the average wait, then notifies observers.
func (s *ticketingService) Verify(ctx context.Context, ticketID, queueID string) (_ *dto.TicketActionResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticketing.verify")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("queue_id", queueID),
	)

	now := s.now()
	ticket, queue, err := s.store.Transition(ctx, ticketID, func(t *domain.Ticket, q *domain.Queue) error {
		if t.QueueID != queueID {
			return domain.ErrQueueMismatch
		}
		if err := t.Complete(now); err != nil {
			return err
		}
		q.RecordCompletion(t.PositionNumber, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.afterTransition(ctx, domain.TicketEventCompleted, ticket, queue), nil
}

// NoShow drops a WAITING ticket. The queue is unchanged, but observers are
// still told its current state.
func (s *ticketingService) NoShow(ctx context.Context, ticketID, queueID string) (_ *dto.TicketActionResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticketing.no_show")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("queue_id", queueID),
	)

	now := s.now()
	ticket, queue, err := s.store.Transition(ctx, ticketID, func(t *domain.Ticket, _ *domain.Queue) error {
		if t.QueueID != queueID {
			return domain.ErrQueueMismatch
		}
		return t.MarkNoShow(now)
	})
	if err != nil {
		return nil, err
	}

	return s.afterTransition(ctx, domain.TicketEventNoShow, ticket, queue), nil
}

func (s *ticketingService) afterTransition(ctx context.Context, eventType domain.QueueEventType, ticket *domain.Ticket, queue *domain.Queue) *dto.TicketActionResponse {
	metrics.TicketTransitionsTotal.WithLabelValues(string(ticket.Status)).Inc()

	update := queue.Snapshot()
	s.broadcaster.Broadcast(ctx, queue.ID, update)
	s.publish(ctx, domain.NewQueueEvent(eventType, queue, ticket, s.now()))

	return &dto.TicketActionResponse{
		Ticket: dto.TicketFromDomain(ticket),
		Queue:  dto.PublicQueueFromDomain(queue),
		Update: update,
	}
}

// ListTickets lists a queue's tickets ordered by position
func (s *ticketingService) ListTickets(ctx context.Context, queueID, status string) ([]*dto.TicketResponse, error) {
	var filter domain.TicketStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseTicketStatus(status)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}

	if _, err := s.store.GetQueue(ctx, queueID); err != nil {
		return nil, err
	}

	tickets, err := s.store.ListTickets(ctx, queueID, filter)
	if err != nil {
		return nil, err
	}
	return dto.TicketsFromDomain(tickets), nil
}

// SetPaused pauses or resumes joining. Retired queues stay retired.
func (s *ticketingService) SetPaused(ctx context.Context, queueID string, paused bool) (_ *dto.QueuePublicResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticketing.set_paused")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("queue_id", queueID),
		attribute.Bool("paused", paused),
	)

	current, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return nil, domain.ErrQueueInactive
	}

	queue, err := s.store.SetQueueFlags(ctx, queueID, true, paused)
	if err != nil {
		return nil, err
	}

	eventType := domain.QueueEventResumed
	if paused {
		eventType = domain.QueueEventPaused
	}
	s.broadcaster.Broadcast(ctx, queue.ID, queue.Snapshot())
	s.publish(ctx, domain.NewQueueEvent(eventType, queue, nil, s.now()))

	return dto.PublicQueueFromDomain(queue), nil
}

// Deactivate retires a queue
func (s *ticketingService) Deactivate(ctx context.Context, queueID string) (_ *dto.QueuePublicResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticketing.deactivate")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("queue_id", queueID))

	current, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	queue, err := s.store.SetQueueFlags(ctx, queueID, false, current.Paused)
	if err != nil {
		return nil, err
	}

	s.broadcaster.Broadcast(ctx, queue.ID, queue.Snapshot())
	s.publish(ctx, domain.NewQueueEvent(domain.QueueEventDeactivated, queue, nil, s.now()))

	return dto.PublicQueueFromDomain(queue), nil
}

// AuthenticateHost checks the credentials grant host rights over the queue
func (s *ticketingService) AuthenticateHost(ctx context.Context, queueID string, creds auth.Credentials) error {
	queue, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return err
	}
	return s.authorizer.Authorize(queue, creds)
}

// IssueHostSession exchanges host credentials for a session token
func (s *ticketingService) IssueHostSession(ctx context.Context, queueID string, creds auth.Credentials) (*auth.HostSession, error) {
	queue, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(queue, creds); err != nil {
		return nil, err
	}
	return s.authorizer.IssueSession(queue)
}

// publish hands a lifecycle event to the publisher, which must not block on
// the broker. Failures are logged and never returned.
func (s *ticketingService) publish(ctx context.Context, event *domain.QueueEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.EventPublishFailuresTotal.WithLabelValues(string(event.EventType)).Inc()
		s.log.WarnContext(ctx, "Failed to publish queue event",
			zap.String("event_type", string(event.EventType)),
			zap.String("queue_id", event.QueueID),
			zap.Error(err),
		)
	}
}
