package repository

import (
	"context"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
)

// TransitionFunc mutates a locked ticket and its queue. Returning an error
// aborts the transition and nothing is persisted.
type TransitionFunc func(ticket *domain.Ticket, queue *domain.Queue) error

// Store is the persistence contract of the ticketing engine
type Store interface {
	// GetQueue retrieves a queue by ID
	GetQueue(ctx context.Context, id string) (*domain.Queue, error)
	// CreateQueue persists a new queue
	CreateQueue(ctx context.Context, queue *domain.Queue) error
	// SetQueueFlags updates the active and paused flags and returns the queue
	SetQueueFlags(ctx context.Context, id string, active, paused bool) (*domain.Queue, error)

	// GetTicket retrieves a ticket by ID
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	// ListTickets lists a queue's tickets by position; an empty status lists all
	ListTickets(ctx context.Context, queueID string, status domain.TicketStatus) ([]*domain.Ticket, error)
	// FindActiveTicket returns the newest active ticket a device holds in a queue
	FindActiveTicket(ctx context.Context, queueID, deviceToken string) (*domain.Ticket, error)

	// IssueNextPosition atomically increments the queue's counter and returns the new value
	IssueNextPosition(ctx context.Context, queueID string) (int64, error)
	// IssueTicket increments the counter and inserts a WAITING ticket as one unit.
	// It returns ErrQueueInactive or ErrQueuePaused when the queue stopped taking
	// tickets, and ErrDuplicateActiveTicket when the device already holds an active ticket.
	IssueTicket(ctx context.Context, queueID, deviceToken string, now time.Time) (*domain.Ticket, error)
	// Transition locks a ticket and its queue, applies fn and persists both
	Transition(ctx context.Context, ticketID string, fn TransitionFunc) (*domain.Ticket, *domain.Queue, error)

	// Ping checks the store is reachable
	Ping(ctx context.Context) error
}
