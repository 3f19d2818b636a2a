package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
)

// MemoryStore implements Store in process memory. A single mutex serializes
// every operation, which gives it the same atomicity as the PostgreSQL store.
type MemoryStore struct {
	mu      sync.Mutex
	queues  map[string]*domain.Queue
	tickets map[string]*domain.Ticket
	byQueue map[string][]string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues:  make(map[string]*domain.Queue),
		tickets: make(map[string]*domain.Ticket),
		byQueue: make(map[string][]string),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) GetQueue(ctx context.Context, id string) (*domain.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[id]
	if !ok {
		return nil, domain.ErrQueueNotFound
	}
	return q.Clone(), nil
}

func (s *MemoryStore) CreateQueue(ctx context.Context, queue *domain.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queues[queue.ID] = queue.Clone()
	return nil
}

func (s *MemoryStore) SetQueueFlags(ctx context.Context, id string, active, paused bool) (*domain.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[id]
	if !ok {
		return nil, domain.ErrQueueNotFound
	}
	q.Active = active
	q.Paused = paused
	return q.Clone(), nil
}

func (s *MemoryStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListTickets(ctx context.Context, queueID string, status domain.TicketStatus) ([]*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets := []*domain.Ticket{}
	for _, id := range s.byQueue[queueID] {
		t := s.tickets[id]
		if status != "" && t.Status != status {
			continue
		}
		tickets = append(tickets, t.Clone())
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].PositionNumber < tickets[j].PositionNumber
	})
	return tickets, nil
}

func (s *MemoryStore) FindActiveTicket(ctx context.Context, queueID, deviceToken string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.findActiveLocked(queueID, deviceToken); t != nil {
		return t.Clone(), nil
	}
	return nil, domain.ErrTicketNotFound
}

func (s *MemoryStore) findActiveLocked(queueID, deviceToken string) *domain.Ticket {
	var newest *domain.Ticket
	for _, id := range s.byQueue[queueID] {
		t := s.tickets[id]
		if t.DeviceToken != deviceToken || !t.Status.IsActive() {
			continue
		}
		if newest == nil || t.PositionNumber > newest.PositionNumber {
			newest = t
		}
	}
	return newest
}

func (s *MemoryStore) IssueNextPosition(ctx context.Context, queueID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok {
		return 0, domain.ErrQueueNotFound
	}
	q.IssuedCount++
	return q.IssuedCount, nil
}

func (s *MemoryStore) IssueTicket(ctx context.Context, queueID, deviceToken string, now time.Time) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok {
		return nil, domain.ErrQueueNotFound
	}
	if err := q.CheckJoinable(); err != nil {
		return nil, err
	}
	if s.findActiveLocked(queueID, deviceToken) != nil {
		return nil, domain.ErrDuplicateActiveTicket
	}

	q.IssuedCount++
	t := domain.NewTicket(queueID, deviceToken, q.IssuedCount, now)
	s.tickets[t.ID] = t
	s.byQueue[queueID] = append(s.byQueue[queueID], t.ID)
	return t.Clone(), nil
}

func (s *MemoryStore) Transition(ctx context.Context, ticketID string, fn TransitionFunc) (*domain.Ticket, *domain.Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tickets[ticketID]
	if !ok {
		return nil, nil, domain.ErrTicketNotFound
	}
	storedQueue, ok := s.queues[stored.QueueID]
	if !ok {
		return nil, nil, domain.ErrQueueNotFound
	}

	// fn works on copies so a failed transition leaves no trace
	ticket := stored.Clone()
	queue := storedQueue.Clone()
	if err := fn(ticket, queue); err != nil {
		return nil, nil, err
	}

	s.tickets[ticketID] = ticket
	s.queues[queue.ID] = queue
	return ticket.Clone(), queue.Clone(), nil
}
