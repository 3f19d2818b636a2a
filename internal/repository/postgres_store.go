package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolationCode   = "23505"
	activeDeviceIndexName = "tickets_active_device_idx"
)

const queueColumns = `id::text, name, host_secret, is_active, is_paused,
	issued_count, served_pointer, completed_count, avg_wait_seconds, created_at`

const ticketColumns = `id::text, queue_id::text, device_token, position_number, status,
	created_at, called_at, completed_at`

// PostgresStore implements Store using PostgreSQL with pgxpool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables and indexes if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", mapError(err))
	}
	return nil
}

// Ping checks the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// GetQueue retrieves a queue by ID
func (s *PostgresStore) GetQueue(ctx context.Context, id string) (queue *domain.Queue, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.queue.get")
	defer func() { telemetry.EndSpan(span, ignoreNotFound(err)) }()
	span.SetAttributes(attribute.String("queue_id", id))

	if !validID(id) {
		return nil, domain.ErrQueueNotFound
	}

	queue, err = scanQueue(s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueNotFound
		}
		return nil, fmt.Errorf("failed to get queue: %w", mapError(err))
	}
	return queue, nil
}

// CreateQueue persists a new queue
func (s *PostgresStore) CreateQueue(ctx context.Context, queue *domain.Queue) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.queue.create")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("queue_id", queue.ID))

	query := `
		INSERT INTO queues (
			id, name, host_secret, is_active, is_paused,
			issued_count, served_pointer, completed_count, avg_wait_seconds, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		queue.ID,
		queue.Name,
		queue.HostSecret,
		queue.Active,
		queue.Paused,
		queue.IssuedCount,
		queue.ServedPointer,
		queue.CompletedCount,
		queue.AvgWaitSeconds,
		queue.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", mapError(err))
	}
	return nil
}

// SetQueueFlags updates the active and paused flags
func (s *PostgresStore) SetQueueFlags(ctx context.Context, id string, active, paused bool) (queue *domain.Queue, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.queue.set_flags")
	defer func() { telemetry.EndSpan(span, ignoreNotFound(err)) }()
	span.SetAttributes(
		attribute.String("queue_id", id),
		attribute.Bool("active", active),
		attribute.Bool("paused", paused),
	)

	if !validID(id) {
		return nil, domain.ErrQueueNotFound
	}

	query := `UPDATE queues SET is_active = $2, is_paused = $3 WHERE id = $1 RETURNING ` + queueColumns
	queue, err = scanQueue(s.pool.QueryRow(ctx, query, id, active, paused))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueNotFound
		}
		return nil, fmt.Errorf("failed to update queue flags: %w", mapError(err))
	}
	return queue, nil
}

// GetTicket retrieves a ticket by ID
func (s *PostgresStore) GetTicket(ctx context.Context, id string) (ticket *domain.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get")
	defer func() { telemetry.EndSpan(span, ignoreNotFound(err)) }()
	span.SetAttributes(attribute.String("ticket_id", id))

	if !validID(id) {
		return nil, domain.ErrTicketNotFound
	}

	ticket, err = scanTicket(s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", mapError(err))
	}
	return ticket, nil
}

// ListTickets lists a queue's tickets ordered by position
func (s *PostgresStore) ListTickets(ctx context.Context, queueID string, status domain.TicketStatus) (tickets []*domain.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("queue_id", queueID),
		attribute.String("status", string(status)),
	)

	if !validID(queueID) {
		return []*domain.Ticket{}, nil
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE queue_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY position_number`

	rows, err := s.pool.Query(ctx, query, queueID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", mapError(err))
	}
	defer rows.Close()

	tickets = []*domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", mapError(err))
	}
	return tickets, nil
}

// FindActiveTicket returns the newest active ticket for a device, or ErrTicketNotFound
func (s *PostgresStore) FindActiveTicket(ctx context.Context, queueID, deviceToken string) (ticket *domain.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.find_active")
	defer func() { telemetry.EndSpan(span, ignoreNotFound(err)) }()
	span.SetAttributes(attribute.String("queue_id", queueID))

	if !validID(queueID) {
		return nil, domain.ErrTicketNotFound
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE queue_id = $1 AND device_token = $2
		  AND status IN ('WAITING', 'CALLED', 'SERVING')
		ORDER BY created_at DESC, position_number DESC
		LIMIT 1`

	ticket, err = scanTicket(s.pool.QueryRow(ctx, query, queueID, deviceToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to find active ticket: %w", mapError(err))
	}
	return ticket, nil
}

// IssueNextPosition atomically increments the queue's issued counter
func (s *PostgresStore) IssueNextPosition(ctx context.Context, queueID string) (position int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.queue.issue_next_position")
	defer func() { telemetry.EndSpan(span, ignoreNotFound(err)) }()
	span.SetAttributes(attribute.String("queue_id", queueID))

	if !validID(queueID) {
		return 0, domain.ErrQueueNotFound
	}
	return incrementIssued(ctx, s.pool, queueID)
}

// IssueTicket increments the counter and inserts the ticket in one transaction
func (s *PostgresStore) IssueTicket(ctx context.Context, queueID, deviceToken string, now time.Time) (ticket *domain.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.issue")
	defer func() {
		if errors.Is(err, domain.ErrDuplicateActiveTicket) ||
			errors.Is(err, domain.ErrQueuePaused) ||
			errors.Is(err, domain.ErrQueueInactive) {
			telemetry.EndSpan(span, nil)
			return
		}
		telemetry.EndSpan(span, ignoreNotFound(err))
	}()
	span.SetAttributes(attribute.String("queue_id", queueID))

	if !validID(queueID) {
		return nil, domain.ErrQueueNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback(ctx)

	position, err := incrementOpenQueue(ctx, tx, queueID)
	if err != nil {
		return nil, err
	}

	ticket = domain.NewTicket(queueID, deviceToken, position, now)
	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (id, queue_id, device_token, position_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ticket.ID, ticket.QueueID, ticket.DeviceToken, ticket.PositionNumber, string(ticket.Status), ticket.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, activeDeviceIndexName) {
			return nil, domain.ErrDuplicateActiveTicket
		}
		return nil, fmt.Errorf("failed to insert ticket: %w", mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, activeDeviceIndexName) {
			return nil, domain.ErrDuplicateActiveTicket
		}
		return nil, fmt.Errorf("failed to commit ticket: %w", mapError(err))
	}

	span.SetAttributes(
		attribute.String("ticket_id", ticket.ID),
		attribute.Int64("position", position),
	)
	return ticket, nil
}

// Transition locks the ticket and its queue with SELECT ... FOR UPDATE, applies fn
// and writes both rows back. The queue row is only written when fn changed it.
func (s *PostgresStore) Transition(ctx context.Context, ticketID string, fn TransitionFunc) (ticket *domain.Ticket, queue *domain.Queue, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.transition")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("ticket_id", ticketID))

	if !validID(ticketID) {
		return nil, nil, domain.ErrTicketNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback(ctx)

	ticket, err = scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrTicketNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock ticket: %w", mapError(err))
	}

	queue, err = scanQueue(tx.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1 FOR UPDATE`, ticket.QueueID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrQueueNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock queue: %w", mapError(err))
	}

	before := *queue
	if err := fn(ticket, queue); err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets SET status = $2, called_at = $3, completed_at = $4
		WHERE id = $1
	`, ticket.ID, string(ticket.Status), ticket.CalledAt, ticket.CompletedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update ticket: %w", mapError(err))
	}

	if *queue != before {
		_, err = tx.Exec(ctx, `
			UPDATE queues SET
				is_active = $2, is_paused = $3, served_pointer = $4,
				completed_count = $5, avg_wait_seconds = $6
			WHERE id = $1
		`, queue.ID, queue.Active, queue.Paused, queue.ServedPointer, queue.CompletedCount, queue.AvgWaitSeconds)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to update queue: %w", mapError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transition: %w", mapError(err))
	}

	span.SetAttributes(attribute.String("status", string(ticket.Status)))
	return ticket, queue, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func incrementIssued(ctx context.Context, q rowQuerier, queueID string) (int64, error) {
	var position int64
	err := q.QueryRow(ctx,
		`UPDATE queues SET issued_count = issued_count + 1 WHERE id = $1 RETURNING issued_count`,
		queueID,
	).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrQueueNotFound
		}
		return 0, fmt.Errorf("failed to issue position: %w", mapError(err))
	}
	return position, nil
}

// incrementOpenQueue increments the counter only while the queue is active and
// not paused. When no row matches, the queue is read again to name the reason.
func incrementOpenQueue(ctx context.Context, q rowQuerier, queueID string) (int64, error) {
	var position int64
	err := q.QueryRow(ctx, `
		UPDATE queues SET issued_count = issued_count + 1
		WHERE id = $1 AND is_active AND NOT is_paused
		RETURNING issued_count
	`, queueID).Scan(&position)
	if err == nil {
		return position, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to issue position: %w", mapError(err))
	}

	queue, err := scanQueue(q.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1`, queueID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrQueueNotFound
		}
		return 0, fmt.Errorf("failed to get queue: %w", mapError(err))
	}
	if err := queue.CheckJoinable(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("failed to issue position for queue %s", queueID)
}

func scanQueue(row pgx.Row) (*domain.Queue, error) {
	q := &domain.Queue{}
	err := row.Scan(
		&q.ID,
		&q.Name,
		&q.HostSecret,
		&q.Active,
		&q.Paused,
		&q.IssuedCount,
		&q.ServedPointer,
		&q.CompletedCount,
		&q.AvgWaitSeconds,
		&q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	t := &domain.Ticket{}
	var status string
	err := row.Scan(
		&t.ID,
		&t.QueueID,
		&t.DeviceToken,
		&t.PositionNumber,
		&status,
		&t.CreatedAt,
		&t.CalledAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	return t, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == constraint
}

// mapError folds connection-level failures into ErrStorageUnavailable
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}

func ignoreNotFound(err error) error {
	if domain.IsNotFoundError(err) {
		return nil
	}
	return err
}
