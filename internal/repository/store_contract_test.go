package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// runStoreContract exercises the behaviour every Store must share
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("QueueLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		q := createQueue(t, s, "Bakery")

		got, err := s.GetQueue(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, "Bakery", got.Name)
		assert.Equal(t, q.HostSecret, got.HostSecret)
		assert.True(t, got.Active)
		assert.Zero(t, got.IssuedCount)

		paused, err := s.SetQueueFlags(ctx, q.ID, true, true)
		require.NoError(t, err)
		assert.True(t, paused.Paused)

		_, err = s.GetQueue(ctx, uuid.New().String())
		assert.ErrorIs(t, err, domain.ErrQueueNotFound)
		_, err = s.SetQueueFlags(ctx, uuid.New().String(), false, false)
		assert.ErrorIs(t, err, domain.ErrQueueNotFound)
	})

	t.Run("IssueNextPosition", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Counter")

		for want := int64(1); want <= 3; want++ {
			got, err := s.IssueNextPosition(ctx, q.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		_, err := s.IssueNextPosition(ctx, uuid.New().String())
		assert.ErrorIs(t, err, domain.ErrQueueNotFound)
	})

	t.Run("IssueTicketRespectsQueueFlags", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Post office")

		_, err := s.SetQueueFlags(ctx, q.ID, true, true)
		require.NoError(t, err)
		_, err = s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		assert.ErrorIs(t, err, domain.ErrQueuePaused)

		_, err = s.SetQueueFlags(ctx, q.ID, false, false)
		require.NoError(t, err)
		_, err = s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		assert.ErrorIs(t, err, domain.ErrQueueInactive)

		got, err := s.GetQueue(ctx, q.ID)
		require.NoError(t, err)
		assert.Zero(t, got.IssuedCount, "refused tickets must not consume a position")

		_, err = s.SetQueueFlags(ctx, q.ID, true, false)
		require.NoError(t, err)
		ticket, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		require.NoError(t, err)
		assert.Equal(t, int64(1), ticket.PositionNumber)

		_, err = s.IssueTicket(ctx, uuid.New().String(), "device-a", baseTime)
		assert.ErrorIs(t, err, domain.ErrQueueNotFound)
	})

	t.Run("IssueTicketRejectsSecondActiveTicket", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Pharmacy")

		first, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.PositionNumber)
		assert.Equal(t, domain.TicketStatusWaiting, first.Status)

		_, err = s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		assert.ErrorIs(t, err, domain.ErrDuplicateActiveTicket)

		// A rejected insert must not consume a position
		second, err := s.IssueTicket(ctx, q.ID, "device-b", baseTime)
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.PositionNumber)

		found, err := s.FindActiveTicket(ctx, q.ID, "device-a")
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)

		_, err = s.FindActiveTicket(ctx, q.ID, "device-z")
		assert.ErrorIs(t, err, domain.ErrTicketNotFound)
	})

	t.Run("ConcurrentIssueIsGapFree", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Rush")

		const n = 50
		positions := make([]int64, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ticket, err := s.IssueTicket(ctx, q.ID, fmt.Sprintf("device-%d", i), baseTime)
				errs[i] = err
				if err == nil {
					positions[i] = ticket.PositionNumber
				}
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
		for i, p := range positions {
			assert.Equal(t, int64(i+1), p)
		}

		got, err := s.GetQueue(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.IssuedCount)
	})

	t.Run("TransitionPersistsTicketAndQueue", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Clinic")
		ticket, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		require.NoError(t, err)

		now := baseTime.Add(time.Minute)
		updated, queue, err := s.Transition(ctx, ticket.ID, func(tk *domain.Ticket, qu *domain.Queue) error {
			if err := tk.Complete(now); err != nil {
				return err
			}
			qu.RecordCompletion(tk.PositionNumber, now)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusCompleted, updated.Status)
		assert.Equal(t, int64(1), queue.ServedPointer)

		stored, err := s.GetTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusCompleted, stored.Status)
		require.NotNil(t, stored.CompletedAt)

		storedQueue, err := s.GetQueue(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), storedQueue.ServedPointer)
		assert.Equal(t, int64(1), storedQueue.CompletedCount)

		// Completed tickets no longer block the device
		again, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		require.NoError(t, err)
		assert.Equal(t, int64(2), again.PositionNumber)
	})

	t.Run("FailedTransitionChangesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Bank")
		ticket, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
		require.NoError(t, err)

		boom := errors.New("boom")
		_, _, err = s.Transition(ctx, ticket.ID, func(tk *domain.Ticket, qu *domain.Queue) error {
			tk.Status = domain.TicketStatusCompleted
			qu.ServedPointer = 1
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.GetTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusWaiting, stored.Status)

		storedQueue, err := s.GetQueue(ctx, q.ID)
		require.NoError(t, err)
		assert.Zero(t, storedQueue.ServedPointer)

		_, _, err = s.Transition(ctx, uuid.New().String(), func(*domain.Ticket, *domain.Queue) error { return nil })
		assert.ErrorIs(t, err, domain.ErrTicketNotFound)
	})

	t.Run("ListTicketsFiltersAndOrders", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := createQueue(t, s, "Post office")

		var ids []string
		for i := 0; i < 3; i++ {
			tk, err := s.IssueTicket(ctx, q.ID, fmt.Sprintf("device-%d", i), baseTime)
			require.NoError(t, err)
			ids = append(ids, tk.ID)
		}
		_, _, err := s.Transition(ctx, ids[1], func(tk *domain.Ticket, _ *domain.Queue) error {
			return tk.MarkNoShow(baseTime)
		})
		require.NoError(t, err)

		all, err := s.ListTickets(ctx, q.ID, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, tk := range all {
			assert.Equal(t, int64(i+1), tk.PositionNumber)
		}

		waiting, err := s.ListTickets(ctx, q.ID, domain.TicketStatusWaiting)
		require.NoError(t, err)
		require.Len(t, waiting, 2)
		assert.Equal(t, ids[0], waiting[0].ID)
		assert.Equal(t, ids[2], waiting[1].ID)

		none, err := s.ListTickets(ctx, uuid.New().String(), "")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func createQueue(t *testing.T, s Store, name string) *domain.Queue {
	t.Helper()
	q, err := domain.NewQueue(name, baseTime)
	require.NoError(t, err)
	require.NoError(t, s.CreateQueue(context.Background(), q))
	return q
}
