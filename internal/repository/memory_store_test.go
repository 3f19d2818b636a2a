package repository

import (
	"context"
	"testing"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	q := createQueue(t, s, "Copies")

	got, err := s.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	got.ServedPointer = 99

	again, err := s.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Zero(t, again.ServedPointer)

	ticket, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
	require.NoError(t, err)
	ticket.Status = domain.TicketStatusCancelled

	stored, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, stored.Status)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	q := createQueue(t, s, "Cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IssueTicket(ctx, q.ID, "device-a", baseTime)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
