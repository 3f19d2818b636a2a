package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	q, err := NewQueue("  Bakery  ", now)

	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "Bakery", q.Name)
	assert.True(t, q.Active)
	assert.False(t, q.Paused)
	assert.Equal(t, int64(0), q.IssuedCount)
	assert.Equal(t, int64(0), q.ServedPointer)
	assert.Equal(t, now, q.CreatedAt)
	// 32 bytes, unpadded base64url
	assert.Len(t, q.HostSecret, 43)
}

func TestNewQueue_InvalidName(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", strings.Repeat("a", MaxQueueNameLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQueue(tt.input, time.Now())
			assert.Nil(t, q)
			assert.ErrorIs(t, err, ErrInvalidQueueName)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestNewQueue_NameAtLimit(t *testing.T) {
	q, err := NewQueue(strings.Repeat("é", MaxQueueNameLength), time.Now())
	require.NoError(t, err)
	assert.Equal(t, MaxQueueNameLength, len([]rune(q.Name)))
}

func TestGenerateHostSecret_Unique(t *testing.T) {
	a, err := GenerateHostSecret()
	require.NoError(t, err)
	b, err := GenerateHostSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestQueue_HostSecretMatches(t *testing.T) {
	q := &Queue{HostSecret: "s3cret"}

	assert.True(t, q.HostSecretMatches("s3cret"))
	assert.False(t, q.HostSecretMatches("s3cre"))
	assert.False(t, q.HostSecretMatches(""))
	assert.False(t, (&Queue{}).HostSecretMatches(""))
}

func TestQueue_CheckJoinable(t *testing.T) {
	assert.NoError(t, (&Queue{Active: true}).CheckJoinable())
	assert.ErrorIs(t, (&Queue{Active: true, Paused: true}).CheckJoinable(), ErrQueuePaused)
	// inactive wins over paused
	assert.ErrorIs(t, (&Queue{Active: false, Paused: true}).CheckJoinable(), ErrQueueInactive)
}

func TestQueue_RecordCompletion_WarmupKeepsAverageAtZero(t *testing.T) {
	t0 := time.Now()
	q := &Queue{Active: true, IssuedCount: 20, CreatedAt: t0}

	for i := int64(1); i < WarmupCompletions; i++ {
		q.RecordCompletion(i, t0.Add(time.Duration(i)*10*time.Second))
		assert.Equal(t, int64(0), q.AvgWaitSeconds)
		assert.Equal(t, i, q.ServedPointer)
		assert.Equal(t, i, q.CompletedCount)
	}
}

func TestQueue_RecordCompletion_EMA(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	q := &Queue{Active: true, IssuedCount: 20, CreatedAt: t0, CompletedCount: 9}

	q.RecordCompletion(10, t0.Add(100*time.Second))
	assert.Equal(t, int64(100), q.AvgWaitSeconds)
	assert.Equal(t, int64(10), q.CompletedCount)

	q.RecordCompletion(11, t0.Add(130*time.Second))
	assert.Equal(t, int64(109), q.AvgWaitSeconds)
	assert.Equal(t, int64(11), q.ServedPointer)
}

func TestQueue_RecordCompletion_RoundsToNearest(t *testing.T) {
	t0 := time.Now()
	q := &Queue{CreatedAt: t0, CompletedCount: 10, AvgWaitSeconds: 101}

	// 0.7*101 + 0.3*105 = 102.2
	q.RecordCompletion(11, t0.Add(105*time.Second))
	assert.Equal(t, int64(102), q.AvgWaitSeconds)

	// 0.7*102 + 0.3*107 = 103.5
	q.RecordCompletion(12, t0.Add(107*time.Second))
	assert.Equal(t, int64(104), q.AvgWaitSeconds)

	// 0.7*104 + 0.3*100 = 102.8
	q.RecordCompletion(13, t0.Add(100*time.Second))
	assert.Equal(t, int64(103), q.AvgWaitSeconds)
}

func TestQueue_RecordCompletion_ServedPointerNeverMovesBack(t *testing.T) {
	q := &Queue{CreatedAt: time.Now(), ServedPointer: 7}

	q.RecordCompletion(3, time.Now())

	assert.Equal(t, int64(7), q.ServedPointer)
	assert.Equal(t, int64(1), q.CompletedCount)
}

func TestQueue_Snapshot(t *testing.T) {
	q := &Queue{ServedPointer: 4, AvgWaitSeconds: 90}

	assert.Equal(t, QueueUpdateEvent{Type: "queue_update", CurrentPosition: 4, AvgWaitTime: 90}, q.Snapshot())
}
