package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxQueueNameLength is the longest accepted queue name, in characters
	MaxQueueNameLength = 100

	// WarmupCompletions is the number of completions before the average is published
	WarmupCompletions = 10

	// EMA weights in tenths: 0.7 history, 0.3 newest sample
	emaHistoryTenths = 7
	emaSampleTenths  = 3

	hostSecretBytes = 32
)

// Queue owns the position counter, the served pointer and the wait estimate
type Queue struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	HostSecret     string    `json:"-"`
	Active         bool      `json:"active"`
	Paused         bool      `json:"is_paused"`
	IssuedCount    int64     `json:"last_number_issued"`
	ServedPointer  int64     `json:"current_position"`
	CompletedCount int64     `json:"completed_count"`
	AvgWaitSeconds int64     `json:"avg_wait_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewQueue creates an active queue with a fresh host secret
func NewQueue(name string, now time.Time) (*Queue, error) {
	name, err := ValidateQueueName(name)
	if err != nil {
		return nil, err
	}

	secret, err := GenerateHostSecret()
	if err != nil {
		return nil, err
	}

	return &Queue{
		ID:         uuid.New().String(),
		Name:       name,
		HostSecret: secret,
		Active:     true,
		CreatedAt:  now,
	}, nil
}

// ValidateQueueName trims and bounds a queue name
func ValidateQueueName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxQueueNameLength {
		return "", ErrInvalidQueueName
	}
	return name, nil
}

// GenerateHostSecret returns 32 random bytes encoded as URL-safe base64
func GenerateHostSecret() (string, error) {
	b := make([]byte, hostSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate host secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HostSecretMatches compares the candidate against the host secret in constant time
func (q *Queue) HostSecretMatches(candidate string) bool {
	if q.HostSecret == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(q.HostSecret), []byte(candidate)) == 1
}

// CheckJoinable reports why the queue refuses new tickets, if it does
func (q *Queue) CheckJoinable() error {
	if !q.Active {
		return ErrQueueInactive
	}
	if q.Paused {
		return ErrQueuePaused
	}
	return nil
}

// RecordCompletion advances the served pointer and folds the elapsed time
// since creation into the running average.
func (q *Queue) RecordCompletion(position int64, now time.Time) {
	if position > q.ServedPointer {
		q.ServedPointer = position
	}
	q.CompletedCount++

	elapsed := int64(now.Sub(q.CreatedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	switch {
	case q.CompletedCount < WarmupCompletions:
		q.AvgWaitSeconds = 0
	case q.AvgWaitSeconds == 0:
		q.AvgWaitSeconds = elapsed
	default:
		// integer form of round(0.7*prev + 0.3*elapsed), half rounds up
		q.AvgWaitSeconds = (emaHistoryTenths*q.AvgWaitSeconds + emaSampleTenths*elapsed + 5) / 10
	}
}

// Snapshot returns the observer-facing state of the queue
func (q *Queue) Snapshot() QueueUpdateEvent {
	return NewQueueUpdateEvent(q.ServedPointer, q.AvgWaitSeconds)
}

// Clone returns a copy of the queue
func (q *Queue) Clone() *Queue {
	c := *q
	return &c
}
