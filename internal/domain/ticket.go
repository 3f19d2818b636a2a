package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxDeviceTokenLength bounds the caller supplied device identity
const MaxDeviceTokenLength = 255

// TicketStatus represents the state of a ticket
type TicketStatus string

const (
	TicketStatusWaiting   TicketStatus = "WAITING"
	TicketStatusCalled    TicketStatus = "CALLED"
	TicketStatusServing   TicketStatus = "SERVING"
	TicketStatusCompleted TicketStatus = "COMPLETED"
	TicketStatusNoShow    TicketStatus = "NO_SHOW"
	TicketStatusCancelled TicketStatus = "CANCELLED"
)

// ActiveTicketStatuses are the statuses that make a join idempotent
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusWaiting,
	TicketStatusCalled,
	TicketStatusServing,
}

// ParseTicketStatus converts a string into a known TicketStatus
func ParseTicketStatus(s string) (TicketStatus, error) {
	status := TicketStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case TicketStatusWaiting, TicketStatusCalled, TicketStatusServing,
		TicketStatusCompleted, TicketStatusNoShow, TicketStatusCancelled:
		return status, nil
	}
	return "", ErrInvalidStatus
}

// IsActive reports whether the status still holds a place in the queue
func (s TicketStatus) IsActive() bool {
	switch s {
	case TicketStatusWaiting, TicketStatusCalled, TicketStatusServing:
		return true
	}
	return false
}

// IsTerminal reports whether the status is final
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusCompleted, TicketStatusNoShow, TicketStatusCancelled:
		return true
	}
	return false
}

// Ticket is one participant's claim on a position in a queue
type Ticket struct {
	ID             string       `json:"id"`
	QueueID        string       `json:"queue_id"`
	DeviceToken    string       `json:"device_token"`
	PositionNumber int64        `json:"position_number"`
	Status         TicketStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	CalledAt       *time.Time   `json:"called_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// NewTicket creates a WAITING ticket holding the given position
func NewTicket(queueID, deviceToken string, position int64, now time.Time) *Ticket {
	return &Ticket{
		ID:             uuid.New().String(),
		QueueID:        queueID,
		DeviceToken:    deviceToken,
		PositionNumber: position,
		Status:         TicketStatusWaiting,
		CreatedAt:      now,
	}
}

// ValidateDeviceToken trims and bounds a device token
func ValidateDeviceToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > MaxDeviceTokenLength {
		return "", ErrInvalidDeviceToken
	}
	return token, nil
}

// Complete moves a WAITING ticket to COMPLETED
func (t *Ticket) Complete(now time.Time) error {
	if err := t.requireStatus(TicketStatusWaiting); err != nil {
		return err
	}
	t.Status = TicketStatusCompleted
	t.CompletedAt = &now
	return nil
}

// MarkNoShow moves a WAITING ticket to NO_SHOW
func (t *Ticket) MarkNoShow(now time.Time) error {
	if err := t.requireStatus(TicketStatusWaiting); err != nil {
		return err
	}
	t.Status = TicketStatusNoShow
	t.CompletedAt = &now
	return nil
}

func (t *Ticket) requireStatus(expected TicketStatus) error {
	if t.Status != expected {
		return &InvalidTransitionError{
			TicketID: t.ID,
			Expected: expected,
			Actual:   t.Status,
		}
	}
	return nil
}

// Clone returns a deep copy of the ticket
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.CalledAt != nil {
		at := *t.CalledAt
		c.CalledAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
