package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueUpdateType is the only event type pushed to observers
const QueueUpdateType = "queue_update"

// QueueUpdateEvent is the observer wire payload; its shape must not change
type QueueUpdateEvent struct {
	Type            string `json:"type"`
	CurrentPosition int64  `json:"current_position"`
	AvgWaitTime     int64  `json:"avg_wait_time"`
}

// NewQueueUpdateEvent builds a queue_update payload
func NewQueueUpdateEvent(currentPosition, avgWaitTime int64) QueueUpdateEvent {
	return QueueUpdateEvent{
		Type:            QueueUpdateType,
		CurrentPosition: currentPosition,
		AvgWaitTime:     avgWaitTime,
	}
}

// QueueEventType represents the type of a lifecycle event
type QueueEventType string

const (
	QueueEventCreated     QueueEventType = "queue.created"
	QueueEventPaused      QueueEventType = "queue.paused"
	QueueEventResumed     QueueEventType = "queue.resumed"
	QueueEventDeactivated QueueEventType = "queue.deactivated"
	TicketEventIssued     QueueEventType = "ticket.issued"
	TicketEventCompleted  QueueEventType = "ticket.completed"
	TicketEventNoShow     QueueEventType = "ticket.no_show"
)

// QueueEvent is a lifecycle record published to the event stream
type QueueEvent struct {
	EventID       string         `json:"event_id"`
	EventType     QueueEventType `json:"event_type"`
	QueueID       string         `json:"queue_id"`
	TicketID      string         `json:"ticket_id,omitempty"`
	Position      int64          `json:"position,omitempty"`
	Status        TicketStatus   `json:"status,omitempty"`
	ServedPointer int64          `json:"served_pointer"`
	IssuedCount   int64          `json:"issued_count"`
	AvgWaitTime   int64          `json:"avg_wait_time"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewQueueEvent creates a lifecycle event for a queue and optionally a ticket
func NewQueueEvent(eventType QueueEventType, queue *Queue, ticket *Ticket, now time.Time) *QueueEvent {
	event := &QueueEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: now,
	}
	if queue != nil {
		event.QueueID = queue.ID
		event.ServedPointer = queue.ServedPointer
		event.IssuedCount = queue.IssuedCount
		event.AvgWaitTime = queue.AvgWaitSeconds
	}
	if ticket != nil {
		event.QueueID = ticket.QueueID
		event.TicketID = ticket.ID
		event.Position = ticket.PositionNumber
		event.Status = ticket.Status
	}
	return event
}

// Key returns the partition key, keeping per-queue ordering
func (e *QueueEvent) Key() string {
	return e.QueueID
}
