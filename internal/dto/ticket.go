package dto

import (
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/internal/estimator"
)

// JoinQueueRequest represents request to join a queue
type JoinQueueRequest struct {
	DeviceToken string `json:"device_token" binding:"required"`
}

// TicketResponse represents a ticket in API response
type TicketResponse struct {
	ID             string     `json:"id"`
	QueueID        string     `json:"queue_id"`
	DeviceToken    string     `json:"device_token"`
	PositionNumber int64      `json:"position_number"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CalledAt       *time.Time `json:"called_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// JoinResponse is the joined ticket. Created is false when the device
// already held an active ticket and that ticket was returned.
type JoinResponse struct {
	TicketResponse
	Created bool `json:"-"`
}

// TicketWithETAResponse is a ticket with its wait estimate
type TicketWithETAResponse struct {
	ID                   string     `json:"id"`
	QueueID              string     `json:"queue_id"`
	PositionNumber       int64      `json:"position_number"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	CalledAt             *time.Time `json:"called_at"`
	EstimatedWaitSeconds *int64     `json:"estimated_wait_seconds"`
	PeopleAhead          int64      `json:"people_ahead"`
	ETALabel             string     `json:"eta_label"`
}

// TicketActionResponse is returned by host actions on a ticket
type TicketActionResponse struct {
	Ticket *TicketResponse         `json:"ticket"`
	Queue  *QueuePublicResponse    `json:"queue"`
	Update domain.QueueUpdateEvent `json:"update"`
}

// TicketFromDomain converts a ticket to its API response
func TicketFromDomain(t *domain.Ticket) *TicketResponse {
	return &TicketResponse{
		ID:             t.ID,
		QueueID:        t.QueueID,
		DeviceToken:    t.DeviceToken,
		PositionNumber: t.PositionNumber,
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt,
		CalledAt:       t.CalledAt,
		CompletedAt:    t.CompletedAt,
	}
}

// TicketsFromDomain converts a slice of tickets
func TicketsFromDomain(tickets []*domain.Ticket) []*TicketResponse {
	out := make([]*TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, TicketFromDomain(t))
	}
	return out
}

// TicketWithETAFromDomain combines a ticket and an estimate
func TicketWithETAFromDomain(t *domain.Ticket, est estimator.Estimate) *TicketWithETAResponse {
	return &TicketWithETAResponse{
		ID:                   t.ID,
		QueueID:              t.QueueID,
		PositionNumber:       t.PositionNumber,
		Status:               string(t.Status),
		CreatedAt:            t.CreatedAt,
		CalledAt:             t.CalledAt,
		EstimatedWaitSeconds: est.WaitSeconds,
		PeopleAhead:          est.PeopleAhead,
		ETALabel:             est.Label,
	}
}
