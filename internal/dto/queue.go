package dto

import (
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
)

// CreateQueueRequest represents request to create a queue
type CreateQueueRequest struct {
	Name string `json:"name" binding:"required"`
}

// QueueResponse is returned once, on creation, and carries the host token
type QueueResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	HostToken        string    `json:"host_token"`
	Active           bool      `json:"active"`
	IsPaused         bool      `json:"is_paused"`
	CurrentPosition  int64     `json:"current_position"`
	LastNumberIssued int64     `json:"last_number_issued"`
	AvgWaitTime      int64     `json:"avg_wait_time"`
	CreatedAt        time.Time `json:"created_at"`
}

// QueuePublicResponse is the queue view without the host token
type QueuePublicResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Active           bool      `json:"active"`
	IsPaused         bool      `json:"is_paused"`
	CurrentPosition  int64     `json:"current_position"`
	LastNumberIssued int64     `json:"last_number_issued"`
	CompletedCount   int64     `json:"completed_count"`
	AvgWaitTime      int64     `json:"avg_wait_time"`
	CreatedAt        time.Time `json:"created_at"`
}

// QueueFromDomain converts a queue to its creation response
func QueueFromDomain(q *domain.Queue) *QueueResponse {
	return &QueueResponse{
		ID:               q.ID,
		Name:             q.Name,
		HostToken:        q.HostSecret,
		Active:           q.Active,
		IsPaused:         q.Paused,
		CurrentPosition:  q.ServedPointer,
		LastNumberIssued: q.IssuedCount,
		AvgWaitTime:      q.AvgWaitSeconds,
		CreatedAt:        q.CreatedAt,
	}
}

// PublicQueueFromDomain converts a queue to its public view
func PublicQueueFromDomain(q *domain.Queue) *QueuePublicResponse {
	return &QueuePublicResponse{
		ID:               q.ID,
		Name:             q.Name,
		Active:           q.Active,
		IsPaused:         q.Paused,
		CurrentPosition:  q.ServedPointer,
		LastNumberIssued: q.IssuedCount,
		CompletedCount:   q.CompletedCount,
		AvgWaitTime:      q.AvgWaitSeconds,
		CreatedAt:        q.CreatedAt,
	}
}
