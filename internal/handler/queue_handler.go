package handler

import (
	"github.com/YogevSaadon/Qode/internal/dto"
	"github.com/YogevSaadon/Qode/internal/service"
	"github.com/YogevSaadon/Qode/pkg/response"
	"github.com/gin-gonic/gin"
)

// QueueHandler handles the public queue endpoints
type QueueHandler struct {
	service service.TicketingService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(svc service.TicketingService) *QueueHandler {
	return &QueueHandler{service: svc}
}

// CreateQueue handles POST /api/queues
func (h *QueueHandler) CreateQueue(c *gin.Context) {
	var req dto.CreateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "INVALID_REQUEST", "name is required")
		return
	}

	queue, err := h.service.CreateQueue(c.Request.Context(), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, queue)
}

// GetQueue handles GET /api/queues/:id
func (h *QueueHandler) GetQueue(c *gin.Context) {
	queue, err := h.service.GetQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, queue)
}

// Join handles POST /api/queues/:id/join. A new ticket answers 201; a
// repeated join from the same device answers 200 with the existing ticket.
func (h *QueueHandler) Join(c *gin.Context) {
	var req dto.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "INVALID_REQUEST", "device_token is required")
		return
	}

	ticket, err := h.service.Join(c.Request.Context(), c.Param("id"), req.DeviceToken)
	if err != nil {
		handleError(c, err)
		return
	}

	if ticket.Created {
		response.Created(c, ticket)
		return
	}
	response.Success(c, ticket)
}

// GetTicket handles GET /api/tickets/:id
func (h *QueueHandler) GetTicket(c *gin.Context) {
	ticket, err := h.service.GetTicketWithETA(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, ticket)
}
