package handler

import (
	"github.com/YogevSaadon/Qode/internal/auth"
	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/internal/service"
	"github.com/YogevSaadon/Qode/pkg/response"
	"github.com/gin-gonic/gin"
)

// HostTokenHeader carries the queue's secret host token
const HostTokenHeader = "X-Host-Token"

// HostHandler handles the endpoints reserved to a queue's host
type HostHandler struct {
	service service.TicketingService
}

// NewHostHandler creates a new host handler
func NewHostHandler(svc service.TicketingService) *HostHandler {
	return &HostHandler{service: svc}
}

func credentialsFrom(c *gin.Context) auth.Credentials {
	return auth.Credentials{
		HostToken:   c.GetHeader(HostTokenHeader),
		BearerToken: auth.BearerFromHeader(c.GetHeader("Authorization")),
	}
}

// RequireHost rejects requests without valid host credentials for :id
func (h *HostHandler) RequireHost() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := credentialsFrom(c)
		if creds.Empty() {
			handleError(c, domain.ErrUnauthorized)
			c.Abort()
			return
		}

		if err := h.service.AuthenticateHost(c.Request.Context(), c.Param("id"), creds); err != nil {
			handleError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CreateSession handles POST /api/queues/:id/host/session
func (h *HostHandler) CreateSession(c *gin.Context) {
	session, err := h.service.IssueHostSession(c.Request.Context(), c.Param("id"), credentialsFrom(c))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, session)
}

// ListTickets handles GET /api/queues/:id/tickets?status=
func (h *HostHandler) ListTickets(c *gin.Context) {
	tickets, err := h.service.ListTickets(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMeta(c, tickets, response.Meta{Total: len(tickets)})
}

// Verify handles POST /api/queues/:id/tickets/:ticket_id/verify
func (h *HostHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("ticket_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// NoShow handles POST /api/queues/:id/tickets/:ticket_id/no-show
func (h *HostHandler) NoShow(c *gin.Context) {
	result, err := h.service.NoShow(c.Request.Context(), c.Param("ticket_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// Pause handles POST /api/queues/:id/pause
func (h *HostHandler) Pause(c *gin.Context) {
	h.setPaused(c, true)
}

// Resume handles POST /api/queues/:id/resume
func (h *HostHandler) Resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *HostHandler) setPaused(c *gin.Context, paused bool) {
	queue, err := h.service.SetPaused(c.Request.Context(), c.Param("id"), paused)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, queue)
}

// Deactivate handles DELETE /api/queues/:id
func (h *HostHandler) Deactivate(c *gin.Context) {
	queue, err := h.service.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, queue)
}
