package handler

import (
	"errors"
	"net/http"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/YogevSaadon/Qode/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleError maps domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrQueueNotFound):
		response.NotFound(c, "QUEUE_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrTicketNotFound):
		response.NotFound(c, "TICKET_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(c, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrQueueInactive):
		response.Conflict(c, "QUEUE_INACTIVE", err.Error())
	case errors.Is(err, domain.ErrQueuePaused):
		response.Conflict(c, "QUEUE_PAUSED", err.Error())
	case errors.Is(err, domain.ErrQueueMismatch):
		response.BadRequest(c, "QUEUE_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		response.Conflict(c, "INVALID_STATE_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		response.Forbidden(c, "Invalid host token")
	case errors.Is(err, domain.ErrStorageUnavailable):
		logger.Get().WarnContext(c.Request.Context(), "Storage unavailable", zap.Error(err))
		response.ServiceUnavailable(c, "Storage temporarily unavailable")
	default:
		_ = c.Error(err)
		logger.Get().ErrorContext(c.Request.Context(), "Unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
	}
}

// statusFor returns the HTTP status handleError would use
func statusFor(err error) int {
	switch {
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case domain.IsValidationError(err), errors.Is(err, domain.ErrQueueMismatch):
		return http.StatusBadRequest
	case domain.IsConflictError(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case domain.IsStorageError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
