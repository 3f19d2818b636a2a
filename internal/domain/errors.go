package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Lookup errors
	ErrQueueNotFound  = errors.New("queue not found")
	ErrTicketNotFound = errors.New("ticket not found")

	// Queue policy errors
	ErrQueueInactive = errors.New("queue is not active")
	ErrQueuePaused   = errors.New("queue is paused")

	// Integrity errors
	ErrQueueMismatch          = errors.New("ticket does not belong to this queue")
	ErrInvalidStateTransition = errors.New("invalid ticket state transition")
	ErrDuplicateActiveTicket  = errors.New("device already holds an active ticket in this queue")

	// Validation errors
	ErrValidation         = errors.New("validation failed")
	ErrInvalidQueueName   = fmt.Errorf("%w: queue name must be between 1 and %d characters", ErrValidation, MaxQueueNameLength)
	ErrInvalidDeviceToken = fmt.Errorf("%w: device token must be between 1 and %d characters", ErrValidation, MaxDeviceTokenLength)
	ErrInvalidQueueID     = fmt.Errorf("%w: invalid queue id", ErrValidation)
	ErrInvalidTicketID    = fmt.Errorf("%w: invalid ticket id", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: unknown ticket status", ErrValidation)

	// Host authority
	ErrUnauthorized = errors.New("invalid host token")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InvalidTransitionError reports a transition attempted from the wrong status.
type InvalidTransitionError struct {
	TicketID string
	Expected TicketStatus
	Actual   TicketStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("ticket %s: expected status %s, got %s", e.TicketID, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrInvalidStateTransition) hold for every InvalidTransitionError.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrQueueNotFound) ||
		errors.Is(err, ErrTicketNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if the error is a queue policy or state conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrQueueInactive) ||
		errors.Is(err, ErrQueuePaused) ||
		errors.Is(err, ErrInvalidStateTransition)
}

// IsStorageError checks if the error is a transient storage failure
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
