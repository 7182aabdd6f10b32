package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks; the typed errors below match them.
var (
	ErrValidation           = errors.New("validation failed")
	ErrAlreadyDisputed      = errors.New("rating already disputed")
	ErrInvalidState         = errors.New("invalid dispute state")
	ErrNotFound             = errors.New("not found")
	ErrNotificationDelivery = errors.New("notification delivery failed")
)

// ValidationError lists the input fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AlreadyDisputedError is returned when the disputant already has a dispute
// for the rating, whatever its status.
type AlreadyDisputedError struct {
	RatingRef     string
	DisputedByRef string
}

func (e *AlreadyDisputedError) Error() string {
	return fmt.Sprintf("rating %s already disputed by %s", e.RatingRef, e.DisputedByRef)
}

func (e *AlreadyDisputedError) Is(target error) bool { return target == ErrAlreadyDisputed }

// InvalidStateError is returned for a transition attempted on a resolved dispute.
type InvalidStateError struct {
	DisputeID string
	Status    DisputeStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("dispute %s is %s", e.DisputeID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError names the kind of entity that could not be found.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotificationDeliveryError wraps a failed notification write. It is logged
// and never returned from the operation that triggered the notification.
type NotificationDeliveryError struct {
	Type      NotificationType
	Recipient string
	Err       error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Type, e.Recipient, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

func (e *NotificationDeliveryError) Is(target error) bool { return target == ErrNotificationDelivery }
