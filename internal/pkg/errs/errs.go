package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used for classification with errors.Is. Each typed error
// below unwraps to one of these, so callers can branch on the failure kind
// without inspecting the concrete type.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAssignmentConflict = errors.New("assignment conflict")
	ErrNoCapacity         = errors.New("no capacity available")
	ErrAuthentication     = errors.New("authentication failed")
	ErrNotFound           = errors.New("object not found")
)

// ValidationError reports malformed input. Caller's fault, never retried.
type ValidationError struct {
	ParamName string
	Cause     error
}

func NewValidationError(paramName string) *ValidationError {
	return &ValidationError{ParamName: paramName}
}

func NewValidationErrorWithCause(paramName string, cause error) *ValidationError {
	return &ValidationError{ParamName: paramName, Cause: cause}
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation failed: %s (cause: %s)", sanitize(e.ParamName), sanitize(e.Cause.Error()))
	}
	return fmt.Sprintf("validation failed: %s", sanitize(e.ParamName))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError reports an illegal state change request, naming
// the attempted from/to pair and the actor role that requested it.
type InvalidTransitionError struct {
	From string
	To   string
	Role string
}

func NewInvalidTransitionError(from, to, role string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to, Role: role}
}

func (e *InvalidTransitionError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("invalid status transition: %s -> %s (actor: %s)", e.From, e.To, e.Role)
	}
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// AssignmentConflictError reports a lost race for a tow truck. The matcher
// retries internally with the next candidate.
type AssignmentConflictError struct {
	OrderID string
	TruckID string
}

func NewAssignmentConflictError(orderID, truckID string) *AssignmentConflictError {
	return &AssignmentConflictError{OrderID: orderID, TruckID: truckID}
}

func (e *AssignmentConflictError) Error() string {
	return fmt.Sprintf("assignment conflict: truck %s is no longer available for order %s", e.TruckID, e.OrderID)
}

func (e *AssignmentConflictError) Unwrap() error { return ErrAssignmentConflict }

// NoCapacityError reports that the search cycle exhausted its wait ceiling
// without finding a truck. Terminal for the order's search.
type NoCapacityError struct {
	OrderID string
}

func NewNoCapacityError(orderID string) *NoCapacityError {
	return &NoCapacityError{OrderID: orderID}
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("no capacity available for order %s", e.OrderID)
}

func (e *NoCapacityError) Unwrap() error { return ErrNoCapacity }

// AuthenticationError reports a rejected credential at connect time.
type AuthenticationError struct {
	Reason string
}

func NewAuthenticationError(reason string) *AuthenticationError {
	return &AuthenticationError{Reason: reason}
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", sanitize(e.Reason))
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// NotFoundError reports a missing object.
type NotFoundError struct {
	ParamName string
	ID        string
}

func NewNotFoundError(paramName, id string) *NotFoundError {
	return &NotFoundError{ParamName: paramName, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s %s", e.ParamName, sanitize(e.ID))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// sanitize keeps error strings single-line.
func sanitize(in string) string {
	return strings.ReplaceAll(strings.ReplaceAll(in, "\n", " "), "\r", " ")
}
