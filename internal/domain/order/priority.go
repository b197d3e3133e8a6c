package order

import (
	"errors"
	"strings"
)

// Priority is the urgency tag attached to an order.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

var ErrInvalidPriority = errors.New("invalid order priority")

// ParsePriority normalizes (uppercases+trims) and validates a priority string.
// An empty input defaults to NORMAL.
func ParsePriority(in string) (Priority, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(in))
	if trimmed == "" {
		return PriorityNormal, nil
	}
	priority := Priority(trimmed)
	if priority.Valid() {
		return priority, nil
	}
	return "", ErrInvalidPriority
}

// Valid reports whether priority is one of the allowed priority constants.
func (priority Priority) Valid() bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Priority.
func (priority Priority) String() string {
	return string(priority)
}

// Rank maps the priority to an integer used for ordering search sweeps
// (higher is more urgent).
func (priority Priority) Rank() int {
	switch priority {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}
