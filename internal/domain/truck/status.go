package truck

import (
	"errors"
	"strings"
)

// Status is a tow truck status as stored in the `tow_trucks` table.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusBusy        Status = "BUSY"
	StatusMaintenance Status = "MAINTENANCE"
	StatusOffline     Status = "OFFLINE"
)

var ErrInvalidStatus = errors.New("invalid tow truck status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed truck status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusAvailable, StatusBusy, StatusMaintenance, StatusOffline:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Serviceable reports whether the truck can take new work in this status.
func (status Status) Serviceable() bool {
	return status == StatusAvailable
}
