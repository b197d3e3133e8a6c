package user

import (
	"errors"
	"strings"
)

// Role is a user role as stored in the `user_type` dictionary table.
// RoleSystem is an internal actor used for automatic transitions
// (search start, matching, no-capacity cancellation) and never appears
// in credentials.
type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleDriver   Role = "DRIVER"
	RoleOperator Role = "OPERATOR"
	RoleSystem   Role = "SYSTEM"
)

var ErrInvalidRole = errors.New("invalid user role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(in string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(in)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleClient, RoleDriver, RoleOperator, RoleSystem:
		return true
	default:
		return false
	}
}

// External reports whether the role is carried by real credentials
// (SYSTEM is internal only).
func (role Role) External() bool {
	return role == RoleClient || role == RoleDriver || role == RoleOperator
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// Convenience helpers.
func (role Role) IsClient() bool   { return role == RoleClient }
func (role Role) IsDriver() bool   { return role == RoleDriver }
func (role Role) IsOperator() bool { return role == RoleOperator }
