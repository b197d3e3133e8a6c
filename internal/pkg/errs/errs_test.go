package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{NewValidationError("distance_km"), ErrValidation},
		{NewValidationErrorWithCause("priority", errors.New("bad")), ErrValidation},
		{NewInvalidTransitionError("ASSIGNED", "SEARCHING", "CLIENT"), ErrInvalidTransition},
		{NewAssignmentConflictError("o1", "t1"), ErrAssignmentConflict},
		{NewNoCapacityError("o1"), ErrNoCapacity},
		{NewAuthenticationError("bad token"), ErrAuthentication},
		{NewNotFoundError("order_id", "o1"), ErrNotFound},
	}

	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.sentinel)

		// classification survives wrapping
		wrapped := fmt.Errorf("handler: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.sentinel)

		// and never matches a different sentinel
		for _, other := range cases {
			if other.sentinel != tc.sentinel {
				assert.NotErrorIs(t, tc.err, other.sentinel)
			}
		}
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "validation failed: distance_km", NewValidationError("distance_km").Error())
	assert.Equal(t, "invalid status transition: ASSIGNED -> SEARCHING (actor: CLIENT)",
		NewInvalidTransitionError("ASSIGNED", "SEARCHING", "CLIENT").Error())
	assert.Equal(t, "invalid status transition: CREATED -> ASSIGNED",
		NewInvalidTransitionError("CREATED", "ASSIGNED", "").Error())
	assert.Equal(t, "assignment conflict: truck t1 is no longer available for order o1",
		NewAssignmentConflictError("o1", "t1").Error())
	assert.Equal(t, "no capacity available for order o1", NewNoCapacityError("o1").Error())
}

func TestMessagesStaySingleLine(t *testing.T) {
	err := NewValidationError("param\nwith\r\nnewlines")
	assert.NotContains(t, err.Error(), "\n")
	assert.NotContains(t, err.Error(), "\r")

	err2 := NewAuthenticationError("token\nsmuggled")
	assert.NotContains(t, err2.Error(), "\n")
}
