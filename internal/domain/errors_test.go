package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("connection reset")
	cases := []struct {
		err      error
		sentinel error
	}{
		{&ValidationError{Fields: []string{"reason"}}, ErrValidation},
		{&AlreadyDisputedError{RatingRef: "r1", DisputedByRef: "U2"}, ErrAlreadyDisputed},
		{&InvalidStateError{DisputeID: "d1", Status: StatusRejected}, ErrInvalidState},
		{&NotFoundError{Kind: "dispute", ID: "d1"}, ErrNotFound},
		{&NotificationDeliveryError{Type: TypeDisputeRejected, Recipient: "U2", Err: cause}, ErrNotificationDelivery},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("handler: %w", c.err)
		assert.ErrorIs(t, wrapped, c.sentinel, c.err.Error())
	}

	delivery := &NotificationDeliveryError{Type: TypeSystem, Recipient: "U1", Err: cause}
	assert.ErrorIs(t, delivery, cause)
	assert.NotErrorIs(t, &ValidationError{}, ErrInvalidState)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: []string{"reason", "categories[0].value"}}
	assert.Equal(t, "validation failed: reason, categories[0].value", err.Error())
	assert.Equal(t, "validation failed", (&ValidationError{}).Error())
}

func TestDisputeStatusAndAction(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, DisputeStatus("closed").Valid())

	action, ok := ParseAction(" Reject ")
	assert.True(t, ok)
	assert.Equal(t, StatusRejected, action.TargetStatus())

	action, ok = ParseAction("approve")
	assert.True(t, ok)
	assert.Equal(t, StatusApproved, action.TargetStatus())

	_, ok = ParseAction("escalate")
	assert.False(t, ok)
}

func TestNotificationTypeStream(t *testing.T) {
	assert.Equal(t, StreamRating, TypeNewRating.Stream())
	assert.Equal(t, StreamSystem, TypeDisputeRejected.Stream())
	assert.Equal(t, StreamSystem, NotificationType("whatever").Stream())
}
