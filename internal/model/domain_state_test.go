package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_DefinedEdges(t *testing.T) {
	tests := []struct {
		from     DomainStatus
		event    DomainEvent
		to       DomainStatus
		restarts bool
	}{
		{DomainPending, EventAttemptStarted, DomainVerifying, true},
		{DomainPending, EventRetriggered, DomainVerifying, true},
		{DomainVerifying, EventAttemptStarted, DomainVerifying, false},
		{DomainVerifying, EventCheckSucceeded, DomainActive, false},
		{DomainVerifying, EventBudgetExhausted, DomainFailed, false},
		{DomainFailed, EventRetriggered, DomainVerifying, true},
		{DomainFailed, EventBudgetExhausted, DomainFailed, false},
		{DomainActive, EventCheckSucceeded, DomainActive, false},
		{DomainActive, EventHealthCheckFailed, DomainVerifying, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			tr, err := tt.from.Next(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.restarts, tr.RestartsWindow)
		})
	}
}

func TestNext_IllegalEdges(t *testing.T) {
	illegal := []struct {
		from  DomainStatus
		event DomainEvent
	}{
		{DomainPending, EventCheckSucceeded},
		{DomainPending, EventBudgetExhausted},
		{DomainPending, EventHealthCheckFailed},
		{DomainFailed, EventCheckSucceeded},
		{DomainFailed, EventAttemptStarted},
		{DomainActive, EventBudgetExhausted},
		{DomainActive, EventAttemptStarted},
		{DomainVerifying, EventHealthCheckFailed},
		{DomainStatus("bogus"), EventAttemptStarted},
	}
	for _, tt := range illegal {
		_, err := tt.from.Next(tt.event)
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s on %s", tt.from, tt.event)
	}
}

func TestTransition_Changed(t *testing.T) {
	tr, err := DomainActive.Next(EventCheckSucceeded)
	require.NoError(t, err)
	assert.False(t, tr.Changed())

	tr, err = DomainVerifying.Next(EventCheckSucceeded)
	require.NoError(t, err)
	assert.True(t, tr.Changed())
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "Pending DNS Setup", DomainPending.Label())
	assert.Equal(t, "Verifying DNS...", DomainVerifying.Label())
	assert.Equal(t, "Active", DomainActive.Label())
	assert.Equal(t, "Verification Failed", DomainFailed.Label())
	assert.Equal(t, "Unknown Status", DomainStatus("x").Label())
	assert.False(t, DomainStatus("x").Valid())
	assert.True(t, DomainFailed.Valid())
}
