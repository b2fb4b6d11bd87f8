package model

import (
	"errors"
	"fmt"
)

// DomainEvent is something that happened to a domain during verification.
type DomainEvent string

const (
	EventAttemptStarted    DomainEvent = "attempt_started"
	EventCheckSucceeded    DomainEvent = "check_succeeded"
	EventBudgetExhausted   DomainEvent = "budget_exhausted"
	EventRetriggered       DomainEvent = "retriggered"
	EventHealthCheckFailed DomainEvent = "health_check_failed"
)

// ErrIllegalTransition is returned for a (status, event) pair that has no edge.
var ErrIllegalTransition = errors.New("illegal domain status transition")

type transitionKey struct {
	from  DomainStatus
	event DomainEvent
}

// Transition is a resolved edge of the domain state machine.
type Transition struct {
	From  DomainStatus
	Event DomainEvent
	To    DomainStatus
	// RestartsWindow is set on edges that open a new attempt-budget window.
	RestartsWindow bool
}

// Changed reports whether the transition moves the domain to another status.
func (t Transition) Changed() bool { return t.From != t.To }

var transitions = map[transitionKey]Transition{}

func edge(from DomainStatus, event DomainEvent, to DomainStatus, restarts bool) {
	transitions[transitionKey{from, event}] = Transition{From: from, Event: event, To: to, RestartsWindow: restarts}
}

func init() {
	edge(DomainPending, EventAttemptStarted, DomainVerifying, true)
	edge(DomainPending, EventRetriggered, DomainVerifying, true)

	edge(DomainVerifying, EventAttemptStarted, DomainVerifying, false)
	edge(DomainVerifying, EventRetriggered, DomainVerifying, false)
	edge(DomainVerifying, EventCheckSucceeded, DomainActive, false)
	edge(DomainVerifying, EventBudgetExhausted, DomainFailed, false)

	edge(DomainFailed, EventRetriggered, DomainVerifying, true)
	edge(DomainFailed, EventBudgetExhausted, DomainFailed, false)

	edge(DomainActive, EventCheckSucceeded, DomainActive, false)
	edge(DomainActive, EventHealthCheckFailed, DomainVerifying, true)
}

// Next resolves the edge taken from status s on event ev.
func (s DomainStatus) Next(ev DomainEvent) (Transition, error) {
	t, ok := transitions[transitionKey{s, ev}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, s, ev)
	}
	return t, nil
}
