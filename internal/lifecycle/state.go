// Package lifecycle holds the client-side ride state machine. Transitions
// are pure: (state, event) in, (state, effects) out. Side effects are
// declarative instructions executed by the booking orchestrator, never run
// here, which keeps the machine testable without any network plumbing.
package lifecycle

import (
	"errors"

	"github.com/example/ride-sync/internal/models"
)

type State string

const (
	StateIdle      State = "IDLE"
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
	StatePickingUp State = "PICKING_UP"
	StateOngoing   State = "ONGOING"
	StateFinished  State = "FINISHED"
	StateCancelled State = "CANCELLED"
)

func (s State) Valid() bool {
	switch s {
	case StateIdle, StatePending, StateConfirmed, StatePickingUp, StateOngoing, StateFinished, StateCancelled:
		return true
	}
	return false
}

// Terminal states settle back to idle after the settle delay.
func (s State) Terminal() bool { return s == StateFinished || s == StateCancelled }

// Active states are the ones during which positions flow both ways.
func (s State) Active() bool {
	return s == StateConfirmed || s == StatePickingUp || s == StateOngoing
}

// Event is the tagged union of everything that can move the machine.
type Event interface {
	Name() string
	isEvent()
}

// BookingAccepted: the server accepted the local booking submission.
type BookingAccepted struct {
	RideRequestID string
}

// CounterpartyAssigned: a driver (or rider) was matched to the request.
type CounterpartyAssigned struct {
	RideID         string
	CounterpartyID string
	Profile        *models.CounterpartyProfile
}

// NoCounterparty: the server gave up finding a match.
type NoCounterparty struct{}

// StatusUpdated: a server-side status push (picking up, ongoing, finished).
type StatusUpdated struct {
	Status State
}

// CancelRequested: user-initiated cancel, already vetted by CancelIntent.
type CancelRequested struct {
	ActorID string
}

// CancelledRemotely: the counterparty or server cancelled the ride.
type CancelledRemotely struct {
	ActorID   string
	ActorRole string
}

// SettleElapsed: the post-terminal settle delay ran out.
type SettleElapsed struct{}

// ResetRequested: explicit teardown, bypassing the settle delay.
type ResetRequested struct{}

func (BookingAccepted) Name() string      { return "booking_accepted" }
func (CounterpartyAssigned) Name() string { return "counterparty_assigned" }
func (NoCounterparty) Name() string       { return "no_counterparty" }
func (e StatusUpdated) Name() string      { return "status_" + string(e.Status) }
func (CancelRequested) Name() string      { return "cancel_requested" }
func (CancelledRemotely) Name() string    { return "cancelled_remotely" }
func (SettleElapsed) Name() string        { return "settle_elapsed" }
func (ResetRequested) Name() string       { return "reset" }

func (BookingAccepted) isEvent()      {}
func (CounterpartyAssigned) isEvent() {}
func (NoCounterparty) isEvent()       {}
func (StatusUpdated) isEvent()        {}
func (CancelRequested) isEvent()      {}
func (CancelledRemotely) isEvent()    {}
func (SettleElapsed) isEvent()        {}
func (ResetRequested) isEvent()       {}

// Effect is a declarative side-effect instruction for the orchestrator.
type Effect interface{ isEffect() }

type SubscribeLifecycle struct{}
type SubscribePositions struct{ CounterpartyID string }
type UnsubscribePositions struct{}
type UnsubscribeAll struct{}
type StartPublisher struct{}
type StopPublisher struct{}
type CancelRecompute struct{}
type ShowAssignment struct{ Profile *models.CounterpartyProfile }
type ShowStatus struct{ Status State }
type ShowRetryOrCancel struct{}
type ShowCancellation struct{ Actor string }
type ScheduleSettle struct{}
type CancelSettle struct{}
type ClearSession struct{}

func (SubscribeLifecycle) isEffect()   {}
func (SubscribePositions) isEffect()   {}
func (UnsubscribePositions) isEffect() {}
func (UnsubscribeAll) isEffect()       {}
func (StartPublisher) isEffect()       {}
func (StopPublisher) isEffect()        {}
func (CancelRecompute) isEffect()      {}
func (ShowAssignment) isEffect()       {}
func (ShowStatus) isEffect()           {}
func (ShowRetryOrCancel) isEffect()    {}
func (ShowCancellation) isEffect()     {}
func (ScheduleSettle) isEffect()       {}
func (CancelSettle) isEffect()         {}
func (ClearSession) isEffect()         {}

// Cancel legality, checked synchronously before any network call.

type CancelMode int

const (
	CancelPendingRequest CancelMode = iota + 1
	CancelActiveRide
)

var (
	ErrNoActiveRide  = errors.New("no active ride to cancel")
	ErrCancelOngoing = errors.New("cannot cancel an ongoing ride")
)

// CancelIntent reports how a user-initiated cancel must be carried out from
// the given state, or why it is not allowed.
func CancelIntent(s State) (CancelMode, error) {
	switch s {
	case StatePending:
		return CancelPendingRequest, nil
	case StateConfirmed, StatePickingUp:
		return CancelActiveRide, nil
	case StateOngoing:
		return 0, ErrCancelOngoing
	default:
		return 0, ErrNoActiveRide
	}
}
