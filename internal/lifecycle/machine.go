package lifecycle

// Result of applying one event. When Applied is false the event matched no
// edge from the current state: the caller logs it and moves on, state and
// session untouched.
type Result struct {
	Next    State
	Effects []Effect
	Applied bool
}

func noop(s State) Result { return Result{Next: s, Applied: false} }

func applied(next State, effects ...Effect) Result {
	return Result{Next: next, Effects: effects, Applied: true}
}

// Transition is the full edge set. It is a pure function; duplicate or
// out-of-order events fall through to the no-op result.
func Transition(s State, ev Event) Result {
	// explicit reset short-circuits everything
	if _, ok := ev.(ResetRequested); ok {
		return applied(StateIdle,
			CancelSettle{}, StopPublisher{}, CancelRecompute{}, UnsubscribeAll{}, ClearSession{})
	}

	switch s {
	case StateIdle:
		if _, ok := ev.(BookingAccepted); ok {
			return applied(StatePending, SubscribeLifecycle{})
		}

	case StatePending:
		switch e := ev.(type) {
		case CounterpartyAssigned:
			return applied(StateConfirmed,
				SubscribePositions{CounterpartyID: e.CounterpartyID},
				StartPublisher{},
				ShowAssignment{Profile: e.Profile})
		case NoCounterparty:
			return applied(StateIdle,
				ShowRetryOrCancel{}, UnsubscribeAll{}, ClearSession{})
		case CancelRequested:
			return applied(StateIdle, UnsubscribeAll{}, ClearSession{})
		}

	case StateConfirmed:
		switch e := ev.(type) {
		case StatusUpdated:
			if e.Status == StatePickingUp {
				return applied(StatePickingUp, ShowStatus{Status: StatePickingUp})
			}
		case CancelRequested:
			return applied(StateCancelled, cancelEffects(e.ActorID)...)
		case CancelledRemotely:
			return applied(StateCancelled, cancelEffects(e.ActorID)...)
		}

	case StatePickingUp:
		switch e := ev.(type) {
		case StatusUpdated:
			if e.Status == StateOngoing {
				// route target flips from pickup to destination; dropping
				// the recompute baseline forces a fresh route promptly
				return applied(StateOngoing, CancelRecompute{}, ShowStatus{Status: StateOngoing})
			}
		case CancelRequested:
			return applied(StateCancelled, cancelEffects(e.ActorID)...)
		case CancelledRemotely:
			return applied(StateCancelled, cancelEffects(e.ActorID)...)
		}

	case StateOngoing:
		if e, ok := ev.(StatusUpdated); ok && e.Status == StateFinished {
			return applied(StateFinished,
				StopPublisher{}, UnsubscribePositions{}, CancelRecompute{},
				ShowStatus{Status: StateFinished}, ScheduleSettle{})
		}

	case StateFinished, StateCancelled:
		if _, ok := ev.(SettleElapsed); ok {
			return applied(StateIdle, UnsubscribeAll{}, ClearSession{})
		}
	}

	return noop(s)
}

func cancelEffects(actor string) []Effect {
	return []Effect{
		StopPublisher{},
		UnsubscribePositions{},
		CancelRecompute{},
		ShowCancellation{Actor: actor},
		ScheduleSettle{},
	}
}
