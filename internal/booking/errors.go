package booking

import "errors"

var (
	// ErrMissingOrigin is returned when no pickup point was set.
	ErrMissingOrigin = errors.New("origin is required")

	// ErrMissingDestination is returned when no destination was set.
	ErrMissingDestination = errors.New("destination is required")

	// ErrInvalidCoordinates is returned for out-of-range lat/lon values.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrTripTooShort is returned when pickup and destination are closer
	// than the configured minimum trip distance.
	ErrTripTooShort = errors.New("pickup and destination are too close")

	// ErrRideInProgress is returned when submitting while a ride is live.
	ErrRideInProgress = errors.New("a ride is already in progress")

	// ErrNoIncomingRequest is returned by accept/reject with nothing pending.
	ErrNoIncomingRequest = errors.New("no incoming request to act on")

	// ErrBadPhase is returned when a status advance does not apply to the
	// current ride phase.
	ErrBadPhase = errors.New("operation not valid in current ride phase")
)
