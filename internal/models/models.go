package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Zero reports whether the coordinate was never set. (0,0) is not a
// serviceable point for this client.
func (c Coord) Zero() bool { return c.Lat == 0 && c.Lon == 0 }

// PositionSample is one reading from the geolocation source. Samples are
// ephemeral; each one supersedes the previous.
type PositionSample struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	CapturedAt time.Time `json:"captured_at"`
}

func (p PositionSample) Coord() Coord { return Coord{Lat: p.Lat, Lon: p.Lon} }

// CounterpartyPosition is the latest known position of the matched driver
// (rider side) or rider (driver side). Overwritten in place on every push
// update, cleared on session teardown.
type CounterpartyPosition struct {
	CounterpartyID string    `json:"counterparty_id"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	Timestamp      time.Time `json:"timestamp"`
}

func (p CounterpartyPosition) Coord() Coord { return Coord{Lat: p.Lat, Lon: p.Lon} }

// RouteSnapshot is the most recent routing result. Only the latest snapshot
// is retained; there is no history.
type RouteSnapshot struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
	Geometry        []Coord `json:"geometry"`
}

// CounterpartyProfile is the profile snapshot attached to an assignment
// event and shown in the assignment notice.
type CounterpartyProfile struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Rating  float64 `json:"rating"`
	Vehicle string  `json:"vehicle,omitempty"`
	Plate   string  `json:"plate,omitempty"`
}

// RideSession is one in-flight ride from this client's perspective. Owned
// exclusively by the booking orchestrator; nothing else mutates it.
type RideSession struct {
	RideID         string // set from confirmation on
	RideRequestID  string // set only while pending
	CounterpartyID string
	Origin         Coord
	Destination    Coord
	FareEstimate   float64
	VehicleClass   string
	CreatedAt      time.Time
}

// Push event types carried on the per-customer lifecycle topic.
const (
	EventRideAccepted     = "RIDE_ACCEPTED"
	EventRideStatusUpdate = "RIDE_STATUS_UPDATE"
	EventNoDriver         = "NO_DRIVER_AVAILABLE"
	EventRideCancelled    = "RIDE_CANCELLED"
	EventRideRequested    = "RIDE_REQUESTED"
)

// RideEvent is the payload delivered on a lifecycle topic.
type RideEvent struct {
	Type           string               `json:"type"`
	RideID         string               `json:"ride_id,omitempty"`
	RideRequestID  string               `json:"ride_request_id,omitempty"`
	Status         string               `json:"status,omitempty"`
	CounterpartyID string               `json:"counterparty_id,omitempty"`
	Profile        *CounterpartyProfile `json:"counterparty_profile,omitempty"`
	ActorID        string               `json:"actor_id,omitempty"`
	ActorRole      string               `json:"actor_role,omitempty"`
	Origin         *Coord               `json:"origin,omitempty"`
	Destination    *Coord               `json:"destination,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// PositionEvent is the payload delivered on a per-counterparty position topic.
type PositionEvent struct {
	CounterpartyID string    `json:"counterparty_id"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	Timestamp      time.Time `json:"timestamp"`
}

// Topic names shared by the client and the sim server.
func LifecycleTopic(customerID string) string { return "ride:customer:" + customerID }
func PositionTopic(actorID string) string     { return "position:" + actorID }
func RequestTopic(driverID string) string     { return "requests:" + driverID }
