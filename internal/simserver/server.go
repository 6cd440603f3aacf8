// Package simserver is a scripted stand-in for the real ride-hail backend:
// it accepts bookings, assigns a driver after a short delay, echoes status
// mutations back out as push events, and hosts the websocket push hub. It
// exists so the client engine can be exercised end to end on one machine.
package simserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-sync/internal/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type simRide struct {
	RideID    string
	RequestID string
	RiderID   string
	DriverID  string
	Origin    models.Coord
	Dest      models.Coord
	Status    string
	Cancelled bool
}

type Server struct {
	log *slog.Logger
	hub *Hub
	mux *mux.Router

	// AssignDelay is how long the matcher pretends to think before
	// assigning DriverID; 0 means assign on the next request poll.
	AssignDelay time.Duration
	DriverID    string
	AutoAssign  bool

	mu       sync.Mutex
	requests map[string]*simRide // keyed by ride request id
	rides    map[string]*simRide // keyed by ride id
}

func NewServer(log *slog.Logger) *Server {
	s := &Server{
		log:         log,
		hub:         NewHub(log),
		mux:         mux.NewRouter(),
		AssignDelay: 2 * time.Second,
		DriverID:    "D-SIM",
		AutoAssign:  true,
		requests:    make(map[string]*simRide),
		rides:       make(map[string]*simRide),
	}
	s.hub.onPublish = s.handleClientPublish
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/status", s.handleSetStatus).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/cancel", s.handleCancelRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{request_id}/cancel", s.handleCancelRequest).Methods("POST")
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go s.hub.serve(conn)
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RiderID     string       `json:"rider_id"`
		Origin      models.Coord `json:"origin"`
		Destination models.Coord `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.RiderID == "" {
		http.Error(w, "rider_id required", 400)
		return
	}
	ride := &simRide{
		RequestID: uuid.New().String(),
		RiderID:   req.RiderID,
		Origin:    req.Origin,
		Dest:      req.Destination,
		Status:    "PENDING",
	}
	s.mu.Lock()
	s.requests[ride.RequestID] = ride
	s.mu.Unlock()

	s.log.Info("ride requested", "request_id", ride.RequestID, "rider", req.RiderID)

	// offer the request to the sim driver; with auto-assign the matcher
	// also accepts on the driver's behalf after the delay
	s.hub.Broadcast(models.RequestTopic(s.DriverID), models.RideEvent{
		Type:          models.EventRideRequested,
		RideRequestID: ride.RequestID,
		Origin:        &ride.Origin,
		Destination:   &ride.Dest,
		Timestamp:     time.Now(),
	})
	if s.AutoAssign {
		reqID := ride.RequestID
		time.AfterFunc(s.AssignDelay, func() { s.assign(reqID, s.DriverID) })
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"ride_request_id": ride.RequestID})
}

// handleClientPublish intercepts publishes to control destinations before
// the hub fan-out; everything else (position topics) just flows through.
func (s *Server) handleClientPublish(destination string, payload json.RawMessage) {
	if destination != "dispatch:replies" {
		return
	}
	var reply struct {
		RideRequestID string `json:"ride_request_id"`
		DriverID      string `json:"driver_id"`
		Accepted      bool   `json:"accepted"`
	}
	if err := json.Unmarshal(payload, &reply); err != nil {
		s.log.Warn("bad dispatch reply", "error", err)
		return
	}
	if reply.Accepted {
		s.assign(reply.RideRequestID, reply.DriverID)
		return
	}
	s.noDriver(reply.RideRequestID)
}

func (s *Server) assign(requestID, driverID string) {
	s.mu.Lock()
	ride, ok := s.requests[requestID]
	if !ok || ride.Cancelled || ride.RideID != "" {
		s.mu.Unlock()
		return
	}
	ride.RideID = uuid.New().String()
	ride.DriverID = driverID
	ride.Status = "CONFIRMED"
	s.rides[ride.RideID] = ride
	s.mu.Unlock()

	s.log.Info("driver assigned", "ride_id", ride.RideID, "driver", driverID)
	ev := models.RideEvent{
		Type:           models.EventRideAccepted,
		RideID:         ride.RideID,
		RideRequestID:  requestID,
		CounterpartyID: driverID,
		Profile: &models.CounterpartyProfile{
			ID: driverID, Name: "Sim Driver", Rating: 4.9, Vehicle: "Toyota Vios", Plate: "51F-123.45",
		},
		Timestamp: time.Now(),
	}
	s.hub.Broadcast(models.LifecycleTopic(ride.RiderID), ev)
	driverEv := ev
	driverEv.CounterpartyID = ride.RiderID
	driverEv.Profile = &models.CounterpartyProfile{ID: ride.RiderID, Name: "Sim Rider", Rating: 4.8}
	s.hub.Broadcast(models.LifecycleTopic(driverID), driverEv)
}

func (s *Server) noDriver(requestID string) {
	s.mu.Lock()
	ride, ok := s.requests[requestID]
	if !ok || ride.Cancelled || ride.RideID != "" {
		s.mu.Unlock()
		return
	}
	ride.Cancelled = true
	s.mu.Unlock()
	s.hub.Broadcast(models.LifecycleTopic(ride.RiderID), models.RideEvent{
		Type:          models.EventNoDriver,
		RideRequestID: requestID,
		Timestamp:     time.Now(),
	})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	s.mu.Lock()
	ride, ok := s.rides[rideID]
	if ok {
		ride.Status = body.Status
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "ride not found", 404)
		return
	}

	ev := models.RideEvent{
		Type:      models.EventRideStatusUpdate,
		RideID:    rideID,
		Status:    body.Status,
		Timestamp: time.Now(),
	}
	s.hub.Broadcast(models.LifecycleTopic(ride.RiderID), ev)
	s.hub.Broadcast(models.LifecycleTopic(ride.DriverID), ev)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"ride_id": rideID, "status": body.Status})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var body struct {
		ActorID   string `json:"actor_id"`
		ActorRole string `json:"actor_role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	s.mu.Lock()
	ride, ok := s.rides[rideID]
	if ok {
		ride.Status = "CANCELLED"
		ride.Cancelled = true
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "ride not found", 404)
		return
	}

	ev := models.RideEvent{
		Type:      models.EventRideCancelled,
		RideID:    rideID,
		ActorID:   body.ActorID,
		ActorRole: body.ActorRole,
		Timestamp: time.Now(),
	}
	s.hub.Broadcast(models.LifecycleTopic(ride.RiderID), ev)
	s.hub.Broadcast(models.LifecycleTopic(ride.DriverID), ev)
	w.WriteHeader(204)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	s.mu.Lock()
	ride, ok := s.requests[requestID]
	if ok && ride.RideID == "" {
		ride.Cancelled = true
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "request not found", 404)
		return
	}
	w.WriteHeader(204)
}
