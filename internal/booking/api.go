package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/ride-sync/internal/models"
)

// CreateRideRequest is the booking submission payload.
type CreateRideRequest struct {
	RiderID      string       `json:"rider_id"`
	Origin       models.Coord `json:"origin"`
	Destination  models.Coord `json:"destination"`
	VehicleClass string       `json:"vehicle_class,omitempty"`
	FareEstimate float64      `json:"fare_estimate,omitempty"`
}

// RideSnapshot is the server's view of a ride after a status mutation.
type RideSnapshot struct {
	RideID string `json:"ride_id"`
	Status string `json:"status"`
}

// API is the booking backend contract consumed by the orchestrator.
type API interface {
	CreateRide(ctx context.Context, req CreateRideRequest) (rideRequestID string, err error)
	SetRideStatus(ctx context.Context, rideID, status string) (RideSnapshot, error)
	CancelPendingRequest(ctx context.Context, rideRequestID string) error
	CancelActiveRide(ctx context.Context, rideID, actorID, actorRole string) error
}

// HTTPAPI talks to the booking backend over plain HTTP.
type HTTPAPI struct {
	Base   string
	Client *http.Client
}

func NewHTTPAPI(base string) *HTTPAPI {
	return &HTTPAPI{Base: base, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (a *HTTPAPI) CreateRide(ctx context.Context, req CreateRideRequest) (string, error) {
	var out struct {
		RideRequestID string `json:"ride_request_id"`
	}
	if err := a.post(ctx, "/api/v1/rides", req, &out); err != nil {
		return "", err
	}
	if out.RideRequestID == "" {
		return "", fmt.Errorf("create ride: empty ride_request_id")
	}
	return out.RideRequestID, nil
}

func (a *HTTPAPI) SetRideStatus(ctx context.Context, rideID, status string) (RideSnapshot, error) {
	var out RideSnapshot
	body := map[string]string{"status": status}
	err := a.post(ctx, "/api/v1/rides/"+rideID+"/status", body, &out)
	return out, err
}

func (a *HTTPAPI) CancelPendingRequest(ctx context.Context, rideRequestID string) error {
	return a.post(ctx, "/api/v1/requests/"+rideRequestID+"/cancel", struct{}{}, nil)
}

func (a *HTTPAPI) CancelActiveRide(ctx context.Context, rideID, actorID, actorRole string) error {
	body := map[string]string{"actor_id": actorID, "actor_role": actorRole}
	return a.post(ctx, "/api/v1/rides/"+rideID+"/cancel", body, nil)
}

func (a *HTTPAPI) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("booking api %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("booking api %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
