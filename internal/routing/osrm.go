package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-sync/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// GetRoute queries OSRM /route between the points and returns distance,
// duration and the full geometry.
func (o *OSRMClient) GetRoute(ctx context.Context, from, to models.Coord) (models.RouteSnapshot, error) {
	// OSRM route query: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.RouteSnapshot{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return models.RouteSnapshot{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
			} `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteSnapshot{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return models.RouteSnapshot{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	r := out.Routes[0]
	snap := models.RouteSnapshot{
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Geometry:        make([]models.Coord, 0, len(r.Geometry.Coordinates)),
	}
	for _, c := range r.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		snap.Geometry = append(snap.Geometry, models.Coord{Lon: c[0], Lat: c[1]})
	}
	return snap, nil
}
