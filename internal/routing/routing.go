package routing

import (
	"context"

	"github.com/example/ride-sync/internal/models"
)

// Service is the routing capability consumed by the recompute debouncer.
type Service interface {
	GetRoute(ctx context.Context, from, to models.Coord) (models.RouteSnapshot, error)
}
