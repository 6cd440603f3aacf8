package routing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-sync/internal/geo"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
)

// Debouncer decides when the counterparty has moved enough, and enough time
// has passed, to warrant another routing call. It is trailing-edge: updates
// landing inside the quiet window are coalesced and the most recent position
// wins when the window closes. A failed routing call is logged and the
// previously delivered snapshot stays in effect.
type Debouncer struct {
	svc         Service
	quiet       time.Duration
	minMove     float64 // meters; 0 means any movement qualifies
	log         *slog.Logger
	onRoute     func(models.RouteSnapshot)
	callTimeout time.Duration

	mu         sync.Mutex
	baseline   *models.Coord // position used for the last recompute
	lastCall   time.Time
	pendingPos models.Coord
	pendingTgt models.Coord
	timer      *time.Timer
	gen        int // bumped on Cancel so stale results are discarded
}

func NewDebouncer(svc Service, quiet time.Duration, minMoveMeters float64, log *slog.Logger, onRoute func(models.RouteSnapshot)) *Debouncer {
	if quiet <= 0 {
		quiet = 3 * time.Second
	}
	return &Debouncer{
		svc:         svc,
		quiet:       quiet,
		minMove:     minMoveMeters,
		log:         log,
		onRoute:     onRoute,
		callTimeout: 5 * time.Second,
	}
}

// Observe feeds one counterparty position and the current routing target.
func (d *Debouncer) Observe(pos, target models.Coord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		// window already open; latest update wins
		d.pendingPos, d.pendingTgt = pos, target
		return
	}

	if d.baseline == nil {
		d.fireLocked(pos, target)
		return
	}

	if geo.Haversine(d.baseline.Lat, d.baseline.Lon, pos.Lat, pos.Lon) <= d.minMove {
		return
	}

	if remaining := d.quiet - time.Since(d.lastCall); remaining > 0 {
		d.pendingPos, d.pendingTgt = pos, target
		gen := d.gen
		d.timer = time.AfterFunc(remaining, func() { d.flush(gen) })
		return
	}
	d.fireLocked(pos, target)
}

func (d *Debouncer) flush(gen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	d.timer = nil
	d.fireLocked(d.pendingPos, d.pendingTgt)
}

// fireLocked issues the routing call off the lock. Caller holds d.mu.
func (d *Debouncer) fireLocked(pos, target models.Coord) {
	d.lastCall = time.Now()
	p := pos
	d.baseline = &p
	gen := d.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
		defer cancel()
		snap, err := d.svc.GetRoute(ctx, pos, target)
		observability.RouteRecomputes.Inc()
		if err != nil {
			observability.RouteRecomputeFailed.Inc()
			d.log.Warn("route recompute failed, keeping previous snapshot", "error", err)
			return
		}
		d.mu.Lock()
		stale := gen != d.gen
		d.mu.Unlock()
		if stale {
			return
		}
		if d.onRoute != nil {
			d.onRoute(snap)
		}
	}()
}

// Cancel stops any armed window, forgets the baseline, and discards results
// of calls still in flight. Always called on session teardown.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.baseline = nil
	d.lastCall = time.Time{}
}
