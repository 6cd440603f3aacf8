package routing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-sync/internal/models"
)

type fakeRouter struct {
	mu    sync.Mutex
	calls []models.Coord // from-positions, in call order
	snap  models.RouteSnapshot
	err   error
}

func (f *fakeRouter) GetRoute(ctx context.Context, from, to models.Coord) (models.RouteSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, from)
	return f.snap, f.err
}

func (f *fakeRouter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRouter) lastFrom() models.Coord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", within)
}

func TestBurstCoalescesToOneCall(t *testing.T) {
	router := &fakeRouter{snap: models.RouteSnapshot{DistanceMeters: 1200}}
	var mu sync.Mutex
	var routes int
	d := NewDebouncer(router, 100*time.Millisecond, 0, discard(), func(models.RouteSnapshot) {
		mu.Lock()
		routes++
		mu.Unlock()
	})

	target := models.Coord{Lat: 10.80, Lon: 106.70}
	// first position has no baseline and fires immediately, opening the window
	d.Observe(models.Coord{Lat: 10.7600, Lon: 106.6600}, target)
	waitFor(t, func() bool { return router.callCount() == 1 }, time.Second)

	// a burst inside the quiet window coalesces; the last position wins
	d.Observe(models.Coord{Lat: 10.7601, Lon: 106.6601}, target)
	d.Observe(models.Coord{Lat: 10.7602, Lon: 106.6602}, target)
	last := models.Coord{Lat: 10.7603, Lon: 106.6603}
	d.Observe(last, target)

	waitFor(t, func() bool { return router.callCount() == 2 }, time.Second)
	if got := router.lastFrom(); got != last {
		t.Fatalf("flushed with %+v, want the last observed position %+v", got, last)
	}

	// no further updates, no further calls
	time.Sleep(150 * time.Millisecond)
	if n := router.callCount(); n != 2 {
		t.Fatalf("got %d routing calls, want 2", n)
	}
}

func TestMovementBelowThresholdIgnored(t *testing.T) {
	router := &fakeRouter{}
	d := NewDebouncer(router, 50*time.Millisecond, 50, discard(), nil)
	target := models.Coord{Lat: 10.80, Lon: 106.70}

	d.Observe(models.Coord{Lat: 10.7600, Lon: 106.6600}, target)
	waitFor(t, func() bool { return router.callCount() == 1 }, time.Second)
	time.Sleep(80 * time.Millisecond) // let the quiet window lapse

	// roughly 15m away, under the 50m threshold
	d.Observe(models.Coord{Lat: 10.7601, Lon: 106.6601}, target)
	time.Sleep(80 * time.Millisecond)
	if n := router.callCount(); n != 1 {
		t.Fatalf("sub-threshold movement triggered a recompute (%d calls)", n)
	}

	// well past the threshold
	d.Observe(models.Coord{Lat: 10.7700, Lon: 106.6700}, target)
	waitFor(t, func() bool { return router.callCount() == 2 }, time.Second)
}

func TestFailureKeepsPreviousSnapshot(t *testing.T) {
	router := &fakeRouter{err: errors.New("osrm unavailable")}
	var mu sync.Mutex
	var delivered int
	d := NewDebouncer(router, 50*time.Millisecond, 0, discard(), func(models.RouteSnapshot) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	d.Observe(models.Coord{Lat: 10.76, Lon: 106.66}, models.Coord{Lat: 10.80, Lon: 106.70})
	waitFor(t, func() bool { return router.callCount() == 1 }, time.Second)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	n := delivered
	mu.Unlock()
	if n != 0 {
		t.Fatalf("failed recompute delivered a snapshot %d times", n)
	}
}

func TestCancelDiscardsArmedWindow(t *testing.T) {
	router := &fakeRouter{}
	d := NewDebouncer(router, 60*time.Millisecond, 0, discard(), nil)
	target := models.Coord{Lat: 10.80, Lon: 106.70}

	d.Observe(models.Coord{Lat: 10.7600, Lon: 106.6600}, target)
	waitFor(t, func() bool { return router.callCount() == 1 }, time.Second)
	d.Observe(models.Coord{Lat: 10.7610, Lon: 106.6610}, target) // arms the window
	d.Cancel()

	time.Sleep(120 * time.Millisecond)
	if n := router.callCount(); n != 1 {
		t.Fatalf("cancelled window still fired (%d calls)", n)
	}

	// after cancel the baseline is gone, so the next observation fires at once
	d.Observe(models.Coord{Lat: 10.7620, Lon: 106.6620}, target)
	waitFor(t, func() bool { return router.callCount() == 2 }, time.Second)
}
