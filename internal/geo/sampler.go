package geo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/example/ride-sync/internal/models"
)

// Sampler is a restartable stream of current-position samples. Tap returns a
// receive channel plus a release func; multiple subscribers may tap the same
// sampler without duplicating sensor access.
type Sampler interface {
	Tap() (<-chan models.PositionSample, func())
}

// Fanout adapts a single underlying sample source into a Sampler that any
// number of subscribers can tap. One Fanout per process; it owns the only
// read of the source channel.
type Fanout struct {
	mu     sync.Mutex
	taps   map[int]chan models.PositionSample
	nextID int
	last   *models.PositionSample
	done   chan struct{}
	once   sync.Once
}

// NewFanout starts forwarding from src until Close. Slow taps lose samples
// rather than stalling the source; the latest sample always wins.
func NewFanout(src <-chan models.PositionSample) *Fanout {
	f := &Fanout{
		taps: make(map[int]chan models.PositionSample),
		done: make(chan struct{}),
	}
	go f.run(src)
	return f
}

func (f *Fanout) run(src <-chan models.PositionSample) {
	for {
		select {
		case s, ok := <-src:
			if !ok {
				return
			}
			f.mu.Lock()
			f.last = &s
			for _, ch := range f.taps {
				select {
				case ch <- s:
				default:
				}
			}
			f.mu.Unlock()
		case <-f.done:
			return
		}
	}
}

func (f *Fanout) Tap() (<-chan models.PositionSample, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan models.PositionSample, 16)
	f.taps[id] = ch
	// seed new taps with the last known fix so they do not wait a full
	// sample interval for their first position
	if f.last != nil {
		ch <- *f.last
	}
	release := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.taps[id]; ok {
			delete(f.taps, id)
			close(c)
		}
	}
	return ch, release
}

func (f *Fanout) Close() {
	f.once.Do(func() { close(f.done) })
}

// SimSource produces a random walk around a starting coordinate at a fixed
// rate. Used by the demo client in place of real device sensors.
type SimSource struct {
	Start    models.Coord
	Interval time.Duration
	StepDeg  float64
}

// Run emits samples until stop is closed. The returned channel is closed on
// exit.
func (s *SimSource) Run(stop <-chan struct{}) <-chan models.PositionSample {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	step := s.StepDeg
	if step <= 0 {
		step = 0.0002
	}
	out := make(chan models.PositionSample)
	go func() {
		defer close(out)
		cur := s.Start
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-t.C:
				cur.Lat += (rand.Float64() - 0.5) * 2 * step
				cur.Lon += (rand.Float64() - 0.5) * 2 * step
				sample := models.PositionSample{Lat: cur.Lat, Lon: cur.Lon, CapturedAt: now}
				select {
				case out <- sample:
				case <-stop:
					return
				}
			}
		}
	}()
	return out
}
