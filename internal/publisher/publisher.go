// Package publisher pushes this actor's own position to the counterparty.
package publisher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-sync/internal/geo"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
)

// Sender is the publish half of the push channel.
type Sender interface {
	Publish(destination string, payload any) error
}

// Journal receives a copy of every published sample. Optional.
type Journal interface {
	Record(actorID string, s models.PositionSample) error
}

// Publisher filters the geolocation stream by minimum distance and minimum
// interval, with a hard periodic fallback so the counterparty's last-known
// position never goes silent while the device is stationary. It runs only
// during the active phase of a ride; Start and Stop are explicit.
type Publisher struct {
	ActorID     string
	Destination string
	Sampler     geo.Sampler
	Sender      Sender
	Journal     Journal // may be nil
	MinMeters   float64
	MinInterval time.Duration
	Fallback    time.Duration
	Log         *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// Start begins sampling and publishing. Calling Start while running is a
// no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	stop := make(chan struct{})
	p.stop = stop
	p.wg.Add(1)
	go p.run(stop)
}

// Stop halts publishing and releases the sampler tap. Idempotent.
func (p *Publisher) Stop() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	p.wg.Wait()
}

func (p *Publisher) run(stop chan struct{}) {
	defer p.wg.Done()
	samples, release := p.Sampler.Tap()
	defer release()

	fallback := p.Fallback
	if fallback <= 0 {
		fallback = 3 * time.Second
	}
	ticker := time.NewTicker(fallback)
	defer ticker.Stop()

	var last *models.PositionSample   // latest sample seen
	var lastPub *models.PositionSample // latest sample published
	var lastPubAt time.Time

	for {
		select {
		case <-stop:
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			last = &s
			if lastPub != nil {
				moved := geo.Haversine(lastPub.Lat, lastPub.Lon, s.Lat, s.Lon)
				if moved < p.MinMeters || time.Since(lastPubAt) < p.MinInterval {
					continue
				}
			}
			p.publish(s)
			lastPub, lastPubAt = &s, time.Now()
		case <-ticker.C:
			// keep-alive: republish the latest fix even without movement
			if last != nil && time.Since(lastPubAt) >= fallback {
				p.publish(*last)
				lastPub, lastPubAt = last, time.Now()
			}
		}
	}
}

func (p *Publisher) publish(s models.PositionSample) {
	ev := models.PositionEvent{CounterpartyID: p.ActorID, Lat: s.Lat, Lon: s.Lon, Timestamp: s.CapturedAt}
	if err := p.Sender.Publish(p.Destination, ev); err != nil {
		p.Log.Warn("position publish failed", "error", err)
		return
	}
	observability.PositionPublishes.Inc()
	if p.Journal != nil {
		if err := p.Journal.Record(p.ActorID, s); err != nil {
			observability.PositionJournalErrors.Inc()
			p.Log.Warn("position journal write failed", "error", err)
		}
	}
}
