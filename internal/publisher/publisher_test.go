package publisher

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-sync/internal/models"
)

type fakeSampler struct {
	ch       chan models.PositionSample
	released bool
	mu       sync.Mutex
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{ch: make(chan models.PositionSample, 16)}
}

func (f *fakeSampler) Tap() (<-chan models.PositionSample, func()) {
	return f.ch, func() {
		f.mu.Lock()
		f.released = true
		f.mu.Unlock()
	}
}

func (f *fakeSampler) wasReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type fakeSender struct {
	mu   sync.Mutex
	sent []models.PositionEvent
	err  error
}

func (f *fakeSender) Publish(destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, payload.(models.PositionEvent))
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) lastEvent() models.PositionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeJournal struct {
	mu      sync.Mutex
	records []models.PositionSample
}

func (f *fakeJournal) Record(actorID string, s models.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, s)
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

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

func TestDistanceFilter(t *testing.T) {
	sampler := newFakeSampler()
	sender := &fakeSender{}
	p := &Publisher{
		ActorID:     "D1",
		Destination: "position:D1",
		Sampler:     sampler,
		Sender:      sender,
		MinMeters:   50,
		Fallback:    time.Hour, // keep the fallback out of this test
		Log:         quiet(),
	}
	p.Start()
	defer p.Stop()

	sampler.ch <- models.PositionSample{Lat: 10.7600, Lon: 106.6600}
	waitFor(t, func() bool { return sender.count() == 1 }, time.Second)

	// roughly 15m, under the 50m minimum
	sampler.ch <- models.PositionSample{Lat: 10.7601, Lon: 106.6601}
	time.Sleep(50 * time.Millisecond)
	if n := sender.count(); n != 1 {
		t.Fatalf("sub-threshold sample was published (%d sends)", n)
	}

	// roughly 1.5km
	sampler.ch <- models.PositionSample{Lat: 10.7700, Lon: 106.6700}
	waitFor(t, func() bool { return sender.count() == 2 }, time.Second)
	if ev := sender.lastEvent(); ev.CounterpartyID != "D1" {
		t.Fatalf("event carries actor %q, want D1", ev.CounterpartyID)
	}
}

func TestIntervalFilter(t *testing.T) {
	sampler := newFakeSampler()
	sender := &fakeSender{}
	p := &Publisher{
		ActorID:     "D1",
		Destination: "position:D1",
		Sampler:     sampler,
		Sender:      sender,
		MinMeters:   0,
		MinInterval: 200 * time.Millisecond,
		Fallback:    time.Hour,
		Log:         quiet(),
	}
	p.Start()
	defer p.Stop()

	sampler.ch <- models.PositionSample{Lat: 10.7600, Lon: 106.6600}
	waitFor(t, func() bool { return sender.count() == 1 }, time.Second)

	// far enough, but inside the minimum interval
	sampler.ch <- models.PositionSample{Lat: 10.7700, Lon: 106.6700}
	time.Sleep(50 * time.Millisecond)
	if n := sender.count(); n != 1 {
		t.Fatalf("sample inside the minimum interval was published (%d sends)", n)
	}

	time.Sleep(200 * time.Millisecond)
	sampler.ch <- models.PositionSample{Lat: 10.7800, Lon: 106.6800}
	waitFor(t, func() bool { return sender.count() == 2 }, time.Second)
}

func TestFallbackRepublishesWhileStationary(t *testing.T) {
	sampler := newFakeSampler()
	sender := &fakeSender{}
	p := &Publisher{
		ActorID:     "C1",
		Destination: "position:C1",
		Sampler:     sampler,
		Sender:      sender,
		MinMeters:   10_000, // nothing passes the movement filter
		Fallback:    80 * time.Millisecond,
		Log:         quiet(),
	}
	p.Start()
	defer p.Stop()

	sampler.ch <- models.PositionSample{Lat: 10.7600, Lon: 106.6600}
	waitFor(t, func() bool { return sender.count() == 1 }, time.Second)

	// no movement at all, yet the fallback keeps the fix alive
	waitFor(t, func() bool { return sender.count() >= 3 }, 2*time.Second)
	if ev := sender.lastEvent(); ev.Lat != 10.7600 || ev.Lon != 106.6600 {
		t.Fatalf("fallback republished %+v, want the last fix", ev)
	}
}

func TestJournalReceivesEverySend(t *testing.T) {
	sampler := newFakeSampler()
	sender := &fakeSender{}
	journal := &fakeJournal{}
	p := &Publisher{
		ActorID:     "D1",
		Destination: "position:D1",
		Sampler:     sampler,
		Sender:      sender,
		Journal:     journal,
		Fallback:    time.Hour,
		Log:         quiet(),
	}
	p.Start()
	defer p.Stop()

	sampler.ch <- models.PositionSample{Lat: 10.76, Lon: 106.66}
	waitFor(t, func() bool { return sender.count() == 1 }, time.Second)
	waitFor(t, func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.records) == 1
	}, time.Second)
}

func TestSendFailureSkipsJournal(t *testing.T) {
	sampler := newFakeSampler()
	sender := &fakeSender{err: errors.New("channel down")}
	journal := &fakeJournal{}
	p := &Publisher{
		ActorID:  "D1",
		Sampler:  sampler,
		Sender:   sender,
		Journal:  journal,
		Fallback: time.Hour,
		Log:      quiet(),
	}
	p.Start()

	sampler.ch <- models.PositionSample{Lat: 10.76, Lon: 106.66}
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	journal.mu.Lock()
	n := len(journal.records)
	journal.mu.Unlock()
	if n != 0 {
		t.Fatalf("failed send still journaled %d records", n)
	}
}

func TestStopReleasesTapAndIsIdempotent(t *testing.T) {
	sampler := newFakeSampler()
	p := &Publisher{ActorID: "D1", Sampler: sampler, Sender: &fakeSender{}, Fallback: time.Hour, Log: quiet()}
	p.Start()
	p.Start() // second start is a no-op
	p.Stop()
	if !sampler.wasReleased() {
		t.Fatal("stop did not release the sampler tap")
	}
	p.Stop() // second stop is a no-op
}
