package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-sync/internal/config"
	"github.com/example/ride-sync/internal/lifecycle"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/notify"
	"github.com/example/ride-sync/internal/push"
)

type fakeAPI struct {
	mu            sync.Mutex
	createErr     error
	created       []CreateRideRequest
	statusCalls   []string // "rideID:status"
	cancelledReqs []string
	cancelledRide []string
}

func (f *fakeAPI) CreateRide(ctx context.Context, req CreateRideRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	return "REQ-1", nil
}

func (f *fakeAPI) SetRideStatus(ctx context.Context, rideID, status string) (RideSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, rideID+":"+status)
	return RideSnapshot{RideID: rideID, Status: status}, nil
}

func (f *fakeAPI) CancelPendingRequest(ctx context.Context, rideRequestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledReqs = append(f.cancelledReqs, rideRequestID)
	return nil
}

func (f *fakeAPI) CancelActiveRide(ctx context.Context, rideID, actorID, actorRole string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledRide = append(f.cancelledRide, rideID)
	return nil
}

type fakeRoutes struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRoutes) GetRoute(ctx context.Context, from, to models.Coord) (models.RouteSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return models.RouteSnapshot{DistanceMeters: 1200, DurationSeconds: 300}, nil
}

type fakeSampler struct {
	ch chan models.PositionSample
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{ch: make(chan models.PositionSample, 16)}
}

func (f *fakeSampler) Tap() (<-chan models.PositionSample, func()) {
	return f.ch, func() {}
}

func testConfig() config.ClientConfig {
	return config.ClientConfig{
		MinTripMeters:      500,
		SettleDelay:        40 * time.Millisecond,
		NoticeDismissDelay: time.Hour,
		RouteQuietInterval: 20 * time.Millisecond,
		PublishFallback:    time.Hour,
	}
}

type fixture struct {
	o       *Orchestrator
	channel *push.MemoryChannel
	api     *fakeAPI
	routes  *fakeRoutes
	sampler *fakeSampler
}

func newFixture(t *testing.T, role Role, actorID string) *fixture {
	t.Helper()
	f := &fixture{
		channel: push.NewMemoryChannel(),
		api:     &fakeAPI{},
		routes:  &fakeRoutes{},
		sampler: newFakeSampler(),
	}
	f.o = New(Options{
		Role:    role,
		ActorID: actorID,
		Config:  testConfig(),
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Channel: f.channel,
		API:     f.api,
		Routes:  f.routes,
		Sampler: f.sampler,
	})
	f.o.Start()
	t.Cleanup(f.o.Close)
	return f
}

func (f *fixture) inject(t *testing.T, topic string, payload any) {
	t.Helper()
	if err := f.channel.Inject(topic, payload); err != nil {
		t.Fatal(err)
	}
}

func waitState(t *testing.T, o *Orchestrator, want lifecycle.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.CurrentState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", o.CurrentState(), want)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

var (
	originA = models.Coord{Lat: 10.7600, Lon: 106.6600}
	destA   = models.Coord{Lat: 10.7700, Lon: 106.6700} // about 1.5km away
)

func submit(t *testing.T, f *fixture) string {
	t.Helper()
	reqID, err := f.o.SubmitBooking(context.Background(), BookingRequest{Origin: originA, Destination: destA})
	if err != nil {
		t.Fatal(err)
	}
	return reqID
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	ctx := context.Background()

	if _, err := f.o.SubmitBooking(ctx, BookingRequest{Destination: destA}); !errors.Is(err, ErrMissingOrigin) {
		t.Fatalf("missing origin: %v", err)
	}
	if _, err := f.o.SubmitBooking(ctx, BookingRequest{Origin: originA}); !errors.Is(err, ErrMissingDestination) {
		t.Fatalf("missing destination: %v", err)
	}
	if _, err := f.o.SubmitBooking(ctx, BookingRequest{
		Origin:      models.Coord{Lat: 95, Lon: 106.66},
		Destination: destA,
	}); !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatalf("bad latitude: %v", err)
	}
	// about 45m apart, under the minimum trip distance
	if _, err := f.o.SubmitBooking(ctx, BookingRequest{
		Origin:      originA,
		Destination: models.Coord{Lat: 10.7603, Lon: 106.6603},
	}); !errors.Is(err, ErrTripTooShort) {
		t.Fatalf("too-short trip: %v", err)
	}

	f.api.mu.Lock()
	n := len(f.api.created)
	f.api.mu.Unlock()
	if n != 0 {
		t.Fatalf("validation failures still hit the API %d times", n)
	}
	if s := f.o.CurrentState(); s != lifecycle.StateIdle {
		t.Fatalf("state = %s after rejected submissions", s)
	}
}

func TestSubmitFailureShowsNotice(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	f.api.createErr = errors.New("dispatch backend down")

	if _, err := f.o.SubmitBooking(context.Background(), BookingRequest{Origin: originA, Destination: destA}); err == nil {
		t.Fatal("expected submission error")
	}
	if s := f.o.CurrentState(); s != lifecycle.StateIdle {
		t.Fatalf("state = %s, want IDLE", s)
	}
	n := f.o.CurrentNotification()
	if n == nil || n.Kind != notify.KindBookingFailed {
		t.Fatalf("notification = %+v, want booking_failed", n)
	}

	// a failed submission must not block the retry
	f.api.createErr = nil
	if _, err := f.o.SubmitBooking(context.Background(), BookingRequest{Origin: originA, Destination: destA}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestRiderHappyPath(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	reqID := submit(t, f)

	if s := f.o.CurrentState(); s != lifecycle.StatePending {
		t.Fatalf("state after submit = %s", s)
	}
	if n := f.channel.SubscriberCount(models.LifecycleTopic("C1")); n != 1 {
		t.Fatalf("lifecycle subscribers = %d", n)
	}
	if _, err := f.o.SubmitBooking(context.Background(), BookingRequest{Origin: originA, Destination: destA}); !errors.Is(err, ErrRideInProgress) {
		t.Fatalf("second booking while pending: %v", err)
	}

	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{
		Type:           models.EventRideAccepted,
		RideID:         "RIDE-9",
		RideRequestID:  reqID,
		CounterpartyID: "D7",
		Profile:        &models.CounterpartyProfile{ID: "D7", Name: "Binh", Rating: 4.9},
	})
	waitState(t, f.o, lifecycle.StateConfirmed)

	sess := f.o.CurrentSession()
	if sess == nil || sess.RideID != "RIDE-9" || sess.CounterpartyID != "D7" {
		t.Fatalf("session = %+v", sess)
	}
	if n := f.o.CurrentNotification(); n == nil || n.Kind != notify.KindAssignment || n.Profile == nil || n.Profile.Name != "Binh" {
		t.Fatalf("assignment notification = %+v", n)
	}
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.PositionTopic("D7")) == 1 })

	// own position flows out once the publisher is running
	f.sampler.ch <- models.PositionSample{Lat: 10.7650, Lon: 106.6650, CapturedAt: time.Now()}
	waitFor(t, func() bool {
		for _, m := range f.channel.Sent() {
			if m.Topic == models.PositionTopic("C1") {
				return true
			}
		}
		return false
	})

	// counterparty movement recomputes the route
	f.inject(t, models.PositionTopic("D7"), models.PositionEvent{CounterpartyID: "D7", Lat: 10.7620, Lon: 106.6620, Timestamp: time.Now()})
	waitFor(t, func() bool { return f.o.CurrentRoute() != nil })
	if cp := f.o.CurrentCounterparty(); cp == nil || cp.CounterpartyID != "D7" {
		t.Fatalf("counterparty = %+v", cp)
	}

	for _, status := range []lifecycle.State{lifecycle.StatePickingUp, lifecycle.StateOngoing, lifecycle.StateFinished} {
		f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideStatusUpdate, RideID: "RIDE-9", Status: string(status)})
		waitState(t, f.o, status)
	}

	// the settle delay returns the client to idle with everything released
	waitState(t, f.o, lifecycle.StateIdle)
	if sess := f.o.CurrentSession(); sess != nil {
		t.Fatalf("session survived settle: %+v", sess)
	}
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.PositionTopic("D7")) == 0 })
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.LifecycleTopic("C1")) == 0 })
}

func TestNoDriverAvailable(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	submit(t, f)

	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventNoDriver})
	waitState(t, f.o, lifecycle.StateIdle)

	if n := f.o.CurrentNotification(); n == nil || n.Kind != notify.KindRetryOrCancel {
		t.Fatalf("notification = %+v, want retry_or_cancel", n)
	}
	if sess := f.o.CurrentSession(); sess != nil {
		t.Fatalf("session = %+v, want nil", sess)
	}
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.LifecycleTopic("C1")) == 0 })

	// retry goes straight through
	submit(t, f)
	waitState(t, f.o, lifecycle.StatePending)
}

func TestCancelPendingRequest(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	reqID := submit(t, f)

	if err := f.o.CancelBooking(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, f.o, lifecycle.StateIdle)

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	if len(f.api.cancelledReqs) != 1 || f.api.cancelledReqs[0] != reqID {
		t.Fatalf("cancelled requests = %v", f.api.cancelledReqs)
	}
	if len(f.api.cancelledRide) != 0 {
		t.Fatalf("ride cancel endpoint hit for a pending request: %v", f.api.cancelledRide)
	}
}

func TestCancelConfirmedRide(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	submit(t, f)
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{
		Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "D7",
	})
	waitState(t, f.o, lifecycle.StateConfirmed)

	if err := f.o.CancelBooking(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, f.o, lifecycle.StateCancelled)

	n := f.o.CurrentNotification()
	if n == nil || n.Kind != notify.KindCancellation || n.Actor != "C1" {
		t.Fatalf("notification = %+v", n)
	}
	f.api.mu.Lock()
	cancelled := append([]string(nil), f.api.cancelledRide...)
	f.api.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != "RIDE-9" {
		t.Fatalf("cancelled rides = %v", cancelled)
	}

	// settle returns to idle
	waitState(t, f.o, lifecycle.StateIdle)
}

func TestCancelOngoingRejected(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	submit(t, f)
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "D7"})
	waitState(t, f.o, lifecycle.StateConfirmed)
	for _, status := range []lifecycle.State{lifecycle.StatePickingUp, lifecycle.StateOngoing} {
		f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideStatusUpdate, Status: string(status)})
		waitState(t, f.o, status)
	}

	if err := f.o.CancelBooking(context.Background()); !errors.Is(err, lifecycle.ErrCancelOngoing) {
		t.Fatalf("cancel of ongoing ride: %v", err)
	}
	if s := f.o.CurrentState(); s != lifecycle.StateOngoing {
		t.Fatalf("state = %s after rejected cancel", s)
	}
}

func TestRemoteCancellation(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	submit(t, f)
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "D7"})
	waitState(t, f.o, lifecycle.StateConfirmed)

	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{
		Type: models.EventRideCancelled, RideID: "RIDE-9", ActorID: "D7", ActorRole: "driver",
	})
	waitState(t, f.o, lifecycle.StateCancelled)
	if n := f.o.CurrentNotification(); n == nil || n.Kind != notify.KindCancellation || n.Actor != "D7" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestStaleEventsAfterTeardown(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	submit(t, f)
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "D7"})
	waitState(t, f.o, lifecycle.StateConfirmed)

	// duplicate confirmation is ignored
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "D7"})
	time.Sleep(30 * time.Millisecond)
	if s := f.o.CurrentState(); s != lifecycle.StateConfirmed {
		t.Fatalf("duplicate confirmation moved state to %s", s)
	}

	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideCancelled, ActorID: "D7"})
	waitState(t, f.o, lifecycle.StateCancelled)
	waitState(t, f.o, lifecycle.StateIdle)

	// a status echo arriving after teardown must not resurrect anything
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideStatusUpdate, Status: "ONGOING"})
	time.Sleep(30 * time.Millisecond)
	if s := f.o.CurrentState(); s != lifecycle.StateIdle {
		t.Fatalf("stale status echo moved state to %s", s)
	}
	if sess := f.o.CurrentSession(); sess != nil {
		t.Fatalf("session resurrected: %+v", sess)
	}
}

func TestLateAssignmentCannotRewriteSession(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	reqID := submit(t, f)
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{
		Type: models.EventRideAccepted, RideID: "RIDE-NEW", RideRequestID: reqID, CounterpartyID: "D7",
	})
	waitState(t, f.o, lifecycle.StateConfirmed)

	// a late assignment echo for an older request must leave the session alone
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{
		Type: models.EventRideAccepted, RideID: "RIDE-OLD", RideRequestID: "REQ-OLD", CounterpartyID: "D-OLD",
	})
	// so must a redelivery of the current assignment with different ids
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{
		Type: models.EventRideAccepted, RideID: "RIDE-OTHER", RideRequestID: reqID, CounterpartyID: "D-OTHER",
	})
	time.Sleep(30 * time.Millisecond)

	if s := f.o.CurrentState(); s != lifecycle.StateConfirmed {
		t.Fatalf("state = %s after stale assignments", s)
	}
	sess := f.o.CurrentSession()
	if sess == nil || sess.RideID != "RIDE-NEW" || sess.CounterpartyID != "D7" {
		t.Fatalf("session rewritten by stale assignment: %+v", sess)
	}

	// status mutations keep targeting the real ride
	if err := f.o.CancelBooking(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.api.mu.Lock()
	cancelled := append([]string(nil), f.api.cancelledRide...)
	f.api.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != "RIDE-NEW" {
		t.Fatalf("cancel targeted %v, want RIDE-NEW", cancelled)
	}
}

func TestResetSkipsSettle(t *testing.T) {
	f := newFixture(t, RoleRider, "C1")
	submit(t, f)
	f.inject(t, models.LifecycleTopic("C1"), models.RideEvent{Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "D7"})
	waitState(t, f.o, lifecycle.StateConfirmed)

	f.o.Reset()
	if s := f.o.CurrentState(); s != lifecycle.StateIdle {
		t.Fatalf("state after reset = %s", s)
	}
	if sess := f.o.CurrentSession(); sess != nil {
		t.Fatalf("session after reset = %+v", sess)
	}
	if n := f.o.CurrentNotification(); n != nil {
		t.Fatalf("notification after reset = %+v", n)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	o := New(Options{
		Role:    RoleRider,
		ActorID: "C1",
		Config:  testConfig(),
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Channel: push.NewMemoryChannel(),
		API:     &fakeAPI{},
		Routes:  &fakeRoutes{},
		Sampler: newFakeSampler(),
	})

	done := make(chan struct{})
	go func() {
		o.Close() // never started; must return immediately
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close of an unstarted orchestrator hung")
	}

	// start/close still works afterwards, and close stays idempotent
	o.Start()
	o.Close()
	o.Close()
}

func TestDriverOfferAcceptFlow(t *testing.T) {
	f := newFixture(t, RoleDriver, "D1")
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.RequestTopic("D1")) == 1 })

	f.inject(t, models.RequestTopic("D1"), models.RideEvent{
		Type:          models.EventRideRequested,
		RideRequestID: "REQ-7",
		Origin:        &originA,
		Destination:   &destA,
	})
	waitFor(t, func() bool { return f.o.PendingOffer() != nil })

	if err := f.o.AcceptIncoming(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, f.o, lifecycle.StatePending)

	var reply DispatchReply
	found := false
	for _, m := range f.channel.Sent() {
		if m.Topic == DispatchReplyDestination {
			if err := json.Unmarshal(m.Payload, &reply); err != nil {
				t.Fatal(err)
			}
			found = true
		}
	}
	if !found || !reply.Accepted || reply.DriverID != "D1" || reply.RideRequestID != "REQ-7" {
		t.Fatalf("dispatch reply = %+v (found=%v)", reply, found)
	}
	if sess := f.o.CurrentSession(); sess == nil || sess.Origin != originA {
		t.Fatalf("session = %+v", sess)
	}

	// confirmation completes the handshake
	f.inject(t, models.LifecycleTopic("D1"), models.RideEvent{
		Type: models.EventRideAccepted, RideID: "RIDE-7", CounterpartyID: "C9",
	})
	waitState(t, f.o, lifecycle.StateConfirmed)

	if _, err := f.o.SubmitBooking(context.Background(), BookingRequest{Origin: originA, Destination: destA}); !errors.Is(err, ErrRideInProgress) {
		t.Fatalf("booking while on a ride: %v", err)
	}
}

func TestDriverOfferReject(t *testing.T) {
	f := newFixture(t, RoleDriver, "D1")
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.RequestTopic("D1")) == 1 })

	if err := f.o.AcceptIncoming(context.Background()); !errors.Is(err, ErrNoIncomingRequest) {
		t.Fatalf("accept without offer: %v", err)
	}

	f.inject(t, models.RequestTopic("D1"), models.RideEvent{Type: models.EventRideRequested, RideRequestID: "REQ-8"})
	waitFor(t, func() bool { return f.o.PendingOffer() != nil })

	if err := f.o.RejectIncoming(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.o.PendingOffer() != nil {
		t.Fatal("offer survived rejection")
	}
	if s := f.o.CurrentState(); s != lifecycle.StateIdle {
		t.Fatalf("state = %s after reject", s)
	}

	var reply DispatchReply
	for _, m := range f.channel.Sent() {
		if m.Topic == DispatchReplyDestination {
			if err := json.Unmarshal(m.Payload, &reply); err != nil {
				t.Fatal(err)
			}
		}
	}
	if reply.Accepted || reply.RideRequestID != "REQ-8" {
		t.Fatalf("reject reply = %+v", reply)
	}
}

func TestDriverStatusProgression(t *testing.T) {
	f := newFixture(t, RoleDriver, "D1")
	waitFor(t, func() bool { return f.channel.SubscriberCount(models.RequestTopic("D1")) == 1 })

	ctx := context.Background()
	if err := f.o.MarkPickingUp(ctx); !errors.Is(err, ErrBadPhase) {
		t.Fatalf("status advance while idle: %v", err)
	}

	f.inject(t, models.RequestTopic("D1"), models.RideEvent{Type: models.EventRideRequested, RideRequestID: "REQ-9", Origin: &originA, Destination: &destA})
	waitFor(t, func() bool { return f.o.PendingOffer() != nil })
	if err := f.o.AcceptIncoming(ctx); err != nil {
		t.Fatal(err)
	}
	f.inject(t, models.LifecycleTopic("D1"), models.RideEvent{Type: models.EventRideAccepted, RideID: "RIDE-9", CounterpartyID: "C9"})
	waitState(t, f.o, lifecycle.StateConfirmed)

	// the server's echo, not the local call, moves the machine
	if err := f.o.MarkPickingUp(ctx); err != nil {
		t.Fatal(err)
	}
	if s := f.o.CurrentState(); s != lifecycle.StateConfirmed {
		t.Fatalf("state moved to %s before the echo", s)
	}
	f.inject(t, models.LifecycleTopic("D1"), models.RideEvent{Type: models.EventRideStatusUpdate, Status: "PICKING_UP"})
	waitState(t, f.o, lifecycle.StatePickingUp)

	if err := f.o.AdvanceToPickedUp(ctx); err != nil {
		t.Fatal(err)
	}
	f.inject(t, models.LifecycleTopic("D1"), models.RideEvent{Type: models.EventRideStatusUpdate, Status: "ONGOING"})
	waitState(t, f.o, lifecycle.StateOngoing)

	if err := f.o.CompleteRide(ctx); err != nil {
		t.Fatal(err)
	}
	f.inject(t, models.LifecycleTopic("D1"), models.RideEvent{Type: models.EventRideStatusUpdate, Status: "FINISHED"})
	waitState(t, f.o, lifecycle.StateFinished)

	f.api.mu.Lock()
	calls := append([]string(nil), f.api.statusCalls...)
	f.api.mu.Unlock()
	want := []string{"RIDE-9:PICKING_UP", "RIDE-9:ONGOING", "RIDE-9:FINISHED"}
	if len(calls) != len(want) {
		t.Fatalf("status calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("status call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}
