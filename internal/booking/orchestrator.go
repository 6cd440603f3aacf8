// Package booking hosts the orchestrator that keeps one client consistent
// with its in-flight ride: it owns the session, drives the state machine,
// and executes the machine's declared side effects against the push channel,
// the routing debouncer, the position publisher and the notifier.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-sync/internal/config"
	"github.com/example/ride-sync/internal/geo"
	"github.com/example/ride-sync/internal/lifecycle"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/notify"
	"github.com/example/ride-sync/internal/observability"
	"github.com/example/ride-sync/internal/publisher"
	"github.com/example/ride-sync/internal/push"
	"github.com/example/ride-sync/internal/routing"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Topic subscriptions are tracked per concern: at most one live handle per
// concern at any time.
type concern string

const (
	concernLifecycle concern = "lifecycle"
	concernPositions concern = "positions"
	concernRequests  concern = "requests" // driver side, lives across rides
)

// DispatchReplyDestination is where driver accept/reject replies are
// published.
const DispatchReplyDestination = "dispatch:replies"

// DispatchReply is the driver's answer to an incoming ride request.
type DispatchReply struct {
	RideRequestID string `json:"ride_request_id"`
	DriverID      string `json:"driver_id"`
	Accepted      bool   `json:"accepted"`
}

// Options wires one orchestrator instance. Channel and Sampler are the
// process-wide singletons owned by the caller; the orchestrator only borrows
// them.
type Options struct {
	Role    Role
	ActorID string
	Config  config.ClientConfig
	Log     *slog.Logger
	Channel push.Channel
	API     API
	Routes  routing.Service
	Sampler geo.Sampler
	Journal publisher.Journal // optional kafka mirror of published positions
}

// Orchestrator is the single writer of the ride session, counterparty
// position and route snapshot. All mutation happens on its internal event
// loop; external methods hand work to the loop and wait where a synchronous
// answer is needed.
type Orchestrator struct {
	role    Role
	actorID string
	cfg     config.ClientConfig
	log     *slog.Logger

	channel push.Channel
	api     API

	notifier *notify.Dispatcher
	debounce *routing.Debouncer
	pub      *publisher.Publisher

	actions chan func()
	quit    chan struct{}
	wg      sync.WaitGroup
	started bool
	closed  bool
	mu      sync.Mutex // guards started / closed transitions only

	// loop-owned state; never touched off the loop
	state        lifecycle.State
	session      *models.RideSession
	counterparty *models.CounterpartyPosition
	route        *models.RouteSnapshot
	subs         map[concern]*push.Subscription
	settleTimer  *time.Timer
	pendingOffer *models.RideEvent
	submitting   bool
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		role:    opts.Role,
		actorID: opts.ActorID,
		cfg:     opts.Config,
		log:     opts.Log,
		channel: opts.Channel,
		api:     opts.API,
		actions: make(chan func(), 64),
		quit:    make(chan struct{}),
		state:   lifecycle.StateIdle,
		subs:    make(map[concern]*push.Subscription),
	}
	o.notifier = notify.NewDispatcher(opts.Config.NoticeDismissDelay, o.onNoticeDismissed)
	o.debounce = routing.NewDebouncer(opts.Routes, opts.Config.RouteQuietInterval, opts.Config.RouteMinMoveMeters, opts.Log, o.onRoute)
	o.pub = &publisher.Publisher{
		ActorID:     opts.ActorID,
		Destination: models.PositionTopic(opts.ActorID),
		Sampler:     opts.Sampler,
		Sender:      opts.Channel,
		Journal:     opts.Journal,
		MinMeters:   opts.Config.PublishMinMeters,
		MinInterval: opts.Config.PublishMinInterval,
		Fallback:    opts.Config.PublishFallback,
		Log:         opts.Log,
	}
	return o
}

// Start launches the event loop. Drivers also subscribe to their incoming
// request topic, which outlives individual rides.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run()
	if o.role == RoleDriver {
		o.post(func() { o.subscribeConcern(concernRequests, models.RequestTopic(o.actorID)) })
	}
}

// Close tears everything down: timers cancelled, publisher stopped,
// subscriptions released, loop drained. Idempotent, and a no-op unless
// Start ran.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if !o.started || o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	done := make(chan struct{})
	if !o.post(func() {
		o.execute(lifecycle.CancelSettle{})
		o.debounce.Cancel()
		o.pub.Stop()
		for c := range o.subs {
			o.unsubscribeConcern(c)
		}
		o.notifier.Dismiss()
		close(done)
	}) {
		return
	}
	<-done
	close(o.quit)
	o.wg.Wait()
}

func (o *Orchestrator) run() {
	defer o.wg.Done()
	for {
		select {
		case fn := <-o.actions:
			fn()
		case <-o.quit:
			return
		}
	}
}

// post hands fn to the loop; returns false once the loop is gone.
func (o *Orchestrator) post(fn func()) bool {
	select {
	case <-o.quit:
		return false
	default:
	}
	select {
	case o.actions <- fn:
		return true
	case <-o.quit:
		return false
	}
}

// call runs fn on the loop and waits for it. Returns without running fn if
// the loop shut down first.
func (o *Orchestrator) call(fn func()) {
	done := make(chan struct{})
	if !o.post(func() { fn(); close(done) }) {
		return
	}
	select {
	case <-done:
	case <-o.quit:
	}
}

func (o *Orchestrator) callErr(fn func() error) error {
	var err error
	o.call(func() { err = fn() })
	return err
}

// ---- external surface ----

// BookingRequest is the user's booking submission.
type BookingRequest struct {
	Origin       models.Coord
	Destination  models.Coord
	VehicleClass string
	FareEstimate float64
}

func (o *Orchestrator) validate(req BookingRequest) error {
	if req.Origin.Zero() {
		return ErrMissingOrigin
	}
	if req.Destination.Zero() {
		return ErrMissingDestination
	}
	if !geo.ValidLatitude(req.Origin.Lat) || !geo.ValidLongitude(req.Origin.Lon) ||
		!geo.ValidLatitude(req.Destination.Lat) || !geo.ValidLongitude(req.Destination.Lon) {
		return ErrInvalidCoordinates
	}
	d := geo.Haversine(req.Origin.Lat, req.Origin.Lon, req.Destination.Lat, req.Destination.Lon)
	if d < o.cfg.MinTripMeters {
		return fmt.Errorf("%w: %.0fm", ErrTripTooShort, d)
	}
	return nil
}

// SubmitBooking validates locally, submits to the booking API and moves the
// session to pending. Validation failures surface synchronously before any
// network call.
func (o *Orchestrator) SubmitBooking(ctx context.Context, req BookingRequest) (string, error) {
	if err := o.validate(req); err != nil {
		return "", err
	}
	if err := o.callErr(func() error {
		if o.state != lifecycle.StateIdle || o.submitting {
			return ErrRideInProgress
		}
		o.submitting = true
		return nil
	}); err != nil {
		return "", err
	}

	reqID, err := o.api.CreateRide(ctx, CreateRideRequest{
		RiderID:      o.actorID,
		Origin:       req.Origin,
		Destination:  req.Destination,
		VehicleClass: req.VehicleClass,
		FareEstimate: req.FareEstimate,
	})
	if err != nil {
		o.call(func() { o.submitting = false })
		o.notifier.Show(notify.Notification{
			Kind:  notify.KindBookingFailed,
			Title: "Booking failed",
			Body:  "We could not submit your booking. Please try again.",
		})
		return "", fmt.Errorf("booking submission: %w", err)
	}

	o.call(func() {
		o.submitting = false
		o.session = &models.RideSession{
			RideRequestID: reqID,
			Origin:        req.Origin,
			Destination:   req.Destination,
			VehicleClass:  req.VehicleClass,
			FareEstimate:  req.FareEstimate,
			CreatedAt:     time.Now(),
		}
		o.apply(lifecycle.BookingAccepted{RideRequestID: reqID})
	})
	return reqID, nil
}

// CancelBooking cancels the pending request or the active ride, depending on
// phase. Cancelling an ongoing ride is rejected with a specific reason.
func (o *Orchestrator) CancelBooking(ctx context.Context) error {
	var mode lifecycle.CancelMode
	var sess models.RideSession
	if err := o.callErr(func() error {
		m, err := lifecycle.CancelIntent(o.state)
		if err != nil {
			return err
		}
		if o.session == nil {
			return lifecycle.ErrNoActiveRide
		}
		mode, sess = m, *o.session
		return nil
	}); err != nil {
		return err
	}

	switch mode {
	case lifecycle.CancelPendingRequest:
		if err := o.api.CancelPendingRequest(ctx, sess.RideRequestID); err != nil {
			return fmt.Errorf("cancel pending request: %w", err)
		}
	case lifecycle.CancelActiveRide:
		if err := o.api.CancelActiveRide(ctx, sess.RideID, o.actorID, string(o.role)); err != nil {
			return fmt.Errorf("cancel active ride: %w", err)
		}
	}

	o.call(func() { o.apply(lifecycle.CancelRequested{ActorID: o.actorID}) })
	return nil
}

// AcceptIncoming answers the pending incoming request (driver side). The
// confirmation push event completes the handshake.
func (o *Orchestrator) AcceptIncoming(ctx context.Context) error {
	var offer models.RideEvent
	if err := o.callErr(func() error {
		if o.pendingOffer == nil {
			return ErrNoIncomingRequest
		}
		if o.state != lifecycle.StateIdle {
			return ErrRideInProgress
		}
		offer = *o.pendingOffer
		return nil
	}); err != nil {
		return err
	}

	reply := DispatchReply{RideRequestID: offer.RideRequestID, DriverID: o.actorID, Accepted: true}
	if err := o.channel.Publish(DispatchReplyDestination, reply); err != nil {
		return fmt.Errorf("accept reply: %w", err)
	}

	o.call(func() {
		o.pendingOffer = nil
		sess := &models.RideSession{RideRequestID: offer.RideRequestID, CreatedAt: time.Now()}
		if offer.Origin != nil {
			sess.Origin = *offer.Origin
		}
		if offer.Destination != nil {
			sess.Destination = *offer.Destination
		}
		o.session = sess
		o.apply(lifecycle.BookingAccepted{RideRequestID: offer.RideRequestID})
	})
	return nil
}

// RejectIncoming declines the pending incoming request.
func (o *Orchestrator) RejectIncoming(ctx context.Context) error {
	var offer models.RideEvent
	if err := o.callErr(func() error {
		if o.pendingOffer == nil {
			return ErrNoIncomingRequest
		}
		offer = *o.pendingOffer
		o.pendingOffer = nil
		return nil
	}); err != nil {
		return err
	}
	reply := DispatchReply{RideRequestID: offer.RideRequestID, DriverID: o.actorID, Accepted: false}
	if err := o.channel.Publish(DispatchReplyDestination, reply); err != nil {
		return fmt.Errorf("reject reply: %w", err)
	}
	return nil
}

// MarkPickingUp tells the server the driver is en route to the pickup point.
func (o *Orchestrator) MarkPickingUp(ctx context.Context) error {
	return o.advanceStatus(ctx, lifecycle.StateConfirmed, lifecycle.StatePickingUp)
}

// AdvanceToPickedUp tells the server the passenger is on board.
func (o *Orchestrator) AdvanceToPickedUp(ctx context.Context) error {
	return o.advanceStatus(ctx, lifecycle.StatePickingUp, lifecycle.StateOngoing)
}

// CompleteRide tells the server the trip is done.
func (o *Orchestrator) CompleteRide(ctx context.Context) error {
	return o.advanceStatus(ctx, lifecycle.StateOngoing, lifecycle.StateFinished)
}

// advanceStatus issues the status mutation; the push echo of the mutation is
// what actually moves the local machine.
func (o *Orchestrator) advanceStatus(ctx context.Context, from, to lifecycle.State) error {
	var rideID string
	if err := o.callErr(func() error {
		if o.state != from || o.session == nil || o.session.RideID == "" {
			return fmt.Errorf("%w: %s -> %s", ErrBadPhase, o.state, to)
		}
		rideID = o.session.RideID
		return nil
	}); err != nil {
		return err
	}
	if _, err := o.api.SetRideStatus(ctx, rideID, string(to)); err != nil {
		return fmt.Errorf("set ride status %s: %w", to, err)
	}
	return nil
}

// Reset tears the session down immediately, skipping the settle delay.
func (o *Orchestrator) Reset() {
	o.call(func() {
		o.apply(lifecycle.ResetRequested{})
		o.notifier.Dismiss()
	})
}

// ---- read accessors ----

func (o *Orchestrator) CurrentState() lifecycle.State {
	var s lifecycle.State
	o.call(func() { s = o.state })
	return s
}

func (o *Orchestrator) CurrentSession() *models.RideSession {
	var s *models.RideSession
	o.call(func() {
		if o.session != nil {
			cp := *o.session
			s = &cp
		}
	})
	return s
}

func (o *Orchestrator) CurrentRoute() *models.RouteSnapshot {
	var r *models.RouteSnapshot
	o.call(func() {
		if o.route != nil {
			cp := *o.route
			r = &cp
		}
	})
	return r
}

func (o *Orchestrator) CurrentCounterparty() *models.CounterpartyPosition {
	var p *models.CounterpartyPosition
	o.call(func() {
		if o.counterparty != nil {
			cp := *o.counterparty
			p = &cp
		}
	})
	return p
}

func (o *Orchestrator) CurrentNotification() *notify.Notification {
	return o.notifier.Current()
}

// PendingOffer returns the incoming request awaiting accept/reject, if any.
func (o *Orchestrator) PendingOffer() *models.RideEvent {
	var ev *models.RideEvent
	o.call(func() {
		if o.pendingOffer != nil {
			cp := *o.pendingOffer
			ev = &cp
		}
	})
	return ev
}

// ---- event application ----

func (o *Orchestrator) apply(ev lifecycle.Event) bool {
	res := lifecycle.Transition(o.state, ev)
	if !res.Applied {
		observability.StaleEvents.Inc()
		o.log.Info("stale event ignored", "state", o.state, "event", ev.Name())
		return false
	}
	observability.StateTransitions.WithLabelValues(string(o.state), string(res.Next)).Inc()
	o.log.Info("ride state transition", "from", o.state, "to", res.Next, "event", ev.Name())
	o.state = res.Next
	for _, eff := range res.Effects {
		o.execute(eff)
	}
	return true
}

func (o *Orchestrator) execute(eff lifecycle.Effect) {
	switch e := eff.(type) {
	case lifecycle.SubscribeLifecycle:
		o.subscribeConcern(concernLifecycle, models.LifecycleTopic(o.actorID))
	case lifecycle.SubscribePositions:
		o.subscribeConcern(concernPositions, models.PositionTopic(e.CounterpartyID))
	case lifecycle.UnsubscribePositions:
		o.unsubscribeConcern(concernPositions)
	case lifecycle.UnsubscribeAll:
		o.unsubscribeConcern(concernPositions)
		o.unsubscribeConcern(concernLifecycle)
	case lifecycle.StartPublisher:
		o.pub.Start()
	case lifecycle.StopPublisher:
		o.pub.Stop()
	case lifecycle.CancelRecompute:
		o.debounce.Cancel()
	case lifecycle.ShowAssignment:
		n := notify.Notification{
			Kind:    notify.KindAssignment,
			Title:   "Driver assigned",
			Body:    "Your driver is confirmed and on the way.",
			Profile: e.Profile,
		}
		if o.role == RoleDriver {
			n.Title, n.Body = "Ride confirmed", "Head to the pickup point."
		}
		o.notifier.Show(n)
	case lifecycle.ShowStatus:
		o.notifier.Show(notify.StatusNotice(string(e.Status)))
	case lifecycle.ShowRetryOrCancel:
		o.notifier.Show(notify.Notification{
			Kind:  notify.KindRetryOrCancel,
			Title: "No driver available",
			Body:  "All drivers are busy right now. Retry or cancel?",
		})
	case lifecycle.ShowCancellation:
		body := "The ride was cancelled by the other party."
		if e.Actor == o.actorID {
			body = "You cancelled the ride."
		}
		o.notifier.Show(notify.Notification{
			Kind:  notify.KindCancellation,
			Title: "Ride cancelled",
			Body:  body,
			Actor: e.Actor,
		})
	case lifecycle.ScheduleSettle:
		o.scheduleSettle()
	case lifecycle.CancelSettle:
		if o.settleTimer != nil {
			o.settleTimer.Stop()
			o.settleTimer = nil
		}
	case lifecycle.ClearSession:
		o.session = nil
		o.counterparty = nil
		o.route = nil
		o.pub.Stop()
		o.debounce.Cancel()
	}
}

func (o *Orchestrator) scheduleSettle() {
	if o.settleTimer != nil {
		o.settleTimer.Stop()
	}
	o.settleTimer = time.AfterFunc(o.cfg.SettleDelay, func() {
		o.post(func() {
			o.settleTimer = nil
			o.apply(lifecycle.SettleElapsed{})
		})
	})
}

// ---- subscriptions ----

// subscribeConcern replaces any live handle for the concern, so duplicate
// delivery is impossible by construction.
func (o *Orchestrator) subscribeConcern(c concern, topic string) {
	o.unsubscribeConcern(c)
	sub, err := o.channel.Subscribe(topic)
	if err != nil {
		o.log.Error("subscribe failed", "concern", string(c), "topic", topic, "error", err)
		return
	}
	o.subs[c] = sub
	o.wg.Add(1)
	go o.forward(c, sub)
}

func (o *Orchestrator) unsubscribeConcern(c concern) {
	if sub := o.subs[c]; sub != nil {
		delete(o.subs, c)
		o.channel.Unsubscribe(sub)
	}
}

// forward pumps one subscription into the loop. The loop re-checks that the
// handle is still current before processing, so a message already in flight
// when the handle is released can never touch a torn-down session.
func (o *Orchestrator) forward(c concern, sub *push.Subscription) {
	defer o.wg.Done()
	for {
		select {
		case <-sub.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			o.post(func() {
				if o.subs[c] != sub {
					return
				}
				o.handleMessage(c, msg)
			})
		}
	}
}

func (o *Orchestrator) handleMessage(c concern, msg push.Message) {
	switch c {
	case concernLifecycle:
		var ev models.RideEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			o.log.Warn("bad lifecycle payload", "topic", msg.Topic, "error", err)
			return
		}
		o.handleRideEvent(ev)
	case concernPositions:
		var ev models.PositionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			o.log.Warn("bad position payload", "topic", msg.Topic, "error", err)
			return
		}
		o.handlePosition(ev)
	case concernRequests:
		var ev models.RideEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			o.log.Warn("bad request payload", "topic", msg.Topic, "error", err)
			return
		}
		if ev.Type != models.EventRideRequested {
			return
		}
		o.pendingOffer = &ev
		o.notifier.Show(notify.Notification{
			Kind:  notify.KindStatus,
			Title: "Incoming ride request",
			Body:  "A rider nearby is requesting a pickup.",
		})
	}
}

func (o *Orchestrator) handleRideEvent(ev models.RideEvent) {
	switch ev.Type {
	case models.EventRideAccepted:
		// an assignment for some other request cannot touch this session
		if o.session != nil && ev.RideRequestID != "" && ev.RideRequestID != o.session.RideRequestID {
			observability.StaleEvents.Inc()
			o.log.Info("assignment for a different request ignored",
				"ride_request_id", ev.RideRequestID, "ride_id", ev.RideID)
			return
		}
		applied := o.apply(lifecycle.CounterpartyAssigned{
			RideID:         ev.RideID,
			CounterpartyID: ev.CounterpartyID,
			Profile:        ev.Profile,
		})
		if applied && o.session != nil {
			o.session.RideID = ev.RideID
			o.session.CounterpartyID = ev.CounterpartyID
		}
	case models.EventNoDriver:
		o.apply(lifecycle.NoCounterparty{})
	case models.EventRideStatusUpdate:
		s := lifecycle.State(ev.Status)
		if !s.Valid() {
			o.log.Warn("unknown ride status", "status", ev.Status)
			return
		}
		o.apply(lifecycle.StatusUpdated{Status: s})
	case models.EventRideCancelled:
		o.apply(lifecycle.CancelledRemotely{ActorID: ev.ActorID, ActorRole: ev.ActorRole})
	default:
		o.log.Warn("unknown lifecycle event", "type", ev.Type)
	}
}

func (o *Orchestrator) handlePosition(ev models.PositionEvent) {
	o.counterparty = &models.CounterpartyPosition{
		CounterpartyID: ev.CounterpartyID,
		Lat:            ev.Lat,
		Lon:            ev.Lon,
		Timestamp:      ev.Timestamp,
	}
	if o.session == nil || !o.state.Active() {
		return
	}
	o.debounce.Observe(models.Coord{Lat: ev.Lat, Lon: ev.Lon}, o.routeTarget())
}

// routeTarget is the pickup point until the trip starts, the destination
// afterwards.
func (o *Orchestrator) routeTarget() models.Coord {
	if o.state == lifecycle.StateOngoing {
		return o.session.Destination
	}
	return o.session.Origin
}

// onRoute is called from the debouncer's worker goroutine.
func (o *Orchestrator) onRoute(snap models.RouteSnapshot) {
	o.post(func() {
		if o.session == nil {
			return
		}
		o.route = &snap
	})
}

// onNoticeDismissed runs after a cancellation notice auto-dismisses; it
// finishes the teardown without waiting out the settle delay.
func (o *Orchestrator) onNoticeDismissed(n notify.Notification) {
	if n.Kind != notify.KindCancellation {
		return
	}
	o.post(func() {
		if o.state == lifecycle.StateCancelled {
			o.apply(lifecycle.SettleElapsed{})
		}
	})
}
