// Package notify maps lifecycle changes onto user-facing notifications.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
)

type Kind string

const (
	KindAssignment    Kind = "assignment"
	KindStatus        Kind = "status"
	KindRetryOrCancel Kind = "retry_or_cancel"
	KindCancellation  Kind = "cancellation"
	KindBookingFailed Kind = "booking_failed"
)

// Notification is one user-facing modal. At most one is visible at a time.
type Notification struct {
	ID        string
	Kind      Kind
	Title     string
	Body      string
	Profile   *models.CounterpartyProfile // set for assignment notices
	Actor     string                      // set for cancellation notices
	CreatedAt time.Time
}

// Dispatcher holds the single notification slot. A new notification replaces
// the slot rather than queuing. Cancellation notices auto-dismiss after a
// fixed delay and then invoke the teardown callback.
type Dispatcher struct {
	mu           sync.Mutex
	current      *Notification
	dismissAfter time.Duration
	timer        *time.Timer
	onDismissed  func(Notification)
}

func NewDispatcher(dismissAfter time.Duration, onDismissed func(Notification)) *Dispatcher {
	if dismissAfter <= 0 {
		dismissAfter = 5 * time.Second
	}
	return &Dispatcher{dismissAfter: dismissAfter, onDismissed: onDismissed}
}

// Show replaces the slot. Any pending auto-dismiss for the previous
// notification is cancelled first.
func (d *Dispatcher) Show(n Notification) {
	n.ID = uuid.New().String()
	n.CreatedAt = time.Now()

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.current = &n
	if n.Kind == KindCancellation {
		id := n.ID
		d.timer = time.AfterFunc(d.dismissAfter, func() { d.autoDismiss(id) })
	}
	d.mu.Unlock()

	observability.NotificationsShown.WithLabelValues(string(n.Kind)).Inc()
}

func (d *Dispatcher) autoDismiss(id string) {
	d.mu.Lock()
	if d.current == nil || d.current.ID != id {
		d.mu.Unlock()
		return
	}
	n := *d.current
	d.current = nil
	d.timer = nil
	cb := d.onDismissed
	d.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

// Current returns the visible notification, or nil.
func (d *Dispatcher) Current() *Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	n := *d.current
	return &n
}

// Dismiss clears the slot without invoking the dismissal callback.
func (d *Dispatcher) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.current = nil
}

// StatusNotice builds the fixed title/body pair for a lifecycle status.
func StatusNotice(status string) Notification {
	n := Notification{Kind: KindStatus}
	switch status {
	case "PICKING_UP":
		n.Title, n.Body = "Driver on the way", "Your driver is heading to the pickup point."
	case "ONGOING":
		n.Title, n.Body = "Trip started", "You are on your way."
	case "FINISHED":
		n.Title, n.Body = "Trip finished", "You have arrived. Thanks for riding."
	default:
		n.Title, n.Body = "Ride update", "Your ride status changed to "+status+"."
	}
	return n
}
