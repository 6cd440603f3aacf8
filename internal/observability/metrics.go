package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushReconnects = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "push_reconnects_total", Help: "Push channel reconnect attempts"})
	PushMessages   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "push_messages_received_total", Help: "Push messages received across all topics"})
	PushDropped    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "push_messages_dropped_total", Help: "Push messages dropped due to slow subscribers"})

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "state_transitions_total", Help: "Applied ride state transitions"},
		[]string{"from", "to"},
	)
	StaleEvents = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "stale_events_total", Help: "Events that matched no edge from the current state"})

	RouteRecomputes       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "route_recomputes_total", Help: "Routing recompute calls issued"})
	RouteRecomputeFailed  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "route_recompute_failures_total", Help: "Routing recompute calls that failed"})
	PositionPublishes     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "position_publishes_total", Help: "Own-position samples published"})
	PositionJournalErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "position_journal_errors_total", Help: "Failed writes to the position journal"})

	NotificationsShown = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "notifications_shown_total", Help: "User-facing notifications shown"},
		[]string{"kind"},
	)
)
