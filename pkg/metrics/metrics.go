package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InboundMessages counts application messages delivered by the engine, by kind
var InboundMessages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixgate_inbound_messages_total",
		Help: "Total number of inbound application messages handled, by message kind",
	},
	[]string{"kind"},
)

// CommandsSent counts outbound requests handed to the engine, by command kind
var CommandsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixgate_commands_sent_total",
		Help: "Total number of outbound commands handed to the protocol engine",
	},
	[]string{"kind"},
)

// RoutingFailures counts commands dropped because no session held the role
var RoutingFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixgate_routing_failures_total",
		Help: "Commands not sent because no logged-on session holds the required role",
	},
	[]string{"kind"},
)

// InconsistentTransitions counts inbound reports discarded as backward moves
var InconsistentTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixgate_inconsistent_transitions_total",
		Help: "Inbound reports discarded because they would move state backward",
	},
	[]string{"entity"},
)

// HandlerFailures counts event handlers that returned an error or panicked
var HandlerFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixgate_event_handler_failures_total",
		Help: "Event handler invocations that failed",
	},
	[]string{"event"},
)

// Correlation id bookkeeping
var (
	OutstandingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fixgate_outstanding_requests",
			Help: "Number of correlation ids awaiting a response",
		},
	)

	CorrelationCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fixgate_correlation_id_collisions_total",
			Help: "Correlation ids reissued while a request holding them was still outstanding",
		},
	)
)

// SessionsLoggedOn tracks logged-on sessions per role
var SessionsLoggedOn = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fixgate_sessions_logged_on",
		Help: "Number of logged-on sessions holding each role",
	},
	[]string{"role"},
)

func init() {
	prometheus.MustRegister(InboundMessages, CommandsSent, RoutingFailures)
	prometheus.MustRegister(InconsistentTransitions, HandlerFailures)
	prometheus.MustRegister(OutstandingRequests, CorrelationCollisions, SessionsLoggedOn)
}
