// Package metrics exports protocol engine counters to Prometheus.
//
// A nil *Collector is valid and records nothing, so the engine calls its
// methods unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "amqp"

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	framesReceived   *prometheus.CounterVec
	framesSent       *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	transferBytes    *prometheus.HistogramVec
	creditStalls     *prometheus.CounterVec
	idleTimeouts     prometheus.Counter
	protocolErrors   *prometheus.CounterVec
	openConnections  prometheus.Gauge
	mappedSessions   prometheus.Gauge
	attachedLinks    *prometheus.GaugeVec
	unsettledPending *prometheus.GaugeVec
}

// New registers the engine instruments with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		framesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "frames_received_total",
			Help:      "Frames received by performative.",
		}, []string{"performative"}),
		framesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "frames_sent_total",
			Help:      "Frames sent by performative.",
		}, []string{"performative"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "deliveries_total",
			Help:      "Deliveries sent or received.",
		}, []string{"role"}),
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "settlements_total",
			Help:      "Deliveries settled by outcome.",
		}, []string{"role", "outcome"}),
		transferBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "message_bytes",
			Help:      "Size of delivered message payloads.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"role"}),
		creditStalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "credit_stalls_total",
			Help:      "Offers refused for lack of link credit or session window.",
		}, []string{"reason"}),
		idleTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "idle_timeouts_total",
			Help:      "Connections closed because the peer went silent.",
		}),
		protocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "errors_total",
			Help:      "Locally detected errors by scope.",
		}, []string{"scope"}),
		openConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "open",
			Help:      "Connections in the OPEN state.",
		}),
		mappedSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "mapped",
			Help:      "Sessions in the MAPPED state.",
		}),
		attachedLinks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "attached",
			Help:      "Links in the ATTACHED state.",
		}, []string{"role"}),
		unsettledPending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "unsettled",
			Help:      "Deliveries awaiting settlement.",
		}, []string{"role"}),
	}
}

func (c *Collector) FrameReceived(performative string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(performative).Inc()
}

func (c *Collector) FrameSent(performative string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(performative).Inc()
}

// Delivery records one complete message sent or received by a link of the
// given role.
func (c *Collector) Delivery(role string, size int) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(role).Inc()
	c.transferBytes.WithLabelValues(role).Observe(float64(size))
}

func (c *Collector) Settled(role, outcome string) {
	if c == nil {
		return
	}
	c.settlements.WithLabelValues(role, outcome).Inc()
}

// CreditStall records an offer refused for reason ("link-credit",
// "session-window" or "detached").
func (c *Collector) CreditStall(reason string) {
	if c == nil {
		return
	}
	c.creditStalls.WithLabelValues(reason).Inc()
}

func (c *Collector) IdleTimeout() {
	if c == nil {
		return
	}
	c.idleTimeouts.Inc()
}

// Error records a locally detected error at "connection", "session" or
// "link" scope.
func (c *Collector) Error(scope string) {
	if c == nil {
		return
	}
	c.protocolErrors.WithLabelValues(scope).Inc()
}

func (c *Collector) ConnOpened() {
	if c == nil {
		return
	}
	c.openConnections.Inc()
}

func (c *Collector) ConnClosed() {
	if c == nil {
		return
	}
	c.openConnections.Dec()
}

func (c *Collector) SessionMapped(delta float64) {
	if c == nil {
		return
	}
	c.mappedSessions.Add(delta)
}

func (c *Collector) LinkAttached(role string, delta float64) {
	if c == nil {
		return
	}
	c.attachedLinks.WithLabelValues(role).Add(delta)
}

func (c *Collector) Unsettled(role string, delta float64) {
	if c == nil {
		return
	}
	c.unsettledPending.WithLabelValues(role).Add(delta)
}
