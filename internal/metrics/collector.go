package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "sendie"
	subsystem = "signaling"
)

// Label names used across the signaling metrics.
const (
	labelPolicy = "policy"
	labelMethod = "method"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Signaling Metrics
// -------------------------------------------------------------------------

// Collector holds every Prometheus metric exported by sendied.
//
//   - Session and peer gauges track the live registry state.
//   - Rate limit and hub counters flag abuse and churn for alerting.
//   - Allow-list gauge tracks the size of the access-control set.
type Collector struct {
	// SessionsActive tracks the number of sessions currently held in the registry.
	SessionsActive prometheus.Gauge

	// PeersActive tracks the number of connected peers across all sessions.
	PeersActive prometheus.Gauge

	// ConnectedPairs tracks the number of established peer-to-peer links
	// currently reported across all sessions.
	ConnectedPairs prometheus.Gauge

	// HubConnections tracks the number of live WebSocket connections held
	// open by the signaling hub.
	HubConnections prometheus.Gauge

	// AllowListSize tracks the number of user IDs currently allow-listed,
	// admins included.
	AllowListSize prometheus.Gauge

	// RateLimitDenials counts requests rejected by the rate limiter, labeled
	// by policy.
	RateLimitDenials *prometheus.CounterVec

	// HubMessagesTotal counts inbound hub messages accepted for dispatch,
	// labeled by method.
	HubMessagesTotal *prometheus.CounterVec

	// SessionsCreatedTotal counts sessions created since process start.
	SessionsCreatedTotal prometheus.Counter

	// SessionsExpiredTotal counts sessions reaped by the TTL sweeper,
	// labeled by reason (ttl, absolute_max).
	SessionsExpiredTotal *prometheus.CounterVec
}

// NewCollector creates a Collector with every metric registered against the
// provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics use the "sendie_signaling_" prefix (namespace_subsystem) to
// avoid collisions with other exporters sharing the same process.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsActive,
		c.PeersActive,
		c.ConnectedPairs,
		c.HubConnections,
		c.AllowListSize,
		c.RateLimitDenials,
		c.HubMessagesTotal,
		c.SessionsCreatedTotal,
		c.SessionsExpiredTotal,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	return &Collector{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_active",
			Help:      "Number of sessions currently held in the registry.",
		}),

		PeersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers_active",
			Help:      "Number of connected peers across all sessions.",
		}),

		ConnectedPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected_pairs",
			Help:      "Number of established peer-to-peer links reported across all sessions.",
		}),

		HubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hub_connections",
			Help:      "Number of live WebSocket connections held open by the signaling hub.",
		}),

		AllowListSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "allow_list_size",
			Help:      "Number of user IDs currently allow-listed, admins included.",
		}),

		RateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limit_denials_total",
			Help:      "Total requests rejected by the rate limiter, by policy.",
		}, []string{labelPolicy}),

		HubMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hub_messages_total",
			Help:      "Total inbound hub messages accepted for dispatch, by method.",
		}, []string{labelMethod}),

		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_created_total",
			Help:      "Total sessions created since process start.",
		}),

		SessionsExpiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_expired_total",
			Help:      "Total sessions reaped by the TTL sweeper, by reason.",
		}, []string{"reason"}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RecordSessionCreated increments the active session gauge and the
// lifetime creation counter. Called by the registry on Create.
func (c *Collector) RecordSessionCreated() {
	c.SessionsActive.Inc()
	c.SessionsCreatedTotal.Inc()
}

// RecordSessionExpired decrements the active session gauge and increments
// the expiry counter for the given reason. Called by the registry sweeper.
func (c *Collector) RecordSessionExpired(reason string) {
	c.SessionsActive.Dec()
	c.SessionsExpiredTotal.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// Peers
// -------------------------------------------------------------------------

// RecordPeerJoined increments the active peers gauge. Called when a peer
// is added to a session.
func (c *Collector) RecordPeerJoined() {
	c.PeersActive.Inc()
}

// RecordPeerLeft decrements the active peers gauge. Called when a peer is
// removed from a session.
func (c *Collector) RecordPeerLeft() {
	c.PeersActive.Dec()
}

// SetConnectedPairs sets the connected-pairs gauge to the given total.
func (c *Collector) SetConnectedPairs(n float64) {
	c.ConnectedPairs.Set(n)
}

// -------------------------------------------------------------------------
// Hub
// -------------------------------------------------------------------------

// RecordHubConnect increments the hub connections gauge.
func (c *Collector) RecordHubConnect() {
	c.HubConnections.Inc()
}

// RecordHubDisconnect decrements the hub connections gauge.
func (c *Collector) RecordHubDisconnect() {
	c.HubConnections.Dec()
}

// RecordHubMessage increments the per-method hub message counter.
func (c *Collector) RecordHubMessage(method string) {
	c.HubMessagesTotal.WithLabelValues(method).Inc()
}

// -------------------------------------------------------------------------
// Rate Limiting & Allow-List
// -------------------------------------------------------------------------

// RecordRateLimitDenial increments the per-policy denial counter.
func (c *Collector) RecordRateLimitDenial(policy string) {
	c.RateLimitDenials.WithLabelValues(policy).Inc()
}

// SetAllowListSize sets the allow-list size gauge to the given total.
func (c *Collector) SetAllowListSize(n float64) {
	c.AllowListSize.Set(n)
}
