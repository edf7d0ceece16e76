// Package metrics defines the custom Prometheus metrics of the portal. It is
// the single source of truth for metric names, labels and help strings.
//
// Metrics are registered with the default registry on package init through
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Session metrics ───────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Labels:
//   - method: "password" or "oauth"
//   - result: "success", "denied", "claims_sync_failed", "rate_limited" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts by method and result.",
	},
	[]string{"method", "result"},
)

// RateLimitedTotal counts requests rejected by a rate limiter.
// Label:
//   - route: the route template that was limited
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected with 429.",
	},
	[]string{"route"},
)

// ── Case metrics ──────────────────────────────────────────────────────────────

// CasesCreatedTotal counts newly opened cases.
// Label:
//   - role: facet role of the creator, "client" or "vendor"
var CasesCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cases_created_total",
		Help:      "Total number of cases created, by creator role.",
	},
	[]string{"role"},
)

// CaseTransitionsTotal counts applied status transitions.
// Labels:
//   - from, to: the status pair
var CaseTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "case_transitions_total",
		Help:      "Total number of case status transitions applied.",
	},
	[]string{"from", "to"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsTotal counts notifications by outcome.
// Labels:
//   - type: notification type (e.g. "case.transitioned")
//   - result: "delivered", "failed" or "dropped"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notifications, by type and outcome.",
	},
	[]string{"type", "result"},
)

// NotificationQueueDepth tracks pending notifications per worker channel.
// Label:
//   - worker_id: numeric worker index
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of notifications pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// NotificationDeliveryDuration measures how long one delivery takes.
var NotificationDeliveryDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_delivery_duration_seconds",
		Help:      "Duration of a single notification delivery.",
		Buckets:   prometheus.DefBuckets,
	},
)
