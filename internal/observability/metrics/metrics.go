// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by route, method and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authkit",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authkit",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// LoginsTotal counts authentication outcomes by strategy.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authkit",
		Name:      "logins_total",
		Help:      "Authentication attempts by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	// SessionsEvicted counts token pairs removed by the concurrency policy.
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authkit",
		Name:      "sessions_evicted_total",
		Help:      "Sessions evicted by the concurrency policy before issuance.",
	})

	// StrategyActive reports each strategy's activation state (1 active,
	// 0 inactive or error).
	StrategyActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "authkit",
		Name:      "strategy_active",
		Help:      "Whether a strategy is currently active.",
	}, []string{"strategy"})

	// ConfigReloads counts registry rebuild cycles.
	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authkit",
		Name:      "config_reloads_total",
		Help:      "Strategy-registry rebuild cycles triggered by config events.",
	})
)
