package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method, path and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// OrdersTotal counts order operations by action and resource kind.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_orders_total",
			Help: "Total number of order operations by action",
		},
		[]string{"action", "kind"},
	)

	// MatchesTotal counts executed fills.
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_matches_total",
			Help: "Total number of fills by resource kind",
		},
		[]string{"kind"},
	)

	// TradeVolume accumulates traded quantity per resource kind.
	TradeVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_trade_volume_units",
			Help: "Total traded quantity by resource kind",
		},
		[]string{"kind"},
	)

	// TradeConsideration accumulates UFOS moved by fills.
	TradeConsideration = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_trade_consideration_ufos",
			Help: "Total consideration paid by resource kind",
		},
		[]string{"kind"},
	)

	// LockContention counts failed lock acquisitions.
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_lock_contention_total",
			Help: "Failed resource lock acquisitions",
		},
		[]string{"kind"},
	)

	// TxRetries counts ledger transaction re-executions after serialization
	// failures.
	TxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_tx_retries_total",
			Help: "Ledger transactions retried after write conflicts",
		},
	)
)
