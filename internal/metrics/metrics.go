package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		},
	)

	PaymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "QR payment sessions handed to the gateway",
		},
		[]string{"mode", "result"}, // ok|gateway_unavailable
	)

	Callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_callbacks_total",
			Help: "Gateway callbacks and polls by outcome",
		},
		[]string{"source", "outcome"}, // callback|poll ; completed|failed|duplicate|not_found|error
	)

	LedgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries written",
		},
		[]string{"direction"},
	)

	LedgerDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_duplicate_postings_total",
			Help: "Credit or debit calls answered from an existing entry",
		},
	)

	Activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charging_activations_total",
			Help: "Charging activation attempts",
		},
		[]string{"result"}, // started|connector_unavailable|error
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qr_sessions_expired_total",
			Help: "Sessions moved to expired by the sweeper",
		},
	)

	Withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal requests by resulting status",
		},
		[]string{"status"},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			InFlight,
			PaymentsInitiated,
			Callbacks,
			LedgerEntries,
			LedgerDuplicates,
			Activations,
			SessionsExpired,
			Withdrawals,
			WorkerQueueDepth,
		)
	})
}
