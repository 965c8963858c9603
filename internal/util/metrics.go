package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_started_total",
		Help: "Total number of settlement attempts started",
	})

	SettlementsReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_reserved_total",
		Help: "Total number of settlement attempts that committed their stock reservation",
	})

	SettlementsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_approved_total",
		Help: "Total number of settlements finalized as approved",
	})

	SettlementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_failed_total",
		Help: "Total number of failed settlement attempts",
	}, []string{"reason"})

	SettlementsManualCheckTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_manual_check_total",
		Help: "Total number of settlements escalated to manual check",
	})

	CompensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_compensation_failures_total",
		Help: "Total number of compensations that could not complete",
	})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock ledger reservations",
		Buckets: prometheus.DefBuckets,
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	GatewayAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_attempts_total",
		Help: "Total number of gateway confirm attempts",
	}, []string{"provider", "outcome"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_confirm_latency_seconds",
		Help:    "Latency of a single gateway confirm attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
