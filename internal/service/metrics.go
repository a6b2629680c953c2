package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "checkout",
		Name:      "checkouts_total",
		Help:      "Total number of checkout attempts by result.",
	}, []string{"result"})

	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "checkout",
		Name:      "orders_created_total",
		Help:      "Total number of orders created by checkout.",
	})

	outOfStockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "inventory",
		Name:      "out_of_stock_total",
		Help:      "Total number of reservations rejected for insufficient stock.",
	})

	authorizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "payment",
		Name:      "authorizations_total",
		Help:      "Total number of payment authorizations by charge mode.",
	}, []string{"mode"})

	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "payment",
		Name:      "settlements_total",
		Help:      "Total number of settlement calls by result.",
	}, []string{"result"})

	refundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "payment",
		Name:      "refunds_total",
		Help:      "Total number of refunds issued on cancellation.",
	})

	captureRefunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "payment",
		Name:      "capture_refunds_total",
		Help:      "Total number of captures refunded by settlement because the order was cancelled or already paid.",
	}, []string{"reason"})

	authorizationReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "payment",
		Name:      "authorization_releases_total",
		Help:      "Total number of abandoned authorizations cancelled at the processor by result.",
	}, []string{"result"})

	dispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "notify",
		Name:      "dispatch_failures_total",
		Help:      "Total number of post-commit dispatch failures.",
	})
)
