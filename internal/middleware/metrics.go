package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute метка для запросов мимо роутера, чтобы сканеры не раздували кардинальность.
const unmatchedRoute = "unmatched"

var (
	httpInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marketplace",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests by area.",
	}, []string{"area"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by area, route and status class.",
	}, []string{"area", "method", "route", "code"})

	// checkout и вебхуки ждут платёжный процессор, отсюда длинный хвост
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketplace",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latencies in seconds by area and route.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"area", "method", "route"})

	paymentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "http",
		Name:      "payment_requests_total",
		Help:      "Requests that reach the payment processor by route and outcome.",
	}, []string{"route", "outcome"})
)

// paymentRoutes маршруты, где ответ зависит от платёжного процессора.
var paymentRoutes = map[string]bool{
	"/checkout/":         true,
	"/checkout/pay":      true,
	"/checkout/confirm":  true,
	"/webhooks/payments": true,
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		area := routeArea(r.URL.Path)
		httpInFlight.WithLabelValues(area).Inc()
		defer httpInFlight.WithLabelValues(area).Dec()

		start := time.Now()
		rw := wrapResponseWriter(w)

		next.ServeHTTP(rw, r)

		route := unmatchedRoute
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(area, r.Method, route, statusClass(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(area, r.Method, route).Observe(time.Since(start).Seconds())
		if paymentRoutes[route] {
			paymentRequests.WithLabelValues(route, paymentOutcome(rw.status)).Inc()
		}
	})
}

// routeArea группирует маршруты по первому сегменту пути.
func routeArea(path string) string {
	segment, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	switch segment {
	case "cart", "checkout", "orders", "webhooks":
		return segment
	case "shops", "notifications":
		return "notifications"
	case "health", "swagger", "metrics":
		return "system"
	}
	return "other"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}

// paymentOutcome сводит статус ответа к исходу платёжной операции.
func paymentOutcome(status int) string {
	switch {
	case status < 400:
		return "ok"
	case status == http.StatusPaymentRequired:
		return "declined"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return "unavailable"
	case status >= 500:
		return "error"
	}
	return "rejected"
}
