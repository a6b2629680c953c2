package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "marketplace",
	Subsystem: "notify",
	Name:      "dispatch_total",
	Help:      "Total number of dispatch outcomes by result.",
}, []string{"result"})
