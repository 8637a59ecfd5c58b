// internal/member/metrics.go
package member

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tongbuying_http_requests_total",
		Help: "HTTP requests handled, by route pattern and status code.",
	}, []string{"route", "code"})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tongbuying_persist_failures_total",
		Help: "Failed attempts to persist the member collection.",
	})
)
