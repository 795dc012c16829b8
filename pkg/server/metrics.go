package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the process's default Prometheus registry, which
// observer.Metrics registers its collectors against.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
