package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler for the default
// registry, where all signalengine_ series live.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterHandlers mounts the scrape endpoint on mux
func RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", Handler())
}
