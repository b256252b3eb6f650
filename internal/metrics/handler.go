package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ordinalkernel/tradekernel/internal/config"
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthHandler reports process liveness with version and timestamp.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   config.Version,
		})
	}
}

// RegisterHandlers mounts the scrape and health endpoints on mux.
func RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
}
