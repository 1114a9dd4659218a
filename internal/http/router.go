package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bess-analytics/internal/metrics"
)

// Routes defines HTTP endpoints.
type Routes struct {
	Process        http.Handler
	Upload         http.Handler
	Anomalies      http.Handler
	BatteryMetrics http.Handler
	Status         http.Handler
	Health         http.Handler
	Stream         http.HandlerFunc
}

// NewRouter sets up HTTP routing with Prometheus instrumentation on the API
// endpoints.
func NewRouter(routes Routes) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	if routes.Process != nil {
		api.Handle("/process", instrument("process", routes.Process)).Methods(http.MethodPost)
	}
	if routes.Upload != nil {
		api.Handle("/process/upload", instrument("upload", routes.Upload)).Methods(http.MethodPost)
	}
	if routes.Anomalies != nil {
		api.Handle("/anomalies/detect", instrument("anomalies", routes.Anomalies)).Methods(http.MethodPost)
	}
	if routes.BatteryMetrics != nil {
		api.Handle("/metrics/{battery_id}", instrument("battery_metrics", routes.BatteryMetrics)).Methods(http.MethodGet)
	}
	if routes.Status != nil {
		api.Handle("/status", instrument("status", routes.Status)).Methods(http.MethodGet)
	}

	if routes.Health != nil {
		r.Handle("/health", routes.Health).Methods(http.MethodGet)
	}
	if routes.Stream != nil {
		r.HandleFunc("/ws", routes.Stream).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(endpoint, r.Method).Observe(time.Since(start).Seconds())
	})
}
