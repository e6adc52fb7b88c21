package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/dosewatch/pkg/metrics"
)

const (
	endpointHealth = "healthz"
	endpointStats  = "stats"
)

// Error classes recorded on dosewatch_engine_http_errors_total.
const (
	errDependencyDown    = "dependency_down"
	errEngineUnavailable = "engine_unavailable"
	errServer            = "server_error"
	errNotFound          = "not_found"
	errMethodNotAllowed  = "method_not_allowed"
	errClient            = "client_error"
)

// MetricsMiddleware records request count, latency and failures for one
// endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Milliseconds()))

		if rec.status >= http.StatusBadRequest {
			kind, severity := classify(endpoint, rec.status)
			metrics.RecordHTTPError(endpoint, r.Method, kind, severity)
		}
	}
}

// classify maps a failed response to an error class and severity. A 503
// from /healthz means postgres or redis is down, which stalls alerting.
func classify(endpoint string, status int) (kind, severity string) {
	switch {
	case status == http.StatusServiceUnavailable && endpoint == endpointHealth:
		return errDependencyDown, "critical"
	case status == http.StatusServiceUnavailable:
		return errEngineUnavailable, "high"
	case status >= http.StatusInternalServerError:
		return errServer, "high"
	case status == http.StatusNotFound:
		return errNotFound, "low"
	case status == http.StatusMethodNotAllowed:
		return errMethodNotAllowed, "low"
	default:
		return errClient, "medium"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
