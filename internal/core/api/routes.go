package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Mux returns the /v1 API routes. Health and metrics endpoints are mounted
// by the server outside the authentication boundary.
func (s *Service) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/v1/documents", s.instrument("/v1/documents", http.HandlerFunc(s.handleDocuments)))
	mux.Handle("/v1/rules", s.instrument("/v1/rules", http.HandlerFunc(s.handleRules)))
	mux.Handle("/v1/rules/", s.instrument("/v1/rules/{id}", http.HandlerFunc(s.handleRule)))
	mux.Handle("/v1/decisions", s.instrument("/v1/decisions", http.HandlerFunc(s.handleDecisions)))
	return mux
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument samples the request duration histogram per route. The route
// label is the registration pattern, never the raw path, which keeps
// metric cardinality bounded.
func (s *Service) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(route, rec.status, time.Since(start))
	})
}

// HealthHandler handles health check requests for liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
