package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/benvon/smaug/internal/logger"
)

const healthCheckTimeout = 5 * time.Second

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks  map[string]Check
	version string
}

// NewHealthChecker creates a health checker over named dependency checks.
func NewHealthChecker(version string, checks map[string]Check) *HealthChecker {
	return &HealthChecker{checks: checks, version: version}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles /healthz. With ?mode=extended every dependency is
// checked and any failure answers 503.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = h.runChecks(r.Context())
		for _, result := range response.Checks {
			if result != "healthy" {
				response.Status = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}
	}

	respondJSON(w, status, response)
}

func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := h.checks[name](checkCtx)
		cancel()
		if err != nil {
			results[name] = "unhealthy: " + logger.SanitizeError(err)
			continue
		}
		results[name] = "healthy"
	}
	return results
}
