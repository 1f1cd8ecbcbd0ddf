package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/platform/httpx"
)

// ReadinessReporter probes the dependencies required to serve traffic.
type ReadinessReporter interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	readiness ReadinessReporter
	build     BuildInfo
	clock     func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

func WithHealthReadiness(r ReadinessReporter) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = r
	}
}

func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// Readyz probes dependencies and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": domain.HealthStatusOK})
		return
	}
	report, err := h.readiness.Collect(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("unavailable", "readiness check failed", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":    check.Status,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
			details = append(details, name+": "+check.Error)
		}
		checks[name] = entry
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, map[string]any{
		"status":      report.Status,
		"checks":      checks,
		"details":     details,
		"generatedAt": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
