package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

type stubReadiness struct {
	report domain.SystemHealthReport
	err    error
}

func (s stubReadiness) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != domain.HealthStatusOK || body["uptime"] != "30s" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["version"] != "1.0.0" || body["commitSha"] != "abc123" || body["environment"] != "prod" {
		t.Fatalf("unexpected build info %v", body)
	}
}

func TestHealthHandlersReadyz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	cases := []struct {
		name    string
		report  domain.SystemHealthReport
		status  int
		details []string
	}{
		{
			name: "ok",
			report: domain.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				GeneratedAt: now,
				Checks:      map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond}},
			},
			status:  http.StatusOK,
			details: []string{},
		},
		{
			name: "degraded",
			report: domain.SystemHealthReport{
				Status:      domain.HealthStatusDegraded,
				GeneratedAt: now,
				Checks:      map[string]domain.SystemHealthCheck{"notifications": {Status: domain.HealthStatusDegraded, Error: "topic missing"}},
			},
			status:  http.StatusServiceUnavailable,
			details: []string{"notifications: topic missing"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handlers := NewHealthHandlers(WithHealthReadiness(stubReadiness{report: tc.report}))
			rr := httptest.NewRecorder()
			handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			var body struct {
				Status  string   `json:"status"`
				Details []string `json:"details"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body.Status != tc.report.Status || len(body.Details) != len(tc.details) {
				t.Fatalf("unexpected body %s", rr.Body.String())
			}
			for i := range tc.details {
				if body.Details[i] != tc.details[i] {
					t.Fatalf("expected details %v, got %v", tc.details, body.Details)
				}
			}
		})
	}
}
