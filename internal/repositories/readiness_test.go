package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

func TestReadinessCollectSuccess(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	readiness, err := NewReadiness([]DependencyCheck{
		{Name: "firestore", Check: func(ctx context.Context) error {
			select {
			case <-time.After(5 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		{Name: "notifications", Check: func(context.Context) error { return nil }},
	}, WithProbeClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewReadiness: %v", err)
	}

	report, err := readiness.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK || len(report.Checks) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK || !check.CheckedAt.Equal(now) {
			t.Fatalf("unexpected check %s: %+v", name, check)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestReadinessCollectFailure(t *testing.T) {
	boom := errors.New("boom")
	readiness, err := NewReadiness([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return boom }},
		{Name: "notifications", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewReadiness: %v", err)
	}

	report, _ := readiness.Collect(context.Background())
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if check := report.Checks["firestore"]; check.Status != domain.HealthStatusDegraded || check.Error != boom.Error() {
		t.Fatalf("unexpected firestore check %+v", check)
	}
}

func TestReadinessCollectTimeout(t *testing.T) {
	readiness, err := NewReadiness([]DependencyCheck{
		{Name: "firestore", Timeout: 5 * time.Millisecond, Check: func(ctx context.Context) error {
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	})
	if err != nil {
		t.Fatalf("NewReadiness: %v", err)
	}

	report, _ := readiness.Collect(context.Background())
	check := report.Checks["firestore"]
	if report.Status != domain.HealthStatusError || check.Detail != "timeout" {
		t.Fatalf("expected timeout error, got %+v", report)
	}
}

func TestNewReadinessRejectsInvalidChecks(t *testing.T) {
	if _, err := NewReadiness(nil); err == nil {
		t.Fatalf("expected empty check set to fail")
	}
	if _, err := NewReadiness([]DependencyCheck{{Name: "firestore"}}); err == nil {
		t.Fatalf("expected missing check function to fail")
	}
	if _, err := NewReadiness([]DependencyCheck{{Check: func(context.Context) error { return nil }}}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
}
