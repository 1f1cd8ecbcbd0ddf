package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck is one readiness probe, typically a Firestore read or a Pub/Sub topic lookup.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// ReadinessOption customises a Readiness.
type ReadinessOption func(*Readiness)

// WithProbeTimeout overrides the timeout used by checks that do not set their own.
func WithProbeTimeout(timeout time.Duration) ReadinessOption {
	return func(r *Readiness) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func WithProbeClock(clock func() time.Time) ReadinessOption {
	return func(r *Readiness) {
		if clock != nil {
			r.now = clock
		}
	}
}

// Readiness runs dependency checks concurrently and aggregates them into a report.
type Readiness struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

// NewReadiness validates the check set. At least one check is required.
func NewReadiness(checks []DependencyCheck, opts ...ReadinessOption) (*Readiness, error) {
	if len(checks) == 0 {
		return nil, errors.New("readiness: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("readiness: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("readiness: dependency %s missing check function", check.Name)
		}
	}
	r := &Readiness{
		checks:  append([]DependencyCheck(nil), checks...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Collect probes every dependency. A timeout or cancellation marks the report as error; any
// other failure marks it as degraded.
func (r *Readiness) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	results := make(map[string]domain.SystemHealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range r.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			result := r.probe(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			status = domain.HealthStatusError
		case domain.HealthStatusDegraded:
			if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		}
	}
	return domain.SystemHealthReport{Status: status, Checks: results, GeneratedAt: r.now()}, nil
}

func (r *Readiness) probe(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	if err == nil && checkCtx.Err() != nil {
		err = checkCtx.Err()
	}
	end := r.now()

	result := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status, result.Detail, result.Error = domain.HealthStatusError, "timeout", err.Error()
	case errors.Is(err, context.Canceled):
		result.Status, result.Detail, result.Error = domain.HealthStatusError, "cancelled", err.Error()
	default:
		result.Status, result.Detail, result.Error = domain.HealthStatusDegraded, err.Error(), err.Error()
	}
	return result
}
