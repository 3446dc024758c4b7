package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/storeforge/api/internal/domain"
)

type stubHealthRepo struct {
	collect func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepo) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collect != nil {
		return s.collect(ctx)
	}
	return domain.SystemHealthReport{}, nil
}

func TestHealthReportFillsBuildMetadata(t *testing.T) {
	now := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	started := now.Add(-90 * time.Minute)

	repo := &stubHealthRepo{
		collect: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Counters:         &stubCounterRepo{},
		Clock:            fixedClock(now),
		Build: BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc123",
			Environment: "production",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc123" {
		t.Fatalf("expected build metadata, got %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("expected uptime 90m, got %v", report.Uptime)
	}
}

func TestHealthReportDerivesDegradedStatus(t *testing.T) {
	repo := &stubHealthRepo{
		collect: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusDegraded},
				},
			}, nil
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %q", report.Status)
	}
}

func TestNextCounterValueValidatesInput(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepo{},
		Counters:         &stubCounterRepo{},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	if _, err := svc.NextCounterValue(context.Background(), CounterCommand{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected ErrCounterInvalidInput, got %v", err)
	}
	if _, err := svc.NextCounterValue(context.Background(), CounterCommand{CounterID: "orders", Step: -2}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected ErrCounterInvalidInput for negative step, got %v", err)
	}

	value, err := svc.NextCounterValue(context.Background(), CounterCommand{CounterID: "orders"})
	if err != nil {
		t.Fatalf("NextCounterValue: %v", err)
	}
	if value != 1 {
		t.Fatalf("expected counter value 1, got %d", value)
	}
}
