package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/storeforge/api/internal/services"
)

type jobsStubSystemService struct {
	nextCounter func(ctx context.Context, cmd services.CounterCommand) (int64, error)
}

func (s *jobsStubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return services.SystemHealthReport{}, nil
}

func (s *jobsStubSystemService) NextCounterValue(ctx context.Context, cmd services.CounterCommand) (int64, error) {
	if s.nextCounter != nil {
		return s.nextCounter(ctx, cmd)
	}
	return 0, nil
}

func internalJobsRouter(flow services.OrderFlowService, system services.SystemService) chi.Router {
	r := chi.NewRouter()
	NewInternalJobHandlers(flow, system).Routes(r)
	return r
}

func TestAutoFinishJobReportsCount(t *testing.T) {
	flow := &stubOrderFlowService{
		autoFinish: func(ctx context.Context) (int, error) {
			return 7, nil
		},
	}
	router := internalJobsRouter(flow, &jobsStubSystemService{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/auto-finish", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["finished"] != 7 {
		t.Fatalf("expected 7 finished orders, got %v", body)
	}
}

func TestAutoFinishJobMapsFailure(t *testing.T) {
	flow := &stubOrderFlowService{
		autoFinish: func(ctx context.Context) (int, error) {
			return 0, errors.New("repository unavailable")
		},
	}
	router := internalJobsRouter(flow, &jobsStubSystemService{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/auto-finish", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestNextCounterValueEndpoint(t *testing.T) {
	system := &jobsStubSystemService{
		nextCounter: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			if cmd.CounterID != "orders_store_01_2026" {
				t.Fatalf("unexpected counter id %q", cmd.CounterID)
			}
			return 43, nil
		},
	}
	router := internalJobsRouter(&stubOrderFlowService{}, system)

	req := httptest.NewRequest(http.MethodPost, "/counters/next", strings.NewReader(`{"counter_id":"orders_store_01_2026"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["value"] != 43 {
		t.Fatalf("expected value 43, got %v", body)
	}
}

func TestNextCounterValueValidation(t *testing.T) {
	system := &jobsStubSystemService{
		nextCounter: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			return 0, fmt.Errorf("%w: counter id is required", services.ErrCounterInvalidInput)
		},
	}
	router := internalJobsRouter(&stubOrderFlowService{}, system)

	req := httptest.NewRequest(http.MethodPost, "/counters/next", strings.NewReader(`{"counter_id":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
