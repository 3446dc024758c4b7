package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storeforge/api/internal/platform/httpx"
	"github.com/storeforge/api/internal/services"
)

const maxInternalJobBodySize = 8 * 1024

// InternalJobHandlers exposes operational endpoints invoked by Cloud
// Scheduler and other trusted internal callers.
type InternalJobHandlers struct {
	flow   services.OrderFlowService
	system services.SystemService
}

// NewInternalJobHandlers constructs a new InternalJobHandlers instance.
func NewInternalJobHandlers(flow services.OrderFlowService, system services.SystemService) *InternalJobHandlers {
	return &InternalJobHandlers{
		flow:   flow,
		system: system,
	}
}

// Routes registers the /internal endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/auto-finish", h.autoFinishDelivered)
	r.Post("/counters/next", h.nextCounterValue)
}

func (h *InternalJobHandlers) autoFinishDelivered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.flow == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	finished, err := h.flow.AutoFinishDelivered(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("job_failed", "auto-finish sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"finished": finished})
}

type nextCounterRequest struct {
	CounterID string `json:"counter_id"`
	Step      int64  `json:"step"`
}

func (h *InternalJobHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req nextCounterRequest
	body, err := readLimitedBody(r, maxInternalJobBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: strings.TrimSpace(req.CounterID),
		Step:      req.Step,
	})
	if err != nil {
		writeInternalJobError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int64{"value": value})
}

func writeInternalJobError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCounterInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process internal request", http.StatusInternalServerError))
	}
}
