package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/platform/auth"
	"github.com/storeforge/api/internal/platform/httpx"
	"github.com/storeforge/api/internal/platform/pagination"
	"github.com/storeforge/api/internal/services"
)

const (
	defaultMovementPageSize = 50
	maxMovementPageSize     = 200
	maxStockBodySize        = 32 * 1024
)

// StockHandlers exposes stock level reads and manual adjustments for staff.
type StockHandlers struct {
	authn *auth.Authenticator
	stock services.StockService
}

// NewStockHandlers constructs a new StockHandlers instance.
func NewStockHandlers(authn *auth.Authenticator, stock services.StockService) *StockHandlers {
	return &StockHandlers{
		authn: authn,
		stock: stock,
	}
}

// Routes registers the /stock endpoints.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/levels/{locationID}/{sku}", h.getLevel)
	r.Get("/movements", h.listMovements)
	r.Post("/adjustments", h.adjust)
}

type stockLevelPayload struct {
	LocationID string `json:"location_id"`
	ProductID  string `json:"product_id,omitempty"`
	SKU        string `json:"sku"`
	OnHand     int64  `json:"on_hand"`
	Reserved   int64  `json:"reserved"`
	Available  int64  `json:"available"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type stockMovementPayload struct {
	ID         string  `json:"id"`
	LocationID string  `json:"location_id"`
	ProductID  string  `json:"product_id,omitempty"`
	SKU        string  `json:"sku"`
	Delta      int64   `json:"delta"`
	Reason     string  `json:"reason"`
	OrderID    *string `json:"order_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type stockMovementListResponse struct {
	Items         []stockMovementPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type stockAdjustLineRequest struct {
	LocationID string `json:"location_id"`
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Delta      int64  `json:"delta"`
}

type stockAdjustRequest struct {
	Lines   []stockAdjustLineRequest `json:"lines"`
	Reason  string                   `json:"reason"`
	OrderID *string                  `json:"order_id"`
}

type stockAdjustResponse struct {
	Levels []stockLevelPayload `json:"levels"`
}

func (h *StockHandlers) getLevel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireStaff(ctx, w); !ok {
		return
	}

	locationID := strings.TrimSpace(chi.URLParam(r, "locationID"))
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))

	level, err := h.stock.GetLevel(ctx, locationID, sku)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockLevelPayload(level))
}

func (h *StockHandlers) listMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireStaff(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pageParams, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultMovementPageSize,
		MaxPageSize:     maxMovementPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.StockMovementFilter{
		LocationID: strings.TrimSpace(query.Get("location_id")),
		SKU:        strings.TrimSpace(query.Get("sku")),
		OrderID:    strings.TrimSpace(query.Get("order_id")),
		Pagination: domain.Pagination{
			PageSize:  pageParams.PageSize,
			PageToken: pageParams.PageToken,
		},
	}

	page, err := h.stock.ListMovements(ctx, filter)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]stockMovementPayload, 0, len(page.Items))
	for _, movement := range page.Items {
		items = append(items, stockMovementPayload{
			ID:         strings.TrimSpace(movement.ID),
			LocationID: strings.TrimSpace(movement.LocationID),
			ProductID:  strings.TrimSpace(movement.ProductID),
			SKU:        strings.TrimSpace(movement.SKU),
			Delta:      movement.Delta,
			Reason:     strings.TrimSpace(movement.Reason),
			OrderID:    cloneStringPointer(movement.OrderID),
			CreatedAt:  formatTime(movement.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, stockMovementListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *StockHandlers) adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}

	var req stockAdjustRequest
	body, err := readLimitedBody(r, maxStockBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	lines := make([]services.StockAdjustLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.StockAdjustLine{
			LocationID: strings.TrimSpace(line.LocationID),
			ProductID:  strings.TrimSpace(line.ProductID),
			SKU:        strings.TrimSpace(line.SKU),
			Delta:      line.Delta,
		})
	}

	levels, err := h.stock.Adjust(ctx, services.StockAdjustCommand{
		Lines:   lines,
		Reason:  strings.TrimSpace(req.Reason),
		OrderID: cloneStringPointer(req.OrderID),
		ActorID: staffID,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	payload := stockAdjustResponse{Levels: make([]stockLevelPayload, 0, len(levels))}
	for _, level := range levels {
		payload.Levels = append(payload.Levels, buildStockLevelPayload(level))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StockHandlers) requireStaff(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func buildStockLevelPayload(level services.StockLevel) stockLevelPayload {
	return stockLevelPayload{
		LocationID: strings.TrimSpace(level.LocationID),
		ProductID:  strings.TrimSpace(level.ProductID),
		SKU:        strings.TrimSpace(level.SKU),
		OnHand:     level.OnHand,
		Reserved:   level.Reserved,
		Available:  level.Available(),
		UpdatedAt:  formatTime(level.UpdatedAt),
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock level not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to process stock request", http.StatusInternalServerError))
	}
}
