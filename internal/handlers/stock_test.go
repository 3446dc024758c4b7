package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/services"
)

func stockRouter(stock services.StockService) chi.Router {
	r := chi.NewRouter()
	NewStockHandlers(nil, stock).Routes(r)
	return r
}

func stockRequest(t *testing.T, router chi.Router, method, target, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if uid != "" {
		req = requestWithIdentity(req, uid)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetStockLevel(t *testing.T) {
	stock := &stubStockService{
		getLevel: func(ctx context.Context, locationID, sku string) (services.StockLevel, error) {
			if locationID != "loc_01" || sku != "SKU-1" {
				t.Fatalf("unexpected lookup %q %q", locationID, sku)
			}
			return services.StockLevel{
				LocationID: "loc_01",
				SKU:        "SKU-1",
				OnHand:     10,
				Reserved:   3,
				UpdatedAt:  handlerTestNow,
			}, nil
		},
	}

	rr := stockRequest(t, stockRouter(stock), http.MethodGet, "/levels/loc_01/SKU-1", "staff_7", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body stockLevelPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.OnHand != 10 || body.Available != 7 {
		t.Fatalf("unexpected level %+v", body)
	}
}

func TestGetStockLevelMapsNotFound(t *testing.T) {
	stock := &stubStockService{
		getLevel: func(ctx context.Context, locationID, sku string) (services.StockLevel, error) {
			return services.StockLevel{}, fmt.Errorf("%w: no level", services.ErrStockNotFound)
		},
	}

	rr := stockRequest(t, stockRouter(stock), http.MethodGet, "/levels/loc_01/SKU-404", "staff_7", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdjustStockBuildsCommand(t *testing.T) {
	var captured services.StockAdjustCommand
	stock := &stubStockService{
		adjust: func(ctx context.Context, cmd services.StockAdjustCommand) ([]services.StockLevel, error) {
			captured = cmd
			return []services.StockLevel{{LocationID: "loc_01", SKU: "SKU-1", OnHand: 8}}, nil
		},
	}

	body := `{"lines":[{"location_id":"loc_01","product_id":"prod_1","sku":"SKU-1","delta":-2}],"reason":"cycle_count"}`
	rr := stockRequest(t, stockRouter(stock), http.MethodPost, "/adjustments", "staff_7", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(captured.Lines) != 1 || captured.Lines[0].Delta != -2 {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}
	if captured.Reason != "cycle_count" || captured.ActorID != "staff_7" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var response stockAdjustResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(response.Levels) != 1 || response.Levels[0].OnHand != 8 {
		t.Fatalf("unexpected levels %+v", response.Levels)
	}
}

func TestAdjustStockMapsValidationErrors(t *testing.T) {
	stock := &stubStockService{
		adjust: func(ctx context.Context, cmd services.StockAdjustCommand) ([]services.StockLevel, error) {
			return nil, fmt.Errorf("%w: adjustment requires at least one line", services.ErrStockInvalidInput)
		},
	}

	rr := stockRequest(t, stockRouter(stock), http.MethodPost, "/adjustments", "staff_7", `{"reason":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListMovementsBuildsFilter(t *testing.T) {
	var captured services.StockMovementFilter
	orderID := "ord_01"
	stock := &stubStockService{
		listMovements: func(ctx context.Context, filter services.StockMovementFilter) (domain.CursorPage[services.StockMovement], error) {
			captured = filter
			return domain.CursorPage[services.StockMovement]{
				Items: []services.StockMovement{
					{ID: "mov_01", LocationID: "loc_01", SKU: "SKU-1", Delta: -2, Reason: "pos_sale", OrderID: &orderID, CreatedAt: handlerTestNow},
				},
			}, nil
		},
	}

	rr := stockRequest(t, stockRouter(stock), http.MethodGet, "/movements?location_id=loc_01&sku=SKU-1&page_size=10", "staff_7", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.LocationID != "loc_01" || captured.SKU != "SKU-1" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}

	var body stockMovementListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Reason != "pos_sale" {
		t.Fatalf("unexpected items %+v", body.Items)
	}
	if body.Items[0].OrderID == nil || *body.Items[0].OrderID != "ord_01" {
		t.Fatalf("expected order reference, got %+v", body.Items[0].OrderID)
	}
}

func TestStockRejectsUnauthenticated(t *testing.T) {
	rr := stockRequest(t, stockRouter(&stubStockService{}), http.MethodGet, "/movements", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
