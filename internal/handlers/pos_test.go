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

func posRouter(pos services.POSService) chi.Router {
	r := chi.NewRouter()
	NewPOSHandlers(nil, pos).Routes(r)
	return r
}

func postPOSSale(t *testing.T, router chi.Router, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pos", strings.NewReader(body))
	if uid != "" {
		req = requestWithIdentity(req, uid)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

const posSaleBody = `{
	"store_id": "store_01",
	"items": [{"product_id":"prod_1","sku":"SKU-1","name":"Mug","quantity":2,"unit_price":1500,"tax":300}],
	"payment_method_id": "pm_cash",
	"amount_received": 4000,
	"requires_payment": true,
	"update_inventory": true
}`

func TestProcessSaleReturns201OnSuccess(t *testing.T) {
	var captured services.POSSaleCommand
	pos := &stubPOSService{
		processSale: func(ctx context.Context, cmd services.POSSaleCommand) (services.POSSaleResult, error) {
			captured = cmd
			return services.POSSaleResult{
				Success: true,
				Order: &services.POSOrderSummary{
					ID:          "ord_01",
					OrderNumber: "SF-2026-0042",
					Status:      domain.OrderStatusProcessing,
					Currency:    "usd",
					Subtotal:    3000,
					Tax:         300,
					GrandTotal:  3300,
					CreatedAt:   handlerTestNow,
				},
				Payment: &services.POSPaymentSummary{
					ID:     "pay_01",
					Status: domain.PaymentStatusSucceeded,
					Amount: 3300,
					Change: 700,
				},
			}, nil
		},
	}

	rr := postPOSSale(t, posRouter(pos), "staff_7", posSaleBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.StoreID != "store_01" || captured.StaffID != "staff_7" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if !captured.RequiresPayment || !captured.UpdateInventory {
		t.Fatalf("expected flags carried, got %+v", captured)
	}

	var body posSaleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !body.Success {
		t.Fatalf("expected success payload, got %+v", body)
	}
	if body.Order == nil || body.Order.OrderNumber != "SF-2026-0042" || body.Order.Currency != "USD" {
		t.Fatalf("unexpected order payload %+v", body.Order)
	}
	if body.Payment == nil || body.Payment.Change != 700 {
		t.Fatalf("unexpected payment payload %+v", body.Payment)
	}
}

func TestProcessSaleReturns201OnSwallowedFailure(t *testing.T) {
	pos := &stubPOSService{
		processSale: func(ctx context.Context, cmd services.POSSaleCommand) (services.POSSaleResult, error) {
			return services.POSSaleResult{
				Success: false,
				Message: "sale could not be completed",
				Errors:  []string{"stock: insufficient stock for SKU-1"},
			}, nil
		},
	}

	rr := postPOSSale(t, posRouter(pos), "staff_7", posSaleBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	var body posSaleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.Success {
		t.Fatalf("expected failure payload, got %+v", body)
	}
	if len(body.Errors) != 1 || !strings.Contains(body.Errors[0], "insufficient") {
		t.Fatalf("expected error details, got %v", body.Errors)
	}
}

func TestProcessSaleMapsValidationErrors(t *testing.T) {
	pos := &stubPOSService{
		processSale: func(ctx context.Context, cmd services.POSSaleCommand) (services.POSSaleResult, error) {
			return services.POSSaleResult{}, fmt.Errorf("%w: sale requires at least one item", services.ErrPOSInvalidInput)
		},
	}

	rr := postPOSSale(t, posRouter(pos), "staff_7", `{"store_id":"store_01","items":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestProcessSaleMapsForbidden(t *testing.T) {
	pos := &stubPOSService{
		processSale: func(ctx context.Context, cmd services.POSSaleCommand) (services.POSSaleResult, error) {
			return services.POSSaleResult{}, fmt.Errorf("%w: staff not assigned", services.ErrAccessForbidden)
		},
	}

	rr := postPOSSale(t, posRouter(pos), "staff_7", posSaleBody)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestProcessSaleRejectsUnauthenticated(t *testing.T) {
	rr := postPOSSale(t, posRouter(&stubPOSService{}), "", posSaleBody)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestProcessSaleRejectsMalformedJSON(t *testing.T) {
	rr := postPOSSale(t, posRouter(&stubPOSService{}), "staff_7", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
