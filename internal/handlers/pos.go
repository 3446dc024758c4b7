package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storeforge/api/internal/platform/auth"
	"github.com/storeforge/api/internal/platform/httpx"
	"github.com/storeforge/api/internal/services"
)

const maxPOSBodySize = 64 * 1024

// POSHandlers exposes the point-of-sale checkout endpoint for staff devices.
type POSHandlers struct {
	authn *auth.Authenticator
	pos   services.POSService
}

// NewPOSHandlers constructs a new POSHandlers instance.
func NewPOSHandlers(authn *auth.Authenticator, pos services.POSService) *POSHandlers {
	return &POSHandlers{
		authn: authn,
		pos:   pos,
	}
}

// Routes registers the /payments endpoints.
func (h *POSHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/pos", h.processSale)
}

type posSaleItemRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	Tax       int64   `json:"tax"`
}

type posSaleRequest struct {
	StoreID               string               `json:"store_id"`
	CustomerID            *string              `json:"customer_id"`
	Items                 []posSaleItemRequest `json:"items"`
	PaymentMethodID       string               `json:"payment_method_id"`
	AmountReceived        int64                `json:"amount_received"`
	Discount              int64                `json:"discount"`
	RequiresPayment       bool                 `json:"requires_payment"`
	UpdateInventory       bool                 `json:"update_inventory"`
	SendConfirmationEmail bool                 `json:"send_confirmation_email"`
	Notes                 string               `json:"notes"`
}

type posSaleResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Order   *posOrderResponse   `json:"order,omitempty"`
	Payment *posPaymentResponse `json:"payment,omitempty"`
	Errors  []string            `json:"errors,omitempty"`
}

type posOrderResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Subtotal    int64  `json:"subtotal"`
	Discount    int64  `json:"discount"`
	Tax         int64  `json:"tax"`
	GrandTotal  int64  `json:"grand_total"`
	CreatedAt   string `json:"created_at"`
}

type posPaymentResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Change        int64  `json:"change"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func (h *POSHandlers) processSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pos == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pos_service_unavailable", "pos service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req posSaleRequest
	body, err := readLimitedBody(r, maxPOSBodySize)
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

	items := make([]services.POSSaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.POSSaleItem{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: cloneStringPointer(item.VariantID),
			SKU:       strings.TrimSpace(item.SKU),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Tax:       item.Tax,
		})
	}

	result, err := h.pos.ProcessSale(ctx, services.POSSaleCommand{
		StoreID:               strings.TrimSpace(req.StoreID),
		StaffID:               strings.TrimSpace(identity.UID),
		CustomerID:            cloneStringPointer(req.CustomerID),
		Items:                 items,
		PaymentMethodID:       strings.TrimSpace(req.PaymentMethodID),
		AmountReceived:        req.AmountReceived,
		Discount:              req.Discount,
		RequiresPayment:       req.RequiresPayment,
		UpdateInventory:       req.UpdateInventory,
		SendConfirmationEmail: req.SendConfirmationEmail,
		Notes:                 req.Notes,
	})
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}

	// The sale result is 201 whether or not the sale itself went through; a
	// declined or failed sale is reported inside the payload so tills can
	// surface it without retry loops.
	writeJSONResponse(w, http.StatusCreated, buildPOSSaleResponse(result))
}

func buildPOSSaleResponse(result services.POSSaleResult) posSaleResponse {
	response := posSaleResponse{
		Success: result.Success,
		Message: strings.TrimSpace(result.Message),
		Errors:  result.Errors,
	}
	if result.Order != nil {
		response.Order = &posOrderResponse{
			ID:          strings.TrimSpace(result.Order.ID),
			OrderNumber: strings.TrimSpace(result.Order.OrderNumber),
			Status:      strings.TrimSpace(string(result.Order.Status)),
			Currency:    strings.ToUpper(strings.TrimSpace(result.Order.Currency)),
			Subtotal:    result.Order.Subtotal,
			Discount:    result.Order.Discount,
			Tax:         result.Order.Tax,
			GrandTotal:  result.Order.GrandTotal,
			CreatedAt:   formatTime(result.Order.CreatedAt),
		}
	}
	if result.Payment != nil {
		response.Payment = &posPaymentResponse{
			ID:            strings.TrimSpace(result.Payment.ID),
			Status:        strings.TrimSpace(string(result.Payment.Status)),
			Amount:        result.Payment.Amount,
			Change:        result.Payment.Change,
			TransactionID: strings.TrimSpace(result.Payment.TransactionID),
		}
	}
	return response
}

func writePOSError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPOSInvalidInput), errors.Is(err, services.ErrAccessInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPOSNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("store_not_found", "store not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPOSConflict):
		httpx.WriteError(ctx, w, httpx.NewError("pos_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAccessForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "store access denied", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pos_error", "failed to process sale", http.StatusInternalServerError))
	}
}
