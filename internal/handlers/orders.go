package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/platform/auth"
	"github.com/storeforge/api/internal/platform/httpx"
	"github.com/storeforge/api/internal/platform/pagination"
	"github.com/storeforge/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderFlowBodySize = 16 * 1024
)

// OrderFlowHandlers exposes order lifecycle endpoints for authenticated staff.
type OrderFlowHandlers struct {
	authn  *auth.Authenticator
	flow   services.OrderFlowService
	access services.AccessService
}

// NewOrderFlowHandlers constructs a new OrderFlowHandlers instance.
func NewOrderFlowHandlers(authn *auth.Authenticator, flow services.OrderFlowService, access services.AccessService) *OrderFlowHandlers {
	return &OrderFlowHandlers{
		authn:  authn,
		flow:   flow,
		access: access,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderFlowHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/transitions", h.listTransitions)
	r.Post("/{orderID}:pay", h.payOrder)
	r.Post("/{orderID}:confirm-payment", h.confirmPayment)
	r.Post("/{orderID}:ship", h.shipOrder)
	r.Post("/{orderID}:deliver", h.deliverOrder)
	r.Post("/{orderID}:confirm-delivery", h.confirmDelivery)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:refund", h.refundOrder)
}

func (h *OrderFlowHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	storeID := strings.TrimSpace(query.Get("store_id"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store_id is required", http.StatusBadRequest))
		return
	}
	if _, err := h.access.AuthorizeStore(ctx, staffID, storeID); err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}

	statusFilters := parseFilterValues(query["status"])

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	pageParams, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		StoreID:    storeID,
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		Status:     statusFilters,
		DateRange:  dateRange,
		Pagination: domain.Pagination{
			PageSize:  pageParams.PageSize,
			PageToken: pageParams.PageToken,
		},
	}

	page, err := h.flow.ListOrders(ctx, filter)
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderFlowHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	record, err := h.flow.GetOrder(ctx, orderID, services.OrderReadOptions{
		IncludePayments: true,
		IncludeRefunds:  true,
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	if !h.authorizeOrderAccess(ctx, w, staffID, record.Order) {
		return
	}

	payload := orderResponse{Order: buildOrderPayload(record.Order)}
	payload.Order.Payments = buildPaymentPayloads(record.Payments)
	payload.Order.Refunds = buildRefundPayloads(record.Refunds)
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderFlowHandlers) listTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	transitions, err := h.flow.ValidTransitions(ctx, orderID)
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}

	items := make([]string, 0, len(transitions))
	for _, status := range transitions {
		items = append(items, string(status))
	}
	writeJSONResponse(w, http.StatusOK, transitionListResponse{Transitions: items})
}

type payOrderRequest struct {
	PaymentMethodID string         `json:"payment_method_id"`
	AmountReceived  int64          `json:"amount_received"`
	Metadata        map[string]any `json:"metadata"`
}

func (h *OrderFlowHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req payOrderRequest
	if !decodeFlowBody(ctx, w, r, &req, true) {
		return
	}

	result, err := h.flow.PayOrder(ctx, services.PayOrderCommand{
		OrderID:         orderID,
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		AmountReceived:  req.AmountReceived,
		ActorID:         staffID,
		Metadata:        cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}

	payload := payOrderResponse{
		Order:        buildOrderPayload(result.Order),
		ClientSecret: result.ClientSecret,
	}
	if result.Payment.ID != "" {
		payment := buildPaymentPayload(result.Payment)
		payload.Payment = &payment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type flowActionRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (h *OrderFlowHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req flowActionRequest
	if !decodeFlowBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.flow.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:  orderID,
		ActorID:  staffID,
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type shipOrderRequest struct {
	TrackingNumber string         `json:"tracking_number"`
	Carrier        string         `json:"carrier"`
	Notes          string         `json:"notes"`
	Metadata       map[string]any `json:"metadata"`
}

func (h *OrderFlowHandlers) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req shipOrderRequest
	if !decodeFlowBody(ctx, w, r, &req, true) {
		return
	}

	order, err := h.flow.ShipOrder(ctx, services.ShipOrderCommand{
		OrderID:        orderID,
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		Carrier:        strings.TrimSpace(req.Carrier),
		Notes:          strings.TrimSpace(req.Notes),
		ActorID:        staffID,
		Metadata:       cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type deliverOrderRequest struct {
	DeliveredTo string         `json:"delivered_to"`
	Notes       string         `json:"notes"`
	Metadata    map[string]any `json:"metadata"`
}

func (h *OrderFlowHandlers) deliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req deliverOrderRequest
	if !decodeFlowBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.flow.DeliverOrder(ctx, services.DeliverOrderCommand{
		OrderID:     orderID,
		DeliveredTo: strings.TrimSpace(req.DeliveredTo),
		Notes:       strings.TrimSpace(req.Notes),
		ActorID:     staffID,
		Metadata:    cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderFlowHandlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req flowActionRequest
	if !decodeFlowBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.flow.ConfirmDelivery(ctx, services.ConfirmDeliveryCommand{
		OrderID:  orderID,
		ActorID:  staffID,
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

func (h *OrderFlowHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeFlowBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.flow.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID:  orderID,
		Reason:   strings.TrimSpace(req.Reason),
		ActorID:  staffID,
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type refundOrderRequest struct {
	Amount   *int64         `json:"amount"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

func (h *OrderFlowHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, ok := h.requireStaff(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if _, ok := h.loadAuthorizedOrder(ctx, w, staffID, orderID); !ok {
		return
	}

	var req refundOrderRequest
	if !decodeFlowBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.flow.RefundOrder(ctx, services.RefundOrderCommand{
		OrderID:  orderID,
		Amount:   req.Amount,
		Reason:   strings.TrimSpace(req.Reason),
		ActorID:  staffID,
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderFlowHandlers) requireStaff(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.flow == nil || h.access == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

// authorizeOrderAccess hides orders in stores the staff member cannot see
// behind a 404 rather than a 403.
func (h *OrderFlowHandlers) authorizeOrderAccess(ctx context.Context, w http.ResponseWriter, staffID string, order services.Order) bool {
	if _, err := h.access.AuthorizeStore(ctx, staffID, order.StoreID); err != nil {
		if errors.Is(err, services.ErrAccessForbidden) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return false
		}
		writeOrderFlowError(ctx, w, err)
		return false
	}
	return true
}

func (h *OrderFlowHandlers) loadAuthorizedOrder(ctx context.Context, w http.ResponseWriter, staffID, orderID string) (services.Order, bool) {
	record, err := h.flow.GetOrder(ctx, orderID, services.OrderReadOptions{})
	if err != nil {
		writeOrderFlowError(ctx, w, err)
		return services.Order{}, false
	}
	if !h.authorizeOrderAccess(ctx, w, staffID, record.Order) {
		return services.Order{}, false
	}
	return record.Order, true
}

func orderIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

// decodeFlowBody reads and unmarshals an action body. Actions whose requests
// carry no mandatory fields accept an empty body.
func decodeFlowBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any, required bool) bool {
	body, err := readLimitedBody(r, maxOrderFlowBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		case errors.Is(err, errEmptyBody) && !required:
			return true
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return false
		}
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	StoreID     string `json:"store_id"`
	Status      string `json:"status"`
	Channel     string `json:"channel"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type payOrderResponse struct {
	Order        orderPayload         `json:"order"`
	Payment      *orderPaymentPayload `json:"payment,omitempty"`
	ClientSecret string               `json:"client_secret,omitempty"`
}

type transitionListResponse struct {
	Transitions []string `json:"transitions"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	StoreID         string                `json:"store_id"`
	OrgID           string                `json:"org_id,omitempty"`
	CustomerID      *string               `json:"customer_id,omitempty"`
	Status          string                `json:"status"`
	Channel         string                `json:"channel"`
	Currency        string                `json:"currency"`
	Totals          orderTotalsPayload    `json:"totals"`
	Items           []orderItemPayload    `json:"items"`
	ShippingAddress *string               `json:"shipping_address,omitempty"`
	BillingAddress  *string               `json:"billing_address,omitempty"`
	Shipping        *orderShippingPayload `json:"shipping,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	FlowMetadata    map[string]any        `json:"flow_metadata,omitempty"`
	Audit           *orderAuditPayload    `json:"audit,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
	PlacedAt        string                `json:"placed_at,omitempty"`
	PaidAt          string                `json:"paid_at,omitempty"`
	ShippedAt       string                `json:"shipped_at,omitempty"`
	DeliveredAt     string                `json:"delivered_at,omitempty"`
	FinishedAt      string                `json:"finished_at,omitempty"`
	CancelledAt     string                `json:"cancelled_at,omitempty"`
	RefundedAt      string                `json:"refunded_at,omitempty"`
	CancelReason    *string               `json:"cancel_reason,omitempty"`
	Payments        []orderPaymentPayload `json:"payments,omitempty"`
	Refunds         []orderRefundPayload  `json:"refunds,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	Tax       int64   `json:"tax"`
	Total     int64   `json:"total"`
}

type orderShippingPayload struct {
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	DeliveredTo    string `json:"delivered_to,omitempty"`
}

type orderAuditPayload struct {
	CreatedBy *string `json:"created_by,omitempty"`
	UpdatedBy *string `json:"updated_by,omitempty"`
}

type orderPaymentPayload struct {
	ID              string `json:"id"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	Processor       string `json:"processor,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Change          int64  `json:"change,omitempty"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paid_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type orderRefundPayload struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Reason     string `json:"reason,omitempty"`
	Status     string `json:"status"`
	RefundedAt string `json:"refunded_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		StoreID:     strings.TrimSpace(order.StoreID),
		Status:      strings.TrimSpace(string(order.Status)),
		Channel:     strings.TrimSpace(string(order.Channel)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:       order.Totals.Total,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		StoreID:     strings.TrimSpace(order.StoreID),
		OrgID:       strings.TrimSpace(order.OrgID),
		CustomerID:  cloneStringPointer(order.CustomerID),
		Status:      strings.TrimSpace(string(order.Status)),
		Channel:     strings.TrimSpace(string(order.Channel)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Tax:      order.Totals.Tax,
			Total:    order.Totals.Total,
		},
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: cloneStringPointer(order.ShippingAddress),
		BillingAddress:  cloneStringPointer(order.BillingAddress),
		Notes:           domain.OriginalNotes(order.InternalNotes),
		FlowMetadata:    domain.FlowMetadata(order.InternalNotes),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		PlacedAt:        formatTime(pointerTime(order.PlacedAt)),
		PaidAt:          formatTime(pointerTime(order.PaidAt)),
		ShippedAt:       formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:     formatTime(pointerTime(order.DeliveredAt)),
		FinishedAt:      formatTime(pointerTime(order.FinishedAt)),
		CancelledAt:     formatTime(pointerTime(order.CancelledAt)),
		RefundedAt:      formatTime(pointerTime(order.RefundedAt)),
		CancelReason:    cloneStringPointer(order.CancelReason),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: cloneStringPointer(item.VariantID),
			SKU:       strings.TrimSpace(item.SKU),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Tax:       item.Tax,
			Total:     item.Total,
		})
	}

	if order.Shipping.Carrier != "" || order.Shipping.TrackingNumber != "" || order.Shipping.DeliveredTo != "" {
		payload.Shipping = &orderShippingPayload{
			Carrier:        strings.TrimSpace(order.Shipping.Carrier),
			TrackingNumber: strings.TrimSpace(order.Shipping.TrackingNumber),
			DeliveredTo:    strings.TrimSpace(order.Shipping.DeliveredTo),
		}
	}

	if order.Audit.CreatedBy != nil || order.Audit.UpdatedBy != nil {
		payload.Audit = &orderAuditPayload{
			CreatedBy: cloneStringPointer(order.Audit.CreatedBy),
			UpdatedBy: cloneStringPointer(order.Audit.UpdatedBy),
		}
	}

	return payload
}

func buildPaymentPayload(payment services.Payment) orderPaymentPayload {
	return orderPaymentPayload{
		ID:              strings.TrimSpace(payment.ID),
		PaymentMethodID: strings.TrimSpace(payment.PaymentMethodID),
		Processor:       strings.TrimSpace(payment.Processor),
		TransactionID:   strings.TrimSpace(payment.TransactionID),
		Status:          strings.TrimSpace(string(payment.Status)),
		Amount:          payment.Amount,
		Change:          payment.Change,
		Currency:        strings.ToUpper(strings.TrimSpace(payment.Currency)),
		PaidAt:          formatTime(pointerTime(payment.PaidAt)),
		CreatedAt:       formatTime(payment.CreatedAt),
		UpdatedAt:       formatTime(payment.UpdatedAt),
	}
}

func buildPaymentPayloads(payments []services.Payment) []orderPaymentPayload {
	if len(payments) == 0 {
		return nil
	}
	result := make([]orderPaymentPayload, 0, len(payments))
	for _, payment := range payments {
		result = append(result, buildPaymentPayload(payment))
	}
	return result
}

func buildRefundPayloads(refunds []services.Refund) []orderRefundPayload {
	if len(refunds) == 0 {
		return nil
	}
	result := make([]orderRefundPayload, 0, len(refunds))
	for _, refund := range refunds {
		result = append(result, orderRefundPayload{
			ID:         strings.TrimSpace(refund.ID),
			Amount:     refund.Amount,
			Currency:   strings.ToUpper(strings.TrimSpace(refund.Currency)),
			Reason:     strings.TrimSpace(refund.Reason),
			Status:     strings.TrimSpace(refund.Status),
			RefundedAt: formatTime(refund.RefundedAt),
			CreatedAt:  formatTime(refund.CreatedAt),
		})
	}
	return result
}

func writeOrderFlowError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderFlowInvalidInput), errors.Is(err, services.ErrAccessInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderFlowNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderFlowInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderFlowConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAccessForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "store access denied", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
