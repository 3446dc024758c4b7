package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/storeforge/api/internal/platform/auth"
	"github.com/storeforge/api/internal/services"

	domain "github.com/storeforge/api/internal/domain"
)

var handlerTestNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func requestWithIdentity(r *http.Request, uid string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UID: uid}))
}

func testFlowOrder(status domain.OrderStatus) services.Order {
	createdBy := "staff_7"
	return services.Order{
		ID:          "ord_01",
		OrderNumber: "SF-2026-0042",
		StoreID:     "store_01",
		OrgID:       "org_01",
		Status:      status,
		Channel:     domain.ChannelPOS,
		Currency:    "USD",
		Totals:      domain.OrderTotals{Subtotal: 5000, Tax: 500, Total: 5500},
		Items: []services.OrderLineItem{
			{ProductID: "prod_1", SKU: "SKU-1", Name: "Mug", Quantity: 2, UnitPrice: 2500, Tax: 500, Total: 5500},
		},
		Audit:     domain.OrderAudit{CreatedBy: &createdBy},
		CreatedAt: handlerTestNow,
		UpdatedAt: handlerTestNow,
	}
}

type stubOrderFlowService struct {
	getOrder        func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.OrderWithRecords, error)
	listOrders      func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	validTrans      func(ctx context.Context, orderID string) ([]services.OrderStatus, error)
	payOrder        func(ctx context.Context, cmd services.PayOrderCommand) (services.PayOrderResult, error)
	confirmPayment  func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error)
	shipOrder       func(ctx context.Context, cmd services.ShipOrderCommand) (services.Order, error)
	deliverOrder    func(ctx context.Context, cmd services.DeliverOrderCommand) (services.Order, error)
	confirmDelivery func(ctx context.Context, cmd services.ConfirmDeliveryCommand) (services.Order, error)
	cancelOrder     func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	refundOrder     func(ctx context.Context, cmd services.RefundOrderCommand) (services.Order, error)
	autoFinish      func(ctx context.Context) (int, error)
}

func (s *stubOrderFlowService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.OrderWithRecords, error) {
	if s.getOrder != nil {
		return s.getOrder(ctx, orderID, opts)
	}
	return services.OrderWithRecords{Order: testFlowOrder(domain.OrderStatusCreated)}, nil
}

func (s *stubOrderFlowService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listOrders != nil {
		return s.listOrders(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderFlowService) ValidTransitions(ctx context.Context, orderID string) ([]services.OrderStatus, error) {
	if s.validTrans != nil {
		return s.validTrans(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOrderFlowService) PayOrder(ctx context.Context, cmd services.PayOrderCommand) (services.PayOrderResult, error) {
	if s.payOrder != nil {
		return s.payOrder(ctx, cmd)
	}
	return services.PayOrderResult{}, nil
}

func (s *stubOrderFlowService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	if s.confirmPayment != nil {
		return s.confirmPayment(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderFlowService) ShipOrder(ctx context.Context, cmd services.ShipOrderCommand) (services.Order, error) {
	if s.shipOrder != nil {
		return s.shipOrder(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderFlowService) DeliverOrder(ctx context.Context, cmd services.DeliverOrderCommand) (services.Order, error) {
	if s.deliverOrder != nil {
		return s.deliverOrder(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderFlowService) ConfirmDelivery(ctx context.Context, cmd services.ConfirmDeliveryCommand) (services.Order, error) {
	if s.confirmDelivery != nil {
		return s.confirmDelivery(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderFlowService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelOrder != nil {
		return s.cancelOrder(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderFlowService) RefundOrder(ctx context.Context, cmd services.RefundOrderCommand) (services.Order, error) {
	if s.refundOrder != nil {
		return s.refundOrder(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderFlowService) AutoFinishDelivered(ctx context.Context) (int, error) {
	if s.autoFinish != nil {
		return s.autoFinish(ctx)
	}
	return 0, nil
}

type stubAccessService struct {
	authorize func(ctx context.Context, staffID, storeID string) (services.Staff, error)
}

func (s *stubAccessService) AuthorizeStore(ctx context.Context, staffID, storeID string) (services.Staff, error) {
	if s.authorize != nil {
		return s.authorize(ctx, staffID, storeID)
	}
	return services.Staff{ID: staffID, StoreIDs: []string{storeID}}, nil
}

type stubPOSService struct {
	processSale func(ctx context.Context, cmd services.POSSaleCommand) (services.POSSaleResult, error)
}

func (s *stubPOSService) ProcessSale(ctx context.Context, cmd services.POSSaleCommand) (services.POSSaleResult, error) {
	if s.processSale != nil {
		return s.processSale(ctx, cmd)
	}
	return services.POSSaleResult{Success: true}, nil
}

type stubWebhookService struct {
	process func(ctx context.Context, processor string, payload []byte) error
}

func (s *stubWebhookService) Process(ctx context.Context, processor string, payload []byte) error {
	if s.process != nil {
		return s.process(ctx, processor, payload)
	}
	return nil
}

type stubStockService struct {
	getLevel      func(ctx context.Context, locationID, sku string) (services.StockLevel, error)
	adjust        func(ctx context.Context, cmd services.StockAdjustCommand) ([]services.StockLevel, error)
	listMovements func(ctx context.Context, filter services.StockMovementFilter) (domain.CursorPage[services.StockMovement], error)
}

func (s *stubStockService) GetLevel(ctx context.Context, locationID, sku string) (services.StockLevel, error) {
	if s.getLevel != nil {
		return s.getLevel(ctx, locationID, sku)
	}
	return services.StockLevel{}, nil
}

func (s *stubStockService) Adjust(ctx context.Context, cmd services.StockAdjustCommand) ([]services.StockLevel, error) {
	if s.adjust != nil {
		return s.adjust(ctx, cmd)
	}
	return nil, nil
}

func (s *stubStockService) ListMovements(ctx context.Context, filter services.StockMovementFilter) (domain.CursorPage[services.StockMovement], error) {
	if s.listMovements != nil {
		return s.listMovements(ctx, filter)
	}
	return domain.CursorPage[services.StockMovement]{}, nil
}

var (
	_ services.OrderFlowService = (*stubOrderFlowService)(nil)
	_ services.AccessService    = (*stubAccessService)(nil)
	_ services.POSService       = (*stubPOSService)(nil)
	_ services.WebhookService   = (*stubWebhookService)(nil)
	_ services.StockService     = (*stubStockService)(nil)
)
