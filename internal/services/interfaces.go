package services

import (
	"context"
	"time"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/repositories"
)

// Domain aliases re-exported for handler convenience.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderTotals        = domain.OrderTotals
	OrderLineItem      = domain.OrderLineItem
	OrderStatus        = domain.OrderStatus
	OrderChannel       = domain.OrderChannel
	OrderShipping      = domain.OrderShipping
	OrderAudit         = domain.OrderAudit
	Payment            = domain.Payment
	PaymentStatus      = domain.PaymentStatus
	Refund             = domain.Refund
	StockLevel         = domain.StockLevel
	StockMovement      = domain.StockMovement
	Store              = domain.Store
	StoreLocation      = domain.StoreLocation
	StorePaymentMethod = domain.StorePaymentMethod
	Staff              = domain.Staff
	SystemHealthReport = domain.SystemHealthReport
)

// OrderFlowService is the sole authority for order lifecycle transitions.
// Every state change passes through it so the transition table is enforced in
// exactly one place.
type OrderFlowService interface {
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (OrderWithRecords, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ValidTransitions(ctx context.Context, orderID string) ([]OrderStatus, error)

	PayOrder(ctx context.Context, cmd PayOrderCommand) (PayOrderResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	ShipOrder(ctx context.Context, cmd ShipOrderCommand) (Order, error)
	DeliverOrder(ctx context.Context, cmd DeliverOrderCommand) (Order, error)
	ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	RefundOrder(ctx context.Context, cmd RefundOrderCommand) (Order, error)
	AutoFinishDelivered(ctx context.Context) (int, error)
}

// POSService orchestrates in-store sales as one atomic unit.
type POSService interface {
	ProcessSale(ctx context.Context, cmd POSSaleCommand) (POSSaleResult, error)
}

// WebhookService reconciles asynchronous processor callbacks with payments and orders.
type WebhookService interface {
	Process(ctx context.Context, processor string, payload []byte) error
}

// AccessService validates that a staff member may operate on a store.
type AccessService interface {
	AuthorizeStore(ctx context.Context, staffID string, storeID string) (Staff, error)
}

// StockService centralizes availability-checked stock adjustments.
type StockService interface {
	GetLevel(ctx context.Context, locationID string, sku string) (StockLevel, error)
	Adjust(ctx context.Context, cmd StockAdjustCommand) ([]StockLevel, error)
	ListMovements(ctx context.Context, filter StockMovementFilter) (domain.CursorPage[StockMovement], error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// Command and DTO definitions ------------------------------------------------

// OrderReadOptions toggles eager loading of payment and refund records.
type OrderReadOptions struct {
	IncludePayments bool
	IncludeRefunds  bool
}

// OrderWithRecords is returned when read options request related records.
type OrderWithRecords struct {
	Order    Order
	Payments []Payment
	Refunds  []Refund
}

type OrderListFilter = repositories.OrderListFilter

type StockMovementFilter = repositories.StockMovementFilter

// PayOrderCommand captures a payment attempt against an existing order.
type PayOrderCommand struct {
	OrderID         string
	PaymentMethodID string
	// AmountReceived is the tender amount for direct (cash/card) methods,
	// in minor currency units.
	AmountReceived int64
	ActorID        string
	Metadata       map[string]any
}

// PayOrderResult carries the updated order together with the payment record
// and, for asynchronous methods, the client secret for the processor intent.
type PayOrderResult struct {
	Order        Order
	Payment      Payment
	ClientSecret string
}

// ConfirmPaymentCommand marks an awaited payment as settled. Only webhook
// reconciliation and trusted internal callers use it.
type ConfirmPaymentCommand struct {
	OrderID  string
	ActorID  string
	Metadata map[string]any
}

// ShipOrderCommand records carrier hand-off.
type ShipOrderCommand struct {
	OrderID        string
	TrackingNumber string
	Carrier        string
	Notes          string
	ActorID        string
	Metadata       map[string]any
}

// DeliverOrderCommand records carrier-reported delivery.
type DeliverOrderCommand struct {
	OrderID     string
	DeliveredTo string
	Notes       string
	ActorID     string
	Metadata    map[string]any
}

// ConfirmDeliveryCommand finishes an order after customer confirmation.
type ConfirmDeliveryCommand struct {
	OrderID  string
	ActorID  string
	Metadata map[string]any
}

// CancelOrderCommand cancels an order that has not completed fulfilment.
type CancelOrderCommand struct {
	OrderID  string
	Reason   string
	ActorID  string
	Metadata map[string]any
}

// RefundOrderCommand refunds a fulfilled order. A nil amount refunds the
// order's grand total.
type RefundOrderCommand struct {
	OrderID  string
	Amount   *int64
	Reason   string
	ActorID  string
	Metadata map[string]any
}

// POSSaleItem is one register line in a point-of-sale transaction.
type POSSaleItem struct {
	ProductID string
	VariantID *string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	Tax       int64
}

// POSSaleCommand describes a complete register transaction.
type POSSaleCommand struct {
	StoreID               string
	StaffID               string
	CustomerID            *string
	Items                 []POSSaleItem
	PaymentMethodID       string
	AmountReceived        int64
	Discount              int64
	RequiresPayment       bool
	UpdateInventory       bool
	SendConfirmationEmail bool
	Notes                 string
}

// POSSaleResult is the structured response returned to the register. The
// Success flag carries failure information instead of an error so the client
// always receives a well-formed body.
type POSSaleResult struct {
	Success bool
	Message string
	Order   *POSOrderSummary
	Payment *POSPaymentSummary
	Errors  []string
}

// POSOrderSummary is the register-facing order projection.
type POSOrderSummary struct {
	ID          string
	OrderNumber string
	Status      OrderStatus
	Currency    string
	Subtotal    int64
	Discount    int64
	Tax         int64
	GrandTotal  int64
	CreatedAt   time.Time
}

// POSPaymentSummary is the register-facing payment projection.
type POSPaymentSummary struct {
	ID            string
	Status        PaymentStatus
	Amount        int64
	Change        int64
	TransactionID string
}

// StockAdjustCommand batches stock deltas applied as one unit.
type StockAdjustCommand struct {
	Lines   []StockAdjustLine
	Reason  string
	OrderID *string
	ActorID string
}

// StockAdjustLine is a single SKU delta within an adjustment.
type StockAdjustLine struct {
	LocationID string
	ProductID  string
	SKU        string
	Delta      int64
}

// CounterCommand requests the next value from a named counter.
type CounterCommand struct {
	CounterID string
	Step      int64
}
