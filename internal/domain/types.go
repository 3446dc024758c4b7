package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of items together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusCreated indicates the order exists but payment has not been initiated.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusPendingPayment indicates the order awaits asynchronous payment confirmation.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusProcessing indicates payment settled and the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery to the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusFinished indicates the order is complete (confirmed or auto-finished).
	OrderStatusFinished OrderStatus = "finished"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment completed.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the order was refunded after fulfilment.
	OrderStatusRefunded OrderStatus = "refunded"
)

// OrderChannel identifies the sales channel an order originated from.
type OrderChannel string

const (
	// ChannelPOS marks orders created at a physical point of sale.
	ChannelPOS OrderChannel = "pos"
	// ChannelOnline marks orders created through the online storefront.
	ChannelOnline OrderChannel = "online"
)

// Order captures order headers returned to handlers/services.
type Order struct {
	ID              string
	OrderNumber     string
	StoreID         string
	OrgID           string
	CustomerID      *string
	Status          OrderStatus
	Channel         OrderChannel
	Currency        string
	Totals          OrderTotals
	Items           []OrderLineItem
	ShippingAddress *string
	BillingAddress  *string
	Shipping        OrderShipping
	InternalNotes   string
	Audit           OrderAudit
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PlacedAt        *time.Time
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	FinishedAt      *time.Time
	CancelledAt     *time.Time
	RefundedAt      *time.Time
	CancelReason    *string
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Total    int64
}

// OrderLineItem mirrors sale lines at the time the order was captured.
type OrderLineItem struct {
	ProductID string
	VariantID *string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	Tax       int64
	Total     int64
}

// OrderShipping stores carrier hand-off details recorded at ship time.
type OrderShipping struct {
	Carrier        string
	TrackingNumber string
	DeliveredTo    string
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// PaymentStatus enumerates payment lifecycle states tracked per transaction.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the processor has not yet settled the payment.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSucceeded indicates funds settled in a single step.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusCaptured indicates a previously authorised payment was captured.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusFailed indicates the processor rejected the payment.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCancelled indicates the payment was voided before settlement.
	PaymentStatusCancelled PaymentStatus = "cancelled"
	// PaymentStatusRefunded indicates settled funds were returned to the customer.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Cleared reports whether the status represents settled funds.
func (s PaymentStatus) Cleared() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCaptured
}

// Payment encapsulates payment status and processor references for an order.
type Payment struct {
	ID              string
	OrderID         string
	StoreID         string
	PaymentMethodID string
	Processor       string
	TransactionID   string
	Status          PaymentStatus
	Amount          int64
	Change          int64
	Currency        string
	GatewayResponse map[string]any
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Refund records money returned against an order.
type Refund struct {
	ID         string
	OrderID    string
	Amount     int64
	Currency   string
	Reason     string
	Status     string
	RefundedAt time.Time
	CreatedAt  time.Time
}

// StockLevel tracks on-hand and reserved quantities for a SKU at a location.
type StockLevel struct {
	LocationID string
	ProductID  string
	SKU        string
	OnHand     int64
	Reserved   int64
	UpdatedAt  time.Time
}

// Available returns the quantity free to sell at the location.
func (s StockLevel) Available() int64 {
	return s.OnHand - s.Reserved
}

// StockMovement is the audit record written for every stock adjustment.
type StockMovement struct {
	ID         string
	LocationID string
	ProductID  string
	SKU        string
	Delta      int64
	Reason     string
	OrderID    *string
	CreatedAt  time.Time
}

// PaymentMethodType groups store payment methods by settlement behaviour.
type PaymentMethodType string

const (
	// PaymentMethodCash settles immediately at the till.
	PaymentMethodCash PaymentMethodType = "cash"
	// PaymentMethodCard settles immediately through a terminal.
	PaymentMethodCard PaymentMethodType = "card"
	// PaymentMethodOnline settles asynchronously through a processor.
	PaymentMethodOnline PaymentMethodType = "online"
)

// Direct reports whether the method settles synchronously at sale time.
func (t PaymentMethodType) Direct() bool {
	return t == PaymentMethodCash || t == PaymentMethodCard
}

// StorePaymentMethod is a tender configuration attached to a store.
type StorePaymentMethod struct {
	ID        string
	Type      PaymentMethodType
	Processor string
	Active    bool
}

// StoreLocation is a stock-keeping location belonging to a store.
type StoreLocation struct {
	ID     string
	Name   string
	Active bool
}

// Store holds the per-store configuration the sale pipeline depends on.
type Store struct {
	ID                string
	OrgID             string
	Name              string
	OrderNumberPrefix string
	Currency          string
	Active            bool
	Locations         []StoreLocation
	PaymentMethods    []StorePaymentMethod
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultLocation returns the lowest-ID active location, or nil when none exist.
func (s Store) DefaultLocation() *StoreLocation {
	var picked *StoreLocation
	for i := range s.Locations {
		loc := s.Locations[i]
		if !loc.Active {
			continue
		}
		if picked == nil || loc.ID < picked.ID {
			picked = &loc
		}
	}
	return picked
}

// PaymentMethod returns the active tender with the given ID, or nil.
func (s Store) PaymentMethod(id string) *StorePaymentMethod {
	for i := range s.PaymentMethods {
		if s.PaymentMethods[i].ID == id && s.PaymentMethods[i].Active {
			return &s.PaymentMethods[i]
		}
	}
	return nil
}

// OrgRole names the role a staff member holds within an organization.
type OrgRole string

const (
	// OrgRoleOwner owns the organization and every store in it.
	OrgRoleOwner OrgRole = "owner"
	// OrgRoleAdmin administers the organization and every store in it.
	OrgRoleAdmin OrgRole = "admin"
	// OrgRoleStaff is limited to explicitly assigned stores.
	OrgRoleStaff OrgRole = "staff"
)

// Staff describes an authenticated operator and their store assignments.
type Staff struct {
	ID         string
	Email      string
	SuperAdmin bool
	StoreIDs   []string
	OrgRoles   map[string]OrgRole
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AssignedTo reports whether the staff member is directly assigned to the store.
func (s Staff) AssignedTo(storeID string) bool {
	for _, id := range s.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// AdministersOrg reports whether the staff member holds an org-wide elevated role.
func (s Staff) AdministersOrg(orgID string) bool {
	role, ok := s.OrgRoles[orgID]
	return ok && (role == OrgRoleOwner || role == OrgRoleAdmin)
}
