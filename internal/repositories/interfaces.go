package repositories

import (
	"context"
	"time"

	domain "github.com/storeforge/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	Refunds() RefundRepository
	Stock() StockRepository
	Stores() StoreRepository
	Staff() StaffRepository
	Counters() CounterRepository
	OrderNumbers() OrderNumberRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers and provides query helpers for stores and jobs.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ListDeliveredBefore returns orders sitting in the delivered state whose
	// delivery timestamp is older than the cutoff, ordered oldest first.
	ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// PaymentRepository stores payment records keyed by processor transaction IDs.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// RefundRepository stores refund records issued against orders.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error)
}

// StockRepository manages per-location stock levels with transactional guarantees.
type StockRepository interface {
	Get(ctx context.Context, locationID string, sku string) (domain.StockLevel, error)
	// ApplyAdjustments reads every affected stock level, validates that no
	// negative delta takes availability below zero, then writes the updated
	// levels and one movement record per adjustment. All reads complete
	// before the first write so the batch can run inside a unit of work.
	ApplyAdjustments(ctx context.Context, adjs []StockAdjustment) ([]domain.StockLevel, error)
	ListMovements(ctx context.Context, filter StockMovementFilter) (domain.CursorPage[domain.StockMovement], error)
}

// StockAdjustment describes a single stock mutation and its audit metadata.
type StockAdjustment struct {
	LocationID string
	ProductID  string
	SKU        string
	Delta      int64
	Reason     string
	OrderID    *string
	Now        time.Time
	MovementID string
}

// StoreRepository reads store configuration documents.
type StoreRepository interface {
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
}

// StaffRepository reads staff membership documents keyed by identity UID.
type StaffRepository interface {
	FindByID(ctx context.Context, staffID string) (domain.Staff, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// OrderNumberRepository reserves formatted order numbers so they stay unique
// per store and year even under concurrent sales.
type OrderNumberRepository interface {
	// Claim records the number as taken. A duplicate claim fails with a
	// conflict error, signalling the caller to draw the next sequence value.
	Claim(ctx context.Context, claim OrderNumberClaim) error
}

// OrderNumberClaim identifies a reserved order number.
type OrderNumberClaim struct {
	StoreID     string
	Year        int
	Sequence    int64
	OrderNumber string
	OrderID     string
	ClaimedAt   time.Time
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	StoreID    string
	CustomerID string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type StockMovementFilter struct {
	LocationID string
	SKU        string
	OrderID    string
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
