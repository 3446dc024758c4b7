package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/storeforge/api/internal/platform/firestore"
	"github.com/storeforge/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind the repositories.Registry
// interface and provides the shared unit-of-work boundary.
type Registry struct {
	provider *pfirestore.Provider

	orders       *OrderRepository
	payments     *PaymentRepository
	refunds      *RefundRepository
	stock        *StockRepository
	stores       *StoreRepository
	staff        *StaffRepository
	counters     *CounterRepository
	orderNumbers *OrderNumberRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the full Firestore repository set.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	refunds, err := NewRefundRepository(provider)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockRepository(provider)
	if err != nil {
		return nil, err
	}
	stores, err := NewStoreRepository(provider)
	if err != nil {
		return nil, err
	}
	staff, err := NewStaffRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	orderNumbers, err := NewOrderNumberRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		orders:       orders,
		payments:     payments,
		refunds:      refunds,
		stock:        stock,
		stores:       stores,
		staff:        staff,
		counters:     counters,
		orderNumbers: orderNumbers,
		health:       health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a single Firestore transaction. Repositories
// invoked through the derived context share the transaction, so every write
// commits or rolls back together. Reads must precede writes within fn.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if _, ok := pfirestore.TxFromContext(ctx); ok {
		// Already inside a unit of work; join it.
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTx(ctx, tx))
	})
}

func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository         { return r.payments }
func (r *Registry) Refunds() repositories.RefundRepository           { return r.refunds }
func (r *Registry) Stock() repositories.StockRepository              { return r.stock }
func (r *Registry) Stores() repositories.StoreRepository             { return r.stores }
func (r *Registry) Staff() repositories.StaffRepository              { return r.staff }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) OrderNumbers() repositories.OrderNumberRepository { return r.orderNumbers }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }
