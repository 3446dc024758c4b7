package services

import (
	"context"
	"time"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/repositories"
)

// stubRepoError satisfies repositories.RepositoryError for failure injection.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundRepoErr(msg string) error { return stubRepoError{msg: msg, notFound: true} }
func conflictRepoErr(msg string) error { return stubRepoError{msg: msg, conflict: true} }

type stubOrderRepo struct {
	insert              func(ctx context.Context, order domain.Order) error
	update              func(ctx context.Context, order domain.Order) error
	findByID            func(ctx context.Context, orderID string) (domain.Order, error)
	list                func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listDeliveredBefore func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insert != nil {
		return s.insert(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.update != nil {
		return s.update(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByID != nil {
		return s.findByID(ctx, orderID)
	}
	return domain.Order{}, notFoundRepoErr("order not found")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.list != nil {
		return s.list(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if s.listDeliveredBefore != nil {
		return s.listDeliveredBefore(ctx, cutoff, limit)
	}
	return nil, nil
}

type stubPaymentRepo struct {
	insert              func(ctx context.Context, payment domain.Payment) error
	update              func(ctx context.Context, payment domain.Payment) error
	findByID            func(ctx context.Context, paymentID string) (domain.Payment, error)
	findByTransactionID func(ctx context.Context, transactionID string) (domain.Payment, error)
	listByOrder         func(ctx context.Context, orderID string) ([]domain.Payment, error)
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insert != nil {
		return s.insert(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) Update(ctx context.Context, payment domain.Payment) error {
	if s.update != nil {
		return s.update(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByID != nil {
		return s.findByID(ctx, paymentID)
	}
	return domain.Payment{}, notFoundRepoErr("payment not found")
}

func (s *stubPaymentRepo) FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	if s.findByTransactionID != nil {
		return s.findByTransactionID(ctx, transactionID)
	}
	return domain.Payment{}, notFoundRepoErr("payment not found")
}

func (s *stubPaymentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if s.listByOrder != nil {
		return s.listByOrder(ctx, orderID)
	}
	return nil, nil
}

type stubRefundRepo struct {
	insert      func(ctx context.Context, refund domain.Refund) error
	listByOrder func(ctx context.Context, orderID string) ([]domain.Refund, error)
}

func (s *stubRefundRepo) Insert(ctx context.Context, refund domain.Refund) error {
	if s.insert != nil {
		return s.insert(ctx, refund)
	}
	return nil
}

func (s *stubRefundRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	if s.listByOrder != nil {
		return s.listByOrder(ctx, orderID)
	}
	return nil, nil
}

type stubStoreRepo struct {
	findByID func(ctx context.Context, storeID string) (domain.Store, error)
}

func (s *stubStoreRepo) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if s.findByID != nil {
		return s.findByID(ctx, storeID)
	}
	return domain.Store{}, notFoundRepoErr("store not found")
}

type stubStaffRepo struct {
	findByID func(ctx context.Context, staffID string) (domain.Staff, error)
}

func (s *stubStaffRepo) FindByID(ctx context.Context, staffID string) (domain.Staff, error) {
	if s.findByID != nil {
		return s.findByID(ctx, staffID)
	}
	return domain.Staff{}, notFoundRepoErr("staff not found")
}

type stubStockRepo struct {
	get              func(ctx context.Context, locationID string, sku string) (domain.StockLevel, error)
	applyAdjustments func(ctx context.Context, adjs []repositories.StockAdjustment) ([]domain.StockLevel, error)
	listMovements    func(ctx context.Context, filter repositories.StockMovementFilter) (domain.CursorPage[domain.StockMovement], error)
}

func (s *stubStockRepo) Get(ctx context.Context, locationID string, sku string) (domain.StockLevel, error) {
	if s.get != nil {
		return s.get(ctx, locationID, sku)
	}
	return domain.StockLevel{}, notFoundRepoErr("stock level not found")
}

func (s *stubStockRepo) ApplyAdjustments(ctx context.Context, adjs []repositories.StockAdjustment) ([]domain.StockLevel, error) {
	if s.applyAdjustments != nil {
		return s.applyAdjustments(ctx, adjs)
	}
	return nil, nil
}

func (s *stubStockRepo) ListMovements(ctx context.Context, filter repositories.StockMovementFilter) (domain.CursorPage[domain.StockMovement], error) {
	if s.listMovements != nil {
		return s.listMovements(ctx, filter)
	}
	return domain.CursorPage[domain.StockMovement]{}, nil
}

type stubCounterRepo struct {
	next      func(ctx context.Context, counterID string, step int64) (int64, error)
	configure func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.next != nil {
		return s.next(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configure != nil {
		return s.configure(ctx, counterID, cfg)
	}
	return nil
}

type stubOrderNumberRepo struct {
	claim func(ctx context.Context, claim repositories.OrderNumberClaim) error
}

func (s *stubOrderNumberRepo) Claim(ctx context.Context, claim repositories.OrderNumberClaim) error {
	if s.claim != nil {
		return s.claim(ctx, claim)
	}
	return nil
}

type recordingUnitOfWork struct {
	calls int
}

func (u *recordingUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	return fn(ctx)
}

type recordingEvents struct {
	events []OrderEvent
	err    error
}

func (r *recordingEvents) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefixless ...string) func() string {
	i := 0
	return func() string {
		if i < len(prefixless) {
			id := prefixless[i]
			i++
			return id
		}
		i++
		return "id-overflow"
	}
}
