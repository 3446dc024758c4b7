package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/repositories"
)

const (
	movementIDPrefix = "mov_"

	// orderNumberAttempts bounds how often a sale retries after losing the
	// race for a sequence number.
	orderNumberAttempts = 3
)

var (
	// ErrPOSInvalidInput indicates the sale command failed validation.
	ErrPOSInvalidInput = errors.New("pos: invalid input")
	// ErrPOSNotFound indicates a referenced store does not exist.
	ErrPOSNotFound = errors.New("pos: not found")
	// ErrPOSConflict indicates the sale kept losing order number races.
	ErrPOSConflict = errors.New("pos: conflict")
)

// POSServiceDeps bundles collaborators required to construct the POS service.
type POSServiceDeps struct {
	Access       AccessService
	Stores       repositories.StoreRepository
	Orders       repositories.OrderRepository
	Payments     repositories.PaymentRepository
	Stock        repositories.StockRepository
	Counters     repositories.CounterRepository
	OrderNumbers repositories.OrderNumberRepository
	UnitOfWork   repositories.UnitOfWork
	Events       OrderEventPublisher
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type posService struct {
	access       AccessService
	stores       repositories.StoreRepository
	orders       repositories.OrderRepository
	payments     repositories.PaymentRepository
	stock        repositories.StockRepository
	counters     repositories.CounterRepository
	orderNumbers repositories.OrderNumberRepository
	unitOfWork   repositories.UnitOfWork
	events       OrderEventPublisher
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewPOSService wires dependencies into a concrete POSService implementation.
func NewPOSService(deps POSServiceDeps) (POSService, error) {
	if deps.Access == nil {
		return nil, errors.New("pos service: access service is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("pos service: store repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("pos service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("pos service: payment repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("pos service: stock repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("pos service: counter repository is required")
	}
	if deps.OrderNumbers == nil {
		return nil, errors.New("pos service: order number repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &posService{
		access:       deps.Access,
		stores:       deps.Stores,
		orders:       deps.Orders,
		payments:     deps.Payments,
		stock:        deps.Stock,
		counters:     deps.Counters,
		orderNumbers: deps.OrderNumbers,
		unitOfWork:   unit,
		events:       deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ProcessSale validates access and input, then executes the register sale as
// one transaction. Access and validation failures surface as errors so the
// HTTP layer can map them; execution failures after that point are folded
// into the structured result so the register always receives a usable body.
func (s *posService) ProcessSale(ctx context.Context, cmd POSSaleCommand) (POSSaleResult, error) {
	if _, err := s.access.AuthorizeStore(ctx, cmd.StaffID, cmd.StoreID); err != nil {
		return POSSaleResult{}, err
	}
	if err := validateSaleCommand(cmd); err != nil {
		return POSSaleResult{}, err
	}

	store, err := s.stores.FindByID(ctx, cmd.StoreID)
	if err != nil {
		if isRepoNotFound(err) {
			return POSSaleResult{}, fmt.Errorf("%w: store %s", ErrPOSNotFound, cmd.StoreID)
		}
		return POSSaleResult{}, fmt.Errorf("load store: %w", err)
	}

	result, err := s.executeSale(ctx, store, cmd)
	if err != nil {
		s.logger(ctx, "pos.sale.failed", map[string]any{
			"storeId": cmd.StoreID,
			"staffId": cmd.StaffID,
			"error":   err.Error(),
		})
		return POSSaleResult{
			Success: false,
			Message: "sale could not be completed",
			Errors:  []string{err.Error()},
		}, nil
	}
	return result, nil
}

func validateSaleCommand(cmd POSSaleCommand) error {
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: sale must contain at least one item", ErrPOSInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.SKU) == "" {
			return fmt.Errorf("%w: item %d is missing a sku", ErrPOSInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrPOSInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price must not be negative", ErrPOSInvalidInput, i)
		}
	}
	if cmd.Discount < 0 {
		return fmt.Errorf("%w: discount must not be negative", ErrPOSInvalidInput)
	}
	if cmd.RequiresPayment && strings.TrimSpace(cmd.PaymentMethodID) == "" {
		return fmt.Errorf("%w: payment method id is required", ErrPOSInvalidInput)
	}
	return nil
}

func (s *posService) executeSale(ctx context.Context, store domain.Store, cmd POSSaleCommand) (POSSaleResult, error) {
	now := s.clock()

	items, totals := buildSaleLines(cmd)
	if totals.Total < 0 {
		return POSSaleResult{}, fmt.Errorf("%w: discount exceeds sale total", ErrPOSInvalidInput)
	}

	var location *domain.StoreLocation
	if cmd.UpdateInventory {
		location = store.DefaultLocation()
		if location == nil {
			return POSSaleResult{}, fmt.Errorf("%w: store %s has no active stock location", ErrPOSInvalidInput, store.ID)
		}
	}

	var method *domain.StorePaymentMethod
	if cmd.RequiresPayment {
		method = store.PaymentMethod(cmd.PaymentMethodID)
		if method == nil {
			return POSSaleResult{}, fmt.Errorf("%w: payment method %q is not configured for store %s", ErrPOSInvalidInput, cmd.PaymentMethodID, store.ID)
		}
		if method.Type == domain.PaymentMethodCash && cmd.AmountReceived < totals.Total {
			return POSSaleResult{}, fmt.Errorf("%w: amount received %d is less than sale total %d", ErrPOSInvalidInput, cmd.AmountReceived, totals.Total)
		}
	}

	var (
		order   domain.Order
		payment *domain.Payment
	)

	// A lost order number claim aborts the whole transaction, so each retry
	// draws a fresh sequence and rebuilds the documents.
	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, claim, err := s.nextOrderNumber(ctx, store, now)
		if err != nil {
			return POSSaleResult{}, err
		}

		order = s.buildOrder(store, cmd, items, totals, number, now)
		payment = s.buildPayment(order, method, cmd, now)
		if payment != nil {
			order.Status = orderStatusForPayment(payment.Status)
			if payment.Status.Cleared() {
				order.PaidAt = &now
			}
		} else {
			// Payment is collected later; the order waits for settlement.
			order.Status = domain.OrderStatusPendingPayment
		}
		if order.Status == domain.OrderStatusPendingPayment {
			order.PlacedAt = &now
		}
		claim.OrderID = order.ID

		err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
			if cmd.UpdateInventory {
				adjustments := stockAdjustmentsForSale(order, items, location.ID, now, s.newID)
				if _, err := s.stock.ApplyAdjustments(ctx, adjustments); err != nil {
					return err
				}
			}
			if err := s.orderNumbers.Claim(ctx, claim); err != nil {
				return err
			}
			if err := s.orders.Insert(ctx, order); err != nil {
				return err
			}
			if payment != nil {
				if err := s.payments.Insert(ctx, *payment); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if !isRepoConflict(err) {
			return POSSaleResult{}, err
		}
		s.logger(ctx, "pos.sale.order_number_conflict", map[string]any{
			"storeId": store.ID,
			"number":  number,
			"attempt": attempt + 1,
		})
	}
	if lastErr != nil {
		return POSSaleResult{}, fmt.Errorf("%w: could not allocate an order number after %d attempts", ErrPOSConflict, orderNumberAttempts)
	}

	s.publishSaleEvent(ctx, order, cmd, now)

	result := POSSaleResult{
		Success: true,
		Message: "sale completed",
		Order: &POSOrderSummary{
			ID:          order.ID,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			Currency:    order.Currency,
			Subtotal:    order.Totals.Subtotal,
			Discount:    order.Totals.Discount,
			Tax:         order.Totals.Tax,
			GrandTotal:  order.Totals.Total,
			CreatedAt:   order.CreatedAt,
		},
	}
	if payment != nil {
		result.Payment = &POSPaymentSummary{
			ID:            payment.ID,
			Status:        payment.Status,
			Amount:        payment.Amount,
			Change:        payment.Change,
			TransactionID: payment.TransactionID,
		}
	}
	return result, nil
}

// nextOrderNumber draws the next sequence value outside the sale transaction
// (the counter commits in its own transaction) and formats the candidate
// number. The claim document reserves it once the sale transaction commits.
func (s *posService) nextOrderNumber(ctx context.Context, store domain.Store, now time.Time) (string, repositories.OrderNumberClaim, error) {
	year := now.Year()
	counterID := fmt.Sprintf("orders_%s_%d", store.ID, year)
	seq, err := s.counters.Next(ctx, counterID, 1)
	if err != nil {
		return "", repositories.OrderNumberClaim{}, fmt.Errorf("next order sequence: %w", err)
	}

	prefix := strings.TrimSpace(store.OrderNumberPrefix)
	if prefix == "" {
		prefix = "ORD"
	}
	number := fmt.Sprintf("%s-%d-%04d", prefix, year, seq)

	return number, repositories.OrderNumberClaim{
		StoreID:     store.ID,
		Year:        year,
		Sequence:    seq,
		OrderNumber: number,
		ClaimedAt:   now,
	}, nil
}

func buildSaleLines(cmd POSSaleCommand) ([]domain.OrderLineItem, domain.OrderTotals) {
	items := make([]domain.OrderLineItem, 0, len(cmd.Items))
	totals := domain.OrderTotals{Discount: cmd.Discount}
	for _, line := range cmd.Items {
		lineTotal := line.UnitPrice*int64(line.Quantity) + line.Tax
		items = append(items, domain.OrderLineItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			SKU:       strings.TrimSpace(line.SKU),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Tax:       line.Tax,
			Total:     lineTotal,
		})
		totals.Subtotal += line.UnitPrice * int64(line.Quantity)
		totals.Tax += line.Tax
	}
	totals.Total = totals.Subtotal - totals.Discount + totals.Tax
	return items, totals
}

func (s *posService) buildOrder(store domain.Store, cmd POSSaleCommand, items []domain.OrderLineItem, totals domain.OrderTotals, number string, now time.Time) domain.Order {
	staffID := strings.TrimSpace(cmd.StaffID)
	order := domain.Order{
		ID:            orderIDPrefix + s.newID(),
		OrderNumber:   number,
		StoreID:       store.ID,
		OrgID:         store.OrgID,
		CustomerID:    cmd.CustomerID,
		Status:        domain.OrderStatusProcessing,
		Channel:       domain.ChannelPOS,
		Currency:      store.Currency,
		Totals:        totals,
		Items:         items,
		InternalNotes: strings.TrimSpace(cmd.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if staffID != "" {
		order.Audit.CreatedBy = &staffID
		order.Audit.UpdatedBy = &staffID
	}
	return order
}

func (s *posService) buildPayment(order domain.Order, method *domain.StorePaymentMethod, cmd POSSaleCommand, now time.Time) *domain.Payment {
	if !cmd.RequiresPayment || method == nil {
		return nil
	}
	payment := domain.Payment{
		ID:              paymentIDPrefix + s.newID(),
		OrderID:         order.ID,
		StoreID:         order.StoreID,
		PaymentMethodID: method.ID,
		Processor:       method.Processor,
		Amount:          order.Totals.Total,
		Currency:        order.Currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if method.Type.Direct() {
		payment.Status = domain.PaymentStatusSucceeded
		if method.Type == domain.PaymentMethodCash {
			payment.Change = cmd.AmountReceived - order.Totals.Total
		}
		payment.TransactionID = payment.ID
		payment.PaidAt = &now
	} else {
		payment.Status = domain.PaymentStatusPending
	}
	return &payment
}

// orderStatusForPayment maps a payment state onto the order state a fresh
// sale should start in. Webhook reconciliation relies on the same mapping.
func orderStatusForPayment(status domain.PaymentStatus) domain.OrderStatus {
	switch status {
	case domain.PaymentStatusSucceeded, domain.PaymentStatusCaptured:
		return domain.OrderStatusProcessing
	case domain.PaymentStatusPending:
		return domain.OrderStatusPendingPayment
	case domain.PaymentStatusFailed:
		return domain.OrderStatusCreated
	case domain.PaymentStatusRefunded:
		return domain.OrderStatusRefunded
	default:
		return domain.OrderStatusProcessing
	}
}

func stockAdjustmentsForSale(order domain.Order, items []domain.OrderLineItem, locationID string, now time.Time, newID func() string) []repositories.StockAdjustment {
	orderID := order.ID
	adjustments := make([]repositories.StockAdjustment, 0, len(items))
	for _, item := range items {
		adjustments = append(adjustments, repositories.StockAdjustment{
			LocationID: locationID,
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Delta:      -int64(item.Quantity),
			Reason:     "pos_sale",
			OrderID:    &orderID,
			Now:        now,
			MovementID: movementIDPrefix + newID(),
		})
	}
	return adjustments
}

func (s *posService) publishSaleEvent(ctx context.Context, order domain.Order, cmd POSSaleCommand, now time.Time) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:          "order.created",
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		StoreID:       order.StoreID,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.StaffID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"channel":               string(domain.ChannelPOS),
			"sendConfirmationEmail": cmd.SendConfirmationEmail,
		},
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "pos.events.publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}
