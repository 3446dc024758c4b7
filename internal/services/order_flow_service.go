package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/payments"
	"github.com/storeforge/api/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	paymentIDPrefix = "pay_"
	refundIDPrefix  = "ref_"

	defaultAutoFinishAfter = 24 * time.Hour
	defaultAutoFinishBatch = 100
)

var (
	// ErrOrderFlowInvalidInput indicates the command failed validation.
	ErrOrderFlowInvalidInput = errors.New("order flow: invalid input")
	// ErrOrderFlowNotFound indicates the order does not exist.
	ErrOrderFlowNotFound = errors.New("order flow: order not found")
	// ErrOrderFlowInvalidState indicates the requested transition is not allowed
	// from the order's current state.
	ErrOrderFlowInvalidState = errors.New("order flow: invalid state transition")
	// ErrOrderFlowConflict indicates a concurrent update collided.
	ErrOrderFlowConflict = errors.New("order flow: conflict")
)

// orderStateTransitions is the single source of truth for the order lifecycle.
// Terminal states map to empty rows.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated:        {domain.OrderStatusPendingPayment, domain.OrderStatusFinished, domain.OrderStatusCancelled},
	domain.OrderStatusPendingPayment: {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:     {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:        {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:      {domain.OrderStatusFinished, domain.OrderStatusRefunded},
	domain.OrderStatusFinished:       {domain.OrderStatusRefunded},
	domain.OrderStatusCancelled:      {},
	domain.OrderStatusRefunded:       {},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusCreated,
	domain.OrderStatusPendingPayment,
	domain.OrderStatusProcessing,
}

var refundableStatuses = []domain.OrderStatus{
	domain.OrderStatusDelivered,
	domain.OrderStatusFinished,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	StoreID        string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderFlowServiceDeps bundles collaborators required to construct the flow service.
type OrderFlowServiceDeps struct {
	Orders          repositories.OrderRepository
	Payments        repositories.PaymentRepository
	Refunds         repositories.RefundRepository
	Stores          repositories.StoreRepository
	Providers       *payments.Manager
	UnitOfWork      repositories.UnitOfWork
	Events          OrderEventPublisher
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
	AutoFinishAfter time.Duration
	AutoFinishBatch int
}

type orderFlowService struct {
	orders          repositories.OrderRepository
	payments        repositories.PaymentRepository
	refunds         repositories.RefundRepository
	stores          repositories.StoreRepository
	providers       *payments.Manager
	unitOfWork      repositories.UnitOfWork
	events          OrderEventPublisher
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
	autoFinishAfter time.Duration
	autoFinishBatch int
}

// NewOrderFlowService wires dependencies into a concrete OrderFlowService implementation.
func NewOrderFlowService(deps OrderFlowServiceDeps) (OrderFlowService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order flow service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order flow service: payment repository is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("order flow service: refund repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("order flow service: store repository is required")
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

	after := deps.AutoFinishAfter
	if after <= 0 {
		after = defaultAutoFinishAfter
	}
	batch := deps.AutoFinishBatch
	if batch <= 0 {
		batch = defaultAutoFinishBatch
	}

	return &orderFlowService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		refunds:    deps.Refunds,
		stores:     deps.Stores,
		providers:  deps.Providers,
		unitOfWork: unit,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:           idGen,
		logger:          logger,
		autoFinishAfter: after,
		autoFinishBatch: batch,
	}, nil
}

func (s *orderFlowService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (OrderWithRecords, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return OrderWithRecords{}, err
	}
	result := OrderWithRecords{Order: order}
	if opts.IncludePayments {
		records, err := s.payments.ListByOrder(ctx, order.ID)
		if err != nil {
			return OrderWithRecords{}, s.mapRepositoryError(err, "list payments")
		}
		result.Payments = records
	}
	if opts.IncludeRefunds {
		records, err := s.refunds.ListByOrder(ctx, order.ID)
		if err != nil {
			return OrderWithRecords{}, s.mapRepositoryError(err, "list refunds")
		}
		result.Refunds = records
	}
	return result, nil
}

func (s *orderFlowService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderFlowInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err, "load order")
	}
	return order, nil
}

func (s *orderFlowService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if strings.TrimSpace(filter.StoreID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: store id is required", ErrOrderFlowInvalidInput)
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err, "list orders")
	}
	return page, nil
}

// ValidTransitions returns the adjacency row for the order's current state.
// Terminal states return an empty slice.
func (s *orderFlowService) ValidTransitions(ctx context.Context, orderID string) ([]OrderStatus, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(orderStateTransitions[order.Status]), nil
}

func (s *orderFlowService) PayOrder(ctx context.Context, cmd PayOrderCommand) (PayOrderResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PayOrderResult{}, fmt.Errorf("%w: order id is required", ErrOrderFlowInvalidInput)
	}
	methodID := strings.TrimSpace(cmd.PaymentMethodID)
	if methodID == "" {
		return PayOrderResult{}, fmt.Errorf("%w: payment method id is required", ErrOrderFlowInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PayOrderResult{}, s.mapRepositoryError(err, "load order")
	}
	if order.Status != domain.OrderStatusCreated {
		return PayOrderResult{}, transitionErrorFrom(order.Status, "pay")
	}

	store, err := s.stores.FindByID(ctx, order.StoreID)
	if err != nil {
		return PayOrderResult{}, s.mapRepositoryError(err, "load store")
	}
	method := store.PaymentMethod(methodID)
	if method == nil {
		return PayOrderResult{}, fmt.Errorf("%w: payment method %q is not configured for store %s", ErrOrderFlowInvalidInput, methodID, store.ID)
	}

	now := s.clock()
	previous := order.Status

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

	var clientSecret string
	var target domain.OrderStatus

	if method.Type.Direct() {
		// Only cash takes tender: the till counts change and an underpayment
		// is rejected. Card terminals charge the exact total.
		if method.Type == domain.PaymentMethodCash {
			change := cmd.AmountReceived - order.Totals.Total
			if change < 0 {
				return PayOrderResult{}, fmt.Errorf("%w: amount received %d is less than order total %d", ErrOrderFlowInvalidInput, cmd.AmountReceived, order.Totals.Total)
			}
			payment.Change = change
		}
		payment.Status = domain.PaymentStatusSucceeded
		payment.TransactionID = payment.ID
		payment.PaidAt = &now
		order.PaidAt = &now
		target = domain.OrderStatusFinished
	} else {
		if s.providers == nil {
			return PayOrderResult{}, fmt.Errorf("%w: no payment provider configured for method %q", ErrOrderFlowInvalidInput, methodID)
		}
		intent, err := s.providers.CreateIntent(ctx,
			payments.PaymentContext{PreferredProvider: method.Processor, Currency: order.Currency},
			payments.IntentRequest{
				Amount:      order.Totals.Total,
				Currency:    order.Currency,
				CustomerID:  stringValue(order.CustomerID),
				Description: fmt.Sprintf("Order %s", order.OrderNumber),
				Metadata: map[string]string{
					"orderId":     order.ID,
					"orderNumber": order.OrderNumber,
				},
				IdempotencyKey: payment.ID,
			})
		if err != nil {
			return PayOrderResult{}, fmt.Errorf("create payment intent: %w", err)
		}
		payment.Status = domain.PaymentStatusPending
		payment.Processor = intent.Provider
		payment.TransactionID = intent.ID
		payment.GatewayResponse = intent.Raw
		clientSecret = intent.ClientSecret
		target = domain.OrderStatusPendingPayment
	}

	if err := s.applyStatusTransition(&order, target, cmd.ActorID, now); err != nil {
		return PayOrderResult{}, err
	}
	if err := s.mergeFlowMetadata(&order, cmd.Metadata); err != nil {
		return PayOrderResult{}, err
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.payments.Insert(ctx, payment); err != nil {
			return s.mapRepositoryError(err, "insert payment")
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return s.mapRepositoryError(err, "update order")
		}
		return nil
	})
	if err != nil {
		return PayOrderResult{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.payment_recorded",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"paymentId": payment.ID,
			"method":    string(method.Type),
		},
	})

	return PayOrderResult{Order: order, Payment: payment, ClientSecret: clientSecret}, nil
}

// ConfirmPayment moves an awaited order to processing. When the order is in
// any other state the call is a logged no-op, which makes duplicate webhook
// deliveries safe.
func (s *orderFlowService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != domain.OrderStatusPendingPayment {
		s.logger(ctx, "orders.flow.confirm_payment.skipped", map[string]any{
			"orderId": order.ID,
			"status":  string(order.Status),
		})
		return order, nil
	}

	now := s.clock()
	previous := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusProcessing, cmd.ActorID, now); err != nil {
		return Order{}, err
	}
	if err := s.mergeFlowMetadata(&order, cmd.Metadata); err != nil {
		return Order{}, err
	}
	if err := s.updateOrder(ctx, order); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.payment_confirmed",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return order, nil
}

func (s *orderFlowService) ShipOrder(ctx context.Context, cmd ShipOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != domain.OrderStatusProcessing {
		return Order{}, transitionErrorFrom(order.Status, "ship")
	}

	now := s.clock()
	previous := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusShipped, cmd.ActorID, now); err != nil {
		return Order{}, err
	}
	order.Shipping.TrackingNumber = strings.TrimSpace(cmd.TrackingNumber)
	order.Shipping.Carrier = strings.TrimSpace(cmd.Carrier)
	metadata := withNote(cmd.Metadata, "shipping_notes", cmd.Notes)
	if err := s.mergeFlowMetadata(&order, metadata); err != nil {
		return Order{}, err
	}
	if err := s.updateOrder(ctx, order); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.shipped",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"carrier":        order.Shipping.Carrier,
			"trackingNumber": order.Shipping.TrackingNumber,
		},
	})
	return order, nil
}

func (s *orderFlowService) DeliverOrder(ctx context.Context, cmd DeliverOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != domain.OrderStatusShipped {
		return Order{}, transitionErrorFrom(order.Status, "deliver")
	}

	now := s.clock()
	previous := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusDelivered, cmd.ActorID, now); err != nil {
		return Order{}, err
	}
	order.Shipping.DeliveredTo = strings.TrimSpace(cmd.DeliveredTo)
	metadata := withNote(cmd.Metadata, "delivery_notes", cmd.Notes)
	if err := s.mergeFlowMetadata(&order, metadata); err != nil {
		return Order{}, err
	}
	if err := s.updateOrder(ctx, order); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.delivered",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return order, nil
}

func (s *orderFlowService) ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != domain.OrderStatusDelivered {
		return Order{}, transitionErrorFrom(order.Status, "confirm delivery of")
	}

	now := s.clock()
	previous := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusFinished, cmd.ActorID, now); err != nil {
		return Order{}, err
	}
	if err := s.mergeFlowMetadata(&order, cmd.Metadata); err != nil {
		return Order{}, err
	}
	if err := s.updateOrder(ctx, order); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.finished",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return order, nil
}

func (s *orderFlowService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order in state %s cannot be cancelled (cancellable states: %s)",
			ErrOrderFlowInvalidState, order.Status, joinStatuses(cancellableStatuses))
	}

	now := s.clock()
	previous := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusCancelled, cmd.ActorID, now); err != nil {
		return Order{}, err
	}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		order.CancelReason = &reason
	}
	metadata := withNote(cmd.Metadata, "cancellation_reason", cmd.Reason)
	if err := s.mergeFlowMetadata(&order, metadata); err != nil {
		return Order{}, err
	}
	if err := s.updateOrder(ctx, order); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.cancelled",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"reason": strings.TrimSpace(cmd.Reason),
		},
	})
	return order, nil
}

// RefundOrder writes the refund record and the state transition in a single
// unit of work so the books can never show a refunded order without the
// matching refund row.
func (s *orderFlowService) RefundOrder(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !slices.Contains(refundableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order in state %s cannot be refunded (refundable states: %s)",
			ErrOrderFlowInvalidState, order.Status, joinStatuses(refundableStatuses))
	}

	amount := order.Totals.Total
	if cmd.Amount != nil {
		amount = *cmd.Amount
	}
	if amount <= 0 {
		return Order{}, fmt.Errorf("%w: refund amount must be positive", ErrOrderFlowInvalidInput)
	}
	if amount > order.Totals.Total {
		return Order{}, fmt.Errorf("%w: refund amount %d exceeds order total %d", ErrOrderFlowInvalidInput, amount, order.Totals.Total)
	}

	now := s.clock()
	previous := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusRefunded, cmd.ActorID, now); err != nil {
		return Order{}, err
	}
	metadata := withNote(cmd.Metadata, "refund_reason", cmd.Reason)
	if err := s.mergeFlowMetadata(&order, metadata); err != nil {
		return Order{}, err
	}

	refund := domain.Refund{
		ID:         refundIDPrefix + s.newID(),
		OrderID:    order.ID,
		Amount:     amount,
		Currency:   order.Currency,
		Reason:     strings.TrimSpace(cmd.Reason),
		Status:     "completed",
		RefundedAt: now,
		CreatedAt:  now,
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.refunds.Insert(ctx, refund); err != nil {
			return s.mapRepositoryError(err, "insert refund")
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return s.mapRepositoryError(err, "update order")
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.refundProcessorPayment(ctx, order, refund)

	s.publishEvent(ctx, OrderEvent{
		Type:           "order.refunded",
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		StoreID:        order.StoreID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"refundId": refund.ID,
			"amount":   refund.Amount,
		},
	})
	return order, nil
}

// refundProcessorPayment asks the processor to return funds for cleared online
// payments. The ledger transition has already committed; a processor failure
// here is logged for manual follow-up rather than unwinding the order.
func (s *orderFlowService) refundProcessorPayment(ctx context.Context, order domain.Order, refund domain.Refund) {
	if s.providers == nil {
		return
	}
	records, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "orders.flow.refund.lookup_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	for _, payment := range records {
		if !payment.Status.Cleared() || payment.TransactionID == "" {
			continue
		}
		if !s.providers.Supports(payment.Processor) {
			continue
		}
		_, err := s.providers.Refund(ctx,
			payments.PaymentContext{PreferredProvider: payment.Processor, Currency: payment.Currency},
			payments.RefundRequest{
				IntentID:       payment.TransactionID,
				Amount:         &refund.Amount,
				Reason:         refund.Reason,
				IdempotencyKey: refund.ID,
			})
		if err != nil {
			s.logger(ctx, "orders.flow.refund.processor_failed", map[string]any{
				"orderId":   order.ID,
				"paymentId": payment.ID,
				"error":     err.Error(),
			})
		}
		return
	}
}

// AutoFinishDelivered finishes delivered orders whose delivery timestamp is
// older than the configured window. Failures are isolated per order; the
// returned count covers successful transitions only.
func (s *orderFlowService) AutoFinishDelivered(ctx context.Context) (int, error) {
	now := s.clock()
	cutoff := now.Add(-s.autoFinishAfter)

	orders, err := s.orders.ListDeliveredBefore(ctx, cutoff, s.autoFinishBatch)
	if err != nil {
		return 0, s.mapRepositoryError(err, "list delivered orders")
	}

	finished := 0
	for _, order := range orders {
		previous := order.Status
		if err := s.applyStatusTransition(&order, domain.OrderStatusFinished, "", now); err != nil {
			s.logger(ctx, "orders.flow.auto_finish.skipped", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		metadata := map[string]any{
			"auto_finished":    true,
			"auto_finished_at": now.Format(time.RFC3339),
		}
		if err := s.mergeFlowMetadata(&order, metadata); err != nil {
			s.logger(ctx, "orders.flow.auto_finish.skipped", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		if err := s.orders.Update(ctx, order); err != nil {
			s.logger(ctx, "orders.flow.auto_finish.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		finished++
		s.publishEvent(ctx, OrderEvent{
			Type:           "order.finished",
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			StoreID:        order.StoreID,
			PreviousStatus: string(previous),
			CurrentStatus:  string(order.Status),
			OccurredAt:     now,
			Metadata:       map[string]any{"autoFinished": true},
		})
	}

	s.logger(ctx, "orders.flow.auto_finish.completed", map[string]any{
		"candidates": len(orders),
		"finished":   finished,
	})
	return finished, nil
}

// Internal helpers -----------------------------------------------------------

func (s *orderFlowService) applyStatusTransition(order *domain.Order, target domain.OrderStatus, actorID string, now time.Time) error {
	allowed := orderStateTransitions[order.Status]
	if !slices.Contains(allowed, target) {
		next := "none"
		if len(allowed) > 0 {
			next = joinStatuses(allowed)
		}
		return fmt.Errorf("%w: cannot move order from %s to %s (valid next states: %s)",
			ErrOrderFlowInvalidState, order.Status, target, next)
	}
	order.Status = target
	order.UpdatedAt = now
	if actor := strings.TrimSpace(actorID); actor != "" {
		order.Audit.UpdatedBy = &actor
	}
	s.updateTimestamps(order, target, now)
	return nil
}

func (s *orderFlowService) updateTimestamps(order *domain.Order, target domain.OrderStatus, now time.Time) {
	switch target {
	case domain.OrderStatusPendingPayment:
		if order.PlacedAt == nil {
			order.PlacedAt = &now
		}
	case domain.OrderStatusProcessing:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusFinished:
		order.FinishedAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	}
}

func (s *orderFlowService) mergeFlowMetadata(order *domain.Order, metadata map[string]any) error {
	merged, err := domain.MergeFlowMetadata(order.InternalNotes, metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderFlowInvalidInput, err)
	}
	order.InternalNotes = merged
	return nil
}

func (s *orderFlowService) updateOrder(ctx context.Context, order domain.Order) error {
	return s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Update(ctx, order); err != nil {
			return s.mapRepositoryError(err, "update order")
		}
		return nil
	})
}

func (s *orderFlowService) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	unit := s.unitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	return unit.RunInTx(ctx, fn)
}

func (s *orderFlowService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "orders.events.publish_failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderFlowService) mapRepositoryError(err error, op string) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrOrderFlowNotFound, op)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrOrderFlowConflict, op)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// transitionErrorFrom reports an operation rejected by a precondition on the
// current state, naming the states the order could still move to.
func transitionErrorFrom(current domain.OrderStatus, verb string) error {
	allowed := orderStateTransitions[current]
	next := "none"
	if len(allowed) > 0 {
		next = joinStatuses(allowed)
	}
	return fmt.Errorf("%w: cannot %s order in state %s (valid next states: %s)",
		ErrOrderFlowInvalidState, verb, current, next)
}

func joinStatuses(statuses []domain.OrderStatus) string {
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

func withNote(metadata map[string]any, key string, value string) map[string]any {
	value = strings.TrimSpace(value)
	if value == "" {
		return metadata
	}
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[key] = value
	return out
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
