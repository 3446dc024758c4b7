package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/repositories"
)

var (
	// ErrWebhookInvalidInput indicates the callback was malformed or the
	// processor is not registered.
	ErrWebhookInvalidInput = errors.New("webhook: invalid input")
)

// webhookUpdate is the processor-neutral outcome of translating a callback.
type webhookUpdate struct {
	TransactionID string
	Status        domain.PaymentStatus
	EventType     string
	// Ignore marks event types we acknowledge without touching any payment.
	Ignore bool
	Raw    map[string]any
}

// webhookTranslator converts a raw processor payload into a webhookUpdate.
type webhookTranslator func(payload []byte) (webhookUpdate, error)

// webhookTranslators is the fixed processor registry. Adding a processor is a
// code change, which keeps the set of accepted callback shapes reviewable.
var webhookTranslators = map[string]webhookTranslator{
	"stripe":        translateStripeEvent,
	"paypal":        translatePayPalEvent,
	"bank_transfer": translateBankTransferEvent,
}

// WebhookServiceDeps bundles collaborators for webhook reconciliation.
type WebhookServiceDeps struct {
	Payments repositories.PaymentRepository
	Orders   repositories.OrderRepository
	Flow     OrderFlowService
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	flow     OrderFlowService
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewWebhookService wires dependencies into a concrete WebhookService implementation.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Payments == nil {
		return nil, errors.New("webhook service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order repository is required")
	}
	if deps.Flow == nil {
		return nil, errors.New("webhook service: order flow service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &webhookService{
		payments: deps.Payments,
		orders:   deps.Orders,
		flow:     deps.Flow,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Process translates the callback, updates the referenced payment record and,
// once enough funds have cleared, confirms the order's payment. Callbacks for
// transactions we do not know are acknowledged without side effects so
// processors stop retrying them.
func (s *webhookService) Process(ctx context.Context, processor string, payload []byte) error {
	processor = strings.ToLower(strings.TrimSpace(processor))
	translator, ok := webhookTranslators[processor]
	if !ok {
		return fmt.Errorf("%w: unknown processor %q", ErrWebhookInvalidInput, processor)
	}

	update, err := translator(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookInvalidInput, err)
	}
	if update.Ignore {
		s.logger(ctx, "webhooks.event.ignored", map[string]any{
			"processor": processor,
			"eventType": update.EventType,
		})
		return nil
	}

	payment, err := s.payments.FindByTransactionID(ctx, update.TransactionID)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "webhooks.transaction.unknown", map[string]any{
				"processor":     processor,
				"eventType":     update.EventType,
				"transactionId": update.TransactionID,
			})
			return nil
		}
		return fmt.Errorf("lookup payment: %w", err)
	}

	now := s.clock()
	payment.Status = update.Status
	payment.UpdatedAt = now
	if len(update.Raw) > 0 {
		payment.GatewayResponse = update.Raw
	}
	if update.Status.Cleared() && payment.PaidAt == nil {
		payment.PaidAt = &now
	}
	if err := s.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	s.logger(ctx, "webhooks.payment.updated", map[string]any{
		"processor":     processor,
		"eventType":     update.EventType,
		"paymentId":     payment.ID,
		"orderId":       payment.OrderID,
		"paymentStatus": string(payment.Status),
	})

	if !update.Status.Cleared() {
		return nil
	}
	return s.confirmWhenFullyPaid(ctx, processor, payment)
}

// confirmWhenFullyPaid sums cleared payments for the order and confirms the
// payment once coverage reaches the grand total. ConfirmPayment's state guard
// makes duplicate deliveries harmless.
func (s *webhookService) confirmWhenFullyPaid(ctx context.Context, processor string, payment domain.Payment) error {
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "webhooks.order.missing", map[string]any{
				"paymentId": payment.ID,
				"orderId":   payment.OrderID,
			})
			return nil
		}
		return fmt.Errorf("load order: %w", err)
	}

	records, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	var cleared int64
	for _, record := range records {
		if record.ID == payment.ID {
			// The freshly updated record may not be visible in the query yet.
			record = payment
		}
		if record.Status.Cleared() {
			cleared += record.Amount
		}
	}
	if cleared < order.Totals.Total {
		s.logger(ctx, "webhooks.payment.partial", map[string]any{
			"orderId": order.ID,
			"cleared": cleared,
			"total":   order.Totals.Total,
		})
		return nil
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return nil
	}

	if _, err := s.flow.ConfirmPayment(ctx, ConfirmPaymentCommand{
		OrderID: order.ID,
		ActorID: "webhook:" + processor,
	}); err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	return nil
}

// Processor translators ------------------------------------------------------

type stripeEventPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func translateStripeEvent(payload []byte) (webhookUpdate, error) {
	var event stripeEventPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return webhookUpdate{}, fmt.Errorf("decode stripe event: %w", err)
	}
	update := webhookUpdate{
		EventType:     event.Type,
		TransactionID: event.Data.Object.ID,
		Raw:           rawPayload(payload),
	}
	switch event.Type {
	case "payment_intent.succeeded":
		update.Status = domain.PaymentStatusSucceeded
	case "payment_intent.payment_failed":
		update.Status = domain.PaymentStatusFailed
	case "payment_intent.canceled":
		update.Status = domain.PaymentStatusCancelled
	case "charge.dispute.created":
		// Disputes are surfaced in logs only; the payment keeps its state.
		update.Ignore = true
	default:
		update.Ignore = true
	}
	if !update.Ignore && update.TransactionID == "" {
		return webhookUpdate{}, errors.New("stripe event is missing the object id")
	}
	return update, nil
}

type paypalEventPayload struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

func translatePayPalEvent(payload []byte) (webhookUpdate, error) {
	var event paypalEventPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return webhookUpdate{}, fmt.Errorf("decode paypal event: %w", err)
	}
	update := webhookUpdate{
		EventType:     event.EventType,
		TransactionID: event.Resource.ID,
		Raw:           rawPayload(payload),
	}
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		update.Status = domain.PaymentStatusCaptured
	case "PAYMENT.CAPTURE.DENIED":
		update.Status = domain.PaymentStatusFailed
	case "PAYMENT.SALE.COMPLETED":
		update.Status = domain.PaymentStatusSucceeded
	case "PAYMENT.SALE.DENIED":
		update.Status = domain.PaymentStatusFailed
	default:
		update.Ignore = true
	}
	if !update.Ignore && update.TransactionID == "" {
		return webhookUpdate{}, errors.New("paypal event is missing the resource id")
	}
	return update, nil
}

type bankTransferEventPayload struct {
	Event         string `json:"event"`
	TransactionID string `json:"transactionId"`
}

func translateBankTransferEvent(payload []byte) (webhookUpdate, error) {
	var event bankTransferEventPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return webhookUpdate{}, fmt.Errorf("decode bank transfer event: %w", err)
	}
	update := webhookUpdate{
		EventType:     event.Event,
		TransactionID: event.TransactionID,
		Raw:           rawPayload(payload),
	}
	switch event.Event {
	case "transfer.confirmed":
		update.Status = domain.PaymentStatusSucceeded
	case "transfer.failed":
		update.Status = domain.PaymentStatusFailed
	default:
		update.Ignore = true
	}
	if !update.Ignore && update.TransactionID == "" {
		return webhookUpdate{}, errors.New("bank transfer event is missing the transaction id")
	}
	return update, nil
}

func rawPayload(payload []byte) map[string]any {
	raw := map[string]any{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}
	return raw
}
