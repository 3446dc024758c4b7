package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storeforge/api/internal/domain"
	pfirestore "github.com/storeforge/api/internal/platform/firestore"
)

const paymentsCollection = "payments"

// PaymentRepository persists payment records correlated by processor transaction IDs.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil)
	return &PaymentRepository{base: base}, nil
}

// Insert stores a new payment record. The ID must be unique.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, paymentID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, docRef, encodePaymentDocument(payment)); err != nil {
		return pfirestore.WrapError("payments.insert", err)
	}
	return nil
}

// Update replaces the persisted payment state.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, paymentID)
	if err != nil {
		return err
	}
	if err := txSet(ctx, docRef, encodePaymentDocument(payment)); err != nil {
		return pfirestore.WrapError("payments.update", err)
	}
	return nil
}

// FindByID fetches a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	snap, err := txGet(ctx, docRef)
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.get", err)
	}
	var doc paymentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Payment{}, fmt.Errorf("payments: decode document %s: %w", paymentID, err)
	}
	return decodePaymentDocument(paymentID, doc, snap.CreateTime, snap.UpdateTime), nil
}

// FindByTransactionID resolves the payment owning a processor transaction ID.
// Transaction IDs are unique across processors; a missing record surfaces as
// a not-found repository error.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Payment{}, errors.New("payment repository: transaction id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("transactionId", "==", transactionID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.WrapError("payments.find_by_transaction",
			notFoundError(fmt.Sprintf("payment with transaction %s not found", transactionID)))
	}
	doc := docs[0]
	return decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListByOrder returns every payment recorded against the order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return payments, nil
}

type paymentDocument struct {
	OrderID         string         `firestore:"orderId"`
	StoreID         string         `firestore:"storeId"`
	PaymentMethodID string         `firestore:"paymentMethodId"`
	Processor       string         `firestore:"processor"`
	TransactionID   string         `firestore:"transactionId"`
	Status          string         `firestore:"status"`
	Amount          int64          `firestore:"amount"`
	Change          int64          `firestore:"change"`
	Currency        string         `firestore:"currency"`
	GatewayResponse map[string]any `firestore:"gatewayResponse,omitempty"`
	PaidAt          *time.Time     `firestore:"paidAt,omitempty"`
	CreatedAt       time.Time      `firestore:"createdAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt"`
}

func encodePaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:         strings.TrimSpace(payment.OrderID),
		StoreID:         strings.TrimSpace(payment.StoreID),
		PaymentMethodID: strings.TrimSpace(payment.PaymentMethodID),
		Processor:       strings.TrimSpace(payment.Processor),
		TransactionID:   strings.TrimSpace(payment.TransactionID),
		Status:          string(payment.Status),
		Amount:          payment.Amount,
		Change:          payment.Change,
		Currency:        strings.ToUpper(strings.TrimSpace(payment.Currency)),
		GatewayResponse: cloneMap(payment.GatewayResponse),
		PaidAt:          normalizeTimePointer(payment.PaidAt),
		CreatedAt:       payment.CreatedAt.UTC(),
		UpdatedAt:       payment.UpdatedAt.UTC(),
	}
}

func decodePaymentDocument(id string, doc paymentDocument, createdAt, updatedAt time.Time) domain.Payment {
	return domain.Payment{
		ID:              strings.TrimSpace(id),
		OrderID:         doc.OrderID,
		StoreID:         doc.StoreID,
		PaymentMethodID: doc.PaymentMethodID,
		Processor:       doc.Processor,
		TransactionID:   doc.TransactionID,
		Status:          domain.PaymentStatus(doc.Status),
		Amount:          doc.Amount,
		Change:          doc.Change,
		Currency:        doc.Currency,
		GatewayResponse: cloneMap(doc.GatewayResponse),
		PaidAt:          normalizeTimePointer(doc.PaidAt),
		CreatedAt:       chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:       chooseTime(doc.UpdatedAt, updatedAt),
	}
}
