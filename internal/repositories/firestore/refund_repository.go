package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storeforge/api/internal/domain"
	pfirestore "github.com/storeforge/api/internal/platform/firestore"
)

const refundsCollection = "refunds"

// RefundRepository persists refund records issued against orders.
type RefundRepository struct {
	base *pfirestore.BaseRepository[refundDocument]
}

// NewRefundRepository constructs a Firestore-backed refund repository.
func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[refundDocument](provider, refundsCollection, nil, nil)
	return &RefundRepository{base: base}, nil
}

// Insert stores a new refund record. Inside a unit of work the write commits
// together with the order transition that triggered it.
func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	if r == nil || r.base == nil {
		return errors.New("refund repository not initialised")
	}
	refundID := strings.TrimSpace(refund.ID)
	if refundID == "" {
		return errors.New("refund repository: refund id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, refundID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, docRef, encodeRefundDocument(refund)); err != nil {
		return pfirestore.WrapError("refunds.insert", err)
	}
	return nil
}

// ListByOrder returns refunds recorded against the order, oldest first.
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("refund repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("refund repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	refunds := make([]domain.Refund, 0, len(docs))
	for _, doc := range docs {
		refunds = append(refunds, decodeRefundDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return refunds, nil
}

type refundDocument struct {
	OrderID    string    `firestore:"orderId"`
	Amount     int64     `firestore:"amount"`
	Currency   string    `firestore:"currency"`
	Reason     string    `firestore:"reason,omitempty"`
	Status     string    `firestore:"status"`
	RefundedAt time.Time `firestore:"refundedAt"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func encodeRefundDocument(refund domain.Refund) refundDocument {
	return refundDocument{
		OrderID:    strings.TrimSpace(refund.OrderID),
		Amount:     refund.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(refund.Currency)),
		Reason:     strings.TrimSpace(refund.Reason),
		Status:     strings.TrimSpace(refund.Status),
		RefundedAt: refund.RefundedAt.UTC(),
		CreatedAt:  refund.CreatedAt.UTC(),
	}
}

func decodeRefundDocument(id string, doc refundDocument, createdAt time.Time) domain.Refund {
	return domain.Refund{
		ID:         strings.TrimSpace(id),
		OrderID:    doc.OrderID,
		Amount:     doc.Amount,
		Currency:   doc.Currency,
		Reason:     doc.Reason,
		Status:     doc.Status,
		RefundedAt: doc.RefundedAt,
		CreatedAt:  chooseTime(doc.CreatedAt, createdAt),
	}
}
