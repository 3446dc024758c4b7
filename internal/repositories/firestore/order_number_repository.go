package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pfirestore "github.com/storeforge/api/internal/platform/firestore"
	"github.com/storeforge/api/internal/repositories"
)

const orderNumbersCollection = "orderNumbers"

// OrderNumberRepository reserves order numbers through claim documents so a
// formatted number is never handed to two orders, even across processes.
type OrderNumberRepository struct {
	base *pfirestore.BaseRepository[orderNumberClaimDocument]
}

// NewOrderNumberRepository constructs a Firestore-backed order number repository.
func NewOrderNumberRepository(provider *pfirestore.Provider) (*OrderNumberRepository, error) {
	if provider == nil {
		return nil, errors.New("order number repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderNumberClaimDocument](provider, orderNumbersCollection, nil, nil)
	return &OrderNumberRepository{base: base}, nil
}

// Claim creates the claim document for the number. A duplicate claim surfaces
// as a conflict repository error, telling the caller to draw the next
// sequence value and retry.
func (r *OrderNumberRepository) Claim(ctx context.Context, claim repositories.OrderNumberClaim) error {
	if r == nil || r.base == nil {
		return errors.New("order number repository not initialised")
	}
	if strings.TrimSpace(claim.StoreID) == "" {
		return errors.New("order number repository: store id is required")
	}
	if strings.TrimSpace(claim.OrderNumber) == "" {
		return errors.New("order number repository: order number is required")
	}

	docID := fmt.Sprintf("%s__%d__%d", strings.TrimSpace(claim.StoreID), claim.Year, claim.Sequence)
	docRef, err := r.base.DocumentRef(ctx, docID)
	if err != nil {
		return err
	}
	doc := orderNumberClaimDocument{
		StoreID:     strings.TrimSpace(claim.StoreID),
		Year:        claim.Year,
		Sequence:    claim.Sequence,
		OrderNumber: strings.TrimSpace(claim.OrderNumber),
		OrderID:     strings.TrimSpace(claim.OrderID),
		ClaimedAt:   claim.ClaimedAt.UTC(),
	}
	if err := txCreate(ctx, docRef, doc); err != nil {
		return pfirestore.WrapError("order_numbers.claim", err)
	}
	return nil
}

type orderNumberClaimDocument struct {
	StoreID     string    `firestore:"storeId"`
	Year        int       `firestore:"year"`
	Sequence    int64     `firestore:"sequence"`
	OrderNumber string    `firestore:"orderNumber"`
	OrderID     string    `firestore:"orderId"`
	ClaimedAt   time.Time `firestore:"claimedAt"`
}
