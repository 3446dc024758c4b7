package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/storeforge/api/internal/domain"
	pfirestore "github.com/storeforge/api/internal/platform/firestore"
	"github.com/storeforge/api/internal/repositories"
)

const (
	stockCollection          = "stock"
	stockMovementsCollection = "stockMovements"
)

// StockRepository manages per-location stock levels and their movement audit trail.
type StockRepository struct {
	provider  *pfirestore.Provider
	levels    *pfirestore.BaseRepository[stockDocument]
	movements *pfirestore.BaseRepository[stockMovementDocument]
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository: firestore provider is required")
	}
	levels := pfirestore.NewBaseRepository[stockDocument](provider, stockCollection, nil, nil)
	movements := pfirestore.NewBaseRepository[stockMovementDocument](provider, stockMovementsCollection, nil, nil)
	return &StockRepository{provider: provider, levels: levels, movements: movements}, nil
}

// stockDocID composes the deterministic document ID for a location/SKU pair.
func stockDocID(locationID, sku string) string {
	return fmt.Sprintf("%s__%s", strings.TrimSpace(locationID), strings.TrimSpace(sku))
}

// Get fetches the stock level for a SKU at a location.
func (r *StockRepository) Get(ctx context.Context, locationID string, sku string) (domain.StockLevel, error) {
	if r == nil || r.levels == nil {
		return domain.StockLevel{}, errors.New("stock repository not initialised")
	}
	if strings.TrimSpace(locationID) == "" || strings.TrimSpace(sku) == "" {
		return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "location id and sku are required", nil)
	}
	docRef, err := r.levels.DocumentRef(ctx, stockDocID(locationID, sku))
	if err != nil {
		return domain.StockLevel{}, err
	}
	snap, err := txGet(ctx, docRef)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock for %s at %s not found", sku, locationID), err)
		}
		return domain.StockLevel{}, pfirestore.WrapError("stock.get", err)
	}
	var doc stockDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.StockLevel{}, fmt.Errorf("stock: decode document %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(), nil
}

// ApplyAdjustments validates and applies a batch of stock deltas.
//
// Every stock level is read before the first write so the batch is legal
// inside a Firestore transaction. Without an ambient transaction the batch
// runs in its own.
func (r *StockRepository) ApplyAdjustments(ctx context.Context, adjs []repositories.StockAdjustment) ([]domain.StockLevel, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock repository not initialised")
	}
	if len(adjs) == 0 {
		return nil, nil
	}
	for _, adj := range adjs {
		if strings.TrimSpace(adj.LocationID) == "" || strings.TrimSpace(adj.SKU) == "" {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidInput, "location id and sku are required", nil)
		}
		if strings.TrimSpace(adj.MovementID) == "" {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidInput, "movement id is required", nil)
		}
	}

	if _, inTx := pfirestore.TxFromContext(ctx); inTx {
		return r.applyAdjustments(ctx, adjs)
	}

	var levels []domain.StockLevel
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var applyErr error
		levels, applyErr = r.applyAdjustments(pfirestore.ContextWithTx(ctx, tx), adjs)
		return applyErr
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return nil, stockErr
		}
		return nil, pfirestore.WrapError("stock.adjust", err)
	}
	return levels, nil
}

func (r *StockRepository) applyAdjustments(ctx context.Context, adjs []repositories.StockAdjustment) ([]domain.StockLevel, error) {
	type pending struct {
		ref *firestore.DocumentRef
		doc stockDocument
		adj repositories.StockAdjustment
	}

	// Read phase.
	updates := make([]pending, 0, len(adjs))
	for _, adj := range adjs {
		docRef, err := r.levels.DocumentRef(ctx, stockDocID(adj.LocationID, adj.SKU))
		if err != nil {
			return nil, err
		}
		snap, err := txGet(ctx, docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				if adj.Delta < 0 {
					return nil, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock for %s at %s not found", adj.SKU, adj.LocationID), err)
				}
				updates = append(updates, pending{ref: docRef, doc: stockDocument{
					LocationID: strings.TrimSpace(adj.LocationID),
					ProductID:  strings.TrimSpace(adj.ProductID),
					SKU:        strings.TrimSpace(adj.SKU),
				}, adj: adj})
				continue
			}
			return nil, pfirestore.WrapError("stock.adjust", err)
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("stock: decode document %s: %w", snap.Ref.ID, err)
		}
		updates = append(updates, pending{ref: docRef, doc: doc, adj: adj})
	}

	// Validate and write phase.
	levels := make([]domain.StockLevel, 0, len(updates))
	for _, u := range updates {
		doc := u.doc
		if u.adj.Delta < 0 && doc.OnHand-doc.Reserved+u.adj.Delta < 0 {
			return nil, repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s at %s", u.adj.SKU, u.adj.LocationID), nil)
		}
		doc.OnHand += u.adj.Delta
		doc.UpdatedAt = u.adj.Now.UTC()
		if err := txSet(ctx, u.ref, doc); err != nil {
			return nil, pfirestore.WrapError("stock.adjust", err)
		}

		movementRef, err := r.movements.DocumentRef(ctx, u.adj.MovementID)
		if err != nil {
			return nil, err
		}
		movement := stockMovementDocument{
			LocationID: strings.TrimSpace(u.adj.LocationID),
			ProductID:  strings.TrimSpace(u.adj.ProductID),
			SKU:        strings.TrimSpace(u.adj.SKU),
			Delta:      u.adj.Delta,
			Reason:     strings.TrimSpace(u.adj.Reason),
			OrderID:    normalizeStringPointer(u.adj.OrderID),
			CreatedAt:  u.adj.Now.UTC(),
		}
		if err := txCreate(ctx, movementRef, movement); err != nil {
			return nil, pfirestore.WrapError("stock.movement", err)
		}
		levels = append(levels, doc.toDomain())
	}
	return levels, nil
}

// ListMovements returns the movement audit trail filtered by location, SKU, or order.
func (r *StockRepository) ListMovements(ctx context.Context, filter repositories.StockMovementFilter) (domain.CursorPage[domain.StockMovement], error) {
	if r == nil || r.movements == nil {
		return domain.CursorPage[domain.StockMovement]{}, errors.New("stock repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockMovement]{}, fmt.Errorf("stock repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.movements.Query(ctx, func(q firestore.Query) firestore.Query {
		if locationID := strings.TrimSpace(filter.LocationID); locationID != "" {
			q = q.Where("locationId", "==", locationID)
		}
		if sku := strings.TrimSpace(filter.SKU); sku != "" {
			q = q.Where("sku", "==", sku)
		}
		if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
			q = q.Where("orderId", "==", orderID)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.StockMovement]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.StockMovement, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.StockMovement]{Items: items, NextPageToken: nextToken}, nil
}

type stockDocument struct {
	LocationID string    `firestore:"locationId"`
	ProductID  string    `firestore:"productId"`
	SKU        string    `firestore:"sku"`
	OnHand     int64     `firestore:"onHand"`
	Reserved   int64     `firestore:"reserved"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d stockDocument) toDomain() domain.StockLevel {
	return domain.StockLevel{
		LocationID: d.LocationID,
		ProductID:  d.ProductID,
		SKU:        d.SKU,
		OnHand:     d.OnHand,
		Reserved:   d.Reserved,
		UpdatedAt:  d.UpdatedAt,
	}
}

type stockMovementDocument struct {
	LocationID string    `firestore:"locationId"`
	ProductID  string    `firestore:"productId"`
	SKU        string    `firestore:"sku"`
	Delta      int64     `firestore:"delta"`
	Reason     string    `firestore:"reason"`
	OrderID    *string   `firestore:"orderId,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func (d stockMovementDocument) toDomain(id string) domain.StockMovement {
	return domain.StockMovement{
		ID:         id,
		LocationID: d.LocationID,
		ProductID:  d.ProductID,
		SKU:        d.SKU,
		Delta:      d.Delta,
		Reason:     d.Reason,
		OrderID:    d.OrderID,
		CreatedAt:  d.CreatedAt,
	}
}
