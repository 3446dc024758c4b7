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
	"github.com/storeforge/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents with their embedded line items.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, docRef, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if err := txSet(ctx, docRef, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := txGet(ctx, docRef)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("orders: decode document %s: %w", orderID, err)
	}
	return decodeOrderDocument(orderID, doc, snap.CreateTime, snap.UpdateTime), nil
}

// List returns orders for a store ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	storeID := strings.TrimSpace(filter.StoreID)
	if storeID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: store id is required")
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
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseStatuses(filter.Status)
	customerID := strings.TrimSpace(filter.CustomerID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("storeId", "==", storeID)

		if customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
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
		return domain.CursorPage[domain.Order]{}, err
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

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// ListDeliveredBefore returns delivered orders whose delivery timestamp is
// older than the cutoff, oldest first, used by the auto-finish sweep.
func (r *OrderRepository) ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if cutoff.IsZero() {
		return nil, errors.New("order repository: cutoff is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.OrderStatusDelivered)).
			Where("deliveredAt", "<", cutoff.UTC()).
			OrderBy("deliveredAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return orders, nil
}

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	StoreID         string              `firestore:"storeId"`
	OrgID           string              `firestore:"orgId"`
	CustomerID      *string             `firestore:"customerId,omitempty"`
	Status          string              `firestore:"status"`
	Channel         string              `firestore:"channel"`
	Currency        string              `firestore:"currency"`
	Subtotal        int64               `firestore:"subtotal"`
	Discount        int64               `firestore:"discount"`
	Tax             int64               `firestore:"tax"`
	GrandTotal      int64               `firestore:"grandTotal"`
	Items           []orderItemDocument `firestore:"items"`
	ShippingAddress *string             `firestore:"shippingAddressId,omitempty"`
	BillingAddress  *string             `firestore:"billingAddressId,omitempty"`
	Carrier         string              `firestore:"carrier,omitempty"`
	TrackingNumber  string              `firestore:"trackingNumber,omitempty"`
	DeliveredTo     string              `firestore:"deliveredTo,omitempty"`
	InternalNotes   string              `firestore:"internalNotes,omitempty"`
	CreatedBy       *string             `firestore:"createdBy,omitempty"`
	UpdatedBy       *string             `firestore:"updatedBy,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PlacedAt        *time.Time          `firestore:"placedAt,omitempty"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt       *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	FinishedAt      *time.Time          `firestore:"finishedAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
	RefundedAt      *time.Time          `firestore:"refundedAt,omitempty"`
	CancelReason    *string             `firestore:"cancelReason,omitempty"`
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	VariantID *string `firestore:"variantId,omitempty"`
	SKU       string  `firestore:"sku"`
	Name      string  `firestore:"name"`
	Quantity  int     `firestore:"quantity"`
	UnitPrice int64   `firestore:"unitPrice"`
	Tax       int64   `firestore:"tax"`
	Total     int64   `firestore:"total"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: normalizeStringPointer(item.VariantID),
			SKU:       strings.TrimSpace(item.SKU),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Tax:       item.Tax,
			Total:     item.Total,
		})
	}
	return orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		StoreID:         strings.TrimSpace(order.StoreID),
		OrgID:           strings.TrimSpace(order.OrgID),
		CustomerID:      normalizeStringPointer(order.CustomerID),
		Status:          string(order.Status),
		Channel:         string(order.Channel),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:        order.Totals.Subtotal,
		Discount:        order.Totals.Discount,
		Tax:             order.Totals.Tax,
		GrandTotal:      order.Totals.Total,
		Items:           items,
		ShippingAddress: normalizeStringPointer(order.ShippingAddress),
		BillingAddress:  normalizeStringPointer(order.BillingAddress),
		Carrier:         strings.TrimSpace(order.Shipping.Carrier),
		TrackingNumber:  strings.TrimSpace(order.Shipping.TrackingNumber),
		DeliveredTo:     strings.TrimSpace(order.Shipping.DeliveredTo),
		InternalNotes:   order.InternalNotes,
		CreatedBy:       normalizeStringPointer(order.Audit.CreatedBy),
		UpdatedBy:       normalizeStringPointer(order.Audit.UpdatedBy),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		PlacedAt:        normalizeTimePointer(order.PlacedAt),
		PaidAt:          normalizeTimePointer(order.PaidAt),
		ShippedAt:       normalizeTimePointer(order.ShippedAt),
		DeliveredAt:     normalizeTimePointer(order.DeliveredAt),
		FinishedAt:      normalizeTimePointer(order.FinishedAt),
		CancelledAt:     normalizeTimePointer(order.CancelledAt),
		RefundedAt:      normalizeTimePointer(order.RefundedAt),
		CancelReason:    normalizeStringPointer(order.CancelReason),
	}
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderLineItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Tax:       item.Tax,
			Total:     item.Total,
		})
	}
	return domain.Order{
		ID:          strings.TrimSpace(id),
		OrderNumber: doc.OrderNumber,
		StoreID:     doc.StoreID,
		OrgID:       doc.OrgID,
		CustomerID:  doc.CustomerID,
		Status:      domain.OrderStatus(doc.Status),
		Channel:     domain.OrderChannel(doc.Channel),
		Currency:    doc.Currency,
		Totals: domain.OrderTotals{
			Subtotal: doc.Subtotal,
			Discount: doc.Discount,
			Tax:      doc.Tax,
			Total:    doc.GrandTotal,
		},
		Items:           items,
		ShippingAddress: doc.ShippingAddress,
		BillingAddress:  doc.BillingAddress,
		Shipping: domain.OrderShipping{
			Carrier:        doc.Carrier,
			TrackingNumber: doc.TrackingNumber,
			DeliveredTo:    doc.DeliveredTo,
		},
		InternalNotes: doc.InternalNotes,
		Audit: domain.OrderAudit{
			CreatedBy: doc.CreatedBy,
			UpdatedBy: doc.UpdatedBy,
		},
		CreatedAt:    chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:    chooseTime(doc.UpdatedAt, updatedAt),
		PlacedAt:     normalizeTimePointer(doc.PlacedAt),
		PaidAt:       normalizeTimePointer(doc.PaidAt),
		ShippedAt:    normalizeTimePointer(doc.ShippedAt),
		DeliveredAt:  normalizeTimePointer(doc.DeliveredAt),
		FinishedAt:   normalizeTimePointer(doc.FinishedAt),
		CancelledAt:  normalizeTimePointer(doc.CancelledAt),
		RefundedAt:   normalizeTimePointer(doc.RefundedAt),
		CancelReason: doc.CancelReason,
	}
}
