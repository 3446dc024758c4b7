package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/storeforge/api/internal/domain"
	pfirestore "github.com/storeforge/api/internal/platform/firestore"
)

const storesCollection = "stores"

// StoreRepository reads store configuration documents.
type StoreRepository struct {
	base *pfirestore.BaseRepository[storeDocument]
}

// NewStoreRepository constructs a Firestore-backed store repository.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[storeDocument](provider, storesCollection, nil, nil)
	return &StoreRepository{base: base}, nil
}

// FindByID fetches a single store configuration.
func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Store{}, errors.New("store repository: store id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	snap, err := txGet(ctx, docRef)
	if err != nil {
		return domain.Store{}, pfirestore.WrapError("stores.get", err)
	}
	var doc storeDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Store{}, fmt.Errorf("stores: decode document %s: %w", storeID, err)
	}
	return decodeStoreDocument(storeID, doc, snap.CreateTime, snap.UpdateTime), nil
}

type storeDocument struct {
	OrgID             string                       `firestore:"orgId"`
	Name              string                       `firestore:"name"`
	OrderNumberPrefix string                       `firestore:"orderNumberPrefix"`
	Currency          string                       `firestore:"currency"`
	Active            bool                         `firestore:"active"`
	Locations         []storeLocationDocument      `firestore:"locations"`
	PaymentMethods    []storePaymentMethodDocument `firestore:"paymentMethods"`
	CreatedAt         time.Time                    `firestore:"createdAt"`
	UpdatedAt         time.Time                    `firestore:"updatedAt"`
}

type storeLocationDocument struct {
	ID     string `firestore:"id"`
	Name   string `firestore:"name"`
	Active bool   `firestore:"active"`
}

type storePaymentMethodDocument struct {
	ID        string `firestore:"id"`
	Type      string `firestore:"type"`
	Processor string `firestore:"processor,omitempty"`
	Active    bool   `firestore:"active"`
}

func decodeStoreDocument(id string, doc storeDocument, createdAt, updatedAt time.Time) domain.Store {
	locations := make([]domain.StoreLocation, 0, len(doc.Locations))
	for _, loc := range doc.Locations {
		locations = append(locations, domain.StoreLocation{
			ID:     loc.ID,
			Name:   loc.Name,
			Active: loc.Active,
		})
	}
	methods := make([]domain.StorePaymentMethod, 0, len(doc.PaymentMethods))
	for _, method := range doc.PaymentMethods {
		methods = append(methods, domain.StorePaymentMethod{
			ID:        method.ID,
			Type:      domain.PaymentMethodType(method.Type),
			Processor: method.Processor,
			Active:    method.Active,
		})
	}
	return domain.Store{
		ID:                strings.TrimSpace(id),
		OrgID:             doc.OrgID,
		Name:              doc.Name,
		OrderNumberPrefix: doc.OrderNumberPrefix,
		Currency:          doc.Currency,
		Active:            doc.Active,
		Locations:         locations,
		PaymentMethods:    methods,
		CreatedAt:         chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:         chooseTime(doc.UpdatedAt, updatedAt),
	}
}
