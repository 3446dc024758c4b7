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

const staffCollection = "staff"

// StaffRepository reads staff membership documents keyed by identity UID.
type StaffRepository struct {
	base *pfirestore.BaseRepository[staffDocument]
}

// NewStaffRepository constructs a Firestore-backed staff repository.
func NewStaffRepository(provider *pfirestore.Provider) (*StaffRepository, error) {
	if provider == nil {
		return nil, errors.New("staff repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[staffDocument](provider, staffCollection, nil, nil)
	return &StaffRepository{base: base}, nil
}

// FindByID fetches the staff record for the given identity UID.
func (r *StaffRepository) FindByID(ctx context.Context, staffID string) (domain.Staff, error) {
	if r == nil || r.base == nil {
		return domain.Staff{}, errors.New("staff repository not initialised")
	}
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return domain.Staff{}, errors.New("staff repository: staff id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, staffID)
	if err != nil {
		return domain.Staff{}, err
	}
	snap, err := txGet(ctx, docRef)
	if err != nil {
		return domain.Staff{}, pfirestore.WrapError("staff.get", err)
	}
	var doc staffDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Staff{}, fmt.Errorf("staff: decode document %s: %w", staffID, err)
	}
	return decodeStaffDocument(staffID, doc, snap.CreateTime, snap.UpdateTime), nil
}

type staffDocument struct {
	Email      string            `firestore:"email"`
	SuperAdmin bool              `firestore:"superAdmin"`
	StoreIDs   []string          `firestore:"storeIds"`
	OrgRoles   map[string]string `firestore:"orgRoles"`
	CreatedAt  time.Time         `firestore:"createdAt"`
	UpdatedAt  time.Time         `firestore:"updatedAt"`
}

func decodeStaffDocument(id string, doc staffDocument, createdAt, updatedAt time.Time) domain.Staff {
	roles := make(map[string]domain.OrgRole, len(doc.OrgRoles))
	for orgID, role := range doc.OrgRoles {
		roles[orgID] = domain.OrgRole(role)
	}
	return domain.Staff{
		ID:         strings.TrimSpace(id),
		Email:      doc.Email,
		SuperAdmin: doc.SuperAdmin,
		StoreIDs:   append([]string(nil), doc.StoreIDs...),
		OrgRoles:   roles,
		CreatedAt:  chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:  chooseTime(doc.UpdatedAt, updatedAt),
	}
}
