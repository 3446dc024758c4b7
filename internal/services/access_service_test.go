package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storeforge/api/internal/domain"
)

func newAccessService(t *testing.T, staff *stubStaffRepo, stores *stubStoreRepo) AccessService {
	t.Helper()
	svc, err := NewAccessService(AccessServiceDeps{Staff: staff, Stores: stores})
	if err != nil {
		t.Fatalf("new access service: %v", err)
	}
	return svc
}

func TestAuthorizeStoreSuperAdminBypassesChecks(t *testing.T) {
	staffRepo := &stubStaffRepo{
		findByID: func(ctx context.Context, staffID string) (domain.Staff, error) {
			return domain.Staff{ID: staffID, SuperAdmin: true}, nil
		},
	}
	storeLookups := 0
	storeRepo := &stubStoreRepo{
		findByID: func(ctx context.Context, storeID string) (domain.Store, error) {
			storeLookups++
			return testStore(), nil
		},
	}
	svc := newAccessService(t, staffRepo, storeRepo)

	staff, err := svc.AuthorizeStore(context.Background(), "root_1", "store_99")
	if err != nil {
		t.Fatalf("AuthorizeStore: %v", err)
	}
	if !staff.SuperAdmin {
		t.Fatalf("expected super admin staff, got %+v", staff)
	}
	if storeLookups != 0 {
		t.Fatalf("super admin must not require a store lookup")
	}
}

func TestAuthorizeStoreAcceptsDirectAssignment(t *testing.T) {
	staffRepo := &stubStaffRepo{
		findByID: func(ctx context.Context, staffID string) (domain.Staff, error) {
			return domain.Staff{ID: staffID, StoreIDs: []string{"store_01"}}, nil
		},
	}
	svc := newAccessService(t, staffRepo, &stubStoreRepo{})

	if _, err := svc.AuthorizeStore(context.Background(), "staff_7", "store_01"); err != nil {
		t.Fatalf("AuthorizeStore: %v", err)
	}
}

func TestAuthorizeStoreAcceptsOrgAdmin(t *testing.T) {
	staffRepo := &stubStaffRepo{
		findByID: func(ctx context.Context, staffID string) (domain.Staff, error) {
			return domain.Staff{
				ID:       staffID,
				OrgRoles: map[string]domain.OrgRole{"org_01": domain.OrgRoleAdmin},
			}, nil
		},
	}
	storeRepo := &stubStoreRepo{
		findByID: func(ctx context.Context, storeID string) (domain.Store, error) {
			return testStore(), nil
		},
	}
	svc := newAccessService(t, staffRepo, storeRepo)

	if _, err := svc.AuthorizeStore(context.Background(), "staff_7", "store_01"); err != nil {
		t.Fatalf("AuthorizeStore: %v", err)
	}
}

func TestAuthorizeStoreDeniesPlainOrgStaff(t *testing.T) {
	staffRepo := &stubStaffRepo{
		findByID: func(ctx context.Context, staffID string) (domain.Staff, error) {
			return domain.Staff{
				ID:       staffID,
				OrgRoles: map[string]domain.OrgRole{"org_01": domain.OrgRoleStaff},
			}, nil
		},
	}
	storeRepo := &stubStoreRepo{
		findByID: func(ctx context.Context, storeID string) (domain.Store, error) {
			return testStore(), nil
		},
	}
	svc := newAccessService(t, staffRepo, storeRepo)

	_, err := svc.AuthorizeStore(context.Background(), "staff_7", "store_01")
	if !errors.Is(err, ErrAccessForbidden) {
		t.Fatalf("expected ErrAccessForbidden, got %v", err)
	}
}

func TestAuthorizeStoreDeniesUnknownStaff(t *testing.T) {
	svc := newAccessService(t, &stubStaffRepo{}, &stubStoreRepo{})

	_, err := svc.AuthorizeStore(context.Background(), "ghost", "store_01")
	if !errors.Is(err, ErrAccessForbidden) {
		t.Fatalf("expected ErrAccessForbidden, got %v", err)
	}
}

func TestAuthorizeStoreValidatesInput(t *testing.T) {
	svc := newAccessService(t, &stubStaffRepo{}, &stubStoreRepo{})

	if _, err := svc.AuthorizeStore(context.Background(), "", "store_01"); !errors.Is(err, ErrAccessInvalidInput) {
		t.Fatalf("expected ErrAccessInvalidInput, got %v", err)
	}
	if _, err := svc.AuthorizeStore(context.Background(), "staff_7", ""); !errors.Is(err, ErrAccessInvalidInput) {
		t.Fatalf("expected ErrAccessInvalidInput, got %v", err)
	}
}
