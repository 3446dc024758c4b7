package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/storeforge/api/internal/repositories"
)

var (
	// ErrAccessInvalidInput indicates missing identifiers on an access check.
	ErrAccessInvalidInput = errors.New("access: invalid input")
	// ErrAccessForbidden indicates the staff member may not operate on the store.
	ErrAccessForbidden = errors.New("access: forbidden")
)

// AccessServiceDeps bundles collaborators for the access service.
type AccessServiceDeps struct {
	Staff  repositories.StaffRepository
	Stores repositories.StoreRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type accessService struct {
	staff  repositories.StaffRepository
	stores repositories.StoreRepository
	logger func(context.Context, string, map[string]any)
}

// NewAccessService wires dependencies into a concrete AccessService implementation.
func NewAccessService(deps AccessServiceDeps) (AccessService, error) {
	if deps.Staff == nil {
		return nil, errors.New("access service: staff repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("access service: store repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accessService{
		staff:  deps.Staff,
		stores: deps.Stores,
		logger: logger,
	}, nil
}

// AuthorizeStore resolves the staff record and checks store access in order:
// super-admin, direct store assignment, then org owner/admin on the store's
// organization. Anything else is forbidden.
func (s *accessService) AuthorizeStore(ctx context.Context, staffID string, storeID string) (Staff, error) {
	staffID = strings.TrimSpace(staffID)
	storeID = strings.TrimSpace(storeID)
	if staffID == "" {
		return Staff{}, fmt.Errorf("%w: staff id is required", ErrAccessInvalidInput)
	}
	if storeID == "" {
		return Staff{}, fmt.Errorf("%w: store id is required", ErrAccessInvalidInput)
	}

	staff, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		if isRepoNotFound(err) {
			return Staff{}, fmt.Errorf("%w: staff %s is not registered", ErrAccessForbidden, staffID)
		}
		return Staff{}, fmt.Errorf("load staff: %w", err)
	}

	if staff.SuperAdmin {
		return staff, nil
	}
	if staff.AssignedTo(storeID) {
		return staff, nil
	}

	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		if isRepoNotFound(err) {
			return Staff{}, fmt.Errorf("%w: store %s does not exist", ErrAccessForbidden, storeID)
		}
		return Staff{}, fmt.Errorf("load store: %w", err)
	}
	if staff.AdministersOrg(store.OrgID) {
		return staff, nil
	}

	s.logger(ctx, "access.store.denied", map[string]any{
		"staffId": staffID,
		"storeId": storeID,
	})
	return Staff{}, fmt.Errorf("%w: staff %s has no access to store %s", ErrAccessForbidden, staffID, storeID)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
