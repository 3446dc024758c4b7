package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/repositories"
)

var (
	// ErrStockInvalidInput indicates the adjustment command failed validation.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockNotFound indicates the requested stock level does not exist.
	ErrStockNotFound = errors.New("stock: not found")
)

// StockServiceDeps bundles collaborators for the stock service.
type StockServiceDeps struct {
	Stock       repositories.StockRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	stock  repositories.StockRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockService{
		stock: deps.Stock,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *stockService) GetLevel(ctx context.Context, locationID string, sku string) (StockLevel, error) {
	locationID = strings.TrimSpace(locationID)
	sku = strings.TrimSpace(sku)
	if locationID == "" || sku == "" {
		return StockLevel{}, fmt.Errorf("%w: location id and sku are required", ErrStockInvalidInput)
	}
	level, err := s.stock.Get(ctx, locationID, sku)
	if err != nil {
		if isRepoNotFound(err) {
			return StockLevel{}, fmt.Errorf("%w: %s at %s", ErrStockNotFound, sku, locationID)
		}
		return StockLevel{}, fmt.Errorf("load stock level: %w", err)
	}
	return level, nil
}

func (s *stockService) Adjust(ctx context.Context, cmd StockAdjustCommand) ([]StockLevel, error) {
	if len(cmd.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one adjustment line is required", ErrStockInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrStockInvalidInput)
	}

	now := s.clock()
	adjustments := make([]repositories.StockAdjustment, 0, len(cmd.Lines))
	for i, line := range cmd.Lines {
		if strings.TrimSpace(line.LocationID) == "" || strings.TrimSpace(line.SKU) == "" {
			return nil, fmt.Errorf("%w: line %d is missing a location or sku", ErrStockInvalidInput, i)
		}
		if line.Delta == 0 {
			return nil, fmt.Errorf("%w: line %d delta must not be zero", ErrStockInvalidInput, i)
		}
		adjustments = append(adjustments, repositories.StockAdjustment{
			LocationID: strings.TrimSpace(line.LocationID),
			ProductID:  strings.TrimSpace(line.ProductID),
			SKU:        strings.TrimSpace(line.SKU),
			Delta:      line.Delta,
			Reason:     reason,
			OrderID:    cmd.OrderID,
			Now:        now,
			MovementID: movementIDPrefix + s.newID(),
		})
	}

	levels, err := s.stock.ApplyAdjustments(ctx, adjustments)
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "stock.adjusted", map[string]any{
		"lines":  len(adjustments),
		"reason": reason,
	})
	return levels, nil
}

func (s *stockService) ListMovements(ctx context.Context, filter StockMovementFilter) (domain.CursorPage[StockMovement], error) {
	if strings.TrimSpace(filter.LocationID) == "" && strings.TrimSpace(filter.SKU) == "" && strings.TrimSpace(filter.OrderID) == "" {
		return domain.CursorPage[StockMovement]{}, fmt.Errorf("%w: a location, sku or order filter is required", ErrStockInvalidInput)
	}
	return s.stock.ListMovements(ctx, filter)
}
