package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/storeforge/api/internal/domain"
	"github.com/storeforge/api/internal/repositories"
)

var stockTestNow = time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)

func newStockService(t *testing.T, repo *stubStockRepo) StockService {
	t.Helper()
	svc, err := NewStockService(StockServiceDeps{
		Stock:       repo,
		Clock:       fixedClock(stockTestNow),
		IDGenerator: sequentialIDs("AAAA", "BBBB"),
	})
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}
	return svc
}

func TestStockAdjustBuildsMovementRecords(t *testing.T) {
	repo := &stubStockRepo{}
	var captured []repositories.StockAdjustment
	repo.applyAdjustments = func(ctx context.Context, adjs []repositories.StockAdjustment) ([]domain.StockLevel, error) {
		captured = adjs
		return []domain.StockLevel{{LocationID: "loc_01", SKU: "SKU-1", OnHand: 8}}, nil
	}
	svc := newStockService(t, repo)

	orderID := "ord_01"
	levels, err := svc.Adjust(context.Background(), StockAdjustCommand{
		Lines: []StockAdjustLine{
			{LocationID: "loc_01", ProductID: "prod_1", SKU: "SKU-1", Delta: -2},
			{LocationID: "loc_01", ProductID: "prod_2", SKU: "SKU-2", Delta: 5},
		},
		Reason:  "cycle_count",
		OrderID: &orderID,
	})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected levels passthrough, got %d", len(levels))
	}
	if len(captured) != 2 {
		t.Fatalf("expected 2 adjustments, got %d", len(captured))
	}
	if captured[0].MovementID != "mov_AAAA" || captured[1].MovementID != "mov_BBBB" {
		t.Fatalf("expected generated movement ids, got %q %q", captured[0].MovementID, captured[1].MovementID)
	}
	if captured[0].Reason != "cycle_count" {
		t.Fatalf("expected reason carried, got %q", captured[0].Reason)
	}
	if !captured[0].Now.Equal(stockTestNow) {
		t.Fatalf("expected timestamp %v, got %v", stockTestNow, captured[0].Now)
	}
}

func TestStockAdjustValidatesLines(t *testing.T) {
	svc := newStockService(t, &stubStockRepo{})

	if _, err := svc.Adjust(context.Background(), StockAdjustCommand{Reason: "x"}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for empty lines, got %v", err)
	}
	if _, err := svc.Adjust(context.Background(), StockAdjustCommand{
		Lines:  []StockAdjustLine{{LocationID: "loc_01", SKU: "SKU-1", Delta: 0}},
		Reason: "x",
	}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for zero delta, got %v", err)
	}
	if _, err := svc.Adjust(context.Background(), StockAdjustCommand{
		Lines: []StockAdjustLine{{LocationID: "loc_01", SKU: "SKU-1", Delta: 1}},
	}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for missing reason, got %v", err)
	}
}

func TestStockGetLevelMapsNotFound(t *testing.T) {
	svc := newStockService(t, &stubStockRepo{})

	_, err := svc.GetLevel(context.Background(), "loc_01", "SKU-404")
	if !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestStockListMovementsRequiresAFilter(t *testing.T) {
	svc := newStockService(t, &stubStockRepo{})

	_, err := svc.ListMovements(context.Background(), StockMovementFilter{})
	if !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
}
