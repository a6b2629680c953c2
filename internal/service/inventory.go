package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"
)

type StockRepo interface {
	// DecrementStock единственный условный UPDATE; нехватка даёт ErrOutOfStock
	DecrementStock(ctx context.Context, productID string, qty int) (remaining int, tracked bool, err error)
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type ItemRestorer interface {
	MarkItemStockRestored(ctx context.Context, itemID string) (bool, error)
}

type Reservation struct {
	Remaining int
	Tracked   bool
}

type inventoryGuard struct {
	logger    *slog.Logger
	txManager trm.Manager
	stock     StockRepo
	items     ItemRestorer
	lowStock  int
}

func NewInventoryGuard(logger *slog.Logger, txManager trm.Manager, stock StockRepo, items ItemRestorer, lowStockThreshold int) *inventoryGuard {
	return &inventoryGuard{
		logger:    logger.With(slog.String("service", "inventory")),
		txManager: txManager,
		stock:     stock,
		items:     items,
		lowStock:  lowStockThreshold,
	}
}

func (g *inventoryGuard) Reserve(ctx context.Context, productID string, qty int) (Reservation, error) {
	if qty < 1 {
		return Reservation{}, entities.ErrInvalidQuantity
	}

	remaining, tracked, err := g.stock.DecrementStock(ctx, productID, qty)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{Remaining: remaining, Tracked: tracked}, nil
}

// LowStock сообщает, что после резерва остаток опустился до порога.
func (g *inventoryGuard) LowStock(r Reservation) bool {
	return r.Tracked && g.lowStock > 0 && r.Remaining <= g.lowStock
}

// Release возвращает остаток позиции заказа ровно один раз:
// сначала переключается флаг stock_restored, и только при успехе растёт stock.
func (g *inventoryGuard) Release(ctx context.Context, item entities.OrderItem) (bool, error) {
	var released bool
	err := g.txManager.Do(ctx, func(ctx context.Context) error {
		flipped, err := g.items.MarkItemStockRestored(ctx, item.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		if err := g.stock.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if released {
		g.logger.Debug("stock released", "item_id", item.ID, "product_id", item.ProductID, "quantity", item.Quantity)
	}
	return released, nil
}
