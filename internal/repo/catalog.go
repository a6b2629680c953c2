package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var productColumns = []string{
	"id", "shop_id", "name", "sku", "image_url", "price", "stock", "track_inventory", "active",
}

// catalogRepo читает каталог и владеет счётчиками остатков.
// Остатки меняются только через DecrementStock/IncrementStock.
type catalogRepo struct {
	postgresRepo
}

func NewCatalogRepo(db *sqlx.DB) *catalogRepo {
	return &catalogRepo{postgresRepo: newPostgresRepo(db)}
}

func (r *catalogRepo) GetProducts(ctx context.Context, ids []string) (map[string]entities.Product, error) {
	result := make(map[string]entities.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args := r.qb.Select(productColumns...).
		From("products").
		Where(sq.Eq{"id": ids}).
		MustSql()

	var products []Product
	if err := r.selectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select products: %w", err)
	}

	for _, p := range products {
		result[p.ID] = ProductToEntity(p)
	}
	return result, nil
}

// DecrementStock атомарно списывает остаток одним условным UPDATE.
// Для товаров без учёта остатков строка обновляется без изменения stock.
func (r *catalogRepo) DecrementStock(ctx context.Context, productID string, qty int) (remaining int, tracked bool, err error) {
	query, args := r.qb.Update("products").
		Set("stock", sq.Expr("CASE WHEN track_inventory THEN stock - ? ELSE stock END", qty)).
		Where(sq.Eq{"id": productID}).
		Where(sq.Or{sq.Expr("NOT track_inventory"), sq.Expr("stock >= ?", qty)}).
		Suffix("RETURNING stock, track_inventory").
		MustSql()

	var row struct {
		Stock          int  `db:"stock"`
		TrackInventory bool `db:"track_inventory"`
	}
	err = r.getContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, true, entities.ErrOutOfStock
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return row.Stock, row.TrackInventory, nil
}

func (r *catalogRepo) IncrementStock(ctx context.Context, productID string, qty int) error {
	query, args := r.qb.Update("products").
		Set("stock", sq.Expr("stock + ?", qty)).
		Where(sq.Eq{"id": productID, "track_inventory": true}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

func (r *catalogRepo) GetShops(ctx context.Context, ids []string) (map[string]entities.Shop, error) {
	result := make(map[string]entities.Shop, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args := r.qb.Select("id", "name", "email", "connected_account_id", "commission_bp").
		From("shops").
		Where(sq.Eq{"id": ids}).
		MustSql()

	var shops []Shop
	if err := r.selectContext(ctx, &shops, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select shops: %w", err)
	}

	for _, s := range shops {
		result[s.ID] = ShopToEntity(s)
	}
	return result, nil
}

func (r *catalogRepo) GetShippingMethod(ctx context.Context, id string) (entities.ShippingMethod, error) {
	query, args := r.qb.Select("id", "shop_id", "name", "price").
		From("shipping_methods").
		Where(sq.Eq{"id": id}).
		MustSql()

	var m ShippingMethod
	err := r.getContext(ctx, &m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.ShippingMethod{}, entities.ErrShippingNotFound
	}
	if err != nil {
		return entities.ShippingMethod{}, fmt.Errorf("failed to get shipping method: %w", err)
	}
	return entities.ShippingMethod{ID: m.ID, ShopID: m.ShopID, Name: m.Name, Price: m.Price}, nil
}
