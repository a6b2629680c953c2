package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type cartRepo struct {
	postgresRepo
}

func NewCartRepo(db *sqlx.DB) *cartRepo {
	return &cartRepo{postgresRepo: newPostgresRepo(db)}
}

func ownerCond(owner entities.CartOwner) sq.Eq {
	if owner.UserID != "" {
		return sq.Eq{"user_id": owner.UserID}
	}
	return sq.Eq{"guest_token": owner.GuestToken}
}

func (r *cartRepo) FindCartID(ctx context.Context, owner entities.CartOwner) (string, error) {
	query, args := r.qb.Select("id").
		From("carts").
		Where(ownerCond(owner)).
		MustSql()

	var id string
	err := r.getContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", entities.ErrCartNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find cart: %w", err)
	}
	return id, nil
}

func (r *cartRepo) EnsureCart(ctx context.Context, owner entities.CartOwner) (string, error) {
	id, err := r.FindCartID(ctx, owner)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, entities.ErrCartNotFound) {
		return "", err
	}

	query, args := r.qb.Insert("carts").
		Columns("id", "user_id", "guest_token").
		Values(uuid.NewString(), nullString(owner.UserID), nullString(owner.GuestToken)).
		Suffix("ON CONFLICT DO NOTHING").
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to create cart: %w", err)
	}
	return r.FindCartID(ctx, owner)
}

// LockCart берёт блокировку строки корзины до конца транзакции.
func (r *cartRepo) LockCart(ctx context.Context, cartID string) error {
	query, args := r.qb.Select("id").
		From("carts").
		Where(sq.Eq{"id": cartID}).
		Suffix("FOR UPDATE").
		MustSql()

	var id string
	err := r.getContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.ErrCartNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock cart: %w", err)
	}
	return nil
}

func (r *cartRepo) GetCart(ctx context.Context, owner entities.CartOwner) (entities.Cart, error) {
	query, args := r.qb.Select("id", "user_id", "guest_token", "total_items", "subtotal", "updated_at").
		From("carts").
		Where(ownerCond(owner)).
		MustSql()

	var cart Cart
	err := r.getContext(ctx, &cart, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Cart{}, entities.ErrCartNotFound
	}
	if err != nil {
		return entities.Cart{}, fmt.Errorf("failed to get cart: %w", err)
	}

	query, args = r.qb.Select(
		"l.id", "l.cart_id", "l.product_id", "l.variant", "l.quantity",
		"p.price AS unit_price", "p.name AS product_name").
		From("cart_lines l").
		Join("products p ON p.id = l.product_id").
		Where(sq.Eq{"l.cart_id": cart.ID}).
		OrderBy("l.created_at", "l.id").
		MustSql()

	var lines []CartLine
	if err := r.selectContext(ctx, &lines, query, args...); err != nil {
		return entities.Cart{}, fmt.Errorf("failed to get cart lines: %w", err)
	}

	return CartToEntity(cart, lines), nil
}

func (r *cartRepo) LineQuantity(ctx context.Context, cartID, productID, variantKey string) (int, error) {
	query, args := r.qb.Select("quantity").
		From("cart_lines").
		Where(sq.Eq{"cart_id": cartID, "product_id": productID, "variant_key": variantKey}).
		MustSql()

	var qty int
	err := r.getContext(ctx, &qty, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get line quantity: %w", err)
	}
	return qty, nil
}

// UpsertLine добавляет строку или увеличивает количество существующей
// строки с той же парой (товар, вариант).
func (r *cartRepo) UpsertLine(ctx context.Context, cartID, productID string, variant map[string]string, qty int) error {
	variantJSON, err := variantParam(variant)
	if err != nil {
		return fmt.Errorf("failed to encode variant: %w", err)
	}

	query, args := r.qb.Insert("cart_lines").
		Columns("id", "cart_id", "product_id", "variant", "variant_key", "quantity").
		Values(uuid.NewString(), cartID, productID, variantJSON, entities.VariantKey(variant), qty).
		Suffix("ON CONFLICT (cart_id, product_id, variant_key) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity").
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return nil
}

func (r *cartRepo) GetLine(ctx context.Context, cartID, lineID string) (entities.CartLine, error) {
	query, args := r.qb.Select("id", "cart_id", "product_id", "variant", "quantity").
		From("cart_lines").
		Where(sq.Eq{"id": lineID, "cart_id": cartID}).
		MustSql()

	var line CartLine
	err := r.getContext(ctx, &line, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.CartLine{}, entities.ErrLineNotFound
	}
	if err != nil {
		return entities.CartLine{}, fmt.Errorf("failed to get cart line: %w", err)
	}
	return entities.CartLine{
		ID:        line.ID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Variant:   parseVariant(line.Variant),
	}, nil
}

func (r *cartRepo) SetLineQuantity(ctx context.Context, cartID, lineID string, qty int) error {
	query, args := r.qb.Update("cart_lines").
		Set("quantity", qty).
		Where(sq.Eq{"id": lineID, "cart_id": cartID}).
		MustSql()

	return r.execAffecting(ctx, query, args, entities.ErrLineNotFound)
}

func (r *cartRepo) DeleteLine(ctx context.Context, cartID, lineID string) error {
	query, args := r.qb.Delete("cart_lines").
		Where(sq.Eq{"id": lineID, "cart_id": cartID}).
		MustSql()

	return r.execAffecting(ctx, query, args, entities.ErrLineNotFound)
}

func (r *cartRepo) ClearLines(ctx context.Context, cartID string) error {
	query, args := r.qb.Delete("cart_lines").
		Where(sq.Eq{"cart_id": cartID}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (r *cartRepo) DeleteCart(ctx context.Context, cartID string) error {
	query, args := r.qb.Delete("carts").
		Where(sq.Eq{"id": cartID}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// RecomputeTotals пересчитывает кэшируемые в строке корзины total_items и subtotal.
func (r *cartRepo) RecomputeTotals(ctx context.Context, cartID string) error {
	query, args := r.qb.Update("carts").
		Set("total_items", sq.Expr("(SELECT COALESCE(SUM(l.quantity), 0) FROM cart_lines l WHERE l.cart_id = ?)", cartID)).
		Set("subtotal", sq.Expr("(SELECT COALESCE(SUM(l.quantity * p.price), 0) FROM cart_lines l JOIN products p ON p.id = l.product_id WHERE l.cart_id = ?)", cartID)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": cartID}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to recompute cart totals: %w", err)
	}
	return nil
}

func (r *cartRepo) execAffecting(ctx context.Context, query string, args []any, notFound error) error {
	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update cart line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
