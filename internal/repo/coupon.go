package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Coupon struct {
	Code         string         `db:"code"`
	ShopID       sql.NullString `db:"shop_id"`
	DiscountType string         `db:"discount_type"`
	Value        int64          `db:"value"`
	MinAmount    int64          `db:"min_amount"`
	Active       bool           `db:"active"`
	ExpiresAt    sql.NullTime   `db:"expires_at"`
}

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// couponRepo реализует проверку купона поверх таблицы coupons.
// Для percent value хранится в базисных пунктах.
type couponRepo struct {
	postgresRepo
	now func() time.Time
}

func NewCouponRepo(db *sqlx.DB) *couponRepo {
	return &couponRepo{postgresRepo: newPostgresRepo(db), now: time.Now}
}

func (r *couponRepo) Validate(ctx context.Context, code, shopID string, cartAmount int64, items []entities.CouponItem) (entities.CouponResult, error) {
	query, args := r.qb.Select("code", "shop_id", "discount_type", "value", "min_amount", "active", "expires_at").
		From("coupons").
		Where(sq.Eq{"code": code}).
		MustSql()

	var c Coupon
	err := r.getContext(ctx, &c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.CouponResult{Valid: false, Reason: "coupon not found"}, nil
	}
	if err != nil {
		return entities.CouponResult{}, fmt.Errorf("failed to get coupon: %w", err)
	}

	return evaluateCoupon(c, shopID, cartAmount, len(items), r.now()), nil
}

func evaluateCoupon(c Coupon, shopID string, cartAmount int64, itemCount int, now time.Time) entities.CouponResult {
	switch {
	case !c.Active:
		return entities.CouponResult{Reason: "coupon is inactive"}
	case c.ExpiresAt.Valid && now.After(c.ExpiresAt.Time):
		return entities.CouponResult{Reason: "coupon expired"}
	case c.ShopID.Valid && c.ShopID.String != shopID:
		return entities.CouponResult{Reason: "coupon belongs to another shop"}
	case itemCount == 0:
		return entities.CouponResult{Reason: "no items"}
	case cartAmount < c.MinAmount:
		return entities.CouponResult{Reason: "minimum amount not reached"}
	}

	var discount int64
	switch c.DiscountType {
	case DiscountPercent:
		discount = decimal.NewFromInt(cartAmount).
			Mul(decimal.NewFromInt(c.Value)).
			Div(decimal.NewFromInt(10000)).
			Round(0).
			IntPart()
	case DiscountFixed:
		discount = c.Value
	default:
		return entities.CouponResult{Reason: "unknown discount type"}
	}

	if discount > cartAmount {
		discount = cartAmount
	}
	return entities.CouponResult{Valid: true, DiscountAmount: discount, DiscountType: c.DiscountType}
}
