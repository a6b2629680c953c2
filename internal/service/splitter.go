package service

import (
	"context"
	"fmt"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	"github.com/google/uuid"
)

type CouponValidator interface {
	Validate(ctx context.Context, code, shopID string, cartAmount int64, items []entities.CouponItem) (entities.CouponResult, error)
}

type CouponRequest struct {
	ShopID string `json:"shop_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

type SplitInput struct {
	Lines     []entities.CartLine
	Products  map[string]entities.Product
	Shipping  entities.ShippingMethod
	Coupons   []CouponRequest
	TaxRateBP int64
}

// ShopPlan будущий заказ одного магазина.
type ShopPlan struct {
	ShopID     string
	Items      []entities.OrderItem
	Subtotal   int64
	Discount   int64
	Tax        int64
	Shipping   int64
	Total      int64
	CouponCode string
}

type Plan struct {
	Shops      []ShopPlan
	GrandTotal int64
}

// Split раскладывает строки корзины по магазинам и считает суммы каждого заказа.
// Ничего не пишет; единственное обращение наружу: проверка купонов.
func Split(ctx context.Context, in SplitInput, coupons CouponValidator) (Plan, error) {
	if len(in.Lines) == 0 {
		return Plan{}, entities.ErrEmptyCart
	}
	if in.Shipping.ID == "" {
		return Plan{}, entities.ErrShippingRequired
	}

	var order []string
	groups := make(map[string]*ShopPlan)

	for _, line := range in.Lines {
		if line.Quantity < 1 {
			return Plan{}, entities.ErrInvalidQuantity
		}
		product, ok := in.Products[line.ProductID]
		if !ok {
			return Plan{}, fmt.Errorf("%w: %s", entities.ErrProductNotFound, line.ProductID)
		}
		if !product.Active {
			return Plan{}, fmt.Errorf("%w: %s", entities.ErrProductInactive, product.Name)
		}

		g, ok := groups[product.ShopID]
		if !ok {
			g = &ShopPlan{ShopID: product.ShopID}
			groups[product.ShopID] = g
			order = append(order, product.ShopID)
		}

		total := product.Price * int64(line.Quantity)
		g.Items = append(g.Items, entities.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  product.ID,
			Name:       product.Name,
			SKU:        product.SKU,
			ImageURL:   product.ImageURL,
			Variant:    line.Variant,
			UnitPrice:  product.Price,
			Quantity:   line.Quantity,
			TotalPrice: total,
		})
		g.Subtotal += total
	}

	if _, ok := groups[in.Shipping.ShopID]; !ok {
		return Plan{}, entities.ErrShippingMismatch
	}

	codes := make(map[string]string, len(in.Coupons))
	for _, c := range in.Coupons {
		if _, dup := codes[c.ShopID]; dup {
			return Plan{}, entities.ErrCouponAlreadyApplied
		}
		if _, ok := groups[c.ShopID]; !ok {
			return Plan{}, entities.ErrCouponShopNotInCart
		}
		codes[c.ShopID] = c.Code
	}

	plan := Plan{Shops: make([]ShopPlan, 0, len(order))}
	for _, shopID := range order {
		g := groups[shopID]

		if code, ok := codes[shopID]; ok {
			discount, err := applyCoupon(ctx, coupons, code, g)
			if err != nil {
				return Plan{}, err
			}
			g.Discount = discount
			g.CouponCode = code
		}

		g.Tax = applyRate(g.Subtotal-g.Discount, in.TaxRateBP)
		if shopID == in.Shipping.ShopID {
			g.Shipping = in.Shipping.Price
		}
		g.Total = g.Subtotal - g.Discount + g.Tax + g.Shipping

		plan.Shops = append(plan.Shops, *g)
		plan.GrandTotal += g.Total
	}
	return plan, nil
}

func applyCoupon(ctx context.Context, coupons CouponValidator, code string, g *ShopPlan) (int64, error) {
	items := make([]entities.CouponItem, len(g.Items))
	for i, it := range g.Items {
		items[i] = entities.CouponItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	res, err := coupons.Validate(ctx, code, g.ShopID, g.Subtotal, items)
	if err != nil {
		return 0, fmt.Errorf("failed to validate coupon: %w", err)
	}
	if !res.Valid {
		return 0, fmt.Errorf("%w: %s", entities.ErrInvalidCoupon, res.Reason)
	}

	return min(max(res.DiscountAmount, 0), g.Subtotal), nil
}
