package entities

import (
	"errors"
	"strings"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidOrder    = errors.New("invalid order data")
	ErrCartNotFound    = errors.New("cart not found")
	ErrLineNotFound    = errors.New("cart line not found")
	ErrProductNotFound = errors.New("product not found")
	ErrShopNotFound    = errors.New("shop not found")
	ErrNotFound        = errors.New("not found")

	// validation
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrProductInactive   = errors.New("product is not available")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidOwner      = errors.New("cart owner is required")
	ErrShippingRequired  = errors.New("shipping method is required")
	ErrShippingNotFound  = errors.New("shipping method not found")
	ErrInvalidTransition = errors.New("invalid status transition")

	// conflict
	ErrOutOfStock           = errors.New("out of stock")
	ErrShippingMismatch     = errors.New("shipping method does not match cart")
	ErrCouponAlreadyApplied = errors.New("coupon already applied to this shop")
	ErrCouponShopNotInCart  = errors.New("coupon shop is not in cart")
	ErrInvalidCoupon        = errors.New("coupon is not valid")
	ErrOrderNotCancellable  = errors.New("order not cancellable")
	ErrOrderMismatch        = errors.New("orders do not belong to authorization")
	ErrNothingToPay         = errors.New("no pending orders to pay")
	ErrCheckoutInProgress   = errors.New("checkout or cart merge already in progress")
	ErrForbidden            = errors.New("forbidden")
	ErrPaymentNotSucceeded  = errors.New("payment has not succeeded")

	// upstream
	ErrPaymentUnavailable = errors.New("payment processor unavailable")
	ErrPaymentDeclined    = errors.New("payment declined")
)

// OutOfStockError уточняет, какой товар закончился.
type OutOfStockError struct {
	ProductID string
	Name      string
}

func (e *OutOfStockError) Error() string {
	if e.Name != "" {
		return "out of stock: " + e.Name
	}
	return "out of stock: " + e.ProductID
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// AuthorizationError возвращается, когда заказы созданы и зарезервированы,
// но платёж создать не удалось. Заказы остаются в pending, их можно оплатить повторно.
type AuthorizationError struct {
	OrderIDs []string
	Err      error
}

func (e *AuthorizationError) Error() string {
	return "payment authorization failed for orders " + strings.Join(e.OrderIDs, ",") + ": " + e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
