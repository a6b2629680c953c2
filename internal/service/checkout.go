package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"

	"github.com/google/uuid"
)

type CheckoutCartRepo interface {
	GetCart(ctx context.Context, owner entities.CartOwner) (entities.Cart, error)
	LockCart(ctx context.Context, cartID string) error
	ClearLines(ctx context.Context, cartID string) error
	RecomputeTotals(ctx context.Context, cartID string) error
}

type CheckoutCatalog interface {
	GetProducts(ctx context.Context, ids []string) (map[string]entities.Product, error)
	GetShippingMethod(ctx context.Context, id string) (entities.ShippingMethod, error)
}

type CheckoutOrderRepo interface {
	NextOrderNumber(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, o entities.Order) error
	GetOrders(ctx context.Context, ids []string) ([]entities.Order, error)
	PaymentsByOrder(ctx context.Context, orderID string) ([]entities.Payment, error)
	UpdatePayments(ctx context.Context, filter map[string]any, from []entities.PaymentStatus, to entities.PaymentStatus, refundID string) (int64, error)
}

type Reserver interface {
	Reserve(ctx context.Context, productID string, qty int) (Reservation, error)
	LowStock(r Reservation) bool
}

type Authorizer interface {
	Authorize(ctx context.Context, orders []entities.Order, email string) (AuthorizeResult, error)
	Release(ctx context.Context, authorizationIDs []string)
}

type CheckoutConfig struct {
	TaxRateBP int64
	Currency  string
}

type CheckoutRequest struct {
	ShippingMethodID string
	Coupons          []CouponRequest
	Email            string
	ShippingAddress  entities.Address
	BillingAddress   entities.Address
}

type CheckoutResult struct {
	CheckoutID      string
	Orders          []entities.Order
	AuthorizationID string
	ClientSecret    string
	Mode            ChargeMode
	Amount          int64
}

type checkoutService struct {
	logger     *slog.Logger
	txManager  trm.Manager
	locker     OwnerLocker
	carts      CheckoutCartRepo
	cartCache  CartCache
	catalog    CheckoutCatalog
	coupons    CouponValidator
	orders     CheckoutOrderRepo
	guard      Reserver
	authorizer Authorizer
	dispatcher Dispatcher
	cfg        CheckoutConfig
}

func NewCheckoutService(
	logger *slog.Logger,
	txManager trm.Manager,
	locker OwnerLocker,
	carts CheckoutCartRepo,
	cartCache CartCache,
	catalog CheckoutCatalog,
	coupons CouponValidator,
	orders CheckoutOrderRepo,
	guard Reserver,
	authorizer Authorizer,
	dispatcher Dispatcher,
	cfg CheckoutConfig,
) *checkoutService {
	return &checkoutService{
		logger:     logger.With(slog.String("service", "checkout")),
		txManager:  txManager,
		locker:     locker,
		carts:      carts,
		cartCache:  cartCache,
		catalog:    catalog,
		coupons:    coupons,
		orders:     orders,
		guard:      guard,
		authorizer: authorizer,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Checkout превращает корзину в заказы по магазинам и создаёт авторизацию.
// Заказы, резервы и очистка корзины фиксируются одной транзакцией; ошибка
// авторизации оставляет заказы в pending и возвращает *entities.AuthorizationError.
func (s *checkoutService) Checkout(ctx context.Context, owner entities.CartOwner, req CheckoutRequest) (CheckoutResult, error) {
	if !owner.Valid() {
		return CheckoutResult{}, entities.ErrInvalidOwner
	}
	if req.ShippingMethodID == "" {
		return CheckoutResult{}, entities.ErrShippingRequired
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		checkoutsTotal.WithLabelValues("locked").Inc()
		return CheckoutResult{}, err
	}
	defer unlock()

	cart, err := s.carts.GetCart(ctx, owner)
	if errors.Is(err, entities.ErrCartNotFound) {
		return CheckoutResult{}, entities.ErrEmptyCart
	}
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(cart.Lines) == 0 {
		return CheckoutResult{}, entities.ErrEmptyCart
	}

	ids := make([]string, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return CheckoutResult{}, err
	}
	method, err := s.catalog.GetShippingMethod(ctx, req.ShippingMethodID)
	if err != nil {
		return CheckoutResult{}, err
	}

	plan, err := Split(ctx, SplitInput{
		Lines:     cart.Lines,
		Products:  products,
		Shipping:  method,
		Coupons:   req.Coupons,
		TaxRateBP: s.cfg.TaxRateBP,
	}, s.coupons)
	if err != nil {
		checkoutsTotal.WithLabelValues("rejected").Inc()
		return CheckoutResult{}, err
	}

	checkoutID := uuid.NewString()
	var (
		orders   []entities.Order
		lowStock []entities.OrderEvent
	)

	err = s.txManager.Do(ctx, func(ctx context.Context) error {
		orders, lowStock = orders[:0], lowStock[:0]

		if err := s.carts.LockCart(ctx, cart.ID); err != nil {
			return err
		}

		for _, sp := range plan.Shops {
			order, err := s.newOrder(ctx, checkoutID, owner, req, method, sp)
			if err != nil {
				return err
			}
			if err := s.orders.CreateOrder(ctx, order); err != nil {
				return err
			}

			for _, item := range order.Items {
				res, err := s.guard.Reserve(ctx, item.ProductID, item.Quantity)
				if errors.Is(err, entities.ErrOutOfStock) {
					outOfStockRejections.Inc()
					return &entities.OutOfStockError{ProductID: item.ProductID, Name: item.Name}
				}
				if err != nil {
					return fmt.Errorf("failed to reserve stock: %w", err)
				}
				if s.guard.LowStock(res) {
					lowStock = append(lowStock, entities.OrderEvent{
						Type:      entities.EventLowStock,
						ShopID:    order.ShopID,
						ProductID: item.ProductID,
						Stock:     res.Remaining,
					})
				}
			}
			orders = append(orders, order)
		}

		if err := s.carts.ClearLines(ctx, cart.ID); err != nil {
			return err
		}
		return s.carts.RecomputeTotals(ctx, cart.ID)
	})
	if err != nil {
		checkoutsTotal.WithLabelValues("rejected").Inc()
		return CheckoutResult{}, err
	}

	ordersCreated.Add(float64(len(orders)))
	if err := s.cartCache.Delete(ctx, owner); err != nil {
		s.logger.Warn("failed to invalidate cart cache", "owner", owner.Key(), "error", err)
	}
	if len(lowStock) > 0 {
		if err := s.dispatcher.Dispatch(ctx, lowStock...); err != nil {
			dispatchFailures.Inc()
			s.logger.Error("failed to dispatch low stock", "error", err)
		}
	}

	result := CheckoutResult{CheckoutID: checkoutID, Orders: orders, Amount: plan.GrandTotal}

	auth, err := s.authorizer.Authorize(ctx, orders, req.Email)
	if err != nil {
		checkoutsTotal.WithLabelValues("authorization_failed").Inc()
		s.logger.Error("authorization failed", "checkout_id", checkoutID, "error", err)
		return result, &entities.AuthorizationError{OrderIDs: orderIDs(orders), Err: err}
	}

	result.AuthorizationID = auth.AuthorizationID
	result.ClientSecret = auth.ClientSecret
	result.Mode = auth.Mode

	checkoutsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("checkout completed", "checkout_id", checkoutID, "orders", len(orders), "amount", plan.GrandTotal)
	return result, nil
}

// RetryPayment создаёт новую авторизацию для неоплаченных заказов без повторного резерва.
func (s *checkoutService) RetryPayment(ctx context.Context, owner entities.CartOwner, ids []string) (CheckoutResult, error) {
	if !owner.Valid() {
		return CheckoutResult{}, entities.ErrInvalidOwner
	}
	if len(ids) == 0 {
		return CheckoutResult{}, entities.ErrNothingToPay
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer unlock()

	found, err := s.orders.GetOrders(ctx, ids)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(found) != len(slices.Compact(slices.Sorted(slices.Values(ids)))) {
		return CheckoutResult{}, entities.ErrOrderNotFound
	}

	payable := make([]entities.Order, 0, len(found))
	for _, o := range found {
		if !o.OwnedBy(owner) {
			return CheckoutResult{}, entities.ErrForbidden
		}
		if o.Status == entities.OrderStatusPending && o.PaymentStatus != entities.PaymentStatusPaid {
			payable = append(payable, o)
		}
	}
	if len(payable) == 0 {
		return CheckoutResult{}, entities.ErrNothingToPay
	}

	var stale []string
	for _, o := range payable {
		payments, err := s.orders.PaymentsByOrder(ctx, o.ID)
		if err != nil {
			return CheckoutResult{}, err
		}
		stale = append(stale, activeAuthorizations(payments)...)
	}

	// старые попытки больше не ждём
	if _, err := s.orders.UpdatePayments(ctx,
		map[string]any{"order_id": orderIDs(payable)},
		[]entities.PaymentStatus{entities.PaymentStatusPending, entities.PaymentStatusFailed},
		entities.PaymentStatusCancelled, "",
	); err != nil {
		return CheckoutResult{}, err
	}
	s.authorizer.Release(ctx, stale)

	auth, err := s.authorizer.Authorize(ctx, payable, payable[0].CustomerEmail)
	if err != nil {
		return CheckoutResult{}, &entities.AuthorizationError{OrderIDs: orderIDs(payable), Err: err}
	}

	return CheckoutResult{
		CheckoutID:      payable[0].CheckoutID,
		Orders:          payable,
		AuthorizationID: auth.AuthorizationID,
		ClientSecret:    auth.ClientSecret,
		Mode:            auth.Mode,
		Amount:          auth.Amount,
	}, nil
}

func (s *checkoutService) newOrder(ctx context.Context, checkoutID string, owner entities.CartOwner, req CheckoutRequest, method entities.ShippingMethod, sp ShopPlan) (entities.Order, error) {
	number, err := s.orders.NextOrderNumber(ctx)
	if err != nil {
		return entities.Order{}, err
	}

	order := entities.Order{
		ID:                uuid.NewString(),
		Number:            number,
		CheckoutID:        checkoutID,
		ShopID:            sp.ShopID,
		UserID:            owner.UserID,
		GuestToken:        owner.GuestToken,
		CustomerEmail:     req.Email,
		Subtotal:          sp.Subtotal,
		Discount:          sp.Discount,
		Tax:               sp.Tax,
		Shipping:          sp.Shipping,
		Total:             sp.Total,
		Currency:          s.cfg.Currency,
		Status:            entities.OrderStatusPending,
		PaymentStatus:     entities.PaymentStatusPending,
		FulfillmentStatus: entities.FulfillmentUnfulfilled,
		CouponCode:        sp.CouponCode,
		ShippingAddress:   req.ShippingAddress,
		BillingAddress:    req.BillingAddress,
		Items:             make([]entities.OrderItem, len(sp.Items)),
	}
	if sp.ShopID == method.ShopID {
		order.ShippingMethodID = method.ID
	}
	for i, it := range sp.Items {
		it.OrderID = order.ID
		order.Items[i] = it
	}

	if !order.Balanced() {
		return entities.Order{}, fmt.Errorf("%w: totals do not add up", entities.ErrInvalidOrder)
	}
	return order, nil
}

func orderIDs(orders []entities.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}
