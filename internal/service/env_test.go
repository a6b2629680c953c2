package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/notify"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/cache"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	taxBP        = 500
	commissionBP = 1000
)

type orderGetter interface {
	GetOrder(ctx context.Context, orderID string, actor entities.Actor) (entities.Order, error)
	TransitionStatus(ctx context.Context, orderID string, to entities.OrderStatus, actor entities.Actor) (entities.Order, error)
	ListNotifications(ctx context.Context, shopID string, unreadOnly bool, actor entities.Actor) ([]entities.Notification, error)
}

type testEnv struct {
	store     *memStore
	ledger    *memLedger
	processor *mockProcessor
	accounts  *mapAccountCache

	guard interface {
		service.Reserver
		service.StockReleaser
	}
	checkout interface {
		Checkout(ctx context.Context, owner entities.CartOwner, req service.CheckoutRequest) (service.CheckoutResult, error)
		RetryPayment(ctx context.Context, owner entities.CartOwner, ids []string) (service.CheckoutResult, error)
	}
	settlement interface {
		Settle(ctx context.Context, authID string, orderIDs []string) (service.SettleResult, error)
		MarkFailed(ctx context.Context, authID string) error
	}
	cancel interface {
		Cancel(ctx context.Context, orderID, reason string, actor entities.Actor) (entities.Order, error)
	}
	orders orderGetter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := discardLogger()
	store := newMemStore()
	tx := &memTx{store: store}
	ledger := newMemLedger()
	processor := &mockProcessor{}
	processor.On("CancelAuthorization", mock.Anything, mock.Anything).Return(nil).Maybe()
	accounts := &mapAccountCache{}

	dispatcher := notify.NewService(logger, ledger, nil)
	guard := service.NewInventoryGuard(logger, tx, store, store, 3)
	authorizer := service.NewPaymentAuthorizer(logger, processor, store, store, accounts, commissionBP)

	store.shops["A"] = entities.Shop{ID: "A", Name: "Shop A", ConnectedAccountID: "acct_A"}
	store.shops["B"] = entities.Shop{ID: "B", Name: "Shop B"}
	store.shops["C"] = entities.Shop{ID: "C", Name: "Shop C"}
	store.methods["ship-A"] = entities.ShippingMethod{ID: "ship-A", ShopID: "A", Name: "Courier", Price: 1500}

	return &testEnv{
		store:     store,
		ledger:    ledger,
		processor: processor,
		accounts:  accounts,
		guard:     guard,
		checkout: service.NewCheckoutService(logger, tx, newMemLocker(), store, nopCartCache{}, store,
			save10, store, guard, authorizer, dispatcher,
			service.CheckoutConfig{TaxRateBP: taxBP, Currency: "usd"}),
		settlement: service.NewSettlementReconciler(logger, tx, processor, store, dispatcher),
		cancel:     service.NewCancellationService(logger, tx, store, processor, guard, dispatcher),
		orders:     service.NewOrderService(logger, store, ledger, cache.NewLRUCache[[]byte](10, time.Minute), dispatcher),
	}
}

func (e *testEnv) product(id, shopID string, price int64, stock int) {
	e.store.products[id] = entities.Product{
		ID: id, ShopID: shopID, Name: "Product " + id, SKU: "SKU-" + id,
		Price: price, Stock: stock, TrackInventory: true, Active: true,
	}
}

var (
	buyer      = entities.CartOwner{UserID: "u1"}
	buyerActor = entities.Actor{Role: entities.RoleCustomer, UserID: "u1", Email: "buyer@example.com"}
	adminActor = entities.Actor{Role: entities.RoleAdmin, UserID: "admin"}
)

func checkoutReq(coupons ...service.CouponRequest) service.CheckoutRequest {
	addr := entities.Address{Name: "Buyer", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	return service.CheckoutRequest{
		ShippingMethodID: "ship-A",
		Coupons:          coupons,
		Email:            "buyer@example.com",
		ShippingAddress:  addr,
		BillingAddress:   addr,
	}
}

// platformCharge настраивает платформенную авторизацию на любую сумму.
func (e *testEnv) platformCharge(authID string) {
	e.processor.On("CreateAuthorization", mock.Anything, mock.Anything).
		Return(payment.Authorization{ID: authID, ClientSecret: authID + "_secret", Status: payment.StatusRequiresPaymentMethod}, nil)
}

func (e *testEnv) succeeded(authID string) {
	e.processor.On("GetAuthorization", mock.Anything, authID).
		Return(payment.Authorization{ID: authID, Status: payment.StatusSucceeded}, nil)
}

// paidCheckout оформляет корзину и подтверждает оплату.
func (e *testEnv) paidCheckout(t *testing.T) service.CheckoutResult {
	t.Helper()
	e.processor.On("GetAccount", mock.Anything, "acct_A").Return(payment.AccountStatus{}, nil).Maybe()
	e.platformCharge("pi_paid")
	e.succeeded("pi_paid")

	res, err := e.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)
	_, err = e.settlement.Settle(context.Background(), res.AuthorizationID, nil)
	require.NoError(t, err)
	return res
}

func (e *testEnv) shipping(price int64) {
	m := e.store.methods["ship-A"]
	m.Price = price
	e.store.methods["ship-A"] = m
}
