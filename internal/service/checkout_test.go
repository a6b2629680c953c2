package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckout_SingleVendorDestinationCharge(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 10)
	env.product("a2", "A", 3000, 10)
	env.store.addToCart(buyer, "a1", 1, nil)
	env.store.addToCart(buyer, "a2", 1, map[string]string{"size": "L"})

	env.processor.On("GetAccount", mock.Anything, "acct_A").
		Return(payment.AccountStatus{ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}, nil).Once()
	env.processor.On("CreateDestinationCharge", mock.Anything, mock.MatchedBy(func(req payment.DestinationRequest) bool {
		return req.Amount == 6225 && req.ConnectedAccountID == "acct_A" && req.ApplicationFee == 623 && req.Currency == "usd"
	})).Return(payment.Authorization{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil).Once()

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq(service.CouponRequest{ShopID: "A", Code: "SAVE10"}))
	require.NoError(t, err)

	assert.Equal(t, service.ChargeDestination, res.Mode)
	assert.Equal(t, "pi_1", res.AuthorizationID)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, int64(6225), res.Amount)

	require.Len(t, res.Orders, 1)
	order := res.Orders[0]
	assert.Equal(t, "ORD-000001", order.Number)
	assert.Equal(t, int64(5000), order.Subtotal)
	assert.Equal(t, int64(500), order.Discount)
	assert.Equal(t, int64(225), order.Tax)
	assert.Equal(t, int64(1500), order.Shipping)
	assert.Equal(t, int64(6225), order.Total)
	assert.Equal(t, "SAVE10", order.CouponCode)
	assert.Equal(t, "ship-A", order.ShippingMethodID)
	assert.True(t, order.Balanced())

	payments, _ := env.store.PaymentsByAuthorization(context.Background(), "pi_1")
	require.Len(t, payments, 1)
	assert.Equal(t, int64(6225), payments[0].Amount)
	assert.Equal(t, int64(623), payments[0].ApplicationFee)
	assert.Equal(t, "acct_A", payments[0].ConnectedAccountID)
	assert.Equal(t, entities.PaymentStatusPending, payments[0].Status)

	assert.Equal(t, 9, env.store.stock("a1"))
	assert.Equal(t, 9, env.store.stock("a2"))

	cart, err := env.store.GetCart(context.Background(), buyer)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
	env.processor.AssertExpectations(t)
}

func TestCheckout_MultiVendorPlatformCharge(t *testing.T) {
	env := newTestEnv(t)
	env.shipping(1000)
	env.product("a1", "A", 3000, 5)
	env.product("b1", "B", 2000, 5)
	env.store.addToCart(buyer, "a1", 1, nil)
	env.store.addToCart(buyer, "b1", 1, nil)

	env.processor.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.Amount == 6250 && req.Email == "buyer@example.com"
	})).Return(payment.Authorization{ID: "pi_2", ClientSecret: "s"}, nil).Once()

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)

	assert.Equal(t, service.ChargePlatform, res.Mode)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, "A", res.Orders[0].ShopID)
	assert.Equal(t, int64(4150), res.Orders[0].Total)
	assert.Equal(t, int64(1000), res.Orders[0].Shipping)
	assert.Equal(t, "ship-A", res.Orders[0].ShippingMethodID)
	assert.Equal(t, "B", res.Orders[1].ShopID)
	assert.Equal(t, int64(2100), res.Orders[1].Total)
	assert.Equal(t, int64(0), res.Orders[1].Shipping)
	assert.Empty(t, res.Orders[1].ShippingMethodID)

	// сумма платежей равна сумме авторизации
	payments, _ := env.store.PaymentsByAuthorization(context.Background(), "pi_2")
	require.Len(t, payments, 2)
	var sum int64
	for _, p := range payments {
		sum += p.Amount
		assert.Zero(t, p.ApplicationFee)
		assert.Empty(t, p.ConnectedAccountID)
	}
	assert.Equal(t, int64(6250), sum)
	env.processor.AssertNotCalled(t, "GetAccount", mock.Anything, mock.Anything)
}

func TestCheckout_FallsBackWhenAccountCannotReceiveTransfers(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 5)
	env.store.addToCart(buyer, "a1", 1, nil)

	env.processor.On("GetAccount", mock.Anything, "acct_A").
		Return(payment.AccountStatus{ChargesEnabled: true}, nil).Once()
	env.processor.On("CreateDestinationCharge", mock.Anything, mock.Anything).
		Return(payment.Authorization{}, payment.ErrInsufficientCapabilities).Once()
	env.platformCharge("pi_3")

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, service.ChargePlatform, res.Mode)
	assert.Equal(t, "pi_3", res.AuthorizationID)

	status, ok := env.accounts.Get("acct_A")
	assert.True(t, ok)
	assert.False(t, status.ChargesEnabled)
}

func TestCheckout_NotChargeableAccountUsesPlatform(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 5)
	env.store.addToCart(buyer, "a1", 1, nil)

	env.processor.On("GetAccount", mock.Anything, "acct_A").
		Return(payment.AccountStatus{DetailsSubmitted: true}, nil).Once()
	env.platformCharge("pi_4")

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, service.ChargePlatform, res.Mode)
	env.processor.AssertNotCalled(t, "CreateDestinationCharge", mock.Anything, mock.Anything)
}

// Если резерв одного из магазинов падает, не остаётся ни заказов, ни списаний.
func TestCheckout_AtomicSplit(t *testing.T) {
	testCases := []struct {
		name    string
		prepare func(env *testEnv)
		wantErr error
	}{
		{
			name: "third shop out of stock",
			prepare: func(env *testEnv) {
				env.product("c1", "C", 500, 0)
			},
			wantErr: entities.ErrOutOfStock,
		},
		{
			name: "storage failure on third shop",
			prepare: func(env *testEnv) {
				env.product("c1", "C", 500, 5)
				env.store.failReserveOn = "c1"
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.product("a1", "A", 3000, 5)
			env.product("b1", "B", 2000, 5)
			tc.prepare(env)
			env.store.addToCart(buyer, "a1", 2, nil)
			env.store.addToCart(buyer, "b1", 1, nil)
			env.store.addToCart(buyer, "c1", 1, nil)

			_, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				var oos *entities.OutOfStockError
				require.ErrorAs(t, err, &oos)
				assert.Equal(t, "c1", oos.ProductID)
			}

			assert.Empty(t, env.store.orderList())
			assert.Equal(t, 5, env.store.stock("a1"))
			assert.Equal(t, 5, env.store.stock("b1"))

			cart, err := env.store.GetCart(context.Background(), buyer)
			require.NoError(t, err)
			assert.Len(t, cart.Lines, 3)
			env.processor.AssertNotCalled(t, "CreateAuthorization", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_AuthorizationFailureKeepsOrdersPending(t *testing.T) {
	env := newTestEnv(t)
	env.shipping(1000)
	env.product("a1", "A", 3000, 5)
	env.product("b1", "B", 2000, 5)
	env.store.addToCart(buyer, "a1", 1, nil)
	env.store.addToCart(buyer, "b1", 1, nil)

	env.processor.On("CreateAuthorization", mock.Anything, mock.Anything).
		Return(payment.Authorization{}, entities.ErrPaymentUnavailable).Once()

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrPaymentUnavailable)

	var authErr *entities.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	require.Len(t, authErr.OrderIDs, 2)
	assert.Len(t, res.Orders, 2)

	for _, o := range env.store.orderList() {
		assert.Equal(t, entities.OrderStatusPending, o.Status)
		assert.Equal(t, entities.PaymentStatusPending, o.PaymentStatus)
	}
	// резервы сохраняются до явной отмены
	assert.Equal(t, 4, env.store.stock("a1"))
	assert.Equal(t, 4, env.store.stock("b1"))

	env.processor.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.Amount == 6250
	})).Return(payment.Authorization{ID: "pi_retry", ClientSecret: "s"}, nil).Once()

	retry, err := env.checkout.RetryPayment(context.Background(), buyer, authErr.OrderIDs)
	require.NoError(t, err)
	assert.Equal(t, "pi_retry", retry.AuthorizationID)
	assert.Equal(t, int64(6250), retry.Amount)
	assert.Equal(t, 4, env.store.stock("a1"))

	payments, _ := env.store.PaymentsByAuthorization(context.Background(), "pi_retry")
	assert.Len(t, payments, 2)
}

func TestCheckout_RetryPaymentRejectsForeignOrders(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 3000, 5)
	env.store.addToCart(buyer, "a1", 1, nil)
	env.processor.On("GetAccount", mock.Anything, "acct_A").Return(payment.AccountStatus{}, nil)
	env.platformCharge("pi_1")

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)

	stranger := entities.CartOwner{UserID: "u2"}
	_, err = env.checkout.RetryPayment(context.Background(), stranger, []string{res.Orders[0].ID})
	assert.ErrorIs(t, err, entities.ErrForbidden)

	_, err = env.checkout.RetryPayment(context.Background(), buyer, []string{"missing"})
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)
}

func TestCheckout_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		owner   entities.CartOwner
		req     service.CheckoutRequest
		wantErr error
	}{
		{name: "no owner", owner: entities.CartOwner{}, req: checkoutReq(), wantErr: entities.ErrInvalidOwner},
		{name: "no shipping", owner: buyer, req: service.CheckoutRequest{Email: "a@b.c"}, wantErr: entities.ErrShippingRequired},
		{name: "empty cart", owner: buyer, req: checkoutReq(), wantErr: entities.ErrEmptyCart},
		{
			name:    "unknown shipping method",
			owner:   entities.CartOwner{GuestToken: "g1"},
			req:     service.CheckoutRequest{ShippingMethodID: "nope", Email: "a@b.c"},
			wantErr: entities.ErrShippingNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.product("a1", "A", 100, 5)
			env.store.addToCart(entities.CartOwner{GuestToken: "g1"}, "a1", 1, nil)

			_, err := env.checkout.Checkout(context.Background(), tc.owner, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, env.store.orderList())
		})
	}
}

func TestCheckout_LowStockNotification(t *testing.T) {
	env := newTestEnv(t)
	env.product("b1", "B", 1000, 4)
	env.product("a1", "A", 1000, 10)
	env.store.addToCart(buyer, "b1", 2, nil)
	env.store.addToCart(buyer, "a1", 1, nil)
	env.platformCharge("pi_1")

	_, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)

	notes, _ := env.ledger.ListNotifications(context.Background(), "B", false)
	require.Len(t, notes, 1)
	assert.Equal(t, entities.EventLowStock, notes[0].Type)
	assert.Equal(t, "b1", notes[0].SubjectID)

	notes, _ = env.ledger.ListNotifications(context.Background(), "A", false)
	assert.Empty(t, notes)
}

func TestCheckout_ConcurrentCheckoutForSameOwner(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 1000, 10)
	env.store.addToCart(buyer, "a1", 1, nil)

	locker := newMemLocker()
	unlock, err := locker.Lock(context.Background(), buyer)
	require.NoError(t, err)
	defer unlock()

	logger := discardLogger()
	svc := service.NewCheckoutService(logger, &memTx{store: env.store}, locker, env.store, nopCartCache{}, env.store,
		noCoupons, env.store, env.guard, nil, nil, service.CheckoutConfig{TaxRateBP: taxBP, Currency: "usd"})

	_, err = svc.Checkout(context.Background(), buyer, checkoutReq())
	assert.True(t, errors.Is(err, entities.ErrCheckoutInProgress))
}
