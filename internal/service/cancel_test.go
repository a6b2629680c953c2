package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/notify"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCancel_PaidOrderRefundsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 10)
	env.store.addToCart(buyer, "a1", 3, nil)
	res := env.paidCheckout(t)
	require.Len(t, res.Orders, 1)
	orderID := res.Orders[0].ID
	assert.Equal(t, 7, env.store.stock("a1"))

	env.processor.On("Refund", mock.Anything, payment.RefundRequest{
		AuthorizationID: "pi_paid",
		Amount:          res.Orders[0].Total,
		IdempotencyKey:  "refund:" + orderID,
	}).Return(payment.Refund{ID: "re_1", Status: "succeeded"}, nil).Once()

	order, err := env.cancel.Cancel(context.Background(), orderID, "changed mind", buyerActor)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusRefunded, order.Status)
	assert.Equal(t, entities.PaymentStatusRefunded, order.PaymentStatus)
	assert.Equal(t, "changed mind", order.CancelReason)

	_, err = env.cancel.Cancel(context.Background(), orderID, "changed mind", buyerActor)
	assert.ErrorIs(t, err, entities.ErrOrderNotCancellable)

	env.processor.AssertNumberOfCalls(t, "Refund", 1)
	assert.Equal(t, 10, env.store.stock("a1"))

	payments, _ := env.store.PaymentsByOrder(context.Background(), orderID)
	require.Len(t, payments, 1)
	assert.Equal(t, entities.PaymentStatusRefunded, payments[0].Status)
	assert.Equal(t, "re_1", payments[0].RefundID)

	stored, _ := env.store.GetOrder(context.Background(), orderID)
	for _, it := range stored.Items {
		assert.True(t, it.StockRestored)
	}
	assert.Equal(t, 1, env.ledger.deliveriesFor(orderID, entities.EventOrderCancelled))
}

func TestCancel_RefundFailureLeavesOrderUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 10)
	env.store.addToCart(buyer, "a1", 1, nil)
	res := env.paidCheckout(t)
	orderID := res.Orders[0].ID

	env.processor.On("Refund", mock.Anything, mock.Anything).
		Return(payment.Refund{}, entities.ErrPaymentUnavailable).Once()

	_, err := env.cancel.Cancel(context.Background(), orderID, "", buyerActor)
	assert.ErrorIs(t, err, entities.ErrPaymentUnavailable)

	stored, _ := env.store.GetOrder(context.Background(), orderID)
	assert.Equal(t, entities.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, entities.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, 9, env.store.stock("a1"))
}

func TestCancel_UnpaidOrder(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 10)
	env.store.addToCart(buyer, "a1", 2, nil)
	env.processor.On("GetAccount", mock.Anything, "acct_A").Return(payment.AccountStatus{}, nil)
	env.platformCharge("pi_1")

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)
	orderID := res.Orders[0].ID

	order, err := env.cancel.Cancel(context.Background(), orderID, "too slow", adminActor)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCancelled, order.Status)
	assert.Equal(t, "too slow", order.AdminNote)
	assert.Empty(t, order.CancelReason)

	env.processor.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	env.processor.AssertCalled(t, "CancelAuthorization", mock.Anything, "pi_1")
	assert.Equal(t, 10, env.store.stock("a1"))

	payments, _ := env.store.PaymentsByOrder(context.Background(), orderID)
	require.Len(t, payments, 1)
	assert.Equal(t, entities.PaymentStatusCancelled, payments[0].Status)
}

// settleOnRead подтверждает оплату сразу после первого чтения заказа,
// то есть между решением об отмене и её записью.
type settleOnRead struct {
	service.CancelRepo
	once   sync.Once
	settle func()
}

func (r *settleOnRead) GetOrder(ctx context.Context, id string) (entities.Order, error) {
	o, err := r.CancelRepo.GetOrder(ctx, id)
	r.once.Do(r.settle)
	return o, err
}

func TestCancel_PaymentSettledDuringCancel(t *testing.T) {
	env := newTestEnv(t)
	env.product("a1", "A", 2000, 10)
	env.store.addToCart(buyer, "a1", 2, nil)
	env.processor.On("GetAccount", mock.Anything, "acct_A").Return(payment.AccountStatus{}, nil)
	env.platformCharge("pi_race")
	env.succeeded("pi_race")

	res, err := env.checkout.Checkout(context.Background(), buyer, checkoutReq())
	require.NoError(t, err)
	orderID := res.Orders[0].ID

	env.processor.On("Refund", mock.Anything, payment.RefundRequest{
		AuthorizationID: "pi_race",
		Amount:          res.Orders[0].Total,
		IdempotencyKey:  "refund:" + orderID,
	}).Return(payment.Refund{ID: "re_race", Status: "succeeded"}, nil).Once()

	repo := &settleOnRead{CancelRepo: env.store, settle: func() {
		_, err := env.settlement.Settle(context.Background(), "pi_race", nil)
		require.NoError(t, err)
	}}
	cancel := service.NewCancellationService(discardLogger(), &memTx{store: env.store}, repo, env.processor, env.guard,
		notify.NewService(discardLogger(), env.ledger, nil))

	order, err := cancel.Cancel(context.Background(), orderID, "changed mind", buyerActor)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusRefunded, order.Status)
	assert.Equal(t, entities.PaymentStatusRefunded, order.PaymentStatus)

	stored, _ := env.store.GetOrder(context.Background(), orderID)
	assert.Equal(t, entities.OrderStatusRefunded, stored.Status)
	assert.Equal(t, entities.PaymentStatusRefunded, stored.PaymentStatus)

	payments, _ := env.store.PaymentsByOrder(context.Background(), orderID)
	require.Len(t, payments, 1)
	assert.Equal(t, entities.PaymentStatusRefunded, payments[0].Status)
	assert.Equal(t, "re_race", payments[0].RefundID)

	env.processor.AssertNumberOfCalls(t, "Refund", 1)
	env.processor.AssertNotCalled(t, "CancelAuthorization", mock.Anything, "pi_race")
	assert.Equal(t, 10, env.store.stock("a1"))
}

func TestCancel_Permissions(t *testing.T) {
	testCases := []struct {
		name    string
		status  entities.OrderStatus
		actor   entities.Actor
		wantErr error
	}{
		{name: "owner pending", status: entities.OrderStatusPending, actor: buyerActor},
		{name: "owner confirmed", status: entities.OrderStatusConfirmed, actor: buyerActor},
		{
			name:    "owner processing",
			status:  entities.OrderStatusProcessing,
			actor:   buyerActor,
			wantErr: entities.ErrOrderNotCancellable,
		},
		{
			name:    "other customer",
			status:  entities.OrderStatusPending,
			actor:   entities.Actor{Role: entities.RoleCustomer, UserID: "u2"},
			wantErr: entities.ErrForbidden,
		},
		{name: "own vendor", status: entities.OrderStatusConfirmed, actor: entities.Actor{Role: entities.RoleVendor, ShopID: "A"}},
		{
			name:    "foreign vendor",
			status:  entities.OrderStatusPending,
			actor:   entities.Actor{Role: entities.RoleVendor, ShopID: "B"},
			wantErr: entities.ErrForbidden,
		},
		{name: "admin shipped", status: entities.OrderStatusShipped, actor: adminActor},
		{
			name:    "admin delivered",
			status:  entities.OrderStatusDelivered,
			actor:   adminActor,
			wantErr: entities.ErrOrderNotCancellable,
		},
		{
			name:    "already cancelled",
			status:  entities.OrderStatusCancelled,
			actor:   adminActor,
			wantErr: entities.ErrOrderNotCancellable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.product("a1", "A", 1000, 5)
			env.store.orders["o1"] = entities.Order{
				ID:            "o1",
				ShopID:        "A",
				UserID:        "u1",
				Status:        tc.status,
				PaymentStatus: entities.PaymentStatusPending,
				Items:         []entities.OrderItem{{ID: "i1", OrderID: "o1", ProductID: "a1", Quantity: 1}},
			}

			order, err := env.cancel.Cancel(context.Background(), "o1", "reason", tc.actor)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 5, env.store.stock("a1"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, entities.OrderStatusCancelled, order.Status)
			assert.Equal(t, 6, env.store.stock("a1"))
		})
	}
}

func TestCancel_OrderNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.cancel.Cancel(context.Background(), "missing", "", adminActor)
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)
}
