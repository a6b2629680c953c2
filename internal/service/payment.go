package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"

	"github.com/google/uuid"
)

type PaymentProcessor interface {
	CreateAuthorization(ctx context.Context, req payment.ChargeRequest) (payment.Authorization, error)
	CreateDestinationCharge(ctx context.Context, req payment.DestinationRequest) (payment.Authorization, error)
	GetAuthorization(ctx context.Context, id string) (payment.Authorization, error)
	Refund(ctx context.Context, req payment.RefundRequest) (payment.Refund, error)
	GetAccount(ctx context.Context, accountID string) (payment.AccountStatus, error)
	CancelAuthorization(ctx context.Context, id string) error
}

type PaymentLookup interface {
	PaymentsByAuthorization(ctx context.Context, authorizationID string) ([]entities.Payment, error)
}

type PaymentRepo interface {
	PaymentLookup
	CreatePayments(ctx context.Context, payments []entities.Payment) error
}

type ShopReader interface {
	GetShops(ctx context.Context, ids []string) (map[string]entities.Shop, error)
}

type AccountCache interface {
	Get(key string) (payment.AccountStatus, bool)
	Set(key string, value payment.AccountStatus)
}

type ChargeMode string

const (
	ChargeDestination ChargeMode = "destination"
	ChargePlatform    ChargeMode = "platform"
)

type AuthorizeResult struct {
	AuthorizationID string
	ClientSecret    string
	Mode            ChargeMode
	Amount          int64
	Payments        []entities.Payment
}

type paymentAuthorizer struct {
	logger       *slog.Logger
	processor    PaymentProcessor
	payments     PaymentRepo
	shops        ShopReader
	accounts     AccountCache
	commissionBP int64
}

func NewPaymentAuthorizer(logger *slog.Logger, processor PaymentProcessor, payments PaymentRepo, shops ShopReader, accounts AccountCache, commissionBP int64) *paymentAuthorizer {
	return &paymentAuthorizer{
		logger:       logger.With(slog.String("service", "payment")),
		processor:    processor,
		payments:     payments,
		shops:        shops,
		accounts:     accounts,
		commissionBP: commissionBP,
	}
}

// Authorize создаёт одну авторизацию на все заказы и по платежу на каждый заказ.
func (a *paymentAuthorizer) Authorize(ctx context.Context, orders []entities.Order, email string) (AuthorizeResult, error) {
	if len(orders) == 0 {
		return AuthorizeResult{}, entities.ErrNothingToPay
	}

	var grandTotal int64
	orderIDs := make([]string, len(orders))
	shopIDs := make([]string, 0, 1)
	seen := make(map[string]struct{})
	for i, o := range orders {
		grandTotal += o.Total
		orderIDs[i] = o.ID
		if _, ok := seen[o.ShopID]; !ok {
			seen[o.ShopID] = struct{}{}
			shopIDs = append(shopIDs, o.ShopID)
		}
	}

	charge := payment.ChargeRequest{
		Amount:   grandTotal,
		Currency: orders[0].Currency,
		Email:    email,
		Metadata: payment.OrderMetadata(orders[0].CheckoutID, orderIDs),
	}

	var (
		auth payment.Authorization
		mode = ChargePlatform
		fee  int64
		dest string
	)

	if shop, ok := a.destinationShop(ctx, shopIDs); ok {
		fee = applyRate(grandTotal, a.commission(shop))
		res, err := a.processor.CreateDestinationCharge(ctx, payment.DestinationRequest{
			ChargeRequest:      charge,
			ConnectedAccountID: shop.ConnectedAccountID,
			ApplicationFee:     fee,
		})
		switch {
		case err == nil:
			auth, mode, dest = res, ChargeDestination, shop.ConnectedAccountID
		case errors.Is(err, payment.ErrInsufficientCapabilities):
			a.logger.Warn("connected account cannot receive transfers, using platform charge",
				"shop_id", shop.ID, "account_id", shop.ConnectedAccountID)
			a.accounts.Set(shop.ConnectedAccountID, payment.AccountStatus{})
			fee = 0
		default:
			return AuthorizeResult{}, fmt.Errorf("failed to create destination charge: %w", err)
		}
	}

	if mode == ChargePlatform {
		res, err := a.processor.CreateAuthorization(ctx, charge)
		if err != nil {
			return AuthorizeResult{}, fmt.Errorf("failed to create authorization: %w", err)
		}
		auth = res
	}

	payments := make([]entities.Payment, len(orders))
	fees := splitFee(orders, fee)
	for i, o := range orders {
		payments[i] = entities.Payment{
			ID:                 uuid.NewString(),
			OrderID:            o.ID,
			AuthorizationID:    auth.ID,
			ConnectedAccountID: dest,
			ApplicationFee:     fees[i],
			Amount:             o.Total,
			Currency:           o.Currency,
			Status:             entities.PaymentStatusPending,
		}
	}

	if err := a.payments.CreatePayments(ctx, payments); err != nil {
		return AuthorizeResult{}, fmt.Errorf("failed to save payments: %w", err)
	}

	authorizationsTotal.WithLabelValues(string(mode)).Inc()
	a.logger.Info("payment authorized",
		"authorization_id", auth.ID, "mode", mode, "amount", grandTotal, "orders", len(orders))

	return AuthorizeResult{
		AuthorizationID: auth.ID,
		ClientSecret:    auth.ClientSecret,
		Mode:            mode,
		Amount:          grandTotal,
		Payments:        payments,
	}, nil
}

// destinationShop: ровно один магазин и его аккаунт принимает платежи.
func (a *paymentAuthorizer) destinationShop(ctx context.Context, shopIDs []string) (entities.Shop, bool) {
	if len(shopIDs) != 1 {
		return entities.Shop{}, false
	}

	shops, err := a.shops.GetShops(ctx, shopIDs)
	if err != nil {
		a.logger.Warn("failed to load shop, using platform charge", "shop_id", shopIDs[0], "error", err)
		return entities.Shop{}, false
	}
	shop, ok := shops[shopIDs[0]]
	if !ok || shop.ConnectedAccountID == "" {
		return entities.Shop{}, false
	}

	status, ok := a.accounts.Get(shop.ConnectedAccountID)
	if !ok {
		status, err = a.processor.GetAccount(ctx, shop.ConnectedAccountID)
		if err != nil {
			a.logger.Warn("failed to get connected account, using platform charge",
				"account_id", shop.ConnectedAccountID, "error", err)
			return entities.Shop{}, false
		}
		a.accounts.Set(shop.ConnectedAccountID, status)
	}
	return shop, status.ChargesEnabled
}

func (a *paymentAuthorizer) commission(shop entities.Shop) int64 {
	if shop.CommissionBP > 0 {
		return shop.CommissionBP
	}
	return a.commissionBP
}

// splitFee раскладывает комиссию по заказам пропорционально суммам;
// остаток от округления достаётся последнему заказу.
func splitFee(orders []entities.Order, fee int64) []int64 {
	fees := make([]int64, len(orders))
	if fee == 0 {
		return fees
	}

	var total int64
	for _, o := range orders {
		total += o.Total
	}
	if total == 0 {
		return fees
	}

	var assigned int64
	for i, o := range orders[:len(orders)-1] {
		fees[i] = fee * o.Total / total
		assigned += fees[i]
	}
	fees[len(orders)-1] = fee - assigned
	return fees
}

// Release отзывает брошенные авторизации.
func (a *paymentAuthorizer) Release(ctx context.Context, authorizationIDs []string) {
	releaseAuthorizations(ctx, a.logger, a.processor, a.payments, authorizationIDs)
}

// releaseAuthorizations отменяет у процессора авторизации, по которым не осталось
// ни ожидающих, ни прошедших платежей. Ошибки только логируются: если клиент всё же
// оплатит отозванную попытку, Settle вернёт деньги.
func releaseAuthorizations(ctx context.Context, logger *slog.Logger, processor PaymentProcessor, lookup PaymentLookup, authorizationIDs []string) {
	for _, id := range slices.Compact(slices.Sorted(slices.Values(authorizationIDs))) {
		payments, err := lookup.PaymentsByAuthorization(ctx, id)
		if err != nil {
			logger.Error("failed to load authorization payments", "authorization_id", id, "error", err)
			continue
		}
		if slices.ContainsFunc(payments, isLivePayment) {
			continue
		}

		if err := processor.CancelAuthorization(ctx, id); err != nil {
			authorizationReleases.WithLabelValues("error").Inc()
			logger.Warn("failed to cancel authorization", "authorization_id", id, "error", err)
			continue
		}
		authorizationReleases.WithLabelValues("ok").Inc()
		logger.Info("authorization cancelled", "authorization_id", id)
	}
}

// isLivePayment: по платежу ещё можно заплатить или деньги уже списаны.
func isLivePayment(p entities.Payment) bool {
	switch p.Status {
	case entities.PaymentStatusPending, entities.PaymentStatusFailed, entities.PaymentStatusSucceeded:
		return true
	}
	return false
}

// activeAuthorizations авторизации платежей, которые ещё ждут оплаты.
func activeAuthorizations(payments []entities.Payment) []string {
	var ids []string
	for _, p := range payments {
		if p.Status == entities.PaymentStatusPending || p.Status == entities.PaymentStatusFailed {
			ids = append(ids, p.AuthorizationID)
		}
	}
	return ids
}
