package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"
)

type CancelRepo interface {
	GetOrder(ctx context.Context, id string) (entities.Order, error)
	PaymentsByOrder(ctx context.Context, orderID string) ([]entities.Payment, error)
	PaymentsByAuthorization(ctx context.Context, authorizationID string) ([]entities.Payment, error)
	TransitionOrder(ctx context.Context, id string, from []entities.OrderStatus, upd entities.OrderUpdate) (bool, error)
	UpdatePayments(ctx context.Context, filter map[string]any, from []entities.PaymentStatus, to entities.PaymentStatus, refundID string) (int64, error)
}

type StockReleaser interface {
	Release(ctx context.Context, item entities.OrderItem) (bool, error)
}

// maxCancelAttempts: сколько раз решение пересчитывается, если заказ изменился
// между чтением и условным обновлением (например, параллельно прошла оплата).
const maxCancelAttempts = 3

var errOrderChanged = errors.New("order changed concurrently")

var (
	unpaidStatuses = []entities.PaymentStatus{entities.PaymentStatusPending, entities.PaymentStatusFailed}

	customerCancellable = []entities.OrderStatus{entities.OrderStatusPending, entities.OrderStatusConfirmed}
	adminCancellable    = []entities.OrderStatus{
		entities.OrderStatusPending,
		entities.OrderStatusConfirmed,
		entities.OrderStatusProcessing,
		entities.OrderStatusShipped,
	}
)

type cancellationService struct {
	logger     *slog.Logger
	txManager  trm.Manager
	repo       CancelRepo
	processor  PaymentProcessor
	stock      StockReleaser
	dispatcher Dispatcher
}

func NewCancellationService(logger *slog.Logger, txManager trm.Manager, repo CancelRepo, processor PaymentProcessor, stock StockReleaser, dispatcher Dispatcher) *cancellationService {
	return &cancellationService{
		logger:     logger.With(slog.String("service", "cancellation")),
		txManager:  txManager,
		repo:       repo,
		processor:  processor,
		stock:      stock,
		dispatcher: dispatcher,
	}
}

// Cancel отменяет заказ: при оплате сначала возврат денег, затем одной
// транзакцией статус, платежи и возврат остатков.
func (s *cancellationService) Cancel(ctx context.Context, orderID, reason string, actor entities.Actor) (entities.Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := s.cancel(ctx, orderID, reason, actor)
		if !errors.Is(err, errOrderChanged) {
			return order, err
		}
		if attempt == maxCancelAttempts {
			return entities.Order{}, fmt.Errorf("failed to cancel order: %w", entities.ErrOrderNotCancellable)
		}
		s.logger.Info("order changed during cancellation, retrying", "order_id", orderID, "attempt", attempt)
	}
}

func (s *cancellationService) cancel(ctx context.Context, orderID, reason string, actor entities.Actor) (entities.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if err := authorizeCancel(order, actor); err != nil {
		return entities.Order{}, err
	}

	allowed := customerCancellable
	if actor.Role == entities.RoleAdmin {
		allowed = adminCancellable
	}
	if !slices.Contains(allowed, order.Status) {
		return entities.Order{}, fmt.Errorf("%w: status %s", entities.ErrOrderNotCancellable, order.Status)
	}

	paid := order.PaymentStatus == entities.PaymentStatusPaid
	var refundID string
	var abandoned []string
	if paid {
		refundID, err = s.refund(ctx, order)
		if err != nil {
			return entities.Order{}, err
		}
	} else {
		payments, err := s.repo.PaymentsByOrder(ctx, order.ID)
		if err != nil {
			return entities.Order{}, err
		}
		abandoned = activeAuthorizations(payments)
	}

	// решение о возврате принято по прочитанному payment_status, поэтому он входит в условие
	upd := entities.OrderUpdate{Status: entities.OrderStatusCancelled, PaymentFrom: unpaidStatuses}
	if paid {
		upd.Status = entities.OrderStatusRefunded
		upd.PaymentStatus = entities.PaymentStatusRefunded
		upd.PaymentFrom = []entities.PaymentStatus{entities.PaymentStatusPaid}
	}
	if actor.Role == entities.RoleAdmin {
		upd.AdminNote = reason
	} else {
		upd.CancelReason = reason
	}

	err = s.txManager.Do(ctx, func(ctx context.Context) error {
		ok, err := s.repo.TransitionOrder(ctx, order.ID, allowed, upd)
		if err != nil {
			return err
		}
		if !ok {
			return errOrderChanged
		}

		filter := map[string]any{"order_id": order.ID}
		if paid {
			_, err = s.repo.UpdatePayments(ctx, filter,
				[]entities.PaymentStatus{entities.PaymentStatusSucceeded}, entities.PaymentStatusRefunded, refundID)
		} else {
			_, err = s.repo.UpdatePayments(ctx, filter, unpaidStatuses, entities.PaymentStatusCancelled, "")
		}
		if err != nil {
			return err
		}

		for _, item := range order.Items {
			if _, err := s.stock.Release(ctx, item); err != nil {
				return fmt.Errorf("failed to release item %s: %w", item.ID, err)
			}
		}
		return nil
	})
	if errors.Is(err, errOrderChanged) {
		return entities.Order{}, err
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to cancel order: %w", err)
	}

	releaseAuthorizations(ctx, s.logger, s.processor, s.repo, abandoned)

	order.Status = upd.Status
	if upd.PaymentStatus != "" {
		order.PaymentStatus = upd.PaymentStatus
	}
	order.CancelReason, order.AdminNote = upd.CancelReason, upd.AdminNote

	event := orderEvent(entities.EventOrderCancelled, order)
	event.Reason = upd.CancelReason
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		dispatchFailures.Inc()
		s.logger.Error("failed to dispatch cancellation", "order_id", order.ID, "error", err)
	}

	s.logger.Info("order cancelled", "order_id", order.ID, "status", order.Status, "role", actor.Role)
	return order, nil
}

// refund возвращает деньги по всем успешным платежам заказа.
// Ключ идемпотентности не даёт процессору вернуть деньги дважды при повторе.
func (s *cancellationService) refund(ctx context.Context, order entities.Order) (string, error) {
	payments, err := s.repo.PaymentsByOrder(ctx, order.ID)
	if err != nil {
		return "", err
	}

	var refundID string
	for i, p := range payments {
		if p.Status != entities.PaymentStatusSucceeded {
			continue
		}

		key := "refund:" + order.ID
		if i > 0 {
			key += ":" + p.ID
		}

		r, err := s.processor.Refund(ctx, payment.RefundRequest{
			AuthorizationID: p.AuthorizationID,
			Amount:          p.Amount,
			IdempotencyKey:  key,
		})
		if err != nil {
			return "", fmt.Errorf("failed to refund payment: %w", err)
		}
		refundsTotal.Inc()
		if refundID == "" {
			refundID = r.ID
		}
	}
	return refundID, nil
}

func authorizeCancel(order entities.Order, actor entities.Actor) error {
	switch actor.Role {
	case entities.RoleAdmin:
		return nil
	case entities.RoleVendor:
		if actor.CanManageShop(order.ShopID) {
			return nil
		}
	case entities.RoleCustomer:
		if order.OwnedBy(actor.Owner()) {
			return nil
		}
	}
	return entities.ErrForbidden
}
