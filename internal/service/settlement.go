package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"
)

type SettlementRepo interface {
	GetOrders(ctx context.Context, ids []string) ([]entities.Order, error)
	PaymentsByAuthorization(ctx context.Context, authorizationID string) ([]entities.Payment, error)
	TransitionOrder(ctx context.Context, id string, from []entities.OrderStatus, upd entities.OrderUpdate) (bool, error)
	SetPaymentStatus(ctx context.Context, ids []string, from, to entities.PaymentStatus) error
	UpdatePayments(ctx context.Context, filter map[string]any, from []entities.PaymentStatus, to entities.PaymentStatus, refundID string) (int64, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, events ...entities.OrderEvent) error
}

type SettleResult struct {
	AuthorizationID string
	Orders          []entities.Order
	// Confirmed число заказов, переведённых этим вызовом
	Confirmed int
}

type settlementReconciler struct {
	logger     *slog.Logger
	txManager  trm.Manager
	processor  PaymentProcessor
	repo       SettlementRepo
	dispatcher Dispatcher
}

func NewSettlementReconciler(logger *slog.Logger, txManager trm.Manager, processor PaymentProcessor, repo SettlementRepo, dispatcher Dispatcher) *settlementReconciler {
	return &settlementReconciler{
		logger:     logger.With(slog.String("service", "settlement")),
		txManager:  txManager,
		processor:  processor,
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// Settle подтверждает заказы авторизации после проверки её живого статуса.
// Повторный вызов ничего не меняет, а письма защищены журналом доставки.
func (s *settlementReconciler) Settle(ctx context.Context, authorizationID string, orderIDs []string) (SettleResult, error) {
	auth, err := s.processor.GetAuthorization(ctx, authorizationID)
	if err != nil {
		settlementsTotal.WithLabelValues("error").Inc()
		return SettleResult{}, fmt.Errorf("failed to get authorization: %w", err)
	}
	if auth.Status != payment.StatusSucceeded {
		settlementsTotal.WithLabelValues("not_succeeded").Inc()
		return SettleResult{}, fmt.Errorf("%w: status %s", entities.ErrPaymentNotSucceeded, auth.Status)
	}

	payments, err := s.repo.PaymentsByAuthorization(ctx, authorizationID)
	if err != nil {
		return SettleResult{}, err
	}
	target, err := targetOrders(payments, orderIDs)
	if err != nil {
		settlementsTotal.WithLabelValues("mismatch").Inc()
		return SettleResult{}, err
	}

	byOrder := make(map[string]entities.Payment, len(payments))
	for _, p := range payments {
		byOrder[p.OrderID] = p
	}

	var confirmed int
	var orphans []orphanCapture
	err = s.txManager.Do(ctx, func(ctx context.Context) error {
		confirmed, orphans = 0, nil

		orders, err := s.repo.GetOrders(ctx, target)
		if err != nil {
			return err
		}

		settled := make([]string, 0, len(orders))
		for _, o := range orders {
			p := byOrder[o.ID]
			action, err := s.settleOrder(ctx, o, p)
			if err != nil {
				return err
			}
			switch action {
			case captureConfirmed:
				confirmed++
				settled = append(settled, o.ID)
			case captureSettled:
				settled = append(settled, o.ID)
			case captureCancelled, captureDuplicate:
				if slices.Contains(capturableStatuses, p.Status) {
					s.logger.Warn("capture does not belong to a payable order", "order_id", o.ID, "authorization_id", authorizationID, "reason", action)
					orphans = append(orphans, orphanCapture{payment: p, reason: action})
				}
			}
		}

		if len(settled) == 0 {
			return nil
		}
		_, err = s.repo.UpdatePayments(ctx,
			map[string]any{"authorization_id": authorizationID, "order_id": settled},
			capturableStatuses, entities.PaymentStatusSucceeded, "",
		)
		return err
	})
	if err != nil {
		settlementsTotal.WithLabelValues("error").Inc()
		return SettleResult{}, fmt.Errorf("failed to settle: %w", err)
	}

	for _, o := range orphans {
		if err := s.refundCapture(ctx, o); err != nil {
			settlementsTotal.WithLabelValues("error").Inc()
			return SettleResult{}, err
		}
	}
	settlementsTotal.WithLabelValues("ok").Inc()

	orders, err := s.repo.GetOrders(ctx, target)
	if err != nil {
		// статусы уже зафиксированы; письма отправит следующий вызов
		s.logger.Error("failed to reload orders after settlement", "authorization_id", authorizationID, "error", err)
		return SettleResult{AuthorizationID: authorizationID, Confirmed: confirmed}, nil
	}

	s.notify(ctx, orders)

	s.logger.Info("authorization settled", "authorization_id", authorizationID, "orders", len(target), "confirmed", confirmed)
	return SettleResult{AuthorizationID: authorizationID, Orders: orders, Confirmed: confirmed}, nil
}

type captureAction string

const (
	// captureConfirmed заказ переведён этим вызовом
	captureConfirmed captureAction = "confirmed"
	// captureSettled заказ уже оплачен этой авторизацией
	captureSettled captureAction = "settled"
	// captureCancelled деньги пришли на отменённый заказ
	captureCancelled captureAction = "cancelled"
	// captureDuplicate заказ уже оплачен другой авторизацией
	captureDuplicate captureAction = "duplicate"
)

var capturableStatuses = []entities.PaymentStatus{
	entities.PaymentStatusPending,
	entities.PaymentStatusFailed,
	entities.PaymentStatusCancelled,
}

type orphanCapture struct {
	payment entities.Payment
	reason  captureAction
}

// classifyCapture решает судьбу списания по текущему состоянию заказа.
func classifyCapture(o entities.Order, p entities.Payment) captureAction {
	switch {
	case o.Status == entities.OrderStatusCancelled || o.Status == entities.OrderStatusRefunded:
		return captureCancelled
	case o.PaymentStatus == entities.PaymentStatusPaid && p.Status == entities.PaymentStatusSucceeded:
		return captureSettled
	case o.PaymentStatus == entities.PaymentStatusPaid || o.PaymentStatus == entities.PaymentStatusRefunded:
		return captureDuplicate
	case o.Status == entities.OrderStatusPending:
		return captureConfirmed
	}
	return captureSettled
}

// settleOrder подтверждает заказ условным переходом. Если заказ изменился между
// чтением и обновлением (отмена, другая авторизация), решение принимается заново.
func (s *settlementReconciler) settleOrder(ctx context.Context, o entities.Order, p entities.Payment) (captureAction, error) {
	for attempt := 1; ; attempt++ {
		action := classifyCapture(o, p)
		if action != captureConfirmed {
			return action, nil
		}

		ok, err := s.repo.TransitionOrder(ctx, o.ID,
			[]entities.OrderStatus{entities.OrderStatusPending},
			entities.OrderUpdate{
				Status:        entities.OrderStatusConfirmed,
				PaymentStatus: entities.PaymentStatusPaid,
				PaymentFrom:   unpaidStatuses,
			},
		)
		if err != nil {
			return "", fmt.Errorf("failed to confirm order: %w", err)
		}
		if ok {
			return captureConfirmed, nil
		}
		if attempt == maxCancelAttempts {
			return "", fmt.Errorf("failed to confirm order %s: %w", o.ID, errOrderChanged)
		}

		fresh, err := s.repo.GetOrders(ctx, []string{o.ID})
		if err != nil {
			return "", err
		}
		if len(fresh) == 0 {
			return "", fmt.Errorf("%w: %s", entities.ErrOrderNotFound, o.ID)
		}
		o = fresh[0]
	}
}

// refundCapture возвращает списание, которому не нашлось неоплаченного заказа.
// Ошибка возвращается наверх, чтобы вебхук или сообщение были доставлены повторно.
func (s *settlementReconciler) refundCapture(ctx context.Context, o orphanCapture) error {
	p := o.payment
	r, err := s.processor.Refund(ctx, payment.RefundRequest{
		AuthorizationID: p.AuthorizationID,
		Amount:          p.Amount,
		IdempotencyKey:  "refund:capture:" + p.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to refund capture: %w", err)
	}

	if _, err := s.repo.UpdatePayments(ctx,
		map[string]any{"authorization_id": p.AuthorizationID, "order_id": p.OrderID},
		capturableStatuses, entities.PaymentStatusRefunded, r.ID,
	); err != nil {
		return err
	}

	captureRefunds.WithLabelValues(string(o.reason)).Inc()
	s.logger.Info("capture refunded", "order_id", p.OrderID, "authorization_id", p.AuthorizationID, "reason", o.reason, "refund_id", r.ID)
	return nil
}

func (s *settlementReconciler) notify(ctx context.Context, orders []entities.Order) {
	events := make([]entities.OrderEvent, 0, len(orders))
	for _, o := range orders {
		if o.Status != entities.OrderStatusConfirmed || o.PaymentStatus != entities.PaymentStatusPaid {
			continue
		}
		events = append(events, orderEvent(entities.EventOrderConfirmed, o))
	}
	if len(events) == 0 {
		return
	}

	if err := s.dispatcher.Dispatch(ctx, events...); err != nil {
		dispatchFailures.Inc()
		s.logger.Error("failed to dispatch confirmations", "error", err)
	}
}

// MarkFailed отмечает неуспешную попытку оплаты; заказы остаются pending для повтора.
func (s *settlementReconciler) MarkFailed(ctx context.Context, authorizationID string) error {
	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		payments, err := s.repo.PaymentsByAuthorization(ctx, authorizationID)
		if err != nil {
			return err
		}

		var ids []string
		for _, p := range payments {
			if p.Status == entities.PaymentStatusPending {
				ids = append(ids, p.OrderID)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := s.repo.UpdatePayments(ctx,
			map[string]any{"authorization_id": authorizationID},
			[]entities.PaymentStatus{entities.PaymentStatusPending},
			entities.PaymentStatusFailed, "",
		); err != nil {
			return err
		}
		return s.repo.SetPaymentStatus(ctx, ids, entities.PaymentStatusPending, entities.PaymentStatusFailed)
	})
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	settlementsTotal.WithLabelValues("failed").Inc()
	s.logger.Info("authorization failed", "authorization_id", authorizationID)
	return nil
}

// targetOrders проверяет, что все запрошенные заказы принадлежат авторизации.
// Пустой список означает все заказы авторизации.
func targetOrders(payments []entities.Payment, requested []string) ([]string, error) {
	authorized := make([]string, 0, len(payments))
	for _, p := range payments {
		if !slices.Contains(authorized, p.OrderID) {
			authorized = append(authorized, p.OrderID)
		}
	}
	if len(authorized) == 0 {
		return nil, fmt.Errorf("%w: no payments for authorization", entities.ErrOrderMismatch)
	}
	if len(requested) == 0 {
		return authorized, nil
	}

	for _, id := range requested {
		if !slices.Contains(authorized, id) {
			return nil, fmt.Errorf("%w: %s", entities.ErrOrderMismatch, id)
		}
	}
	return slices.Compact(slices.Sorted(slices.Values(requested))), nil
}

func orderEvent(t entities.EventType, o entities.Order) entities.OrderEvent {
	return entities.OrderEvent{
		Type:        t,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		ShopID:      o.ShopID,
		Recipient:   o.CustomerEmail,
		Status:      o.Status,
		Total:       o.Total,
		Currency:    o.Currency,
	}
}
