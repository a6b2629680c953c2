package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"
)

type OrderRepo interface {
	GetOrder(ctx context.Context, id string) (entities.Order, error)
	OrdersByCheckout(ctx context.Context, checkoutID string) ([]entities.Order, error)
	TransitionOrder(ctx context.Context, id string, from []entities.OrderStatus, upd entities.OrderUpdate) (bool, error)
}

type NotificationRepo interface {
	ListNotifications(ctx context.Context, shopID string, unreadOnly bool) ([]entities.Notification, error)
	MarkNotificationRead(ctx context.Context, shopID, id string) error
}

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// следующий статус выполнения заказа
var fulfilmentFlow = map[entities.OrderStatus]entities.OrderStatus{
	entities.OrderStatusConfirmed:  entities.OrderStatusProcessing,
	entities.OrderStatusProcessing: entities.OrderStatusShipped,
	entities.OrderStatusShipped:    entities.OrderStatusDelivered,
}

type orderService struct {
	logger        *slog.Logger
	repo          OrderRepo
	notifications NotificationRepo
	cache         Cache
	dispatcher    Dispatcher
}

func NewOrderService(logger *slog.Logger, repo OrderRepo, notifications NotificationRepo, cache Cache, dispatcher Dispatcher) *orderService {
	return &orderService{
		logger:        logger.With(slog.String("service", "order")),
		repo:          repo,
		notifications: notifications,
		cache:         cache,
		dispatcher:    dispatcher,
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor entities.Actor) (entities.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if !canView(order, actor) {
		return entities.Order{}, entities.ErrForbidden
	}
	return order, nil
}

// getOrder читает заказ из кэша или из БД с повторами.
// Кэшируются только заказы в конечном статусе: они больше не меняются.
func (s *orderService) getOrder(ctx context.Context, orderID string) (entities.Order, error) {
	if data, ok := s.cache.Get(orderID); ok {
		var order entities.Order
		if err := order.Unmarshal(data); err != nil {
			s.logger.Error("failed to unmarshal order", slog.String("order_id", orderID), slog.Any("error", err))
			return entities.Order{}, err
		}
		return order, nil
	}

	var order entities.Order
	fn := func() error {
		var err error
		order, err = s.repo.GetOrder(ctx, orderID)
		return err
	}
	if err := utils.RetryCtx(ctx, utils.DefaultRetry, fn, entities.ErrOrderNotFound); err != nil {
		return entities.Order{}, err
	}

	if order.Status.IsTerminal() {
		data, err := order.Marshal()
		if err != nil {
			s.logger.Error("failed to marshal order", slog.String("order_id", orderID), slog.Any("error", err))
			return entities.Order{}, err
		}
		s.cache.Set(orderID, data)
	}
	return order, nil
}

func (s *orderService) ListByCheckout(ctx context.Context, checkoutID string, actor entities.Actor) ([]entities.Order, error) {
	orders, err := s.repo.OrdersByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}

	visible := make([]entities.Order, 0, len(orders))
	for _, o := range orders {
		if canView(o, actor) {
			visible = append(visible, o)
		}
	}
	return visible, nil
}

// TransitionStatus двигает заказ по цепочке выполнения на один шаг.
func (s *orderService) TransitionStatus(ctx context.Context, orderID string, to entities.OrderStatus, actor entities.Actor) (entities.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if !actor.CanManageShop(order.ShopID) {
		return entities.Order{}, entities.ErrForbidden
	}

	if next, ok := fulfilmentFlow[order.Status]; !ok || next != to {
		return entities.Order{}, fmt.Errorf("%w: %s -> %s", entities.ErrInvalidTransition, order.Status, to)
	}

	upd := entities.OrderUpdate{Status: to}
	if to == entities.OrderStatusDelivered {
		upd.FulfillmentStatus = entities.FulfillmentFulfilled
	}

	ok, err := s.repo.TransitionOrder(ctx, order.ID, []entities.OrderStatus{order.Status}, upd)
	if err != nil {
		return entities.Order{}, err
	}
	if !ok {
		return entities.Order{}, fmt.Errorf("%w: order changed concurrently", entities.ErrInvalidTransition)
	}

	order.Status = to
	if upd.FulfillmentStatus != "" {
		order.FulfillmentStatus = upd.FulfillmentStatus
	}

	if err := s.dispatcher.Dispatch(ctx, orderEvent(entities.EventOrderStatusChanged, order)); err != nil {
		dispatchFailures.Inc()
		s.logger.Error("failed to dispatch status change", "order_id", order.ID, "error", err)
	}

	s.logger.Info("order status changed", "order_id", order.ID, "status", to)
	return order, nil
}

func (s *orderService) ListNotifications(ctx context.Context, shopID string, unreadOnly bool, actor entities.Actor) ([]entities.Notification, error) {
	if !actor.CanManageShop(shopID) {
		return nil, entities.ErrForbidden
	}
	return s.notifications.ListNotifications(ctx, shopID, unreadOnly)
}

func (s *orderService) MarkNotificationRead(ctx context.Context, id string, actor entities.Actor) error {
	if actor.Role != entities.RoleVendor || actor.ShopID == "" {
		return entities.ErrForbidden
	}
	return s.notifications.MarkNotificationRead(ctx, actor.ShopID, id)
}

func canView(o entities.Order, actor entities.Actor) bool {
	return actor.CanManageShop(o.ShopID) || o.OwnedBy(actor.Owner())
}
