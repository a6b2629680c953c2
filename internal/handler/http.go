package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/middleware"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type CartService interface {
	GetCart(ctx context.Context, owner entities.CartOwner) (entities.Cart, error)
	AddLine(ctx context.Context, owner entities.CartOwner, productID string, qty int, variant map[string]string) (entities.Cart, error)
	UpdateLineQuantity(ctx context.Context, owner entities.CartOwner, lineID string, qty int) (entities.Cart, error)
	RemoveLine(ctx context.Context, owner entities.CartOwner, lineID string) (entities.Cart, error)
	Clear(ctx context.Context, owner entities.CartOwner) error
	Merge(ctx context.Context, guestToken, userID string) (entities.Cart, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, owner entities.CartOwner, req service.CheckoutRequest) (service.CheckoutResult, error)
	RetryPayment(ctx context.Context, owner entities.CartOwner, orderIDs []string) (service.CheckoutResult, error)
}

type Settler interface {
	Settle(ctx context.Context, authorizationID string, orderIDs []string) (service.SettleResult, error)
	MarkFailed(ctx context.Context, authorizationID string) error
}

type Canceller interface {
	Cancel(ctx context.Context, orderID, reason string, actor entities.Actor) (entities.Order, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, orderID string, actor entities.Actor) (entities.Order, error)
	ListByCheckout(ctx context.Context, checkoutID string, actor entities.Actor) ([]entities.Order, error)
	TransitionStatus(ctx context.Context, orderID string, to entities.OrderStatus, actor entities.Actor) (entities.Order, error)
	ListNotifications(ctx context.Context, shopID string, unreadOnly bool, actor entities.Actor) ([]entities.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, actor entities.Actor) error
}

type HTTPHandler struct {
	logger    *slog.Logger
	validate  *validator.Validate
	auth      func(http.Handler) http.Handler
	carts     CartService
	checkout  CheckoutService
	settler   Settler
	canceller Canceller
	orders    OrderService
}

func NewHTTPHandler(
	logger *slog.Logger,
	auth func(http.Handler) http.Handler,
	carts CartService,
	checkout CheckoutService,
	settler Settler,
	canceller Canceller,
	orders OrderService,
) *HTTPHandler {
	return &HTTPHandler{
		logger:    logger.With(slog.String("handler", "http")),
		validate:  utils.NewValidator(),
		auth:      auth,
		carts:     carts,
		checkout:  checkout,
		settler:   settler,
		canceller: canceller,
		orders:    orders,
	}
}

func (h *HTTPHandler) Init(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/lines", h.AddLine)
			r.Patch("/lines/{line_id}", h.UpdateLine)
			r.Delete("/lines/{line_id}", h.RemoveLine)
			r.Post("/merge", h.MergeCart)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Post("/pay", h.RetryPayment)
			r.Post("/confirm", h.ConfirmPayment)
			r.Get("/{checkout_id}/orders", h.CheckoutOrders)
		})

		r.Route("/orders/{order_id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/cancel", h.CancelOrder)
			r.Post("/status", h.TransitionStatus)
		})

		r.Get("/shops/{shop_id}/notifications", h.ListNotifications)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)
	})
}

// GetCart возвращает корзину текущего владельца.
// @Summary      Получить корзину
// @Tags         cart
// @Security     BearerAuth
// @Param        X-Guest-Token  header  string  false  "Токен гостя"
// @Success      200  {object}  Cart
// @Failure      401  {object}  utils.ErrorResponse "Нет владельца корзины"
// @Router       /cart [get]
func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	cart, err := h.carts.GetCart(ctx, actor.Owner())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, CartEntityToJSON(cart), http.StatusOK)
}

// AddLine добавляет товар в корзину.
// @Summary      Добавить товар
// @Tags         cart
// @Security     BearerAuth
// @Param        X-Guest-Token  header  string          false  "Токен гостя"
// @Param        request        body    AddLineRequest  true   "Товар"
// @Success      200  {object}  Cart
// @Failure      400  {object}  utils.ValidationErrorResponse "Ошибка валидации"
// @Failure      404  {object}  utils.ErrorResponse "Товар не найден"
// @Failure      409  {object}  OutOfStockResponse "Недостаточно товара"
// @Router       /cart/lines [post]
func (h *HTTPHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req AddLineRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.carts.AddLine(ctx, actor.Owner(), req.ProductID, req.Quantity, req.Variant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, CartEntityToJSON(cart), http.StatusOK)
}

// UpdateLine меняет количество в строке корзины.
// @Summary      Изменить количество
// @Tags         cart
// @Security     BearerAuth
// @Param        line_id  path  string             true  "Строка корзины"
// @Param        request  body  UpdateLineRequest  true  "Количество"
// @Success      200  {object}  Cart
// @Failure      400  {object}  utils.ValidationErrorResponse "Ошибка валидации"
// @Failure      404  {object}  utils.ErrorResponse "Строка не найдена"
// @Failure      409  {object}  OutOfStockResponse "Недостаточно товара"
// @Router       /cart/lines/{line_id} [patch]
func (h *HTTPHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req UpdateLineRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateLineQuantity(ctx, actor.Owner(), chi.URLParam(r, "line_id"), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, CartEntityToJSON(cart), http.StatusOK)
}

// RemoveLine удаляет строку корзины.
// @Summary      Удалить строку
// @Tags         cart
// @Security     BearerAuth
// @Param        line_id  path  string  true  "Строка корзины"
// @Success      200  {object}  Cart
// @Failure      404  {object}  utils.ErrorResponse "Строка не найдена"
// @Router       /cart/lines/{line_id} [delete]
func (h *HTTPHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	cart, err := h.carts.RemoveLine(ctx, actor.Owner(), chi.URLParam(r, "line_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, CartEntityToJSON(cart), http.StatusOK)
}

// ClearCart очищает корзину.
// @Summary      Очистить корзину
// @Tags         cart
// @Security     BearerAuth
// @Success      204
// @Router       /cart [delete]
func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	if err := h.carts.Clear(ctx, actor.Owner()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeCart переносит гостевую корзину в корзину вошедшего пользователя.
// @Summary      Слить корзины
// @Tags         cart
// @Security     BearerAuth
// @Param        request  body  MergeRequest  true  "Гостевой токен"
// @Success      200  {object}  Cart
// @Failure      401  {object}  utils.ErrorResponse "Нужна авторизация"
// @Failure      409  {object}  utils.ErrorResponse "Идёт оформление"
// @Router       /cart/merge [post]
func (h *HTTPHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)
	if actor.UserID == "" {
		utils.WriteError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req MergeRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.carts.Merge(ctx, req.GuestToken, actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, CartEntityToJSON(cart), http.StatusOK)
}

// Checkout оформляет корзину: заказы по магазинам и одна авторизация платежа.
// @Summary      Оформить заказ
// @Tags         checkout
// @Security     BearerAuth
// @Param        request  body  CheckoutRequest  true  "Доставка, купоны, адреса"
// @Success      201  {object}  CheckoutResponse
// @Failure      400  {object}  utils.ValidationErrorResponse "Ошибка валидации"
// @Failure      402  {object}  PaymentErrorResponse "Платёж отклонён"
// @Failure      409  {object}  OutOfStockResponse "Конфликт"
// @Failure      502  {object}  PaymentErrorResponse "Платёжный сервис недоступен"
// @Router       /checkout [post]
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.checkout.Checkout(ctx, actor.Owner(), CheckoutJSONToRequest(req))
	if err != nil {
		h.writePaymentError(w, r, res.CheckoutID, err)
		return
	}
	utils.WriteJSON(w, CheckoutResultToJSON(res), http.StatusCreated)
}

// RetryPayment создаёт новую авторизацию для неоплаченных заказов.
// @Summary      Повторить оплату
// @Tags         checkout
// @Security     BearerAuth
// @Param        request  body  PayRequest  true  "Заказы"
// @Success      200  {object}  CheckoutResponse
// @Failure      402  {object}  PaymentErrorResponse "Платёж отклонён"
// @Failure      403  {object}  utils.ErrorResponse "Чужие заказы"
// @Failure      409  {object}  utils.ErrorResponse "Нечего оплачивать"
// @Router       /checkout/pay [post]
func (h *HTTPHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req PayRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.checkout.RetryPayment(ctx, actor.Owner(), req.OrderIDs)
	if err != nil {
		h.writePaymentError(w, r, "", err)
		return
	}
	utils.WriteJSON(w, CheckoutResultToJSON(res), http.StatusOK)
}

// ConfirmPayment сверяет авторизацию с процессором и подтверждает заказы.
// Повторный вызов безопасен.
// @Summary      Подтвердить оплату
// @Tags         checkout
// @Security     BearerAuth
// @Param        request  body  ConfirmRequest  true  "Авторизация"
// @Success      200  {object}  SettleResponse
// @Failure      409  {object}  utils.ErrorResponse "Платёж не прошёл"
// @Router       /checkout/confirm [post]
func (h *HTTPHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.settler.Settle(ctx, req.AuthorizationID, req.OrderIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	visible := make([]entities.Order, 0, len(res.Orders))
	for _, o := range res.Orders {
		if o.OwnedBy(actor.Owner()) || actor.CanManageShop(o.ShopID) {
			visible = append(visible, o)
		}
	}
	utils.WriteJSON(w, SettleResponse{
		AuthorizationID: res.AuthorizationID,
		Confirmed:       res.Confirmed,
		Orders:          OrdersEntityToJSON(visible),
	}, http.StatusOK)
}

// CheckoutOrders возвращает заказы одного оформления.
// @Summary      Заказы оформления
// @Tags         checkout
// @Security     BearerAuth
// @Param        checkout_id  path  string  true  "Оформление"
// @Success      200  {array}  Order
// @Router       /checkout/{checkout_id}/orders [get]
func (h *HTTPHandler) CheckoutOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	orders, err := h.orders.ListByCheckout(ctx, chi.URLParam(r, "checkout_id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, OrdersEntityToJSON(orders), http.StatusOK)
}

// GetOrder возвращает заказ по ID.
// @Summary      Получить заказ
// @Tags         orders
// @Security     BearerAuth
// @Param        order_id  path  string  true  "Заказ"
// @Success      200  {object}  Order
// @Failure      403  {object}  utils.ErrorResponse "Нет доступа"
// @Failure      404  {object}  utils.ErrorResponse "Заказ не найден"
// @Failure      500  {object}  utils.ErrorResponse "Внутренняя ошибка сервера"
// @Router       /orders/{order_id} [get]
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)
	orderID := chi.URLParam(r, "order_id")

	if err := h.validate.Var(orderID, "required"); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// CancelOrder отменяет заказ и возвращает деньги, если он оплачен.
// @Summary      Отменить заказ
// @Tags         orders
// @Security     BearerAuth
// @Param        order_id  path  string         true   "Заказ"
// @Param        request   body  CancelRequest  false  "Причина"
// @Success      200  {object}  Order
// @Failure      403  {object}  utils.ErrorResponse "Нет доступа"
// @Failure      409  {object}  utils.ErrorResponse "Заказ нельзя отменить"
// @Failure      502  {object}  utils.ErrorResponse "Возврат не прошёл"
// @Router       /orders/{order_id}/cancel [post]
func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req CancelRequest
	if err := utils.DecodeBody(r, &req); err != nil && !errors.Is(err, utils.ErrEmptyBody) {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	order, err := h.canceller.Cancel(ctx, chi.URLParam(r, "order_id"), req.Reason, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// TransitionStatus двигает заказ по цепочке выполнения.
// @Summary      Сменить статус заказа
// @Tags         orders
// @Security     BearerAuth
// @Param        order_id  path  string         true  "Заказ"
// @Param        request   body  StatusRequest  true  "Новый статус"
// @Success      200  {object}  Order
// @Failure      403  {object}  utils.ErrorResponse "Нет доступа"
// @Failure      409  {object}  utils.ErrorResponse "Недопустимый переход"
// @Router       /orders/{order_id}/status [post]
func (h *HTTPHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.TransitionStatus(ctx, chi.URLParam(r, "order_id"), entities.OrderStatus(req.Status), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// ListNotifications возвращает уведомления магазина.
// @Summary      Уведомления магазина
// @Tags         notifications
// @Security     BearerAuth
// @Param        shop_id  path   string  true   "Магазин"
// @Param        unread   query  bool    false  "Только непрочитанные"
// @Success      200  {array}  Notification
// @Failure      403  {object}  utils.ErrorResponse "Нет доступа"
// @Router       /shops/{shop_id}/notifications [get]
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	list, err := h.orders.ListNotifications(ctx, chi.URLParam(r, "shop_id"), unread, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := make([]Notification, 0, len(list))
	for _, n := range list {
		res = append(res, NotificationEntityToJSON(n))
	}
	utils.WriteJSON(w, res, http.StatusOK)
}

// MarkNotificationRead отмечает уведомление прочитанным.
// @Summary      Прочитать уведомление
// @Tags         notifications
// @Security     BearerAuth
// @Param        id  path  string  true  "Уведомление"
// @Success      204
// @Failure      404  {object}  utils.ErrorResponse "Не найдено"
// @Router       /notifications/{id}/read [post]
func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActorFromContext(ctx)

	if err := h.orders.MarkNotificationRead(ctx, chi.URLParam(r, "id"), actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := utils.DecodeBody(r, v); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		utils.WriteValidationError(w, err)
		return false
	}
	return true
}

func (h *HTTPHandler) writePaymentError(w http.ResponseWriter, r *http.Request, checkoutID string, err error) {
	var authErr *entities.AuthorizationError
	if !errors.As(err, &authErr) {
		h.writeError(w, r, err)
		return
	}

	code := statusCode(authErr.Err)
	if code == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "payment authorization failed", slog.Any("error", err))
		code = http.StatusBadGateway
	}
	utils.WriteJSON(w, PaymentErrorResponse{
		Message:    authErr.Err.Error(),
		CheckoutID: checkoutID,
		OrderIDs:   authErr.OrderIDs,
	}, code)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var oos *entities.OutOfStockError
	if errors.As(err, &oos) {
		utils.WriteJSON(w, OutOfStockResponse{Message: oos.Error(), ProductID: oos.ProductID}, http.StatusConflict)
		return
	}

	code := statusCode(err)
	if code == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.Any("error", err), slog.String("path", r.URL.Path))
		utils.WriteError(w, "internal server error", code)
		return
	}
	utils.WriteError(w, err.Error(), code)
}

var errorCodes = []struct {
	code int
	errs []error
}{
	{http.StatusUnauthorized, []error{entities.ErrInvalidOwner}},
	{http.StatusForbidden, []error{entities.ErrForbidden}},
	{http.StatusNotFound, []error{
		entities.ErrOrderNotFound, entities.ErrCartNotFound, entities.ErrLineNotFound,
		entities.ErrProductNotFound, entities.ErrShopNotFound, entities.ErrShippingNotFound, entities.ErrNotFound,
	}},
	{http.StatusBadRequest, []error{
		entities.ErrInvalidQuantity, entities.ErrProductInactive, entities.ErrEmptyCart, entities.ErrShippingRequired,
	}},
	{http.StatusConflict, []error{
		entities.ErrOutOfStock, entities.ErrShippingMismatch, entities.ErrCouponAlreadyApplied,
		entities.ErrCouponShopNotInCart, entities.ErrInvalidCoupon, entities.ErrOrderNotCancellable,
		entities.ErrCheckoutInProgress, entities.ErrInvalidTransition, entities.ErrNothingToPay,
		entities.ErrOrderMismatch, entities.ErrPaymentNotSucceeded,
	}},
	{http.StatusPaymentRequired, []error{entities.ErrPaymentDeclined}},
	{http.StatusBadGateway, []error{entities.ErrPaymentUnavailable}},
}

func statusCode(err error) int {
	for _, group := range errorCodes {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.code
			}
		}
	}
	return http.StatusInternalServerError
}
