package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 64 << 10

type EventParser interface {
	ParseEvent(payload []byte, signature string) (payment.Event, error)
}

type WebhookHandler struct {
	logger  *slog.Logger
	parser  EventParser
	settler Settler
}

func NewWebhookHandler(logger *slog.Logger, parser EventParser, settler Settler) *WebhookHandler {
	return &WebhookHandler{
		logger:  logger.With(slog.String("handler", "webhook")),
		parser:  parser,
		settler: settler,
	}
}

func (h *WebhookHandler) Init(r chi.Router) {
	r.Post("/webhooks/payments", h.PaymentEvent)
}

// PaymentEvent принимает подписанные события платёжного процессора.
// Ответ не 2xx заставляет процессор повторить доставку.
// @Summary      Webhook платёжного процессора
// @Tags         webhooks
// @Param        Stripe-Signature  header  string  true  "Подпись"
// @Success      204
// @Failure      400  {object}  utils.ErrorResponse "Неверная подпись"
// @Failure      500  {object}  utils.ErrorResponse "Повторить позже"
// @Router       /webhooks/payments [post]
func (h *WebhookHandler) PaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := h.parser.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		webhookEvents.WithLabelValues("unknown", "invalid").Inc()
		h.logger.WarnContext(ctx, "rejected webhook", slog.Any("error", err))
		utils.WriteError(w, "invalid event", http.StatusBadRequest)
		return
	}

	if err := applyPaymentEvent(ctx, h.logger, h.settler, string(ev.Type), ev.AuthorizationID, ev.OrderIDs); err != nil {
		webhookEvents.WithLabelValues(string(ev.Type), "error").Inc()
		h.logger.ErrorContext(ctx, "failed to handle webhook",
			slog.String("event_id", ev.ID), slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	webhookEvents.WithLabelValues(string(ev.Type), "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// applyPaymentEvent общий путь для webhook и топика payment-events.
// Ошибки, которые не исправит повтор, логируются и не возвращаются.
func applyPaymentEvent(ctx context.Context, logger *slog.Logger, settler Settler, eventType, authorizationID string, orderIDs []string) error {
	switch payment.EventType(eventType) {
	case payment.EventSucceeded:
		_, err := settler.Settle(ctx, authorizationID, orderIDs)
		if errors.Is(err, entities.ErrOrderMismatch) || errors.Is(err, entities.ErrPaymentNotSucceeded) {
			logger.Warn("payment event skipped", slog.String("authorization_id", authorizationID), slog.Any("error", err))
			return nil
		}
		return err
	case payment.EventFailed:
		return settler.MarkFailed(ctx, authorizationID)
	default:
		logger.Debug("ignored payment event", slog.String("type", eventType))
		return nil
	}
}
