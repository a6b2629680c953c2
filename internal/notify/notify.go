package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"

	"golang.org/x/sync/errgroup"
)

const maxParallel = 4

type Ledger interface {
	ClaimDelivery(ctx context.Context, d entities.EmailDelivery) (bool, error)
	MarkDelivery(ctx context.Context, dedupeKey string, status entities.DeliveryStatus, deliveryErr string) error
	InsertNotification(ctx context.Context, n entities.Notification) (bool, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// service рассылает уведомления продавцам и письма покупателям.
// Повторная доставка того же события ничего не отправляет: ключи в журнале уникальны.
type service struct {
	logger *slog.Logger
	ledger Ledger
	mailer Mailer
	retry  utils.RetryConfig
}

// NewService: mailer может быть nil, тогда письма помечаются skipped.
func NewService(logger *slog.Logger, ledger Ledger, mailer Mailer) *service {
	return &service{
		logger: logger.With(slog.String("service", "notify")),
		ledger: ledger,
		mailer: mailer,
		retry:  utils.DefaultRetry,
	}
}

func (s *service) Dispatch(ctx context.Context, events ...entities.OrderEvent) error {
	var g errgroup.Group
	g.SetLimit(maxParallel)

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, ev := range events {
		g.Go(func() error {
			if err := s.dispatch(ctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		dispatchTotal.WithLabelValues("error").Add(float64(len(errs)))
		return fmt.Errorf("dispatch failed for %d of %d events: %w", len(errs), len(events), errs[0])
	}
	return nil
}

func (s *service) dispatch(ctx context.Context, ev entities.OrderEvent) error {
	if ev.ShopID != "" {
		title, body := vendorMessage(ev)
		inserted, err := s.ledger.InsertNotification(ctx, entities.Notification{
			ShopID:    ev.ShopID,
			Type:      ev.Type,
			SubjectID: ev.SubjectID(),
			Title:     title,
			Body:      body,
		})
		if err != nil {
			return fmt.Errorf("failed to save notification: %w", err)
		}
		if inserted {
			dispatchTotal.WithLabelValues("notification").Inc()
		}
	}

	if ev.Recipient == "" || ev.Type == entities.EventLowStock {
		return nil
	}
	return s.sendEmail(ctx, ev)
}

func (s *service) sendEmail(ctx context.Context, ev entities.OrderEvent) error {
	key := entities.DedupeKey(ev.Type, ev.SubjectID())

	claimed, err := s.ledger.ClaimDelivery(ctx, entities.EmailDelivery{
		DedupeKey: key,
		Type:      ev.Type,
		OrderID:   ev.OrderID,
		Recipient: ev.Recipient,
	})
	if err != nil {
		return fmt.Errorf("failed to claim delivery: %w", err)
	}
	if !claimed {
		dispatchTotal.WithLabelValues("duplicate").Inc()
		s.logger.Debug("email already delivered", "dedupe_key", key)
		return nil
	}

	if s.mailer == nil {
		dispatchTotal.WithLabelValues("skipped").Inc()
		return s.ledger.MarkDelivery(ctx, key, entities.DeliverySkipped, "smtp is not configured")
	}

	subject, body := customerMessage(ev)
	sendErr := utils.RetryCtx(ctx, s.retry, func() error {
		return s.mailer.Send(ctx, ev.Recipient, subject, body)
	})
	if sendErr != nil {
		// failed можно занять повторно при следующей доставке события
		if err := s.ledger.MarkDelivery(ctx, key, entities.DeliveryFailed, sendErr.Error()); err != nil {
			s.logger.Error("failed to mark delivery", "dedupe_key", key, "error", err)
		}
		return fmt.Errorf("failed to send email: %w", sendErr)
	}

	dispatchTotal.WithLabelValues("sent").Inc()
	return s.ledger.MarkDelivery(ctx, key, entities.DeliverySent, "")
}

func vendorMessage(ev entities.OrderEvent) (string, string) {
	switch ev.Type {
	case entities.EventOrderConfirmed:
		return "New order " + ev.OrderNumber,
			fmt.Sprintf("Order %s was paid: %s.", ev.OrderNumber, formatMoney(ev.Total, ev.Currency))
	case entities.EventOrderCancelled:
		return "Order " + ev.OrderNumber + " cancelled",
			fmt.Sprintf("Order %s was cancelled (%s).", ev.OrderNumber, ev.Status)
	case entities.EventOrderStatusChanged:
		return "Order " + ev.OrderNumber + " updated",
			fmt.Sprintf("Order %s is now %s.", ev.OrderNumber, ev.Status)
	case entities.EventLowStock:
		return "Low stock",
			fmt.Sprintf("Product %s has %d units left.", ev.ProductID, ev.Stock)
	default:
		return string(ev.Type), ev.OrderID
	}
}

func customerMessage(ev entities.OrderEvent) (string, string) {
	switch ev.Type {
	case entities.EventOrderConfirmed:
		return "Order " + ev.OrderNumber + " confirmed",
			fmt.Sprintf("Thank you! Your order %s for %s is confirmed.", ev.OrderNumber, formatMoney(ev.Total, ev.Currency))
	case entities.EventOrderCancelled:
		body := fmt.Sprintf("Your order %s has been cancelled.", ev.OrderNumber)
		if ev.Status == entities.OrderStatusRefunded {
			body += fmt.Sprintf(" %s will be refunded.", formatMoney(ev.Total, ev.Currency))
		}
		if ev.Reason != "" {
			body += " Reason: " + ev.Reason
		}
		return "Order " + ev.OrderNumber + " cancelled", body
	default:
		return "Order " + ev.OrderNumber + " update",
			fmt.Sprintf("Your order %s is now %s.", ev.OrderNumber, ev.Status)
	}
}

func formatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
