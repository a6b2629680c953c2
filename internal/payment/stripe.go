package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/config"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	metaOrderIDs   = "order_ids"
	metaCheckoutID = "checkout_id"

	codeInsufficientCapabilities = "insufficient_capabilities_for_transfer"
)

type stripeProcessor struct {
	logger        *slog.Logger
	api           *client.API
	breaker       *gobreaker.CircuitBreaker[any]
	webhookSecret string
}

func NewStripeProcessor(logger *slog.Logger, cfg config.Payment) *stripeProcessor {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return newStripeProcessor(logger, api, cfg)
}

func newStripeProcessor(logger *slog.Logger, api *client.API, cfg config.Payment) *stripeProcessor {
	logger = logger.With(slog.String("processor", "stripe"))

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "stripe",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		// отказ банка или ошибка запроса не говорят о недоступности процессора
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &stripeProcessor{
		logger:        logger,
		api:           api,
		breaker:       breaker,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (p *stripeProcessor) CreateAuthorization(ctx context.Context, req ChargeRequest) (Authorization, error) {
	params := p.intentParams(ctx, req)
	return p.createIntent(params)
}

func (p *stripeProcessor) CreateDestinationCharge(ctx context.Context, req DestinationRequest) (Authorization, error) {
	params := p.intentParams(ctx, req.ChargeRequest)
	params.ApplicationFeeAmount = stripe.Int64(req.ApplicationFee)
	params.TransferData = &stripe.PaymentIntentTransferDataParams{
		Destination: stripe.String(req.ConnectedAccountID),
	}
	return p.createIntent(params)
}

func (p *stripeProcessor) intentParams(ctx context.Context, req ChargeRequest) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func (p *stripeProcessor) createIntent(params *stripe.PaymentIntentParams) (Authorization, error) {
	res, err := p.breaker.Execute(func() (any, error) {
		return p.api.PaymentIntents.New(params)
	})
	if err != nil {
		return Authorization{}, p.mapError("create payment intent", err)
	}
	return toAuthorization(res.(*stripe.PaymentIntent)), nil
}

func (p *stripeProcessor) GetAuthorization(ctx context.Context, id string) (Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	res, err := p.breaker.Execute(func() (any, error) {
		return p.api.PaymentIntents.Get(id, params)
	})
	if err != nil {
		return Authorization{}, p.mapError("get payment intent", err)
	}
	return toAuthorization(res.(*stripe.PaymentIntent)), nil
}

// CancelAuthorization отзывает неоплаченную авторизацию, чтобы client secret
// больше нельзя было оплатить. Уже отменённая авторизация не ошибка.
func (p *stripeProcessor) CancelAuthorization(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	_, err := p.breaker.Execute(func() (any, error) {
		return p.api.PaymentIntents.Cancel(id, params)
	})
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
		current, getErr := p.GetAuthorization(ctx, id)
		if getErr == nil && current.Status == StatusCanceled {
			return nil
		}
	}
	return p.mapError("cancel payment intent", err)
}

func (p *stripeProcessor) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.AuthorizationID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	res, err := p.breaker.Execute(func() (any, error) {
		return p.api.Refunds.New(params)
	})
	if err != nil {
		return Refund{}, p.mapError("create refund", err)
	}
	r := res.(*stripe.Refund)
	return Refund{ID: r.ID, Status: string(r.Status)}, nil
}

func (p *stripeProcessor) GetAccount(ctx context.Context, accountID string) (AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	res, err := p.breaker.Execute(func() (any, error) {
		return p.api.Accounts.GetByID(accountID, params)
	})
	if err != nil {
		return AccountStatus{}, p.mapError("get account", err)
	}
	a := res.(*stripe.Account)
	return AccountStatus{
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}, nil
}

// ParseEvent проверяет подпись вебхука и достаёт из него авторизацию.
// Неинтересные типы событий возвращаются с пустым AuthorizationID.
func (p *stripeProcessor) ParseEvent(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("invalid webhook signature: %w", err)
	}

	event := Event{ID: ev.ID, Type: EventType(ev.Type)}
	if event.Type != EventSucceeded && event.Type != EventFailed {
		return event, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &intent); err != nil {
		return Event{}, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	event.AuthorizationID = intent.ID
	event.OrderIDs = splitIDs(intent.Metadata[metaOrderIDs])
	return event, nil
}

func (p *stripeProcessor) mapError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", op, entities.ErrPaymentUnavailable, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case string(stripeErr.Code) == codeInsufficientCapabilities:
			return fmt.Errorf("%s: %w", op, ErrInsufficientCapabilities)
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("%s: %w: %s", op, entities.ErrPaymentDeclined, stripeErr.Msg)
		case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
			return fmt.Errorf("%s: %w: %s", op, entities.ErrPaymentDeclined, stripeErr.Msg)
		}
	}

	p.logger.Error("processor call failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, entities.ErrPaymentUnavailable, err)
}

// isTransient: сеть, 5xx и rate limit считаются отказом процессора.
func isTransient(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return true
	}
	return stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429
}

func toAuthorization(pi *stripe.PaymentIntent) Authorization {
	return Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       Status(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}

// OrderMetadata метаданные авторизации, по которым вебхук находит заказы.
func OrderMetadata(checkoutID string, orderIDs []string) map[string]string {
	return map[string]string{
		metaCheckoutID: checkoutID,
		metaOrderIDs:   strings.Join(orderIDs, ","),
	}
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
