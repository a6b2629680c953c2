package payment

import "errors"

// ErrInsufficientCapabilities подключённый аккаунт продавца не может принимать переводы.
var ErrInsufficientCapabilities = errors.New("connected account lacks transfer capability")

type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
)

type Authorization struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
}

type AccountStatus struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type ChargeRequest struct {
	Amount   int64
	Currency string
	Email    string
	Metadata map[string]string
}

// DestinationRequest платёж с переводом остатка на аккаунт продавца.
type DestinationRequest struct {
	ChargeRequest
	ConnectedAccountID string
	ApplicationFee     int64
}

type RefundRequest struct {
	AuthorizationID string
	Amount          int64
	IdempotencyKey  string
}

type Refund struct {
	ID     string
	Status string
}

type EventType string

const (
	EventSucceeded EventType = "payment_intent.succeeded"
	EventFailed    EventType = "payment_intent.payment_failed"
)

// Event проверенное событие процессора об изменении авторизации.
type Event struct {
	ID              string
	Type            EventType
	AuthorizationID string
	OrderIDs        []string
}
