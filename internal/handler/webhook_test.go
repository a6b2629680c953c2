package handler_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/handler"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type parserFunc func(payload []byte, signature string) (payment.Event, error)

func (f parserFunc) ParseEvent(payload []byte, signature string) (payment.Event, error) {
	return f(payload, signature)
}

func TestWebhookHandler_PaymentEvent(t *testing.T) {
	succeeded := payment.Event{ID: "evt_1", Type: payment.EventSucceeded, AuthorizationID: "pi_1", OrderIDs: []string{"o1"}}

	testCases := []struct {
		name         string
		event        payment.Event
		parseErr     error
		mockBehavior func(s *mockSettler)
		wantStatus   int
	}{
		{
			name:  "succeeded",
			event: succeeded,
			mockBehavior: func(s *mockSettler) {
				s.On("Settle", mock.Anything, "pi_1", []string{"o1"}).Return(service.SettleResult{Confirmed: 1}, nil).Once()
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:  "failed",
			event: payment.Event{ID: "evt_2", Type: payment.EventFailed, AuthorizationID: "pi_1"},
			mockBehavior: func(s *mockSettler) {
				s.On("MarkFailed", mock.Anything, "pi_1").Return(nil).Once()
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "other event type",
			event:      payment.Event{ID: "evt_3", Type: "charge.refunded"},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "bad signature",
			parseErr:   errors.New("invalid webhook signature"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "unknown authorization is acknowledged",
			event: succeeded,
			mockBehavior: func(s *mockSettler) {
				s.On("Settle", mock.Anything, "pi_1", []string{"o1"}).Return(service.SettleResult{}, entities.ErrOrderMismatch).Once()
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:  "storage failure asks for redelivery",
			event: succeeded,
			mockBehavior: func(s *mockSettler) {
				s.On("Settle", mock.Anything, "pi_1", []string{"o1"}).Return(service.SettleResult{}, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settler := &mockSettler{}
			if tc.mockBehavior != nil {
				tc.mockBehavior(settler)
			}

			parser := parserFunc(func(payload []byte, signature string) (payment.Event, error) {
				assert.Equal(t, "t=1,v1=abc", signature)
				assert.Equal(t, `{"id":"evt"}`, string(payload))
				return tc.event, tc.parseErr
			})

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			r := chi.NewRouter()
			handler.NewWebhookHandler(logger, parser, settler).Init(r)

			status, _ := do(t, r, call{
				method:  http.MethodPost,
				path:    "/webhooks/payments",
				body:    `{"id":"evt"}`,
				headers: map[string]string{"Stripe-Signature": "t=1,v1=abc"},
			})
			assert.Equal(t, tc.wantStatus, status)
			settler.AssertExpectations(t)
		})
	}
}
