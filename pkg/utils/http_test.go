package utils_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	City string `json:"city" validate:"required"`
}

type payload struct {
	Email   string  `json:"email" validate:"required,email"`
	Qty     int     `json:"qty" validate:"gte=1,lte=10"`
	Address address `json:"address"`
}

func TestDecodeBody(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		wantErr bool
		empty   bool
	}{
		{name: "valid", body: `{"email":"a@b.co","qty":1}`},
		{name: "empty", body: ``, wantErr: true, empty: true},
		{name: "unknown field", body: `{"email":"a@b.co","extra":1}`, wantErr: true},
		{name: "trailing data", body: `{"qty":1}{"qty":2}`, wantErr: true},
		{name: "broken", body: `{`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var p payload
			err := utils.DecodeBody(r, &p)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.empty, err == utils.ErrEmptyBody)
		})
	}
}

func TestWriteValidationError(t *testing.T) {
	v := utils.NewValidator()
	err := v.Struct(payload{Email: "nope", Qty: 20})
	require.Error(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, utils.WriteValidationError(w, err))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"email":"email"`)
	assert.Contains(t, body, `"qty":"lte=10"`)
	assert.Contains(t, body, `"address.city":"required"`)
}
