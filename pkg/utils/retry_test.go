package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"
	"github.com/stretchr/testify/assert"
)

var fast = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

func TestRetry(t *testing.T) {
	notFound := errors.New("not found")
	temporary := errors.New("temporary")

	testCases := []struct {
		name      string
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", failures: 0, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, failWith: temporary, wantCalls: 3},
		{name: "gives up after max attempts", failures: 5, failWith: temporary, wantCalls: 3, wantErr: temporary},
		{name: "non retryable returns immediately", failures: 5, failWith: notFound, wantCalls: 1, wantErr: notFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := utils.Retry(fast, func() error {
				calls++
				if calls <= tc.failures {
					return tc.failWith
				}
				return nil
			}, notFound)

			assert.Equal(t, tc.wantCalls, calls)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRetryCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := utils.RetryCtx(ctx, utils.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
		calls++
		return errors.New("temporary")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
