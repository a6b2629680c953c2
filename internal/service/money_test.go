package service

import (
	"testing"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/stretchr/testify/assert"
)

func TestApplyRate(t *testing.T) {
	testCases := []struct {
		name   string
		amount int64
		bp     int64
		want   int64
	}{
		{name: "exact", amount: 4500, bp: 500, want: 225},
		{name: "half rounds away from zero", amount: 6225, bp: 1000, want: 623},
		{name: "below half", amount: 1001, bp: 500, want: 50},
		{name: "half cent", amount: 10, bp: 500, want: 1},
		{name: "zero rate", amount: 6225, bp: 0, want: 0},
		{name: "full rate", amount: 6225, bp: 10000, want: 6225},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, applyRate(tc.amount, tc.bp))
		})
	}
}

func TestSplitFee(t *testing.T) {
	orders := []entities.Order{{Total: 4150}, {Total: 2100}}

	fees := splitFee(orders, 625)
	assert.Equal(t, int64(625), fees[0]+fees[1])
	assert.Equal(t, int64(415), fees[0])

	assert.Equal(t, []int64{0, 0}, splitFee(orders, 0))
}

func TestTargetOrders(t *testing.T) {
	payments := []entities.Payment{{OrderID: "o1"}, {OrderID: "o2"}, {OrderID: "o1"}}

	all, err := targetOrders(payments, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, all)

	subset, err := targetOrders(payments, []string{"o2", "o2"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"o2"}, subset)

	_, err = targetOrders(payments, []string{"o3"})
	assert.ErrorIs(t, err, entities.ErrOrderMismatch)

	_, err = targetOrders(nil, nil)
	assert.ErrorIs(t, err, entities.ErrOrderMismatch)
}
