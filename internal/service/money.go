package service

import "github.com/shopspring/decimal"

const basisPoints = 10000

var bpDivisor = decimal.NewFromInt(basisPoints)

// applyRate считает amount × bp / 10000 с округлением половины от нуля.
func applyRate(amount, bp int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bp)).
		Div(bpDivisor).
		Round(0).
		IntPart()
}
