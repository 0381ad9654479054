package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// SplitProceeds divides a winning bid between the platform and the seller.
//
// Formula: fee = floor(amount * feePercent / 100), sellerAmount = amount - fee.
//
// The fee rounds down and the remainder accrues to the seller, so for integral
// base-unit amounts the split is exact and deterministic across runs.
func SplitProceeds(amount decimal.Decimal, feePercent int64) (fee, sellerAmount decimal.Decimal, err error) {
	if feePercent < 0 || feePercent > 100 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("fee percent %d out of range [0,100]: %w", feePercent, ErrInvalidParameters)
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("amount %s must be a non-negative integral base-unit value: %w", amount, ErrInvalidParameters)
	}

	// QuoRem with precision 0 is exact integer division; for non-negative
	// operands the quotient is the floor.
	fee, _ = amount.Mul(decimal.NewFromInt(feePercent)).QuoRem(oneHundred, 0)
	return fee, amount.Sub(fee), nil
}
