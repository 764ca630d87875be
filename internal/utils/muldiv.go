/*

Rounding-aware fixed-point arithmetic shared by the accounting path. The
rounding direction is always explicit at the call site: Down variants favor
the protocol when paying out, Up variants favor the protocol when charging.

*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrNegativeInput  = errors.New("negative input")
)

// MulDivDown returns floor(a * b / den).
func MulDivDown(a, b, den sdkmath.Int) (sdkmath.Int, error) {
	if err := checkMulDiv(a, b, den); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return a.Mul(b).Quo(den), nil
}

// MulDivUp returns ceil(a * b / den).
func MulDivUp(a, b, den sdkmath.Int) (sdkmath.Int, error) {
	if err := checkMulDiv(a, b, den); err != nil {
		return sdkmath.ZeroInt(), err
	}
	num := a.Mul(b)
	q := num.Quo(den)
	if !num.Mod(den).IsZero() {
		q = q.AddRaw(1)
	}
	return q, nil
}

func checkMulDiv(a, b, den sdkmath.Int) error {
	if a.IsNil() || b.IsNil() || den.IsNil() {
		return fmt.Errorf("%w: nil operand", ErrNegativeInput)
	}
	if den.IsZero() {
		return ErrDivisionByZero
	}
	if a.IsNegative() || b.IsNegative() || den.IsNegative() {
		return ErrNegativeInput
	}
	return nil
}

// BpsDown returns floor(amount * bps / 10000). The denominator is a constant,
// so there is no error path for non-negative inputs.
func BpsDown(amount sdkmath.Int, bps uint64) sdkmath.Int {
	if amount.IsNil() || amount.IsZero() || bps == 0 {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewIntFromUint64(bps)).Quo(sdkmath.NewInt(10_000))
}

// BpsUp returns ceil(amount * bps / 10000).
func BpsUp(amount sdkmath.Int, bps uint64) sdkmath.Int {
	if amount.IsNil() || amount.IsZero() || bps == 0 {
		return sdkmath.ZeroInt()
	}
	num := amount.Mul(sdkmath.NewIntFromUint64(bps))
	den := sdkmath.NewInt(10_000)
	q := num.Quo(den)
	if !num.Mod(den).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}

// MinInt returns the smaller of two integers.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}
