/*

Error taxonomy shared by every component. All errors are sentinel values so
callers can match with errors.Is regardless of how many times they were
wrapped on the way up. Nothing in this repository swallows an error: every
fatal condition aborts the enclosing operation.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidParameter  = errors.New("parameter is invalid")
	ErrZeroValue         = errors.New("amount must be positive")
	ErrExceeds           = errors.New("limit exceeded")
	ErrUnauthorized      = errors.New("caller is not authorized")
	ErrNotFound          = errors.New("record not found")
	ErrTokenMismatch     = errors.New("pool tokens do not match vault pair")
	ErrAdapterCallFailed = errors.New("adapter call failed")
	ErrSwapFailed        = errors.New("swap call failed")
	ErrStalePrice        = errors.New("spot price deviates too far from TWAP")
	ErrSlippageTooHigh   = errors.New("minimum amount not met")

	// ErrReentrantCall is returned when a vault mutating operation is invoked
	// while another mutating operation on the same vault is still on the stack.
	ErrReentrantCall = errors.New("re-entrant vault call")

	ErrVaultPaused = errors.New("vault is paused")
)

// ExceedsError reports a limit violation together with the offending value
// and the cap it ran into. It unwraps to ErrExceeds.
type ExceedsError struct {
	What  string
	Value sdkmath.Int
	Cap   sdkmath.Int
}

func (e *ExceedsError) Error() string {
	return fmt.Sprintf("%s: %s exceeds cap %s", e.What, e.Value, e.Cap)
}

func (e *ExceedsError) Unwrap() error { return ErrExceeds }

// NewExceeds builds an ExceedsError for the given quantity.
func NewExceeds(what string, value, cap sdkmath.Int) error {
	return &ExceedsError{What: what, Value: value, Cap: cap}
}

// NewExceedsUint64 is a convenience wrapper for plain uint64 limits (bps caps).
func NewExceedsUint64(what string, value, cap uint64) error {
	return &ExceedsError{What: what, Value: sdkmath.NewIntFromUint64(value), Cap: sdkmath.NewIntFromUint64(cap)}
}
