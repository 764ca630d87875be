/*

This file contains the vault record: the unit of accounting for a pooled
two-token position. All amounts are base-unit integers (cosmossdk.io/math);
nothing in the accounting path touches floating point.

*/

package types

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

type VaultID uint64

// ProtocolVaultID is reserved for protocol-level accounting and may never be
// assigned to a user vault.
const ProtocolVaultID VaultID = 0

const (
	// BpsDenominator is the basis-point scale: 10000 bps = 100%.
	BpsDenominator = 10_000

	// MaxFeeBps caps every fee rate in a schedule at 50%.
	MaxFeeBps = 5_000
)

// FeeSchedule holds the vault's fee rates in basis points. Every rate is
// bounded to [0, MaxFeeBps]; Validate enforces the cap.
type FeeSchedule struct {
	EntryBps       uint64 `json:"entry_bps"`
	ExitBps        uint64 `json:"exit_bps"`
	ManagementBps  uint64 `json:"management_bps"`  // annualized, prorated on accrual
	PerformanceBps uint64 `json:"performance_bps"` // charged on realized LP fees only
	FlashBps       uint64 `json:"flash_bps"`       // carried for parity; no flash surface is exposed
}

// Validate checks every rate against MaxFeeBps.
func (f FeeSchedule) Validate() error {
	for _, r := range []struct {
		name string
		bps  uint64
	}{
		{"entry fee", f.EntryBps},
		{"exit fee", f.ExitBps},
		{"management fee", f.ManagementBps},
		{"performance fee", f.PerformanceBps},
		{"flash fee", f.FlashBps},
	} {
		if r.bps > MaxFeeBps {
			return NewExceedsUint64(r.name, r.bps, MaxFeeBps)
		}
	}
	return nil
}

// Vault is the persistent record for one managed token pair.
//
// The pair is canonically ordered (TokenA < TokenB) and immutable once the
// vault is created. IdleA/IdleB track undeployed principal held by the vault;
// pending and accrued fee balances are tracked separately so that the bank
// balance of the vault account is always idle + pending + accrued per token.
// Only the fees package mutates the fee balances.
type Vault struct {
	ID     VaultID `json:"id"`
	TokenA string  `json:"token_a"`
	TokenB string  `json:"token_b"`

	TotalShares sdkmath.Int `json:"total_shares"`
	MaxShares   sdkmath.Int `json:"max_shares"`

	Fees FeeSchedule `json:"fees"`

	// Undeployed principal per token.
	IdleA sdkmath.Int `json:"idle_a"`
	IdleB sdkmath.Int `json:"idle_b"`

	// Protocol fee balances per token. Pending accumulates as fees are
	// charged; Collect moves pending to accrued and pays accrued out.
	PendingFeeA sdkmath.Int `json:"pending_fee_a"`
	PendingFeeB sdkmath.Int `json:"pending_fee_b"`
	AccruedFeeA sdkmath.Int `json:"accrued_fee_a"`
	AccruedFeeB sdkmath.Int `json:"accrued_fee_b"`

	// Bootstrap terms for the very first deposit (total supply zero).
	InitAmountA sdkmath.Int `json:"init_amount_a"`
	InitAmountB sdkmath.Int `json:"init_amount_b"`
	InitShares  sdkmath.Int `json:"init_shares"`

	// Price guard configuration. MaxDeviationBps zero disables the guard.
	TwapLookbackSec uint32 `json:"twap_lookback_sec"`
	MaxDeviationBps uint64 `json:"max_deviation_bps"`

	// MintRestricted limits deposits to callers holding the manager role.
	// The paused flag lives with the external pause collaborator, not here.
	MintRestricted bool `json:"mint_restricted"`

	LastFeeAccrual   time.Time `json:"last_fee_accrual"`
	LastFeeCollected time.Time `json:"last_fee_collected"`
}

// Validate checks the structural invariants of a vault record: reserved id,
// canonical distinct pair, positive bootstrap terms, fee caps, supply cap.
func (v *Vault) Validate() error {
	if v.ID == ProtocolVaultID {
		return fmt.Errorf("%w: vault id 0 is reserved", ErrInvalidParameter)
	}
	if v.TokenA == "" || v.TokenB == "" {
		return fmt.Errorf("%w: vault %d has an empty token identifier", ErrInvalidParameter, v.ID)
	}
	if v.TokenA >= v.TokenB {
		return fmt.Errorf("%w: vault %d pair must be canonically ordered (%q < %q)", ErrInvalidParameter, v.ID, v.TokenA, v.TokenB)
	}
	if err := v.Fees.Validate(); err != nil {
		return err
	}
	if v.InitShares.IsNil() || !v.InitShares.IsPositive() {
		return fmt.Errorf("%w: vault %d initial share count must be positive", ErrInvalidParameter, v.ID)
	}
	if v.InitAmountA.IsNil() || v.InitAmountB.IsNil() || v.InitAmountA.IsNegative() || v.InitAmountB.IsNegative() {
		return fmt.Errorf("%w: vault %d initial amounts must be non-negative", ErrInvalidParameter, v.ID)
	}
	if v.MaxShares.IsNil() || !v.MaxShares.IsPositive() {
		return fmt.Errorf("%w: vault %d maximum share supply must be positive", ErrInvalidParameter, v.ID)
	}
	if !v.TotalShares.IsNil() && v.TotalShares.GT(v.MaxShares) {
		return NewExceeds("total share supply", v.TotalShares, v.MaxShares)
	}
	return nil
}

// FeeSnapshot is an ephemeral per-token fee computation result. It is always
// derived from current balances at call time and never persisted.
type FeeSnapshot struct {
	AmountA sdkmath.Int `json:"amount_a"`
	AmountB sdkmath.Int `json:"amount_b"`
}

// ZeroFeeSnapshot returns a snapshot with both amounts set to zero.
func ZeroFeeSnapshot() FeeSnapshot {
	return FeeSnapshot{AmountA: sdkmath.ZeroInt(), AmountB: sdkmath.ZeroInt()}
}

// IsZero reports whether both fee amounts are zero.
func (s FeeSnapshot) IsZero() bool {
	return s.AmountA.IsZero() && s.AmountB.IsZero()
}
