/*

The fee accountant is the sole authority over a vault's pending and accrued
fee balances. Every rounding here goes up: a fee is a charge, and the charge
direction always favors the protocol.

*/

package fees

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/utils"
)

// SecondsPerYear is the management-fee proration base (365 days).
const SecondsPerYear = 365 * 24 * 60 * 60

var feeLogger = logger.GetForComponent("fee_accountant")

// Treasury accepts collected protocol fees. The address behind it is
// externally configured and swappable.
type Treasury interface {
	Receive(amountA, amountB sdk.Coin) error
}

// EntryFee returns ceil(amount * entryBps / 10000) per token.
func EntryFee(v *types.Vault, amountA, amountB sdkmath.Int) types.FeeSnapshot {
	return types.FeeSnapshot{
		AmountA: utils.BpsUp(amountA, v.Fees.EntryBps),
		AmountB: utils.BpsUp(amountB, v.Fees.EntryBps),
	}
}

// ExitFee returns ceil(amount * exitBps / 10000) per token.
func ExitFee(v *types.Vault, amountA, amountB sdkmath.Int) types.FeeSnapshot {
	return types.FeeSnapshot{
		AmountA: utils.BpsUp(amountA, v.Fees.ExitBps),
		AmountB: utils.BpsUp(amountB, v.Fees.ExitBps),
	}
}

// RecordPending adds a charged fee to the vault's pending balances.
func RecordPending(v *types.Vault, snap types.FeeSnapshot) {
	if snap.IsZero() {
		return
	}
	v.PendingFeeA = v.PendingFeeA.Add(snap.AmountA)
	v.PendingFeeB = v.PendingFeeB.Add(snap.AmountB)
}

// AccrueManagement charges the time-prorated management fee on the given
// balances, adds it to pending, and resets the accrual timestamp. Zero
// elapsed time charges nothing.
//
//	durationBps = ceil(elapsed * 10000 / secondsPerYear)
//	scaledRate  = ceil(mgmtBps * durationBps / 10000)
//	fee(token)  = ceil(balance * scaledRate / 10000)
func AccrueManagement(v *types.Vault, balanceA, balanceB sdkmath.Int, now time.Time) (types.FeeSnapshot, error) {
	snap := types.ZeroFeeSnapshot()
	if v.LastFeeAccrual.IsZero() {
		v.LastFeeAccrual = now
		return snap, nil
	}
	elapsed := int64(now.Sub(v.LastFeeAccrual) / time.Second)
	if elapsed < 0 {
		return snap, fmt.Errorf("%w: accrual clock went backwards", types.ErrInvalidParameter)
	}
	if elapsed == 0 || v.Fees.ManagementBps == 0 {
		v.LastFeeAccrual = now
		return snap, nil
	}

	durationBps, err := utils.MulDivUp(sdkmath.NewInt(elapsed), sdkmath.NewInt(types.BpsDenominator), sdkmath.NewInt(SecondsPerYear))
	if err != nil {
		return snap, err
	}
	scaledRate, err := utils.MulDivUp(sdkmath.NewIntFromUint64(v.Fees.ManagementBps), durationBps, sdkmath.NewInt(types.BpsDenominator))
	if err != nil {
		return snap, err
	}
	feeA, err := utils.MulDivUp(balanceA, scaledRate, sdkmath.NewInt(types.BpsDenominator))
	if err != nil {
		return snap, err
	}
	feeB, err := utils.MulDivUp(balanceB, scaledRate, sdkmath.NewInt(types.BpsDenominator))
	if err != nil {
		return snap, err
	}

	snap = types.FeeSnapshot{AmountA: feeA, AmountB: feeB}
	RecordPending(v, snap)
	v.LastFeeAccrual = now

	feeLogger.Debug().
		Uint64("vault", uint64(v.ID)).
		Int64("elapsedSec", elapsed).
		Str("feeA", feeA.String()).
		Str("feeB", feeB.String()).
		Msg("Management fee accrued")
	return snap, nil
}

// RealizePerformance charges the performance fee on LP fees realized during
// a close and adds it to pending. It returns the charge so the caller can
// subtract it from the depositors' share of the realized fees.
func RealizePerformance(v *types.Vault, lpFeeA, lpFeeB sdkmath.Int) types.FeeSnapshot {
	snap := types.FeeSnapshot{
		AmountA: utils.BpsUp(lpFeeA, v.Fees.PerformanceBps),
		AmountB: utils.BpsUp(lpFeeB, v.Fees.PerformanceBps),
	}
	RecordPending(v, snap)
	return snap
}

// Collect moves the entirety of pending balances to accrued, pays accrued out
// to the treasury, and updates the collection timestamp. Calling with nothing
// to collect is a no-op, not an error.
func Collect(v *types.Vault, b bank.Bank, treasury Treasury, now time.Time) (types.FeeSnapshot, error) {
	v.AccruedFeeA = v.AccruedFeeA.Add(v.PendingFeeA)
	v.AccruedFeeB = v.AccruedFeeB.Add(v.PendingFeeB)
	v.PendingFeeA = sdkmath.ZeroInt()
	v.PendingFeeB = sdkmath.ZeroInt()

	out := types.FeeSnapshot{AmountA: v.AccruedFeeA, AmountB: v.AccruedFeeB}
	if out.IsZero() {
		return out, nil
	}

	coinA := sdk.NewCoin(v.TokenA, out.AmountA)
	coinB := sdk.NewCoin(v.TokenB, out.AmountB)
	if err := b.Transfer(bank.VaultAccount(v.ID), bank.TreasuryAccount, sdk.NewCoins(coinA, coinB)); err != nil {
		return types.ZeroFeeSnapshot(), fmt.Errorf("fee payout: %w", err)
	}
	if err := treasury.Receive(coinA, coinB); err != nil {
		return types.ZeroFeeSnapshot(), fmt.Errorf("treasury receive: %w", err)
	}

	v.AccruedFeeA = sdkmath.ZeroInt()
	v.AccruedFeeB = sdkmath.ZeroInt()
	v.LastFeeCollected = now

	feeLogger.Info().
		Uint64("vault", uint64(v.ID)).
		Str("collectedA", out.AmountA.String()).
		Str("collectedB", out.AmountB.String()).
		Msg("Protocol fees collected")
	return out, nil
}
