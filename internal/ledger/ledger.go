/*

The share ledger converts between shares and token amounts and is the only
code that moves a vault's total supply. Rounding is protocol-favoring in both
directions: deposits require at least enough tokens to back the new shares
(round up), withdrawals pay out no more than the burned proportion (round
down).

*/

package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/fees"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/utils"
)

// Mint increases the vault's share supply, enforcing the maximum.
func Mint(v *types.Vault, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: mint amount must be positive", types.ErrZeroValue)
	}
	next := v.TotalShares.Add(amount)
	if next.GT(v.MaxShares) {
		return types.NewExceeds("share supply", next, v.MaxShares)
	}
	v.TotalShares = next
	return nil
}

// Burn decreases the vault's share supply.
func Burn(v *types.Vault, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: burn amount must be positive", types.ErrZeroValue)
	}
	if amount.GT(v.TotalShares) {
		return types.NewExceeds("burn amount", amount, v.TotalShares)
	}
	v.TotalShares = v.TotalShares.Sub(amount)
	return nil
}

// PreviewDeposit returns the token amounts required to mint mintAmount shares
// against the given vault balances, plus the entry fee charged on top.
//
// With zero supply the vault's seeding ratio applies: amountX =
// floor(initAmountX * mintAmount / initShares). Otherwise amountX =
// ceil(balanceX * mintAmount / totalSupply).
func PreviewDeposit(v *types.Vault, mintAmount, balanceA, balanceB sdkmath.Int) (sdkmath.Int, sdkmath.Int, types.FeeSnapshot, error) {
	zero := sdkmath.ZeroInt()
	if mintAmount.IsNil() || !mintAmount.IsPositive() {
		return zero, zero, types.ZeroFeeSnapshot(), fmt.Errorf("%w: mint amount must be positive", types.ErrZeroValue)
	}

	var amountA, amountB sdkmath.Int
	var err error
	if v.TotalShares.IsZero() {
		amountA, err = utils.MulDivDown(v.InitAmountA, mintAmount, v.InitShares)
		if err != nil {
			return zero, zero, types.ZeroFeeSnapshot(), err
		}
		amountB, err = utils.MulDivDown(v.InitAmountB, mintAmount, v.InitShares)
		if err != nil {
			return zero, zero, types.ZeroFeeSnapshot(), err
		}
	} else {
		amountA, err = utils.MulDivUp(balanceA, mintAmount, v.TotalShares)
		if err != nil {
			return zero, zero, types.ZeroFeeSnapshot(), err
		}
		amountB, err = utils.MulDivUp(balanceB, mintAmount, v.TotalShares)
		if err != nil {
			return zero, zero, types.ZeroFeeSnapshot(), err
		}
	}

	fee := fees.EntryFee(v, amountA, amountB)
	return amountA.Add(fee.AmountA), amountB.Add(fee.AmountB), fee, nil
}

// AdjustedMint returns the shares actually credited for a requested mint:
// mintAmount - floor(mintAmount * entryBps / 10000). The depositor pays full
// token amounts but receives fewer shares; the difference absorbs the entry
// fee economically.
func AdjustedMint(v *types.Vault, mintAmount sdkmath.Int) sdkmath.Int {
	return mintAmount.Sub(utils.BpsDown(mintAmount, v.Fees.EntryBps))
}

// PreviewWithdraw returns the net token amounts paid out for burning
// burnAmount shares, plus the exit fee withheld. amountX = floor(balanceX *
// burnAmount / totalSupply); the fee is subtracted from the payout.
func PreviewWithdraw(v *types.Vault, burnAmount, balanceA, balanceB sdkmath.Int) (sdkmath.Int, sdkmath.Int, types.FeeSnapshot, error) {
	zero := sdkmath.ZeroInt()
	if burnAmount.IsNil() || !burnAmount.IsPositive() {
		return zero, zero, types.ZeroFeeSnapshot(), fmt.Errorf("%w: burn amount must be positive", types.ErrZeroValue)
	}
	if v.TotalShares.IsZero() {
		return zero, zero, types.ZeroFeeSnapshot(), fmt.Errorf("%w: vault %d has no shares outstanding", types.ErrZeroValue, v.ID)
	}
	if burnAmount.GT(v.TotalShares) {
		return zero, zero, types.ZeroFeeSnapshot(), types.NewExceeds("burn amount", burnAmount, v.TotalShares)
	}

	amountA, err := utils.MulDivDown(balanceA, burnAmount, v.TotalShares)
	if err != nil {
		return zero, zero, types.ZeroFeeSnapshot(), err
	}
	amountB, err := utils.MulDivDown(balanceB, burnAmount, v.TotalShares)
	if err != nil {
		return zero, zero, types.ZeroFeeSnapshot(), err
	}

	fee := fees.ExitFee(v, amountA, amountB)
	return amountA.Sub(fee.AmountA), amountB.Sub(fee.AmountB), fee, nil
}

// SharesToAmounts returns the net per-token payout for burning the given
// shares. Thin alias over PreviewWithdraw without the fee breakdown.
func SharesToAmounts(v *types.Vault, shares, balanceA, balanceB sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	amountA, amountB, _, err := PreviewWithdraw(v, shares, balanceA, balanceB)
	return amountA, amountB, err
}

// AmountToShares returns the shares to burn so that the net token-A payout,
// exit fee included, is at least amount. The first estimate ignores the fee;
// if it under-delivers, one corrective pass grosses the amount up by the exit
// rate and recomputes. The correction is a single step, not a loop: a second
// under-delivery (possible only at extreme balance/supply skew) is returned
// as-is and the caller sees the shortfall in the preview.
func AmountToShares(v *types.Vault, amount, balanceA sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if amount.IsNil() || !amount.IsPositive() {
		return zero, fmt.Errorf("%w: amount must be positive", types.ErrZeroValue)
	}
	if v.TotalShares.IsZero() || balanceA.IsZero() {
		return zero, fmt.Errorf("%w: vault %d has no token A balance to convert against", types.ErrZeroValue, v.ID)
	}

	shares, err := utils.MulDivUp(amount, v.TotalShares, balanceA)
	if err != nil {
		return zero, err
	}
	if shares.GT(v.TotalShares) {
		return zero, types.NewExceeds("share estimate", shares, v.TotalShares)
	}

	netA, _, _, err := PreviewWithdraw(v, shares, balanceA, sdkmath.ZeroInt())
	if err != nil {
		return zero, err
	}
	if netA.GTE(amount) {
		return shares, nil
	}

	gross, err := utils.MulDivUp(amount,
		sdkmath.NewInt(types.BpsDenominator),
		sdkmath.NewInt(types.BpsDenominator-int64(v.Fees.ExitBps)))
	if err != nil {
		return zero, err
	}
	shares, err = utils.MulDivUp(gross, v.TotalShares, balanceA)
	if err != nil {
		return zero, err
	}
	if shares.GT(v.TotalShares) {
		shares = v.TotalShares
	}
	return shares, nil
}
