package rebalance

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/utils"
)

// drainScale is the fixed-point scale for the drain proportion.
var drainScale = sdkmath.NewIntWithDecimal(1, 18)

// DrainProportional closes burnAmount/totalSupply of every range's liquidity
// and settles the proceeds to the vault's bank account. Unlike Execute this
// path is best-effort and not atomic: each range's liquidity is decremented
// in the live registry before its venue burn runs, so a failure mid-loop
// leaves already-drained ranges correctly reduced and the rest untouched.
// Callers detect a shortfall by comparing the returned totals against the
// previewed amounts.
//
// The caller must hold the vault's exclusive lock.
func (e *Engine) DrainProportional(v *types.Vault, burnAmount sdkmath.Int) (Result, error) {
	res := zeroResult()
	if burnAmount.IsNil() || !burnAmount.IsPositive() {
		return res, fmt.Errorf("%w: burn amount must be positive", types.ErrZeroValue)
	}
	if v.TotalShares.IsZero() {
		return res, fmt.Errorf("%w: vault %d has no shares outstanding", types.ErrZeroValue, v.ID)
	}

	proportion, err := utils.MulDivUp(burnAmount, drainScale, v.TotalShares)
	if err != nil {
		return res, err
	}

	for _, rg := range e.ranges.VaultRanges(v.ID) {
		if rg.Liquidity.IsZero() {
			continue
		}
		toClose, err := utils.MulDivUp(rg.Liquidity, proportion, drainScale)
		if err != nil {
			return res, err
		}
		if toClose.IsZero() {
			continue
		}
		if toClose.GT(rg.Liquidity) {
			toClose = rg.Liquidity
		}

		a, err := e.venues.ForRange(rg)
		if err != nil {
			return res, err
		}

		// Reduce first. If the burn then fails, this range is recorded as
		// drained and the shortfall shows up in the returned totals.
		remaining := rg.Liquidity.Sub(toClose)
		if err := e.ranges.SetLiquidity(rg.ID, remaining); err != nil {
			return res, err
		}

		partial := rg.Clone()
		partial.Liquidity = toClose
		burned, err := a.Burn(partial)
		if err != nil {
			e.log.Error().
				Uint64("vault", uint64(v.ID)).
				Str("range", string(rg.ID)).
				Str("liquidity", toClose.String()).
				Err(err).
				Msg("Partial close failed during proportional drain")
			return res, fmt.Errorf("drain range %s: %w", rg.ID, err)
		}

		res.WithdrawnA = res.WithdrawnA.Add(burned.WithdrawnA)
		res.WithdrawnB = res.WithdrawnB.Add(burned.WithdrawnB)
		res.LPFeesA = res.LPFeesA.Add(burned.FeesA)
		res.LPFeesB = res.LPFeesB.Add(burned.FeesB)
		res.RangesClosed++
	}
	return res, nil
}
