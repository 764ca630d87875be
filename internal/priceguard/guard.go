/*

TWAP-based manipulation guard. Consult aggregates two cumulative
observations spaced the lookback apart; CheckStalePrice compares the
instantaneous price against the TWAP-derived one and rejects the operation
when the deviation exceeds the vault's configured maximum.

*/

package priceguard

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/venue"
)

var guardLogger = logger.GetForComponent("price_guard")

// Consult returns the arithmetic mean tick and harmonic mean liquidity over
// the trailing lookback window. Lookback must be positive.
func Consult(a venue.Adapter, poolID string, lookbackSec uint32) (int32, sdkmath.Int, error) {
	if lookbackSec == 0 {
		return 0, sdkmath.ZeroInt(), fmt.Errorf("%w: lookback must be positive", types.ErrInvalidParameter)
	}
	obs, err := a.Observe(poolID, lookbackSec)
	if err != nil {
		return 0, sdkmath.ZeroInt(), fmt.Errorf("%w: observe %s: %w", types.ErrAdapterCallFailed, poolID, err)
	}
	return obs.MeanTick, obs.HarmonicMeanLiquidity, nil
}

// DeviationBps returns |1.0001^(tick-meanTick) - 1| in basis points: the
// relative distance between the spot price and the TWAP price.
func DeviationBps(spotTick, meanTick int32) uint64 {
	ratio := math.Pow(1.0001, float64(spotTick)-float64(meanTick))
	dev := math.Abs(ratio-1) * types.BpsDenominator
	if dev < 0 || math.IsNaN(dev) {
		return 0
	}
	if dev > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint64(math.Ceil(dev))
}

// CheckStalePrice fails with ErrStalePrice when the spot price deviates from
// the TWAP by more than maxDeviationBps. A zero maximum disables the check.
func CheckStalePrice(a venue.Adapter, poolID string, lookbackSec uint32, maxDeviationBps uint64) error {
	if maxDeviationBps == 0 {
		return nil
	}
	meanTick, _, err := Consult(a, poolID, lookbackSec)
	if err != nil {
		return err
	}
	_, spotTick, err := a.PriceAndTick(poolID)
	if err != nil {
		return fmt.Errorf("%w: price %s: %w", types.ErrAdapterCallFailed, poolID, err)
	}

	dev := DeviationBps(spotTick, meanTick)
	if dev > maxDeviationBps {
		guardLogger.Warn().
			Str("pool", poolID).
			Int32("spotTick", spotTick).
			Int32("meanTick", meanTick).
			Uint64("deviationBps", dev).
			Uint64("maxDeviationBps", maxDeviationBps).
			Msg("Stale price rejected")
		return fmt.Errorf("%w: pool %s deviates %d bps (max %d)", types.ErrStalePrice, poolID, dev, maxDeviationBps)
	}
	return nil
}
