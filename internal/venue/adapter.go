/*

This file contains the position adapter capability contract. Every venue
plugin exposes exactly this surface; the rebalance engine and the facade
never branch on venue type. Variants differ only in how they translate these
calls to their venue's native position model.

*/

package venue

import (
	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"

	"github.com/rangevault/rvm/internal/types"
)

// PositionState is a read-only snapshot of one open position.
type PositionState struct {
	Liquidity sdkmath.Int
	AmountA   sdkmath.Int // principal currently backing the position
	AmountB   sdkmath.Int
	FeesA     sdkmath.Int // LP fees accrued but not yet collected
	FeesB     sdkmath.Int
}

// MintResult reports what a mint actually consumed.
type MintResult struct {
	Liquidity  sdkmath.Int
	UsedA      sdkmath.Int
	UsedB      sdkmath.Int
	PositionID string
}

// BurnResult reports what a burn returned, with realized LP fees separated
// from principal so the caller can charge the performance fee.
type BurnResult struct {
	WithdrawnA sdkmath.Int
	WithdrawnB sdkmath.Int
	FeesA      sdkmath.Int
	FeesB      sdkmath.Int
}

// Observation is the aggregate of two cumulative observations spaced the
// lookback apart.
type Observation struct {
	MeanTick              int32
	HarmonicMeanLiquidity sdkmath.Int
}

// Adapter is the uniform position-management contract over one venue.
//
// Mint must verify that the pool's actual token pair matches the owning
// vault's configured pair before moving any funds, and must fail with
// types.ErrTokenMismatch otherwise. Burn withdraws exactly r.Liquidity from
// the position at r's bounds; a transient descriptor with reduced liquidity
// performs a partial close.
type Adapter interface {
	PoolTokens(poolID string) (tokenA, tokenB string, err error)
	TickSpacing(poolID string) (int32, error)
	PriceAndTick(poolID string) (sqrtPriceX96 *uint256.Int, tick int32, err error)
	PositionInfo(r *types.Range) (PositionState, error)
	Mint(r *types.Range, desiredA, desiredB, minA, minB sdkmath.Int) (MintResult, error)
	Burn(r *types.Range) (BurnResult, error)
	CollectFees(poolID string, lowerTick, upperTick int32) (collectedA, collectedB sdkmath.Int, err error)
	Observe(poolID string, lookbackSec uint32) (Observation, error)
}
