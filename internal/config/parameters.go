/*

This file contains the default operating parameters for the RVM.

These defaults are calibrated for managing pooled depositor capital in a
production environment; each value trades yield capture against the cost of
being wrong about short-term price movement.

*/

package config

import (
	"github.com/rangevault/rvm/internal/types"
)

// DefaultFeeSchedule is applied to a vault created from environment
// configuration when no explicit schedule is stored for it.
var DefaultFeeSchedule = types.FeeSchedule{
	EntryBps: 10, // 0.10% on deposit.
	// Rationale: a small entry fee discourages deposit/withdraw churn that
	// forces range drains, without meaningfully penalizing long-term LPs.

	ExitBps: 10, // 0.10% on withdrawal.

	ManagementBps: 100, // 1% per year, prorated per accrual.
	// Rationale: covers keeper gas and operations; accrued continuously so a
	// depositor never benefits from timing the accrual boundary.

	PerformanceBps: 1_000, // 10% of realized LP fees.
	// Rationale: charged only on fees actually collected from the venue at
	// close time, never on unrealized position value.

	FlashBps: 0, // No flash surface is exposed; carried for schedule parity.
}

// Price guard defaults. A zero max deviation disables the guard entirely, so
// the default is deliberately non-zero.
const (
	// DefaultTwapLookbackSec is the TWAP window consulted before mints and
	// rebalances.
	DefaultTwapLookbackSec uint32 = 600 // 10 minutes.
	// Rationale: long enough that a single-block price push is diluted,
	// short enough to track real market moves without tripping constantly.

	// DefaultMaxDeviationBps rejects operations when spot deviates from the
	// TWAP by more than this.
	DefaultMaxDeviationBps uint64 = 300 // 3%.
)

// Planner defaults.
const (
	// DefaultRangeWidthTicks is the width of a freshly opened range when the
	// planner has no prior range to inherit a width from.
	DefaultRangeWidthTicks int32 = 1_200
	// Rationale: roughly ±6% around spot at 1 tick = 1 bp. Tighter ranges
	// earn more fees in calm markets but force more frequent rebalances.

	// DefaultRangeWeightBps is the target weight assigned to a planner-opened
	// range when none is inherited. The weight sum invariant (< 100%) keeps a
	// liquid remainder in the vault for withdrawals.
	DefaultRangeWeightBps uint64 = 9_000
)
