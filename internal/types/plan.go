/*

This file contains the rebalance plan types: the three independent instruction
lists a keeper submits, and the receipt recorded after every cycle.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// CloseInstruction fully closes one range owned by the target vault.
type CloseInstruction struct {
	RangeID RangeID `json:"range_id"`
}

// SwapInstruction is an opaque external call executed between closes and
// opens. The engine never interprets the payload; any non-success outcome
// aborts the whole rebalance.
type SwapInstruction struct {
	Target  string `json:"target"`
	Payload []byte `json:"payload"`
}

// OpenInstruction is a candidate range descriptor without liquidity
// populated. RangeID may be left empty, in which case the engine derives it
// from (vault, pool, bounds).
type OpenInstruction struct {
	RangeID   RangeID `json:"range_id,omitempty"`
	Venue     string  `json:"venue"`
	PoolID    string  `json:"pool_id"`
	LowerTick int32   `json:"lower_tick"`
	UpperTick int32   `json:"upper_tick"`
	WeightBps uint64  `json:"weight_bps"`
}

// RebalancePlan carries the three instruction lists. The lists are of
// independent lengths; instructions at the same index are related only by
// execution order (close[i], swap[i], open[i], then i+1).
type RebalancePlan struct {
	VaultID VaultID            `json:"vault_id"`
	Closes  []CloseInstruction `json:"closes"`
	Swaps   []SwapInstruction  `json:"swaps"`
	Opens   []OpenInstruction  `json:"opens"`
}

// Steps returns the number of interleaved iterations the plan requires.
func (p RebalancePlan) Steps() int {
	n := len(p.Closes)
	if len(p.Swaps) > n {
		n = len(p.Swaps)
	}
	if len(p.Opens) > n {
		n = len(p.Opens)
	}
	return n
}

// IsEmpty reports whether the plan contains no instructions at all.
func (p RebalancePlan) IsEmpty() bool { return p.Steps() == 0 }

// RebalanceReceipt records the outcome of one keeper cycle for one vault.
// Receipts are append-only and persisted for the status API.
type RebalanceReceipt struct {
	ReceiptID int64     `json:"receipt_id,omitempty"` // assigned by the database
	CycleID   string    `json:"cycle_id"`
	VaultID   VaultID   `json:"vault_id"`
	Timestamp time.Time `json:"timestamp"`

	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	RangesClosed  int `json:"ranges_closed"`
	SwapsExecuted int `json:"swaps_executed"`
	RangesOpened  int `json:"ranges_opened"`

	LPFeesA sdkmath.Int `json:"lp_fees_a"`
	LPFeesB sdkmath.Int `json:"lp_fees_b"`
}
