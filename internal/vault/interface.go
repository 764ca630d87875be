/*

This file contains the facade contract and its external collaborators. The
facade is the only entry point for state-mutating vault operations; role
storage, pause flags and the treasury address all live outside the core and
are reached through the narrow interfaces below.

*/

package vault

import (
	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/rebalance"
	"github.com/rangevault/rvm/internal/types"
)

// Roles consulted through the access-control collaborator.
const (
	RoleKeeper   = "keeper"
	RoleTreasury = "treasury"
	RoleManager  = "manager"
)

// AccessController answers role checks. The core holds no role storage.
type AccessController interface {
	RequireRole(caller, role string) error
}

// PauseProbe reports whether a vault is paused. The flag storage is external.
type PauseProbe interface {
	IsPaused(id types.VaultID) bool
}

// Store persists vault and range records and rebalance receipts. A nil store
// disables persistence; every method must tolerate being the only writer.
type Store interface {
	SaveVault(v *types.Vault) error
	SaveRanges(id types.VaultID, ranges []*types.Range) error
	SaveReceipt(r *types.RebalanceReceipt) error
	SaveShareBalance(id types.VaultID, holder string, shares sdkmath.Int) error
}

// DepositResult reports what a deposit actually moved and minted.
type DepositResult struct {
	SharesMinted sdkmath.Int       `json:"shares_minted"`
	AmountA      sdkmath.Int       `json:"amount_a"`
	AmountB      sdkmath.Int       `json:"amount_b"`
	Fee          types.FeeSnapshot `json:"fee"`
}

// WithdrawResult reports what a withdrawal actually paid out. Paid amounts
// can fall short of the previewed ones when the proportional drain could not
// fully close a range; callers compare the two to detect it.
type WithdrawResult struct {
	SharesBurned sdkmath.Int       `json:"shares_burned"`
	PaidA        sdkmath.Int       `json:"paid_a"`
	PaidB        sdkmath.Int       `json:"paid_b"`
	PreviewedA   sdkmath.Int       `json:"previewed_a"`
	PreviewedB   sdkmath.Int       `json:"previewed_b"`
	Fee          types.FeeSnapshot `json:"fee"`
}

// Facade is the serialized, single-writer-per-vault operation surface.
type Facade interface {
	CreateVault(caller string, v *types.Vault) error

	Deposit(caller string, id types.VaultID, mintAmount sdkmath.Int, receiver string) (DepositResult, error)
	Withdraw(caller string, id types.VaultID, burnAmount sdkmath.Int, receiver string) (WithdrawResult, error)
	PreviewDeposit(id types.VaultID, mintAmount sdkmath.Int) (sdkmath.Int, sdkmath.Int, types.FeeSnapshot, error)
	PreviewWithdraw(id types.VaultID, burnAmount sdkmath.Int) (sdkmath.Int, sdkmath.Int, types.FeeSnapshot, error)

	Rebalance(caller string, plan *types.RebalancePlan) (rebalance.Result, error)
	CollectFees(caller string, id types.VaultID) (types.FeeSnapshot, error)

	SetRangeWeights(caller string, id types.VaultID, weights map[types.RangeID]uint64) error
	SetFeeSchedule(caller string, id types.VaultID, schedule types.FeeSchedule) error

	TotalBalances(id types.VaultID) (sdkmath.Int, sdkmath.Int, error)
	Vault(id types.VaultID) (types.Vault, error)
	Vaults() []types.Vault
	Ranges(id types.VaultID) ([]*types.Range, error)
	ShareBalance(id types.VaultID, holder string) sdkmath.Int
}
