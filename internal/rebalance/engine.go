/*

The rebalance engine executes a RebalancePlan as one atomic sequence: close,
swap, and open instructions are interleaved index by index, range mutations
are staged on a registry transaction, and the staged set commits only after
every instruction has succeeded. A failure before any venue call ran aborts
the plan with the live registry untouched; a failure after burns or mints
already ran cannot be rolled back on the venues, so the engine instead
reconciles the live registry and the vault's idle balances with what the
venues actually did before reporting the error.

The proportional drain used by withdrawals lives in drain.go and is the
explicit opposite: best-effort, committing each range reduction as it goes.

*/

package rebalance

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/registry"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/venue"
)

// SwapExecutor performs the opaque external call described by a swap
// instruction. Success is binary; the engine never interprets the payload.
type SwapExecutor interface {
	ExecuteSwap(target string, payload []byte) error
}

// Result carries the running totals of one executed plan.
type Result struct {
	WithdrawnA sdkmath.Int
	WithdrawnB sdkmath.Int
	LPFeesA    sdkmath.Int
	LPFeesB    sdkmath.Int

	RangesClosed  int
	SwapsExecuted int
	RangesOpened  int
}

func zeroResult() Result {
	z := sdkmath.ZeroInt()
	return Result{WithdrawnA: z, WithdrawnB: z, LPFeesA: z, LPFeesB: z}
}

// Engine executes plans against the range registry and the venue adapters.
type Engine struct {
	venues  *venue.Registry
	ranges  *registry.Registry
	bank    bank.Bank
	swapper SwapExecutor
	log     zerolog.Logger
}

// New creates an engine. swapper may be nil for deployments that never carry
// swap instructions; executing a plan with swaps then fails with ErrSwapFailed.
func New(venues *venue.Registry, ranges *registry.Registry, b bank.Bank, swapper SwapExecutor) *Engine {
	return &Engine{
		venues:  venues,
		ranges:  ranges,
		bank:    b,
		swapper: swapper,
		log:     logger.GetForComponent("rebalance_engine"),
	}
}

// Execute runs the plan for the vault. The caller must hold the vault's
// exclusive lock. On success the vault's idle balances are updated to the
// remaining undeployed amounts and the staged range set is committed.
//
// Open instructions mint with the full available balance as desired amounts.
// Available starts at the vault's idle balances and grows with every close;
// after each swap it is re-read from the vault's bank account, since the swap
// is an untrusted boundary and nothing it reports can be trusted without
// re-validation.
func (e *Engine) Execute(v *types.Vault, plan *types.RebalancePlan) (Result, error) {
	res := zeroResult()
	if plan == nil || plan.VaultID != v.ID {
		return res, fmt.Errorf("%w: plan does not target vault %d", types.ErrInvalidParameter, v.ID)
	}
	if plan.IsEmpty() {
		return res, nil
	}

	txn := e.ranges.Begin(v.ID)
	availA, availB := v.IdleA, v.IdleB

	var closed []types.RangeID
	var opened []*types.Range
	abort := func(err error) (Result, error) {
		e.reconcile(v, closed, opened)
		return zeroResult(), err
	}

	for i := 0; i < plan.Steps(); i++ {
		if i < len(plan.Closes) {
			wdA, wdB, feeA, feeB, err := e.closeOne(txn, v.ID, plan.Closes[i])
			if err != nil {
				return abort(err)
			}
			res.WithdrawnA = res.WithdrawnA.Add(wdA)
			res.WithdrawnB = res.WithdrawnB.Add(wdB)
			res.LPFeesA = res.LPFeesA.Add(feeA)
			res.LPFeesB = res.LPFeesB.Add(feeB)
			availA = availA.Add(wdA).Add(feeA)
			availB = availB.Add(wdB).Add(feeB)
			closed = append(closed, plan.Closes[i].RangeID)
			res.RangesClosed++
		}
		if i < len(plan.Swaps) {
			if err := e.swapOne(v.ID, plan.Swaps[i]); err != nil {
				return abort(err)
			}
			availA, availB = e.revalidate(v)
			res.SwapsExecuted++
		}
		if i < len(plan.Opens) {
			rg, usedA, usedB, err := e.openOne(txn, v, plan.Opens[i], availA, availB)
			if err != nil {
				return abort(err)
			}
			availA = availA.Sub(usedA)
			availB = availB.Sub(usedB)
			opened = append(opened, rg)
			res.RangesOpened++
		}
	}

	if err := txn.Commit(); err != nil {
		return zeroResult(), err
	}
	v.IdleA, v.IdleB = availA, availB

	e.log.Info().
		Uint64("vault", uint64(v.ID)).
		Int("closed", res.RangesClosed).
		Int("swapped", res.SwapsExecuted).
		Int("opened", res.RangesOpened).
		Str("lpFeesA", res.LPFeesA.String()).
		Str("lpFeesB", res.LPFeesB.String()).
		Msg("Rebalance plan executed")
	return res, nil
}

func (e *Engine) closeOne(txn *registry.Txn, vaultID types.VaultID, ins types.CloseInstruction) (sdkmath.Int, sdkmath.Int, sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	rg, err := txn.Get(ins.RangeID)
	if err != nil {
		// The staged set only holds this vault's ranges. Distinguish a
		// range owned by another vault from one that does not exist.
		if live, liveErr := e.ranges.Get(ins.RangeID); liveErr == nil && live.VaultID != vaultID {
			return zero, zero, zero, zero, fmt.Errorf("%w: range %s belongs to vault %d, not %d",
				types.ErrUnauthorized, live.ID, live.VaultID, vaultID)
		}
		return zero, zero, zero, zero, err
	}

	a, err := e.venues.ForRange(rg)
	if err != nil {
		return zero, zero, zero, zero, err
	}
	burned, err := a.Burn(rg)
	if err != nil {
		return zero, zero, zero, zero, fmt.Errorf("close range %s: %w", rg.ID, err)
	}
	if err := txn.Remove(rg.ID); err != nil {
		return zero, zero, zero, zero, err
	}
	return burned.WithdrawnA, burned.WithdrawnB, burned.FeesA, burned.FeesB, nil
}

func (e *Engine) swapOne(vaultID types.VaultID, ins types.SwapInstruction) error {
	if e.swapper == nil {
		return fmt.Errorf("%w: no swap executor configured", types.ErrSwapFailed)
	}
	if err := e.swapper.ExecuteSwap(ins.Target, ins.Payload); err != nil {
		e.log.Error().
			Uint64("vault", uint64(vaultID)).
			Str("target", ins.Target).
			Err(err).
			Msg("Swap instruction failed, aborting plan")
		return fmt.Errorf("%w: target %s: %w", types.ErrSwapFailed, ins.Target, err)
	}
	return nil
}

func (e *Engine) openOne(txn *registry.Txn, v *types.Vault, ins types.OpenInstruction, availA, availB sdkmath.Int) (*types.Range, sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	rg := &types.Range{
		ID:        ins.RangeID,
		VaultID:   v.ID,
		Venue:     ins.Venue,
		PoolID:    ins.PoolID,
		LowerTick: ins.LowerTick,
		UpperTick: ins.UpperTick,
		WeightBps: ins.WeightBps,
		Liquidity: sdkmath.ZeroInt(),
	}
	if rg.ID == "" {
		rg.ID = types.NewRangeID(rg.VaultID, rg.PoolID, rg.LowerTick, rg.UpperTick)
	}

	a, err := e.venues.Resolve(ins.Venue)
	if err != nil {
		return nil, zero, zero, err
	}
	minted, err := a.Mint(rg, availA, availB, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	if err != nil {
		return nil, zero, zero, fmt.Errorf("open range %s: %w", rg.ID, err)
	}
	rg.Liquidity = minted.Liquidity
	rg.PositionID = minted.PositionID
	if err := txn.Append(rg); err != nil {
		return nil, zero, zero, err
	}
	return rg, minted.UsedA, minted.UsedB, nil
}

// reconcile realigns the live registry and the vault's idle balances with the
// venue state after an aborted plan. Burns and mints that already ran are
// irreversible on the venues, so the staged transaction alone cannot restore
// consistency: closed ranges are removed from the live set, opened ranges are
// recorded, and idle balances are re-derived from the vault's bank account.
func (e *Engine) reconcile(v *types.Vault, closed []types.RangeID, opened []*types.Range) {
	if len(closed) == 0 && len(opened) == 0 {
		return
	}
	for _, id := range closed {
		if err := e.ranges.Remove(id); err != nil {
			e.log.Error().Uint64("vault", uint64(v.ID)).Str("range", string(id)).
				Err(err).Msg("Failed to drop closed range while unwinding plan")
		}
	}
	for _, rg := range opened {
		if err := e.ranges.Append(rg); err != nil {
			e.log.Error().Uint64("vault", uint64(v.ID)).Str("range", string(rg.ID)).
				Err(err).Msg("Failed to record opened range while unwinding plan")
		}
	}
	v.IdleA, v.IdleB = e.revalidate(v)
	e.log.Warn().
		Uint64("vault", uint64(v.ID)).
		Int("closed", len(closed)).
		Int("opened", len(opened)).
		Msg("Plan aborted after venue calls ran; registry and idle balances reconciled")
}

// revalidate derives the vault's undeployed balance from its bank account:
// everything in the account that is not an outstanding fee balance.
func (e *Engine) revalidate(v *types.Vault) (sdkmath.Int, sdkmath.Int) {
	acct := bank.VaultAccount(v.ID)
	balA := e.bank.Balance(acct, v.TokenA)
	balB := e.bank.Balance(acct, v.TokenB)
	availA := balA.Sub(v.PendingFeeA).Sub(v.AccruedFeeA)
	availB := balB.Sub(v.PendingFeeB).Sub(v.AccruedFeeB)
	if availA.IsNegative() {
		availA = sdkmath.ZeroInt()
	}
	if availB.IsNegative() {
		availB = sdkmath.ZeroInt()
	}
	return availA, availB
}
