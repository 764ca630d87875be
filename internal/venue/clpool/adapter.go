/*

The reference venue adapter. Positions here are direct-owner-based (the pool
tracks one position per bounds tuple) with a static tick spacing; other
venues differ only in how they translate the capability calls to their native
model.

*/

package clpool

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/holiman/uint256"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/venue"
)

// PairResolver reports the configured token pair of a vault. The adapter
// consults it before moving any funds on mint.
type PairResolver func(types.VaultID) (tokenA, tokenB string, err error)

// Venue manages a set of in-process pools behind the adapter contract.
type Venue struct {
	tag    string
	bank   bank.Bank
	pairOf PairResolver

	mu    sync.RWMutex
	pools map[string]*Pool
}

var _ venue.Adapter = (*Venue)(nil)

// New creates an empty venue.
func New(tag string, b bank.Bank, pairOf PairResolver) *Venue {
	return &Venue{
		tag:    tag,
		bank:   b,
		pairOf: pairOf,
		pools:  make(map[string]*Pool),
	}
}

// Tag returns the venue's registry tag.
func (v *Venue) Tag() string { return v.tag }

// CreatePool adds a pool to the venue. The clock is injectable for tests;
// pass nil for wall-clock time.
func (v *Venue) CreatePool(id, tokenA, tokenB string, spacing, initialTick int32, now func() time.Time) (*Pool, error) {
	p, err := NewPool(id, tokenA, tokenB, spacing, initialTick, now)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.pools[id]; dup {
		return nil, fmt.Errorf("%w: pool %q already exists", types.ErrInvalidParameter, id)
	}
	v.pools[id] = p
	log := logger.GetForComponent("clpool")
	log.Info().
		Str("venue", v.tag).
		Str("pool", id).
		Str("tokenA", tokenA).
		Str("tokenB", tokenB).
		Int32("spacing", spacing).
		Msg("Pool created")
	return p, nil
}

// Pool returns a pool by id, for simulation hooks (SetTick, AccrueFees).
func (v *Venue) Pool(id string) (*Pool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: pool %q", types.ErrNotFound, id)
	}
	return p, nil
}

// FundFees credits LP fees to a position and mints the matching tokens into
// the pool account so a later collect can settle them. Simulation hook.
func (v *Venue) FundFees(poolID string, lower, upper int32, feeA, feeB sdkmath.Int) error {
	p, err := v.Pool(poolID)
	if err != nil {
		return err
	}
	if err := p.AccrueFees(lower, upper, feeA, feeB); err != nil {
		return err
	}
	tokenA, tokenB := p.tokens()
	mem, ok := v.bank.(*bank.Memory)
	if !ok {
		return fmt.Errorf("%w: fee funding needs the in-memory bank", types.ErrInvalidParameter)
	}
	mem.Mint(bank.PoolAccount(v.tag, poolID),
		sdk.NewCoin(tokenA, feeA), sdk.NewCoin(tokenB, feeB))
	return nil
}

// SetTick moves a pool's price and settles the pool account against the
// re-valued positions. A price move shifts the token mix positions pay out
// on burn; the shortfall is minted into the pool account so later burns and
// collects stay solvent. Simulation hook standing in for trading activity.
func (v *Venue) SetTick(poolID string, tick int32) error {
	p, err := v.Pool(poolID)
	if err != nil {
		return err
	}
	if err := p.SetTick(tick); err != nil {
		return err
	}
	owedA, owedB, err := p.valuation()
	if err != nil {
		return err
	}
	mem, ok := v.bank.(*bank.Memory)
	if !ok {
		return fmt.Errorf("%w: price moves need the in-memory bank", types.ErrInvalidParameter)
	}
	tokenA, tokenB := p.tokens()
	acct := bank.PoolAccount(v.tag, poolID)
	var topUp []sdk.Coin
	if short := owedA.Sub(mem.Balance(acct, tokenA)); short.IsPositive() {
		topUp = append(topUp, sdk.NewCoin(tokenA, short))
	}
	if short := owedB.Sub(mem.Balance(acct, tokenB)); short.IsPositive() {
		topUp = append(topUp, sdk.NewCoin(tokenB, short))
	}
	if len(topUp) > 0 {
		mem.Mint(acct, topUp...)
	}
	return nil
}

func (v *Venue) PoolTokens(poolID string) (string, string, error) {
	p, err := v.Pool(poolID)
	if err != nil {
		return "", "", err
	}
	a, b := p.tokens()
	return a, b, nil
}

func (v *Venue) TickSpacing(poolID string) (int32, error) {
	p, err := v.Pool(poolID)
	if err != nil {
		return 0, err
	}
	return p.tickSpacing(), nil
}

func (v *Venue) PriceAndTick(poolID string) (*uint256.Int, int32, error) {
	p, err := v.Pool(poolID)
	if err != nil {
		return nil, 0, err
	}
	sqrtP, tick := p.priceAndTick()
	return sqrtP, tick, nil
}

func (v *Venue) PositionInfo(r *types.Range) (venue.PositionState, error) {
	p, err := v.Pool(r.PoolID)
	if err != nil {
		return venue.PositionState{}, err
	}
	liq, amtA, amtB, feeA, feeB, err := p.positionState(r.LowerTick, r.UpperTick)
	if err != nil {
		return venue.PositionState{}, err
	}
	return venue.PositionState{Liquidity: liq, AmountA: amtA, AmountB: amtB, FeesA: feeA, FeesB: feeB}, nil
}

// Mint opens or grows the position at r's bounds. The vault's configured pair
// must match the pool's pair; funds move from the vault account to the pool
// account only after every check passes.
func (v *Venue) Mint(r *types.Range, desiredA, desiredB, minA, minB sdkmath.Int) (venue.MintResult, error) {
	p, err := v.Pool(r.PoolID)
	if err != nil {
		return venue.MintResult{}, err
	}

	vaultA, vaultB, err := v.pairOf(r.VaultID)
	if err != nil {
		return venue.MintResult{}, err
	}
	poolA, poolB := p.tokens()
	if vaultA != poolA || vaultB != poolB {
		return venue.MintResult{}, fmt.Errorf("%w: pool %q holds %s/%s, vault %d holds %s/%s",
			types.ErrTokenMismatch, r.PoolID, poolA, poolB, r.VaultID, vaultA, vaultB)
	}

	liq, usedA, usedB, posID, err := p.mint(r.VaultID, r.LowerTick, r.UpperTick, desiredA, desiredB)
	if err != nil {
		return venue.MintResult{}, err
	}
	if (!minA.IsNil() && usedA.LT(minA)) || (!minB.IsNil() && usedB.LT(minB)) {
		// Undo the position change before reporting; no funds have moved.
		if _, _, _, _, burnErr := p.burn(r.LowerTick, r.UpperTick, liq); burnErr != nil {
			return venue.MintResult{}, fmt.Errorf("%w: rollback failed: %w", types.ErrSlippageTooHigh, burnErr)
		}
		return venue.MintResult{}, fmt.Errorf("%w: used %s/%s below minimums %s/%s",
			types.ErrSlippageTooHigh, usedA, usedB, minA, minB)
	}

	coins := sdk.NewCoins(sdk.NewCoin(poolA, usedA), sdk.NewCoin(poolB, usedB))
	if err := v.bank.Transfer(bank.VaultAccount(r.VaultID), bank.PoolAccount(v.tag, r.PoolID), coins); err != nil {
		if _, _, _, _, burnErr := p.burn(r.LowerTick, r.UpperTick, liq); burnErr != nil {
			return venue.MintResult{}, fmt.Errorf("%w: %w (rollback failed: %w)", types.ErrAdapterCallFailed, err, burnErr)
		}
		return venue.MintResult{}, fmt.Errorf("%w: %w", types.ErrAdapterCallFailed, err)
	}

	return venue.MintResult{Liquidity: liq, UsedA: usedA, UsedB: usedB, PositionID: posID}, nil
}

// Burn withdraws exactly r.Liquidity from the position at r's bounds and
// settles principal plus realized LP fees back to the vault account.
func (v *Venue) Burn(r *types.Range) (venue.BurnResult, error) {
	p, err := v.Pool(r.PoolID)
	if err != nil {
		return venue.BurnResult{}, err
	}
	outA, outB, feeA, feeB, err := p.burn(r.LowerTick, r.UpperTick, r.Liquidity)
	if err != nil {
		return venue.BurnResult{}, fmt.Errorf("%w: %w", types.ErrAdapterCallFailed, err)
	}

	tokenA, tokenB := p.tokens()
	coins := sdk.NewCoins(
		sdk.NewCoin(tokenA, outA.Add(feeA)),
		sdk.NewCoin(tokenB, outB.Add(feeB)),
	)
	if err := v.bank.Transfer(bank.PoolAccount(v.tag, r.PoolID), bank.VaultAccount(r.VaultID), coins); err != nil {
		return venue.BurnResult{}, fmt.Errorf("%w: settlement: %w", types.ErrAdapterCallFailed, err)
	}
	return venue.BurnResult{WithdrawnA: outA, WithdrawnB: outB, FeesA: feeA, FeesB: feeB}, nil
}

// CollectFees settles accrued LP fees for the position at the given bounds
// without touching its liquidity.
func (v *Venue) CollectFees(poolID string, lowerTick, upperTick int32) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	p, err := v.Pool(poolID)
	if err != nil {
		return zero, zero, err
	}
	p.mu.Lock()
	pos, ok := p.positions[positionKey{lowerTick, upperTick}]
	if !ok {
		p.mu.Unlock()
		return zero, zero, fmt.Errorf("%w: no position at [%d, %d)", types.ErrNotFound, lowerTick, upperTick)
	}
	owner := pos.owner
	feeA, feeB := pos.owedA, pos.owedB
	pos.owedA, pos.owedB = zero, zero
	p.mu.Unlock()

	if feeA.IsZero() && feeB.IsZero() {
		return zero, zero, nil
	}
	tokenA, tokenB := p.tokens()
	coins := sdk.NewCoins(sdk.NewCoin(tokenA, feeA), sdk.NewCoin(tokenB, feeB))
	if err := v.bank.Transfer(bank.PoolAccount(v.tag, poolID), bank.VaultAccount(owner), coins); err != nil {
		return zero, zero, fmt.Errorf("%w: settlement: %w", types.ErrAdapterCallFailed, err)
	}
	return feeA, feeB, nil
}

func (v *Venue) Observe(poolID string, lookbackSec uint32) (venue.Observation, error) {
	p, err := v.Pool(poolID)
	if err != nil {
		return venue.Observation{}, err
	}
	meanTick, harm, err := p.observe(lookbackSec)
	if err != nil {
		return venue.Observation{}, err
	}
	return venue.Observation{MeanTick: meanTick, HarmonicMeanLiquidity: harm}, nil
}
