/*

In-process concentrated-liquidity pool. Positions are keyed by their tick
bounds; the current price moves only through SetTick (the stand-in for
trading activity), and every state change appends a cumulative observation so
the TWAP query can interpolate over any lookback inside the recorded window.

*/

package clpool

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"

	"github.com/rangevault/rvm/internal/types"
)

type positionKey struct {
	lower int32
	upper int32
}

type position struct {
	id        string
	owner     types.VaultID
	liquidity sdkmath.Int
	owedA     sdkmath.Int // LP fees credited but not yet collected
	owedB     sdkmath.Int
}

type observation struct {
	ts             time.Time
	tickCumulative int64
	// seconds-per-liquidity, Q128; saturates to elapsed<<128 when the pool
	// has no in-range liquidity.
	splCumulativeX128 *big.Int
}

// Pool is one simulated venue pool.
type Pool struct {
	mu sync.Mutex

	id      string
	tokenA  string
	tokenB  string
	spacing int32

	sqrtPriceX96 *uint256.Int
	tick         int32
	liquidity    sdkmath.Int // sum of liquidity of positions straddling tick

	positions map[positionKey]*position
	nextPosID uint64

	obs []observation
	now func() time.Time
}

// NewPool creates a pool at the given initial tick. The clock is injectable
// so tests can drive the observation window deterministically.
func NewPool(id, tokenA, tokenB string, spacing, initialTick int32, now func() time.Time) (*Pool, error) {
	if id == "" || tokenA == "" || tokenB == "" || tokenA >= tokenB {
		return nil, fmt.Errorf("%w: pool wants a canonical token pair", types.ErrInvalidParameter)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: tick spacing must be positive", types.ErrInvalidParameter)
	}
	if now == nil {
		now = time.Now
	}
	sqrtP, err := SqrtRatioAtTick(initialTick)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		id:           id,
		tokenA:       tokenA,
		tokenB:       tokenB,
		spacing:      spacing,
		sqrtPriceX96: sqrtP,
		tick:         initialTick,
		liquidity:    sdkmath.ZeroInt(),
		positions:    make(map[positionKey]*position),
		now:          now,
	}
	p.obs = append(p.obs, observation{ts: now(), splCumulativeX128: new(big.Int)})
	return p, nil
}

// record appends a cumulative observation extending the last one to now.
func (p *Pool) record() {
	last := p.obs[len(p.obs)-1]
	t := p.now()
	elapsed := int64(t.Sub(last.ts) / time.Second)
	if elapsed <= 0 {
		return
	}
	spl := new(big.Int).Set(last.splCumulativeX128)
	secX128 := new(big.Int).Lsh(big.NewInt(elapsed), 128)
	if p.liquidity.IsPositive() {
		spl.Add(spl, new(big.Int).Quo(secX128, p.liquidity.BigInt()))
	} else {
		spl.Add(spl, secX128)
	}
	p.obs = append(p.obs, observation{
		ts:                t,
		tickCumulative:    last.tickCumulative + int64(p.tick)*elapsed,
		splCumulativeX128: spl,
	})
}

// cumulativesAt interpolates the cumulative tick and seconds-per-liquidity at
// an instant inside the recorded window.
func (p *Pool) cumulativesAt(t time.Time) (int64, *big.Int, error) {
	if len(p.obs) == 0 || t.Before(p.obs[0].ts) {
		return 0, nil, fmt.Errorf("%w: lookback predates oldest observation", types.ErrInvalidParameter)
	}
	last := p.obs[len(p.obs)-1]
	if !t.Before(last.ts) {
		// Extrapolate from the last observation at the current tick.
		elapsed := int64(t.Sub(last.ts) / time.Second)
		spl := new(big.Int).Set(last.splCumulativeX128)
		secX128 := new(big.Int).Lsh(big.NewInt(elapsed), 128)
		if p.liquidity.IsPositive() {
			spl.Add(spl, new(big.Int).Quo(secX128, p.liquidity.BigInt()))
		} else {
			spl.Add(spl, secX128)
		}
		return last.tickCumulative + int64(p.tick)*elapsed, spl, nil
	}
	for i := len(p.obs) - 1; i > 0; i-- {
		lo, hi := p.obs[i-1], p.obs[i]
		if t.Before(lo.ts) {
			continue
		}
		span := int64(hi.ts.Sub(lo.ts) / time.Second)
		off := int64(t.Sub(lo.ts) / time.Second)
		if span == 0 {
			return hi.tickCumulative, new(big.Int).Set(hi.splCumulativeX128), nil
		}
		tickCum := lo.tickCumulative + (hi.tickCumulative-lo.tickCumulative)*off/span
		splDelta := new(big.Int).Sub(hi.splCumulativeX128, lo.splCumulativeX128)
		splDelta.Mul(splDelta, big.NewInt(off))
		splDelta.Quo(splDelta, big.NewInt(span))
		return tickCum, splDelta.Add(splDelta, lo.splCumulativeX128), nil
	}
	first := p.obs[0]
	return first.tickCumulative, new(big.Int).Set(first.splCumulativeX128), nil
}

func (p *Pool) checkBounds(lower, upper int32) error {
	if lower >= upper || lower < MinTick || upper > MaxTick {
		return fmt.Errorf("%w: bounds [%d, %d)", types.ErrInvalidParameter, lower, upper)
	}
	if lower%p.spacing != 0 || upper%p.spacing != 0 {
		return fmt.Errorf("%w: bounds [%d, %d) not aligned to spacing %d", types.ErrInvalidParameter, lower, upper, p.spacing)
	}
	return nil
}

func (p *Pool) inRange(lower, upper int32) bool {
	return lower <= p.tick && p.tick < upper
}

// SetTick moves the pool price. This is the simulation stand-in for trading
// activity; in-range liquidity is re-derived from scratch since positions
// may move in or out of range.
func (p *Pool) SetTick(tick int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sqrtP, err := SqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	p.record()
	p.tick = tick
	p.sqrtPriceX96 = sqrtP
	p.liquidity = sdkmath.ZeroInt()
	for k, pos := range p.positions {
		if p.inRange(k.lower, k.upper) {
			p.liquidity = p.liquidity.Add(pos.liquidity)
		}
	}
	return nil
}

// AccrueFees credits LP fees to the position at the given bounds. Simulation
// hook standing in for swap fee accrual.
func (p *Pool) AccrueFees(lower, upper int32, feeA, feeB sdkmath.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[positionKey{lower, upper}]
	if !ok {
		return fmt.Errorf("%w: no position at [%d, %d)", types.ErrNotFound, lower, upper)
	}
	p.record()
	pos.owedA = pos.owedA.Add(feeA)
	pos.owedB = pos.owedB.Add(feeB)
	return nil
}

// mint adds liquidity to the position at the given bounds and returns the
// amounts consumed, rounded up so the pool never under-collects.
func (p *Pool) mint(owner types.VaultID, lower, upper int32, desiredA, desiredB sdkmath.Int) (liquidity, usedA, usedB sdkmath.Int, posID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	zero := sdkmath.ZeroInt()
	if err := p.checkBounds(lower, upper); err != nil {
		return zero, zero, zero, "", err
	}
	sqrtA, err := SqrtRatioAtTick(lower)
	if err != nil {
		return zero, zero, zero, "", err
	}
	sqrtB, err := SqrtRatioAtTick(upper)
	if err != nil {
		return zero, zero, zero, "", err
	}
	liquidity = liquidityForAmounts(p.sqrtPriceX96, sqrtA, sqrtB, desiredA, desiredB)
	if !liquidity.IsPositive() {
		return zero, zero, zero, "", fmt.Errorf("%w: amounts back no liquidity at [%d, %d)", types.ErrZeroValue, lower, upper)
	}
	usedA, usedB = amountsForLiquidity(p.sqrtPriceX96, sqrtA, sqrtB, liquidity, true)

	p.record()
	key := positionKey{lower, upper}
	pos, ok := p.positions[key]
	if !ok {
		p.nextPosID++
		pos = &position{
			id:        fmt.Sprintf("%s/pos-%d", p.id, p.nextPosID),
			owner:     owner,
			liquidity: zero,
			owedA:     zero,
			owedB:     zero,
		}
		p.positions[key] = pos
	}
	if pos.owner != owner {
		return zero, zero, zero, "", fmt.Errorf("%w: position at [%d, %d) belongs to vault %d", types.ErrUnauthorized, lower, upper, pos.owner)
	}
	pos.liquidity = pos.liquidity.Add(liquidity)
	if p.inRange(lower, upper) {
		p.liquidity = p.liquidity.Add(liquidity)
	}
	return liquidity, usedA, usedB, pos.id, nil
}

// burn removes liquidity from the position at the given bounds, returning the
// principal (rounded down) plus every LP fee owed to the position.
func (p *Pool) burn(lower, upper int32, liquidity sdkmath.Int) (outA, outB, feesA, feesB sdkmath.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	zero := sdkmath.ZeroInt()
	pos, ok := p.positions[positionKey{lower, upper}]
	if !ok {
		return zero, zero, zero, zero, fmt.Errorf("%w: no position at [%d, %d)", types.ErrNotFound, lower, upper)
	}
	if liquidity.IsNil() || !liquidity.IsPositive() || liquidity.GT(pos.liquidity) {
		return zero, zero, zero, zero, fmt.Errorf("%w: burn liquidity %s against position %s", types.ErrInvalidParameter, liquidity, pos.liquidity)
	}
	sqrtA, err := SqrtRatioAtTick(lower)
	if err != nil {
		return zero, zero, zero, zero, err
	}
	sqrtB, err := SqrtRatioAtTick(upper)
	if err != nil {
		return zero, zero, zero, zero, err
	}
	outA, outB = amountsForLiquidity(p.sqrtPriceX96, sqrtA, sqrtB, liquidity, false)

	p.record()
	pos.liquidity = pos.liquidity.Sub(liquidity)
	if p.inRange(lower, upper) {
		p.liquidity = p.liquidity.Sub(liquidity)
	}
	feesA, feesB = pos.owedA, pos.owedB
	pos.owedA, pos.owedB = zero, zero
	if pos.liquidity.IsZero() {
		delete(p.positions, positionKey{lower, upper})
	}
	return outA, outB, feesA, feesB, nil
}

// valuation sums the principal (at the current price, rounded down as a burn
// would pay) and uncollected fees across every position. The venue uses it to
// keep the pool account solvent after a price move.
func (p *Pool) valuation() (totalA, totalB sdkmath.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	totalA, totalB = sdkmath.ZeroInt(), sdkmath.ZeroInt()
	for k, pos := range p.positions {
		sqrtA, err := SqrtRatioAtTick(k.lower)
		if err != nil {
			return totalA, totalB, err
		}
		sqrtB, err := SqrtRatioAtTick(k.upper)
		if err != nil {
			return totalA, totalB, err
		}
		amtA, amtB := amountsForLiquidity(p.sqrtPriceX96, sqrtA, sqrtB, pos.liquidity, false)
		totalA = totalA.Add(amtA).Add(pos.owedA)
		totalB = totalB.Add(amtB).Add(pos.owedB)
	}
	return totalA, totalB, nil
}

// positionState returns a snapshot of the position at the given bounds.
func (p *Pool) positionState(lower, upper int32) (liq, amtA, amtB, feeA, feeB sdkmath.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	zero := sdkmath.ZeroInt()
	pos, ok := p.positions[positionKey{lower, upper}]
	if !ok {
		return zero, zero, zero, zero, zero, fmt.Errorf("%w: no position at [%d, %d)", types.ErrNotFound, lower, upper)
	}
	sqrtA, err := SqrtRatioAtTick(lower)
	if err != nil {
		return zero, zero, zero, zero, zero, err
	}
	sqrtB, err := SqrtRatioAtTick(upper)
	if err != nil {
		return zero, zero, zero, zero, zero, err
	}
	amtA, amtB = amountsForLiquidity(p.sqrtPriceX96, sqrtA, sqrtB, pos.liquidity, false)
	return pos.liquidity, amtA, amtB, pos.owedA, pos.owedB, nil
}

// observe returns the arithmetic mean tick and harmonic mean liquidity over
// the trailing lookback window.
func (p *Pool) observe(lookbackSec uint32) (meanTick int32, harmonicLiq sdkmath.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lookbackSec == 0 {
		return 0, sdkmath.ZeroInt(), fmt.Errorf("%w: lookback must be positive", types.ErrInvalidParameter)
	}
	t1 := p.now()
	t0 := t1.Add(-time.Duration(lookbackSec) * time.Second)
	tickCum1, spl1, err := p.cumulativesAt(t1)
	if err != nil {
		return 0, sdkmath.ZeroInt(), err
	}
	tickCum0, spl0, err := p.cumulativesAt(t0)
	if err != nil {
		return 0, sdkmath.ZeroInt(), err
	}

	meanTick = int32((tickCum1 - tickCum0) / int64(lookbackSec))

	splDelta := new(big.Int).Sub(spl1, spl0)
	if splDelta.Sign() <= 0 {
		return meanTick, p.liquidity, nil
	}
	harm := new(big.Int).Lsh(big.NewInt(int64(lookbackSec)), 128)
	harm.Quo(harm, splDelta)
	return meanTick, sdkmath.NewIntFromBigInt(harm), nil
}

// snapshot accessors used by the adapter.

func (p *Pool) tokens() (string, string) { return p.tokenA, p.tokenB }

func (p *Pool) tickSpacing() int32 { return p.spacing }

func (p *Pool) priceAndTick() (*uint256.Int, int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.sqrtPriceX96), p.tick
}
