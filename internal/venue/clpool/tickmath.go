/*

Q96 sqrt-price tick math for the reference venue. Prices are square roots in
Q64.96 fixed point; the sqrt ratio for a tick is built from the standard
magic-constant ladder, and amount deltas carry an explicit rounding
direction. Intermediate products run through 512-bit-capable big.Int mul-div
so no product can overflow.

*/

package clpool

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"

	"github.com/rangevault/rvm/internal/types"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	q96  = uint256.MustFromHex("0x1000000000000000000000000")
	q96b = new(big.Int).Lsh(big.NewInt(1), 96)

	uint256Max     = new(uint256.Int).SetAllOne()
	uint160Max     = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffff")
	oneShiftLeft32 = new(uint256.Int).Lsh(uint256.NewInt(1), 32)

	// Ladder constants: index 0 is the bit-0 seed, index 1 the even seed,
	// indices 2..20 multiply in for bits 1..19 of |tick|.
	sqrtRatioConsts = [21]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0x100000000000000000000000000000000"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) in Q64.96.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: tick %d out of range", types.ErrInvalidParameter, tick)
	}
	var absTick uint64
	if tick < 0 {
		absTick = uint64(-int64(tick))
	} else {
		absTick = uint64(tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioConsts[0])
	} else {
		ratio.Set(sqrtRatioConsts[1])
	}
	for i := 0; i < 19; i++ {
		if absTick&(1<<(i+1)) != 0 {
			ratio.Mul(ratio, sqrtRatioConsts[i+2])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(uint256Max, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the two conversion directions stay
	// consistent at tick boundaries.
	rem := new(uint256.Int).Mod(ratio, oneShiftLeft32)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	ratio.And(ratio, uint160Max)
	return ratio, nil
}

// mulDivBig computes a*b/den over big.Int with the requested rounding.
func mulDivBig(a, b, den *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if roundUp && r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// amount0Delta returns the token-A amount between two sqrt prices for the
// given liquidity: L * 2^96 * (sqrtB - sqrtA) / (sqrtB * sqrtA).
func amount0Delta(sqrtA, sqrtB *uint256.Int, liquidity sdkmath.Int, roundUp bool) sdkmath.Int {
	lo, hi := sqrtA, sqrtB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	num1 := new(big.Int).Lsh(liquidity.BigInt(), 96)
	num2 := new(big.Int).Sub(hi.ToBig(), lo.ToBig())
	den := new(big.Int).Mul(hi.ToBig(), lo.ToBig())
	return sdkmath.NewIntFromBigInt(mulDivBig(num1, num2, den, roundUp))
}

// amount1Delta returns the token-B amount between two sqrt prices for the
// given liquidity: L * (sqrtB - sqrtA) / 2^96.
func amount1Delta(sqrtA, sqrtB *uint256.Int, liquidity sdkmath.Int, roundUp bool) sdkmath.Int {
	lo, hi := sqrtA, sqrtB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	diff := new(big.Int).Sub(hi.ToBig(), lo.ToBig())
	return sdkmath.NewIntFromBigInt(mulDivBig(liquidity.BigInt(), diff, q96b, roundUp))
}

// liquidityForAmount0 returns the liquidity amount0 can back across
// [sqrtA, sqrtB]: amount0 * (sqrtA * sqrtB / 2^96) / (sqrtB - sqrtA).
func liquidityForAmount0(sqrtA, sqrtB *uint256.Int, amount0 sdkmath.Int) sdkmath.Int {
	lo, hi := sqrtA, sqrtB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	intermediate := mulDivBig(lo.ToBig(), hi.ToBig(), q96b, false)
	diff := new(big.Int).Sub(hi.ToBig(), lo.ToBig())
	return sdkmath.NewIntFromBigInt(mulDivBig(amount0.BigInt(), intermediate, diff, false))
}

// liquidityForAmount1 returns the liquidity amount1 can back across
// [sqrtA, sqrtB]: amount1 * 2^96 / (sqrtB - sqrtA).
func liquidityForAmount1(sqrtA, sqrtB *uint256.Int, amount1 sdkmath.Int) sdkmath.Int {
	lo, hi := sqrtA, sqrtB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	diff := new(big.Int).Sub(hi.ToBig(), lo.ToBig())
	return sdkmath.NewIntFromBigInt(mulDivBig(amount1.BigInt(), q96b, diff, false))
}

// liquidityForAmounts returns the maximum liquidity both amounts can back at
// the current price. Below the range only token A backs it, above only token
// B, in range the binding side wins.
func liquidityForAmounts(sqrtP, sqrtA, sqrtB *uint256.Int, amount0, amount1 sdkmath.Int) sdkmath.Int {
	lo, hi := sqrtA, sqrtB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	switch {
	case sqrtP.Cmp(lo) <= 0:
		return liquidityForAmount0(lo, hi, amount0)
	case sqrtP.Cmp(hi) >= 0:
		return liquidityForAmount1(lo, hi, amount1)
	default:
		l0 := liquidityForAmount0(sqrtP, hi, amount0)
		l1 := liquidityForAmount1(lo, sqrtP, amount1)
		if l0.LT(l1) {
			return l0
		}
		return l1
	}
}

// amountsForLiquidity returns the token amounts backing the given liquidity
// at the current price, rounded in the stated direction.
func amountsForLiquidity(sqrtP, sqrtA, sqrtB *uint256.Int, liquidity sdkmath.Int, roundUp bool) (amount0, amount1 sdkmath.Int) {
	lo, hi := sqrtA, sqrtB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	switch {
	case sqrtP.Cmp(lo) <= 0:
		return amount0Delta(lo, hi, liquidity, roundUp), sdkmath.ZeroInt()
	case sqrtP.Cmp(hi) >= 0:
		return sdkmath.ZeroInt(), amount1Delta(lo, hi, liquidity, roundUp)
	default:
		return amount0Delta(sqrtP, hi, liquidity, roundUp), amount1Delta(lo, sqrtP, liquidity, roundUp)
	}
}
