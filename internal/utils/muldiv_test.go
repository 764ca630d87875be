package utils

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivRoundingDirections(t *testing.T) {
	a := sdkmath.NewInt(7)
	b := sdkmath.NewInt(3)
	den := sdkmath.NewInt(2)

	down, err := MulDivDown(a, b, den)
	require.NoError(t, err)
	assert.Equal(t, int64(10), down.Int64()) // floor(21/2)

	up, err := MulDivUp(a, b, den)
	require.NoError(t, err)
	assert.Equal(t, int64(11), up.Int64()) // ceil(21/2)
}

func TestMulDivExactDivisionAgrees(t *testing.T) {
	a := sdkmath.NewInt(10)
	b := sdkmath.NewInt(4)
	den := sdkmath.NewInt(5)

	down, err := MulDivDown(a, b, den)
	require.NoError(t, err)
	up, err := MulDivUp(a, b, den)
	require.NoError(t, err)
	assert.True(t, down.Equal(up))
	assert.Equal(t, int64(8), down.Int64())
}

func TestMulDivLargeOperands(t *testing.T) {
	// 2^200 * 3 / 2 must not overflow an int64 intermediate.
	huge := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))
	out, err := MulDivDown(huge, sdkmath.NewInt(3), sdkmath.NewInt(2))
	require.NoError(t, err)
	expected := huge.Quo(sdkmath.NewInt(2)).Mul(sdkmath.NewInt(3))
	assert.True(t, out.Equal(expected))
}

func TestMulDivDivisionByZero(t *testing.T) {
	_, err := MulDivDown(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDivUp(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivNegativeInput(t *testing.T) {
	_, err := MulDivDown(sdkmath.NewInt(-1), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrNegativeInput)

	_, err = MulDivUp(sdkmath.NewInt(1), sdkmath.NewInt(-1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrNegativeInput)
}

func TestBpsHelpers(t *testing.T) {
	amount := sdkmath.NewInt(1000)

	// 100 bps of 1000 divides exactly.
	assert.Equal(t, int64(10), BpsDown(amount, 100).Int64())
	assert.Equal(t, int64(10), BpsUp(amount, 100).Int64())

	// 15 bps of 1000 = 1.5: down floors, up ceils.
	assert.Equal(t, int64(1), BpsDown(amount, 15).Int64())
	assert.Equal(t, int64(2), BpsUp(amount, 15).Int64())

	// Zero rate and zero amount short-circuit.
	assert.True(t, BpsUp(amount, 0).IsZero())
	assert.True(t, BpsUp(sdkmath.ZeroInt(), 100).IsZero())
}

func TestMinInt(t *testing.T) {
	assert.Equal(t, int64(3), MinInt(sdkmath.NewInt(3), sdkmath.NewInt(5)).Int64())
	assert.Equal(t, int64(3), MinInt(sdkmath.NewInt(5), sdkmath.NewInt(3)).Int64())
	assert.Equal(t, int64(3), MinInt(sdkmath.NewInt(3), sdkmath.NewInt(3)).Int64())
}
