package registry

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangevault/rvm/internal/types"
)

func newRange(vault types.VaultID, lower, upper int32, weight uint64) *types.Range {
	return &types.Range{
		VaultID:   vault,
		Venue:     "clpool",
		PoolID:    "pool-1",
		WeightBps: weight,
		Liquidity: sdkmath.ZeroInt(),
		LowerTick: lower,
		UpperTick: upper,
	}
}

func TestAppendDerivesDeterministicID(t *testing.T) {
	r := New()
	rg := newRange(1, -600, 600, 1000)
	require.NoError(t, r.Append(rg))

	assert.Equal(t, types.NewRangeID(1, "pool-1", -600, 600), rg.ID)

	// Same tuple again collides.
	dup := newRange(1, -600, 600, 1000)
	assert.ErrorIs(t, r.Append(dup), types.ErrInvalidParameter)
}

func TestAppendEnforcesWeightSum(t *testing.T) {
	r := New()
	require.NoError(t, r.Append(newRange(1, -600, 600, 6000)))
	require.NoError(t, r.Append(newRange(1, -1200, 1200, 3000)))

	// 6000 + 3000 + 1000 = 10000 must be rejected.
	err := r.Append(newRange(1, -1800, 1800, 1000))
	assert.ErrorIs(t, err, types.ErrExceeds)
	assert.Len(t, r.VaultRanges(1), 2)

	// Another vault's weights are independent.
	require.NoError(t, r.Append(newRange(2, -600, 600, 9000)))
}

func TestRemoveSwapsWithLast(t *testing.T) {
	r := New()
	a := newRange(1, -600, 600, 1000)
	b := newRange(1, -1200, 1200, 1000)
	c := newRange(1, -1800, 1800, 1000)
	require.NoError(t, r.Append(a))
	require.NoError(t, r.Append(b))
	require.NoError(t, r.Append(c))

	require.NoError(t, r.Remove(a.ID))

	left := r.VaultRanges(1)
	require.Len(t, left, 2)
	ids := map[types.RangeID]bool{left[0].ID: true, left[1].ID: true}
	assert.True(t, ids[b.ID])
	assert.True(t, ids[c.ID])

	_, err := r.Get(a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.ErrorIs(t, r.Remove(a.ID), types.ErrNotFound)
}

func TestSetLiquidity(t *testing.T) {
	r := New()
	rg := newRange(1, -600, 600, 1000)
	require.NoError(t, r.Append(rg))

	require.NoError(t, r.SetLiquidity(rg.ID, sdkmath.NewInt(500)))
	got, err := r.Get(rg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Liquidity.Int64())

	assert.ErrorIs(t, r.SetLiquidity(rg.ID, sdkmath.NewInt(-1)), types.ErrInvalidParameter)
	assert.ErrorIs(t, r.SetLiquidity("missing", sdkmath.NewInt(1)), types.ErrNotFound)
}

func TestSetWeightsAllOrNothing(t *testing.T) {
	r := New()
	a := newRange(1, -600, 600, 4000)
	b := newRange(1, -1200, 1200, 4000)
	require.NoError(t, r.Append(a))
	require.NoError(t, r.Append(b))

	// Reaching exactly 10000 fails and changes nothing.
	err := r.SetWeights(1, map[types.RangeID]uint64{a.ID: 6000})
	assert.ErrorIs(t, err, types.ErrExceeds)
	got, _ := r.Get(a.ID)
	assert.Equal(t, uint64(4000), got.WeightBps)

	require.NoError(t, r.SetWeights(1, map[types.RangeID]uint64{a.ID: 5000, b.ID: 4500}))
	got, _ = r.Get(a.ID)
	assert.Equal(t, uint64(5000), got.WeightBps)
}

func TestTxnCommitReplacesLiveSet(t *testing.T) {
	r := New()
	a := newRange(1, -600, 600, 1000)
	require.NoError(t, r.Append(a))

	txn := r.Begin(1)
	require.NoError(t, txn.Remove(a.ID))
	fresh := newRange(1, -1200, 1200, 2000)
	require.NoError(t, txn.Append(fresh))
	require.NoError(t, txn.SetLiquidity(fresh.ID, sdkmath.NewInt(77)))

	// Live set untouched until commit.
	live := r.VaultRanges(1)
	require.Len(t, live, 1)
	assert.Equal(t, a.ID, live[0].ID)

	require.NoError(t, txn.Commit())

	live = r.VaultRanges(1)
	require.Len(t, live, 1)
	assert.Equal(t, fresh.ID, live[0].ID)
	assert.Equal(t, int64(77), live[0].Liquidity.Int64())

	assert.Error(t, txn.Commit()) // at most once
}

func TestTxnDiscardLeavesRegistryUnchanged(t *testing.T) {
	r := New()
	a := newRange(1, -600, 600, 1000)
	require.NoError(t, r.Append(a))

	txn := r.Begin(1)
	require.NoError(t, txn.Remove(a.ID))
	require.NoError(t, txn.Append(newRange(1, -1200, 1200, 2000)))
	// Dropped without commit.

	live := r.VaultRanges(1)
	require.Len(t, live, 1)
	assert.Equal(t, a.ID, live[0].ID)
}

func TestTxnStagedMutationsDoNotAliasLiveRecords(t *testing.T) {
	r := New()
	a := newRange(1, -600, 600, 1000)
	require.NoError(t, r.Append(a))
	require.NoError(t, r.SetLiquidity(a.ID, sdkmath.NewInt(10)))

	txn := r.Begin(1)
	require.NoError(t, txn.SetLiquidity(a.ID, sdkmath.NewInt(999)))

	live, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), live.Liquidity.Int64())
}
