package planner

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/config"
	"github.com/rangevault/rvm/internal/registry"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/venue"
	"github.com/rangevault/rvm/internal/venue/clpool"
)

func newPlanner(t *testing.T, initialTick int32) (*Planner, *registry.Registry, *clpool.Pool) {
	t.Helper()
	pairOf := func(types.VaultID) (string, string, error) {
		return "uatom", "uusdc", nil
	}
	cv := clpool.New("clpool", bank.NewMemory(), pairOf)
	p, err := cv.CreatePool("pool-1", "uatom", "uusdc", 60, initialTick, nil)
	require.NoError(t, err)

	venues := venue.NewRegistry()
	require.NoError(t, venues.Register("clpool", cv))
	ranges := registry.New()
	return New(venues, ranges, "clpool", "pool-1"), ranges, p
}

func plannerVault(idleA int64) *types.Vault {
	return &types.Vault{
		ID:    1,
		IdleA: sdkmath.NewInt(idleA),
		IdleB: sdkmath.NewInt(idleA),
	}
}

func TestBuildPlanNothingToDo(t *testing.T) {
	p, _, _ := newPlanner(t, 0)

	plan, err := p.BuildPlan(plannerVault(0))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestBuildPlanInitialPlacement(t *testing.T) {
	p, _, _ := newPlanner(t, 90)

	plan, err := p.BuildPlan(plannerVault(1_000_000))
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Opens, 1)
	assert.Empty(t, plan.Closes)

	ins := plan.Opens[0]
	assert.Equal(t, config.DefaultRangeWeightBps, ins.WeightBps)
	assert.Equal(t, config.DefaultRangeWidthTicks, ins.UpperTick-ins.LowerTick)
	// Bounds are spacing-aligned and straddle the current tick.
	assert.Zero(t, ins.LowerTick%60)
	assert.True(t, ins.LowerTick <= 90 && 90 < ins.UpperTick)
}

func TestBuildPlanLeavesInRangePositions(t *testing.T) {
	p, ranges, _ := newPlanner(t, 0)
	require.NoError(t, ranges.Append(&types.Range{
		VaultID:   1,
		Venue:     "clpool",
		PoolID:    "pool-1",
		WeightBps: 9000,
		Liquidity: sdkmath.NewInt(100),
		LowerTick: -600,
		UpperTick: 600,
	}))

	plan, err := p.BuildPlan(plannerVault(500))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestBuildPlanRecentersEscapedRange(t *testing.T) {
	p, ranges, pool := newPlanner(t, 0)
	rg := &types.Range{
		VaultID:   1,
		Venue:     "clpool",
		PoolID:    "pool-1",
		WeightBps: 9000,
		Liquidity: sdkmath.NewInt(100),
		LowerTick: -600,
		UpperTick: 600,
	}
	require.NoError(t, ranges.Append(rg))
	require.NoError(t, pool.SetTick(900))

	plan, err := p.BuildPlan(plannerVault(0))
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Closes, 1)
	require.Len(t, plan.Opens, 1)
	assert.Equal(t, rg.ID, plan.Closes[0].RangeID)

	ins := plan.Opens[0]
	// Width and weight carry over from the closed range.
	assert.Equal(t, int32(1200), ins.UpperTick-ins.LowerTick)
	assert.Equal(t, uint64(9000), ins.WeightBps)
	assert.True(t, ins.LowerTick <= 900 && 900 < ins.UpperTick)
}

func TestBuildPlanIgnoresForeignPools(t *testing.T) {
	p, ranges, _ := newPlanner(t, 0)
	require.NoError(t, ranges.Append(&types.Range{
		VaultID:   1,
		Venue:     "clpool",
		PoolID:    "pool-other",
		WeightBps: 9000,
		Liquidity: sdkmath.NewInt(100),
		LowerTick: 6000, // far from the managed pool's tick
		UpperTick: 6600,
	}))

	plan, err := p.BuildPlan(plannerVault(0))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestCenteredBounds(t *testing.T) {
	lower, upper := centeredBounds(0, 1200, 60)
	assert.Equal(t, int32(-600), lower)
	assert.Equal(t, int32(600), upper)

	// Width rounds up to a whole number of spacings.
	lower, upper = centeredBounds(0, 100, 60)
	assert.Equal(t, int32(120), upper-lower)

	// Off-grid center still yields aligned bounds containing the tick.
	lower, upper = centeredBounds(-857, 600, 60)
	assert.Zero(t, lower%60)
	assert.Zero(t, upper%60)
	assert.True(t, lower <= -857 && -857 < upper)
}

func TestAlignDown(t *testing.T) {
	assert.Equal(t, int32(120), alignDown(150, 60))
	assert.Equal(t, int32(120), alignDown(120, 60))
	assert.Equal(t, int32(-180), alignDown(-150, 60))
	assert.Equal(t, int32(-120), alignDown(-120, 60))
	assert.Equal(t, int32(0), alignDown(30, 60))
}