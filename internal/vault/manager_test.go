package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/rebalance"
	"github.com/rangevault/rvm/internal/registry"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/venue"
	"github.com/rangevault/rvm/internal/venue/clpool"
)

const operator = "op"

type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// captureStore records persisted vault snapshots so tests can compare the
// stored record against in-memory state.
type captureStore struct {
	vaults map[types.VaultID]types.Vault
}

func newCaptureStore() *captureStore {
	return &captureStore{vaults: make(map[types.VaultID]types.Vault)}
}

func (s *captureStore) SaveVault(v *types.Vault) error {
	s.vaults[v.ID] = *v
	return nil
}

func (s *captureStore) SaveRanges(types.VaultID, []*types.Range) error { return nil }

func (s *captureStore) SaveReceipt(*types.RebalanceReceipt) error { return nil }

func (s *captureStore) SaveShareBalance(types.VaultID, string, sdkmath.Int) error { return nil }

type fixture struct {
	bank   *bank.Memory
	venue  *clpool.Venue
	pool   *clpool.Pool
	ranges *registry.Registry
	roles  *StaticRoles
	pause  *PauseSwitch
	clock  *testClock
	store  *captureStore
	mgr    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bank:   bank.NewMemory(),
		ranges: registry.New(),
		pause:  NewPauseSwitch(),
		clock:  newTestClock(),
		store:  newCaptureStore(),
	}
	f.roles = NewStaticRoles(map[string][]string{
		RoleManager:  {operator},
		RoleKeeper:   {operator},
		RoleTreasury: {operator},
	})

	pairOf := func(types.VaultID) (string, string, error) {
		return "uatom", "uusdc", nil
	}
	f.venue = clpool.New("clpool", f.bank, pairOf)
	p, err := f.venue.CreatePool("pool-1", "uatom", "uusdc", 60, 0, f.clock.now)
	require.NoError(t, err)
	f.pool = p

	venues := venue.NewRegistry()
	require.NoError(t, venues.Register("clpool", f.venue))

	engine := rebalance.New(venues, f.ranges, f.bank, nil)
	f.mgr, err = NewManager(Options{
		Bank:     f.bank,
		Venues:   venues,
		Ranges:   f.ranges,
		Engine:   engine,
		Access:   f.roles,
		Pause:    f.pause,
		Treasury: LoggingTreasury{},
		Store:    f.store,
		Now:      f.clock.now,
	})
	require.NoError(t, err)
	return f
}

func baseVault(id types.VaultID) *types.Vault {
	return &types.Vault{
		ID:          id,
		TokenA:      "uatom",
		TokenB:      "uusdc",
		MaxShares:   sdkmath.NewInt(1_000_000_000),
		InitAmountA: sdkmath.NewInt(1000),
		InitAmountB: sdkmath.NewInt(1000),
		InitShares:  sdkmath.NewInt(1000),
	}
}

func (f *fixture) createVault(t *testing.T, mutate func(*types.Vault)) types.VaultID {
	t.Helper()
	v := baseVault(1)
	if mutate != nil {
		mutate(v)
	}
	require.NoError(t, f.mgr.CreateVault(operator, v))
	return v.ID
}

func (f *fixture) fund(account string, amountA, amountB int64) {
	f.bank.Mint(account,
		sdk.NewCoin("uatom", sdkmath.NewInt(amountA)),
		sdk.NewCoin("uusdc", sdkmath.NewInt(amountB)),
	)
}

func openPlan(id types.VaultID, lower, upper int32, weight uint64) *types.RebalancePlan {
	return &types.RebalancePlan{
		VaultID: id,
		Opens: []types.OpenInstruction{{
			Venue:     "clpool",
			PoolID:    "pool-1",
			LowerTick: lower,
			UpperTick: upper,
			WeightBps: weight,
		}},
	}
}

func TestCreateVaultRequiresManagerRole(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.CreateVault("mallory", baseVault(1))
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestCreateVaultValidatesRecord(t *testing.T) {
	f := newFixture(t)
	v := baseVault(1)
	v.TokenA, v.TokenB = "uusdc", "uatom" // not canonically ordered
	assert.ErrorIs(t, f.mgr.CreateVault(operator, v), types.ErrInvalidParameter)

	id := f.createVault(t, nil)
	dup := baseVault(id)
	assert.ErrorIs(t, f.mgr.CreateVault(operator, dup), types.ErrInvalidParameter)
}

func TestDepositMintsSharesAndPullsFunds(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)

	res, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.SharesMinted.Int64())
	assert.Equal(t, int64(1000), res.AmountA.Int64())
	assert.Equal(t, int64(1000), res.AmountB.Int64())

	assert.Equal(t, int64(1000), f.mgr.ShareBalance(id, "alice").Int64())
	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.IdleA.Int64())
	assert.Equal(t, int64(1000), f.bank.Balance(bank.VaultAccount(id), "uatom").Int64())
	assert.Equal(t, int64(9000), f.bank.Balance("alice", "uatom").Int64())
}

func TestDepositEntryFeeBookkeeping(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) {
		v.Fees = types.FeeSchedule{EntryBps: 100}
	})
	f.fund("alice", 10_000, 10_000)

	res, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	// The fee is charged on top of the principal and the share mint is reduced.
	assert.Equal(t, int64(1010), res.AmountA.Int64())
	assert.Equal(t, int64(10), res.Fee.AmountA.Int64())
	assert.Equal(t, int64(990), res.SharesMinted.Int64())

	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.IdleA.Int64())
	assert.Equal(t, int64(10), v.PendingFeeA.Int64())
	// Account balance covers idle plus the fee balances.
	assert.Equal(t, int64(1010), f.bank.Balance(bank.VaultAccount(id), "uatom").Int64())
}

func TestDepositInsufficientFundsRollsBackShares(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)

	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.Error(t, err)

	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.True(t, v.TotalShares.IsZero())
	assert.True(t, f.mgr.ShareBalance(id, "alice").IsZero())
}

func TestDepositPausedVault(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)
	f.pause.SetPaused(id, true)

	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(100), "alice")
	assert.ErrorIs(t, err, types.ErrVaultPaused)

	f.pause.SetPaused(id, false)
	_, err = f.mgr.Deposit("alice", id, sdkmath.NewInt(100), "alice")
	assert.NoError(t, err)
}

func TestDepositMintRestricted(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) { v.MintRestricted = true })
	f.fund("alice", 10_000, 10_000)
	f.fund(operator, 10_000, 10_000)

	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(100), "alice")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.mgr.Deposit(operator, id, sdkmath.NewInt(100), "alice")
	assert.NoError(t, err)
}

func TestDepositMaxSupplyCap(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) { v.MaxShares = sdkmath.NewInt(500) })
	f.fund("alice", 10_000, 10_000)

	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(501), "alice")
	assert.ErrorIs(t, err, types.ErrExceeds)

	_, err = f.mgr.Deposit("alice", id, sdkmath.NewInt(500), "alice")
	assert.NoError(t, err)
}

func TestWithdrawPaysProportional(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	res, err := f.mgr.Withdraw("alice", id, sdkmath.NewInt(500), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.PaidA.Int64())
	assert.Equal(t, int64(500), res.PaidB.Int64())
	assert.True(t, res.PaidA.Equal(res.PreviewedA))

	assert.Equal(t, int64(500), f.mgr.ShareBalance(id, "alice").Int64())
	assert.Equal(t, int64(9500), f.bank.Balance("alice", "uatom").Int64())
}

func TestWithdrawRejectsOverBurn(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	_, err = f.mgr.Withdraw("alice", id, sdkmath.NewInt(1001), "alice")
	assert.ErrorIs(t, err, types.ErrExceeds)

	_, err = f.mgr.Withdraw("alice", id, sdkmath.ZeroInt(), "alice")
	assert.ErrorIs(t, err, types.ErrZeroValue)
}

func TestWithdrawDrainsDeployedLiquidity(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	_, err = f.mgr.Rebalance(operator, openPlan(id, -600, 600, 9000))
	require.NoError(t, err)
	require.Len(t, f.ranges.VaultRanges(id), 1)

	res, err := f.mgr.Withdraw("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	// Full exit: everything deployed comes back modulo mint/burn rounding.
	assert.True(t, res.PaidA.GTE(sdkmath.NewInt(995)), "paidA %s", res.PaidA)
	assert.True(t, res.PaidA.LTE(sdkmath.NewInt(1000)))
	assert.True(t, f.mgr.ShareBalance(id, "alice").IsZero())

	live := f.ranges.VaultRanges(id)
	require.Len(t, live, 1)
	assert.True(t, live[0].Liquidity.IsZero())

	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.True(t, v.TotalShares.IsZero())
}

func TestRebalanceRequiresKeeperRole(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)

	_, err := f.mgr.Rebalance("mallory", openPlan(id, -600, 600, 5000))
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestRebalancePausedVault(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.pause.SetPaused(id, true)

	_, err := f.mgr.Rebalance(operator, openPlan(id, -600, 600, 5000))
	assert.ErrorIs(t, err, types.ErrVaultPaused)
}

func TestRebalanceDeploysIdle(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	res, err := f.mgr.Rebalance(operator, openPlan(id, -600, 600, 9000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RangesOpened)

	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.True(t, v.IdleA.LT(sdkmath.NewInt(1000)))

	// Valuation still covers the whole deposit within rounding.
	balA, balB, err := f.mgr.TotalBalances(id)
	require.NoError(t, err)
	assert.True(t, balA.GTE(sdkmath.NewInt(997)), "balA %s", balA)
	assert.True(t, balB.GTE(sdkmath.NewInt(997)), "balB %s", balB)
}

func TestRebalancePerformanceFeeOnRealizedLPFees(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) {
		v.Fees = types.FeeSchedule{PerformanceBps: 1000}
	})
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	_, err = f.mgr.Rebalance(operator, openPlan(id, -600, 600, 9000))
	require.NoError(t, err)
	oldID := f.ranges.VaultRanges(id)[0].ID

	require.NoError(t, f.venue.FundFees("pool-1", -600, 600, sdkmath.NewInt(100), sdkmath.NewInt(200)))

	plan := openPlan(id, -1200, 1200, 9000)
	plan.Closes = []types.CloseInstruction{{RangeID: oldID}}
	res, err := f.mgr.Rebalance(operator, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.LPFeesA.Int64())

	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.PendingFeeA.Int64()) // ceil(100*1000/10000)
	assert.Equal(t, int64(20), v.PendingFeeB.Int64())
	assert.False(t, v.IdleA.IsNegative())
}

func TestRebalancePriceGuard(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) {
		v.TwapLookbackSec = 600
		v.MaxDeviationBps = 50
	})
	f.fund("alice", 10_000, 10_000)
	f.clock.advance(600 * time.Second)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	// Spot and mean agree: opens pass.
	_, err = f.mgr.Rebalance(operator, openPlan(id, -600, 600, 5000))
	require.NoError(t, err)
	rangeID := f.ranges.VaultRanges(id)[0].ID

	// Move the price hard with no time for the mean to follow.
	f.clock.advance(600 * time.Second)
	require.NoError(t, f.venue.SetTick("pool-1", 1000))

	_, err = f.mgr.Rebalance(operator, openPlan(id, -1200, 1200, 500))
	assert.ErrorIs(t, err, types.ErrStalePrice)

	// Closing under a manipulated price stays allowed.
	_, err = f.mgr.Rebalance(operator, &types.RebalancePlan{
		VaultID: id,
		Closes:  []types.CloseInstruction{{RangeID: rangeID}},
	})
	assert.NoError(t, err)
}

func TestCollectFeesFlowsToTreasury(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) {
		v.Fees = types.FeeSchedule{EntryBps: 100}
	})
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	_, err = f.mgr.CollectFees("mallory", id)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	out, err := f.mgr.CollectFees(operator, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.AmountA.Int64())
	assert.Equal(t, int64(10), f.bank.Balance(bank.TreasuryAccount, "uatom").Int64())

	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.True(t, v.PendingFeeA.IsZero())
	assert.True(t, v.AccruedFeeA.IsZero())
}

func TestCollectFeesPersistsFoldOnPayoutFailure(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, func(v *types.Vault) {
		v.Fees = types.FeeSchedule{EntryBps: 100}
	})
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)

	// Empty the vault account so the payout transfer cannot be covered.
	require.NoError(t, f.bank.Transfer(bank.VaultAccount(id), "sink", sdk.NewCoins(
		sdk.NewCoin("uatom", f.bank.Balance(bank.VaultAccount(id), "uatom")),
		sdk.NewCoin("uusdc", f.bank.Balance(bank.VaultAccount(id), "uusdc")),
	)))

	_, err = f.mgr.CollectFees(operator, id)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)

	// The pending-to-accrued fold happened in memory; the stored record
	// must reflect it too.
	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.AccruedFeeA.Int64())
	assert.True(t, v.PendingFeeA.IsZero())

	saved := f.store.vaults[id]
	assert.True(t, saved.AccruedFeeA.Equal(v.AccruedFeeA))
	assert.True(t, saved.PendingFeeA.Equal(v.PendingFeeA))
	assert.True(t, saved.AccruedFeeB.Equal(v.AccruedFeeB))
}

func TestVaultStaysOperationalAfterAbortedPlan(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 100_000, 100_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(10_000), "alice")
	require.NoError(t, err)
	_, err = f.mgr.Rebalance(operator, openPlan(id, -600, 600, 5000))
	require.NoError(t, err)
	rangeID := f.ranges.VaultRanges(id)[0].ID

	// The close burns the venue position before the open fails on an
	// unknown venue tag; the plan aborts mid-flight.
	plan := openPlan(id, -1200, 1200, 5000)
	plan.Opens[0].Venue = "no-such-venue"
	plan.Closes = []types.CloseInstruction{{RangeID: rangeID}}
	_, err = f.mgr.Rebalance(operator, plan)
	require.ErrorIs(t, err, types.ErrNotFound)

	// No range record may survive pointing at the burned position.
	assert.Empty(t, f.ranges.VaultRanges(id))

	// Valuation and deposits keep working on the reconciled state.
	balA, _, err := f.mgr.TotalBalances(id)
	require.NoError(t, err)
	assert.True(t, balA.IsPositive())
	_, err = f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	assert.NoError(t, err)
}

func TestSetFeeSchedule(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)

	err := f.mgr.SetFeeSchedule("mallory", id, types.FeeSchedule{EntryBps: 10})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	err = f.mgr.SetFeeSchedule(operator, id, types.FeeSchedule{EntryBps: 5001})
	assert.ErrorIs(t, err, types.ErrExceeds)

	require.NoError(t, f.mgr.SetFeeSchedule(operator, id, types.FeeSchedule{EntryBps: 25}))
	v, err := f.mgr.Vault(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), v.Fees.EntryBps)
}

func TestSetRangeWeights(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)
	_, err := f.mgr.Deposit("alice", id, sdkmath.NewInt(1000), "alice")
	require.NoError(t, err)
	_, err = f.mgr.Rebalance(operator, openPlan(id, -600, 600, 5000))
	require.NoError(t, err)
	rangeID := f.ranges.VaultRanges(id)[0].ID

	err = f.mgr.SetRangeWeights("mallory", id, map[types.RangeID]uint64{rangeID: 4000})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, f.mgr.SetRangeWeights(operator, id, map[types.RangeID]uint64{rangeID: 4000}))
	rgs, err := f.mgr.Ranges(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), rgs[0].WeightBps)
}

func TestMutatingCallsRejectReentry(t *testing.T) {
	f := newFixture(t)
	id := f.createVault(t, nil)
	f.fund("alice", 10_000, 10_000)

	e, err := f.mgr.entry(id)
	require.NoError(t, err)
	e.busy.Store(true)

	_, err = f.mgr.Deposit("alice", id, sdkmath.NewInt(100), "alice")
	assert.ErrorIs(t, err, types.ErrReentrantCall)

	e.busy.Store(false)
	_, err = f.mgr.Deposit("alice", id, sdkmath.NewInt(100), "alice")
	assert.NoError(t, err)
}

func TestUnknownVault(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Deposit("alice", 42, sdkmath.NewInt(1), "alice")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, _, err = f.mgr.TotalBalances(42)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.True(t, f.mgr.ShareBalance(42, "alice").IsZero())
}
