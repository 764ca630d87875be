package fees

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/types"
)

type captureTreasury struct {
	receivedA sdkmath.Int
	receivedB sdkmath.Int
	calls     int
}

func (c *captureTreasury) Receive(amountA, amountB sdk.Coin) error {
	c.receivedA = amountA.Amount
	c.receivedB = amountB.Amount
	c.calls++
	return nil
}

func feeVault(schedule types.FeeSchedule) *types.Vault {
	return &types.Vault{
		ID:          7,
		TokenA:      "uatom",
		TokenB:      "uusdc",
		TotalShares: sdkmath.ZeroInt(),
		MaxShares:   sdkmath.NewInt(1_000_000),
		Fees:        schedule,
		IdleA:       sdkmath.ZeroInt(),
		IdleB:       sdkmath.ZeroInt(),
		PendingFeeA: sdkmath.ZeroInt(),
		PendingFeeB: sdkmath.ZeroInt(),
		AccruedFeeA: sdkmath.ZeroInt(),
		AccruedFeeB: sdkmath.ZeroInt(),
		InitAmountA: sdkmath.NewInt(1),
		InitAmountB: sdkmath.NewInt(1),
		InitShares:  sdkmath.NewInt(1),
	}
}

func TestEntryExitFeesRoundUp(t *testing.T) {
	v := feeVault(types.FeeSchedule{EntryBps: 100, ExitBps: 15})

	entry := EntryFee(v, sdkmath.NewInt(1000), sdkmath.NewInt(2000))
	assert.Equal(t, int64(10), entry.AmountA.Int64())
	assert.Equal(t, int64(20), entry.AmountB.Int64())

	// 15 bps of 1000 = 1.5, charged as 2.
	exit := ExitFee(v, sdkmath.NewInt(1000), sdkmath.NewInt(1000))
	assert.Equal(t, int64(2), exit.AmountA.Int64())
}

func TestAccrueManagementFirstCallOnlyArmsTheClock(t *testing.T) {
	v := feeVault(types.FeeSchedule{ManagementBps: 100})
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	snap, err := AccrueManagement(v, sdkmath.NewInt(1000), sdkmath.NewInt(1000), now)
	require.NoError(t, err)
	assert.True(t, snap.IsZero())
	assert.Equal(t, now, v.LastFeeAccrual)
}

func TestAccrueManagementZeroElapsed(t *testing.T) {
	v := feeVault(types.FeeSchedule{ManagementBps: 100})
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v.LastFeeAccrual = now

	snap, err := AccrueManagement(v, sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000), now)
	require.NoError(t, err)
	assert.True(t, snap.IsZero())
	assert.True(t, v.PendingFeeA.IsZero())
}

func TestAccrueManagementOneYearAt100Bps(t *testing.T) {
	v := feeVault(types.FeeSchedule{ManagementBps: 100})
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v.LastFeeAccrual = start

	balance := sdkmath.NewInt(123_457)
	snap, err := AccrueManagement(v, balance, balance, start.Add(SecondsPerYear*time.Second))
	require.NoError(t, err)

	// ceil(B * 100 / 10000)
	expected := sdkmath.NewInt(1235)
	assert.True(t, snap.AmountA.Equal(expected), "got %s", snap.AmountA)
	assert.True(t, v.PendingFeeA.Equal(expected))
	assert.True(t, v.PendingFeeB.Equal(expected))
}

func TestAccrueManagementClockBackwards(t *testing.T) {
	v := feeVault(types.FeeSchedule{ManagementBps: 100})
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v.LastFeeAccrual = now

	_, err := AccrueManagement(v, sdkmath.NewInt(1), sdkmath.NewInt(1), now.Add(-time.Hour))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestRealizePerformance(t *testing.T) {
	v := feeVault(types.FeeSchedule{PerformanceBps: 1000})

	snap := RealizePerformance(v, sdkmath.NewInt(999), sdkmath.NewInt(0))
	assert.Equal(t, int64(100), snap.AmountA.Int64()) // ceil(999*1000/10000)
	assert.True(t, snap.AmountB.IsZero())
	assert.Equal(t, int64(100), v.PendingFeeA.Int64())
}

func TestCollectMovesPendingThroughAccruedToTreasury(t *testing.T) {
	v := feeVault(types.FeeSchedule{})
	v.PendingFeeA = sdkmath.NewInt(30)
	v.PendingFeeB = sdkmath.NewInt(40)

	b := bank.NewMemory()
	b.Mint(bank.VaultAccount(v.ID), sdk.NewCoin(v.TokenA, sdkmath.NewInt(30)), sdk.NewCoin(v.TokenB, sdkmath.NewInt(40)))
	treasury := &captureTreasury{}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	out, err := Collect(v, b, treasury, now)
	require.NoError(t, err)
	assert.Equal(t, int64(30), out.AmountA.Int64())
	assert.Equal(t, int64(40), out.AmountB.Int64())
	assert.Equal(t, int64(30), treasury.receivedA.Int64())
	assert.True(t, v.PendingFeeA.IsZero())
	assert.True(t, v.AccruedFeeA.IsZero())
	assert.Equal(t, now, v.LastFeeCollected)
	assert.Equal(t, int64(30), b.Balance(bank.TreasuryAccount, v.TokenA).Int64())
}

func TestCollectNothingPendingIsNoOp(t *testing.T) {
	v := feeVault(types.FeeSchedule{})
	b := bank.NewMemory()
	treasury := &captureTreasury{}

	out, err := Collect(v, b, treasury, time.Now())
	require.NoError(t, err)
	assert.True(t, out.IsZero())
	assert.Equal(t, 0, treasury.calls)
	assert.True(t, v.LastFeeCollected.IsZero())
}

func TestCollectFailedPayoutKeepsAccrued(t *testing.T) {
	v := feeVault(types.FeeSchedule{})
	v.PendingFeeA = sdkmath.NewInt(30)
	v.PendingFeeB = sdkmath.NewInt(40)

	// Empty vault account: the transfer must fail and the balances must stay
	// collectable.
	b := bank.NewMemory()
	treasury := &captureTreasury{}

	_, err := Collect(v, b, treasury, time.Now())
	require.Error(t, err)
	assert.Equal(t, int64(30), v.AccruedFeeA.Int64())
	assert.True(t, v.PendingFeeA.IsZero())
	assert.Equal(t, 0, treasury.calls)
}
