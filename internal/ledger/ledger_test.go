package ledger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangevault/rvm/internal/types"
)

func testVault(fees types.FeeSchedule) *types.Vault {
	return &types.Vault{
		ID:          1,
		TokenA:      "uatom",
		TokenB:      "uusdc",
		TotalShares: sdkmath.ZeroInt(),
		MaxShares:   sdkmath.NewInt(1_000_000_000),
		Fees:        fees,
		IdleA:       sdkmath.ZeroInt(),
		IdleB:       sdkmath.ZeroInt(),
		PendingFeeA: sdkmath.ZeroInt(),
		PendingFeeB: sdkmath.ZeroInt(),
		AccruedFeeA: sdkmath.ZeroInt(),
		AccruedFeeB: sdkmath.ZeroInt(),
		InitAmountA: sdkmath.NewInt(1000),
		InitAmountB: sdkmath.NewInt(2000),
		InitShares:  sdkmath.NewInt(1000),
	}
}

func TestPreviewDepositInitialSeeding(t *testing.T) {
	v := testVault(types.FeeSchedule{})

	amountA, amountB, fee, err := PreviewDeposit(v, sdkmath.NewInt(500), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, int64(500), amountA.Int64())
	assert.Equal(t, int64(1000), amountB.Int64())
	assert.True(t, fee.IsZero())
}

func TestPreviewDepositProportionalRoundsUp(t *testing.T) {
	v := testVault(types.FeeSchedule{})
	v.TotalShares = sdkmath.NewInt(3)

	// balance 10 over 3 shares: 1 new share needs ceil(10/3) = 4.
	amountA, amountB, _, err := PreviewDeposit(v, sdkmath.NewInt(1), sdkmath.NewInt(10), sdkmath.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(4), amountA.Int64())
	assert.Equal(t, int64(4), amountB.Int64())
}

func TestPreviewDepositEntryFeeOnTop(t *testing.T) {
	v := testVault(types.FeeSchedule{EntryBps: 100})
	v.TotalShares = sdkmath.NewInt(1000)

	amountA, _, fee, err := PreviewDeposit(v, sdkmath.NewInt(1000), sdkmath.NewInt(1000), sdkmath.NewInt(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(10), fee.AmountA.Int64())   // ceil(1000*100/10000)
	assert.Equal(t, int64(1010), amountA.Int64())     // fee charged on top
}

func TestAdjustedMintEntryFee(t *testing.T) {
	v := testVault(types.FeeSchedule{EntryBps: 100})
	assert.Equal(t, int64(990), AdjustedMint(v, sdkmath.NewInt(1000)).Int64())

	v.Fees.EntryBps = 0
	assert.Equal(t, int64(1000), AdjustedMint(v, sdkmath.NewInt(1000)).Int64())
}

func TestPreviewDepositRejectsZero(t *testing.T) {
	v := testVault(types.FeeSchedule{})
	_, _, _, err := PreviewDeposit(v, sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrZeroValue)
}

func TestPreviewWithdrawProportionalRoundsDown(t *testing.T) {
	v := testVault(types.FeeSchedule{})
	v.TotalShares = sdkmath.NewInt(3)

	amountA, amountB, fee, err := PreviewWithdraw(v, sdkmath.NewInt(1), sdkmath.NewInt(10), sdkmath.NewInt(20))
	require.NoError(t, err)
	assert.Equal(t, int64(3), amountA.Int64()) // floor(10/3)
	assert.Equal(t, int64(6), amountB.Int64()) // floor(20/3)
	assert.True(t, fee.IsZero())
}

func TestPreviewWithdrawExitFeeSubtracted(t *testing.T) {
	v := testVault(types.FeeSchedule{ExitBps: 100})
	v.TotalShares = sdkmath.NewInt(1000)

	amountA, _, fee, err := PreviewWithdraw(v, sdkmath.NewInt(1000), sdkmath.NewInt(1000), sdkmath.NewInt(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(10), fee.AmountA.Int64())
	assert.Equal(t, int64(990), amountA.Int64())
}

func TestPreviewWithdrawRejectsBadBurns(t *testing.T) {
	v := testVault(types.FeeSchedule{})

	_, _, _, err := PreviewWithdraw(v, sdkmath.NewInt(1), sdkmath.NewInt(10), sdkmath.NewInt(10))
	assert.ErrorIs(t, err, types.ErrZeroValue) // no supply

	v.TotalShares = sdkmath.NewInt(5)
	_, _, _, err = PreviewWithdraw(v, sdkmath.NewInt(6), sdkmath.NewInt(10), sdkmath.NewInt(10))
	assert.ErrorIs(t, err, types.ErrExceeds)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	// Round trip on an otherwise-untouched vault: the depositor gets back at
	// least the deposit minus configured fees and rounding.
	v := testVault(types.FeeSchedule{EntryBps: 50, ExitBps: 50})

	mint := sdkmath.NewInt(700)
	amountA, amountB, entryFee, err := PreviewDeposit(v, mint, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)

	minted := AdjustedMint(v, mint)
	require.NoError(t, Mint(v, minted))

	// Principal held by the vault excludes the entry fee.
	balA := amountA.Sub(entryFee.AmountA)
	balB := amountB.Sub(entryFee.AmountB)

	outA, outB, exitFee, err := PreviewWithdraw(v, minted, balA, balB)
	require.NoError(t, err)

	assert.True(t, outA.LTE(amountA))
	assert.True(t, outB.LTE(amountB))
	// No value extraction beyond the two fees plus one unit of rounding each.
	minA := amountA.Sub(entryFee.AmountA).Sub(exitFee.AmountA).SubRaw(1)
	minB := amountB.Sub(entryFee.AmountB).Sub(exitFee.AmountB).SubRaw(1)
	assert.True(t, outA.GTE(minA), "outA %s below %s", outA, minA)
	assert.True(t, outB.GTE(minB), "outB %s below %s", outB, minB)
}

func TestMintEnforcesMaxSupply(t *testing.T) {
	v := testVault(types.FeeSchedule{})
	v.MaxShares = sdkmath.NewInt(100)

	require.NoError(t, Mint(v, sdkmath.NewInt(100)))
	err := Mint(v, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrExceeds)
	assert.Equal(t, int64(100), v.TotalShares.Int64())
}

func TestBurnBounds(t *testing.T) {
	v := testVault(types.FeeSchedule{})
	require.NoError(t, Mint(v, sdkmath.NewInt(10)))

	assert.ErrorIs(t, Burn(v, sdkmath.NewInt(11)), types.ErrExceeds)
	require.NoError(t, Burn(v, sdkmath.NewInt(10)))
	assert.True(t, v.TotalShares.IsZero())
}

func TestAmountToSharesCoversRequestedAmount(t *testing.T) {
	v := testVault(types.FeeSchedule{ExitBps: 100})
	v.TotalShares = sdkmath.NewInt(1000)
	balA := sdkmath.NewInt(10_000)

	want := sdkmath.NewInt(500)
	shares, err := AmountToShares(v, want, balA)
	require.NoError(t, err)

	netA, _, _, err := PreviewWithdraw(v, shares, balA, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, netA.GTE(want), "net %s below requested %s", netA, want)
}

func TestAmountToSharesNoFeeIsExact(t *testing.T) {
	v := testVault(types.FeeSchedule{})
	v.TotalShares = sdkmath.NewInt(1000)
	balA := sdkmath.NewInt(10_000)

	shares, err := AmountToShares(v, sdkmath.NewInt(100), balA)
	require.NoError(t, err)
	assert.Equal(t, int64(10), shares.Int64())
}
