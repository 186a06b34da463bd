package math_test

import (
	"testing"

	vmath "StrategyVault/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mulDiv(t *testing.T, x, y, d sdkmath.Int, rounding vmath.RoundingMode) sdkmath.Int {
	t.Helper()
	out, err := vmath.MulDiv(x, y, d, rounding)
	require.NoError(t, err)
	return out
}

func TestMulDiv_Rounding(t *testing.T) {
	x := sdkmath.NewInt(10)
	y := sdkmath.NewInt(10)
	d := sdkmath.NewInt(3)

	assert.Equal(t, "33", mulDiv(t, x, y, d, vmath.RoundDown).String())
	assert.Equal(t, "34", mulDiv(t, x, y, d, vmath.RoundUp).String())

	// Exact division does not round up
	assert.Equal(t, "50", mulDiv(t, x, y, sdkmath.NewInt(2), vmath.RoundUp).String())
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// MaxUint256 * MaxUint256 overflows 256 bits; dividing it back must not fail.
	got := mulDiv(t, vmath.MaxUint256, vmath.MaxUint256, vmath.MaxUint256, vmath.RoundDown)
	assert.True(t, got.Equal(vmath.MaxUint256))
}

func TestMulDiv_QuotientOverflow(t *testing.T) {
	_, err := vmath.MulDiv(vmath.MaxUint256, sdkmath.NewInt(11), sdkmath.NewInt(10), vmath.RoundDown)
	require.ErrorIs(t, err, vmath.ErrAmountOverflow)
}

func TestCheckedAdd(t *testing.T) {
	sum, err := vmath.CheckedAdd(sdkmath.NewInt(2), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "5", sum.String())

	_, err = vmath.CheckedAdd(vmath.MaxUint256, sdkmath.OneInt())
	assert.ErrorIs(t, err, vmath.ErrAmountOverflow)
}

func TestMulDiv_PoolReuseDoesNotAlias(t *testing.T) {
	a := mulDiv(t, sdkmath.NewInt(7), sdkmath.NewInt(3), sdkmath.NewInt(1), vmath.RoundDown)
	b := mulDiv(t, sdkmath.NewInt(5), sdkmath.NewInt(5), sdkmath.NewInt(1), vmath.RoundDown)
	assert.Equal(t, "21", a.String())
	assert.Equal(t, "25", b.String())
}

func TestSaturateUint120(t *testing.T) {
	over := vmath.MaxUint120.AddRaw(5)
	assert.True(t, vmath.SaturateUint120(over).Equal(vmath.MaxUint120))
	assert.True(t, vmath.SaturateUint120(sdkmath.NewInt(-1)).IsZero())
	assert.Equal(t, "42", vmath.SaturateUint120(sdkmath.NewInt(42)).String())
}

func TestSaturatingSub(t *testing.T) {
	assert.True(t, vmath.SaturatingSub(sdkmath.NewInt(3), sdkmath.NewInt(5)).IsZero())
	assert.Equal(t, "2", vmath.SaturatingSub(sdkmath.NewInt(5), sdkmath.NewInt(3)).String())
}

func TestManagementFeeAmount(t *testing.T) {
	total := sdkmath.NewInt(1_000_000_000)

	// 2% for a full year
	fee := vmath.ManagementFeeAmount(total, 200, vmath.SecondsPerYear)
	assert.Equal(t, "20000000", fee.String())

	// Half a year
	fee = vmath.ManagementFeeAmount(total, 200, vmath.SecondsPerYear/2)
	assert.Equal(t, "10000000", fee.String())

	// No time elapsed
	assert.True(t, vmath.ManagementFeeAmount(total, 200, 0).IsZero())

	// Zero rate
	assert.True(t, vmath.ManagementFeeAmount(total, 0, vmath.SecondsPerYear).IsZero())

	// Clamped to total assets after a very long idle period
	fee = vmath.ManagementFeeAmount(total, 10_000, 10*vmath.SecondsPerYear)
	assert.True(t, fee.Equal(total))
}

func TestManagementFeeAmount_HugeElapsedClampsWithoutOverflow(t *testing.T) {
	fee := vmath.ManagementFeeAmount(vmath.MaxUint256, 10_000, 1<<62)
	assert.True(t, fee.Equal(vmath.MaxUint256))
}

func TestPerformanceFeeAmount(t *testing.T) {
	perf := func(yield, loss sdkmath.Int, bps uint16) sdkmath.Int {
		t.Helper()
		fee, err := vmath.PerformanceFeeAmount(yield, loss, bps)
		require.NoError(t, err)
		return fee
	}

	assert.Equal(t, "10000000", perf(sdkmath.NewInt(100_000_000), sdkmath.ZeroInt(), 1000).String())

	// Net of loss
	assert.Equal(t, "30", perf(sdkmath.NewInt(100), sdkmath.NewInt(40), 5000).String())

	// Loss >= yield
	assert.True(t, perf(sdkmath.NewInt(10), sdkmath.NewInt(10), 5000).IsZero())
}

func TestFeeShares_AntiDilution(t *testing.T) {
	total := sdkmath.NewInt(1_000_000_000)
	supply := sdkmath.NewInt(1_000_000_000)
	fee := sdkmath.NewInt(20_000_000)

	shares, err := vmath.FeeShares(fee, total, supply, 0)
	require.NoError(t, err)
	require.Equal(t, "20408163", shares.String())

	// Value of the fee shares after mint is the fee amount within one unit
	value, err := vmath.ToAssets(shares, total, supply.Add(shares), 0, vmath.RoundDown)
	require.NoError(t, err)
	assert.InDelta(t, fee.Int64(), value.Int64(), 1)
}

func TestToSharesToAssets_VirtualOffset(t *testing.T) {
	// Empty vault mints 1:1 with offset 0
	shares, err := vmath.ToShares(sdkmath.NewInt(1000), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0, vmath.RoundDown)
	require.NoError(t, err)
	assert.Equal(t, "1000", shares.String())

	// Offset 3 mints 1000 shares per asset unit on an empty vault
	shares, err = vmath.ToShares(sdkmath.NewInt(1000), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 3, vmath.RoundDown)
	require.NoError(t, err)
	assert.Equal(t, "1000000", shares.String())

	assets, err := vmath.ToAssets(sdkmath.NewInt(1000), sdkmath.NewInt(1000), sdkmath.NewInt(1000), 0, vmath.RoundUp)
	require.NoError(t, err)
	assert.Equal(t, "1000", assets.String())
}

func TestToSharesToAssets_AtTheCeiling(t *testing.T) {
	// Totals at MaxUint256 still convert; the virtual terms are not Ints
	assets, err := vmath.ToAssets(sdkmath.NewInt(10), vmath.MaxUint256, vmath.MaxUint256, 0, vmath.RoundDown)
	require.NoError(t, err)
	assert.Equal(t, "10", assets.String())

	// Redeeming every share of a vault priced above one overflows
	_, err = vmath.ToAssets(vmath.MaxUint256, sdkmath.NewInt(1100), sdkmath.NewInt(1000), 0, vmath.RoundUp)
	assert.ErrorIs(t, err, vmath.ErrAmountOverflow)
}
