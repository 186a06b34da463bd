package math

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// ManagementFeeAmount computes the time-proportional fee on assets under
// management:
//
//	annualFee = totalAssets * rateBps / 10000
//	fee       = annualFee * elapsedSeconds / SecondsPerYear
//
// Both divisions floor. The result is clamped to totalAssets, so a long idle
// period cannot overflow.
func ManagementFeeAmount(totalAssets sdkmath.Int, rateBps uint16, elapsedSeconds int64) sdkmath.Int {
	if rateBps == 0 || elapsedSeconds <= 0 || !totalAssets.IsPositive() {
		return sdkmath.ZeroInt()
	}

	fee := new(big.Int).Mul(totalAssets.BigInt(), big.NewInt(int64(rateBps)))
	fee.Quo(fee, big.NewInt(BasisPoints))
	fee.Mul(fee, big.NewInt(elapsedSeconds))
	fee.Quo(fee, big.NewInt(SecondsPerYear))

	if fee.Cmp(totalAssets.BigInt()) >= 0 {
		return totalAssets
	}
	return sdkmath.NewIntFromBigInt(fee)
}

// PerformanceFeeAmount computes the fee on net positive yield. Returns zero
// when loss >= yield.
func PerformanceFeeAmount(yield, loss sdkmath.Int, rateBps uint16) (sdkmath.Int, error) {
	if rateBps == 0 || loss.GTE(yield) {
		return sdkmath.ZeroInt(), nil
	}
	return BpsOf(yield.Sub(loss), rateBps)
}

// ToShares converts assets to shares with virtual offsets:
//
//	shares = assets * (totalSupply + 10^offset) / (totalAssets + 1)
func ToShares(assets, totalAssets, totalSupply sdkmath.Int, offset uint8, rounding RoundingMode) (sdkmath.Int, error) {
	return mulDiv(assets.BigInt(), virtualSupply(totalSupply, offset), virtualAssets(totalAssets), rounding)
}

// ToAssets is the inverse of ToShares:
//
//	assets = shares * (totalAssets + 1) / (totalSupply + 10^offset)
func ToAssets(shares, totalAssets, totalSupply sdkmath.Int, offset uint8, rounding RoundingMode) (sdkmath.Int, error) {
	return mulDiv(shares.BigInt(), virtualAssets(totalAssets), virtualSupply(totalSupply, offset), rounding)
}

// The virtual terms are formed at full width: a supply or asset total at
// the 256-bit ceiling must still convert.
func virtualSupply(totalSupply sdkmath.Int, offset uint8) *big.Int {
	return new(big.Int).Add(totalSupply.BigInt(), Pow10(offset).BigInt())
}

func virtualAssets(totalAssets sdkmath.Int) *big.Int {
	return new(big.Int).Add(totalAssets.BigInt(), big.NewInt(1))
}

// FeeShares prices feeAmount in shares as if the fee had already left the
// vault, so existing holders are not diluted by the fee itself:
//
//	shares = fee * (totalSupply + 10^offset) / (totalAssets - fee + 1)
func FeeShares(feeAmount, totalAssets, totalSupply sdkmath.Int, offset uint8) (sdkmath.Int, error) {
	if !feeAmount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	return ToShares(feeAmount, SaturatingSub(totalAssets, feeAmount), totalSupply, offset, RoundDown)
}
