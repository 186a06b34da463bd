package core

import (
	sdkmath "cosmossdk.io/math"
)

// LockedAssetsPolicy decides how much of the vault's idle balance is
// reserved and unavailable to deposits, withdrawals and allocation.
type LockedAssetsPolicy interface {
	LockedAssets() sdkmath.Int
}

// NoLockedAssets is the synchronous vault's policy.
type NoLockedAssets struct{}

func (NoLockedAssets) LockedAssets() sdkmath.Int { return sdkmath.ZeroInt() }

// FixedLockedAssets reserves a constant amount, e.g. an operator buffer.
type FixedLockedAssets struct {
	Amount sdkmath.Int
}

func (f FixedLockedAssets) LockedAssets() sdkmath.Int {
	if f.Amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return f.Amount
}

// CombinedLockedAssets sums several policies.
type CombinedLockedAssets []LockedAssetsPolicy

func (c CombinedLockedAssets) LockedAssets() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, p := range c {
		total = total.Add(p.LockedAssets())
	}
	return total
}
