package core

import (
	"context"
	"errors"

	vmath "StrategyVault/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Views below query strategy adapters, so they run under the guard and fail
// with ErrReentrantCall if invoked from a callback.

// TotalAssets returns yield-adjusted total assets (fees excluded).
func (v *Vault) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	res, err := v.PreviewAccrueYieldAndFees(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return res.TotalAssets, nil
}

// ConvertToShares is the fee-exclusive conversion rate: yield-adjusted
// assets against the current (pre-fee) supply.
func (v *Vault) ConvertToShares(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	return v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toShares(assets, res.TotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
	})
}

// ConvertToAssets is the inverse of ConvertToShares.
func (v *Vault) ConvertToAssets(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	return v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toAssets(shares, res.TotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
	})
}

// PreviewDeposit returns the shares Deposit would mint now, fees included.
func (v *Vault) PreviewDeposit(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	return v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toShares(assets, res.TotalAssets, res.TotalSupply, vmath.RoundDown)
	})
}

// PreviewMint returns the assets Mint would pull now.
func (v *Vault) PreviewMint(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	return v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toAssets(shares, res.TotalAssets, res.TotalSupply, vmath.RoundUp)
	})
}

// PreviewWithdraw returns the shares Withdraw would burn now.
func (v *Vault) PreviewWithdraw(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	return v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toShares(assets, res.TotalAssets, res.TotalSupply, vmath.RoundUp)
	})
}

// PreviewRedeem returns the assets Redeem would pay now.
func (v *Vault) PreviewRedeem(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	return v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toAssets(shares, res.TotalAssets, res.TotalSupply, vmath.RoundDown)
	})
}

// MaxDeposit returns the largest deposit accepted for receiver.
func (v *Vault) MaxDeposit(receiver uuid.UUID) sdkmath.Int {
	return v.limits.MaxDeposit
}

// MaxMint returns the largest mint accepted for receiver. A deposit cap
// worth more shares than fit in 256 bits reports MaxUint256.
func (v *Vault) MaxMint(ctx context.Context, receiver uuid.UUID) (sdkmath.Int, error) {
	if v.limits.MaxDeposit.Equal(vmath.MaxUint256) {
		return vmath.MaxUint256, nil
	}
	out, err := v.previewWith(ctx, func(res AccrualResult) (sdkmath.Int, error) {
		return v.toShares(v.limits.MaxDeposit, res.TotalAssets, res.TotalSupply, vmath.RoundDown)
	})
	if errors.Is(err, vmath.ErrAmountOverflow) {
		return vmath.MaxUint256, nil
	}
	return out, err
}

// MaxWithdraw returns the assets owner can withdraw now. Synchronously that
// is bounded by idle plus strategy liquidity; with the queue active only by
// the owner's balance.
func (v *Vault) MaxWithdraw(ctx context.Context, owner uuid.UUID) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.read(func() error {
		res, err := v.computeAccrual(ctx, v.now)
		if err != nil {
			return err
		}
		out, err = v.maxWithdraw(ctx, owner, res)
		return err
	})
	return out, err
}

// MaxRedeem returns the shares owner can redeem now.
func (v *Vault) MaxRedeem(ctx context.Context, owner uuid.UUID) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.read(func() error {
		res, err := v.computeAccrual(ctx, v.now)
		if err != nil {
			return err
		}
		balance := v.shares.BalanceOf(owner)
		if v.QueueActive() {
			out = balance
			return nil
		}

		ownerAssets, err := v.toAssets(balance, res.TotalAssets, res.TotalSupply, vmath.RoundDown)
		if err != nil {
			return err
		}
		maxAssets, err := v.maxWithdraw(ctx, owner, res)
		if err != nil {
			return err
		}
		if maxAssets.GTE(ownerAssets) {
			out = balance
			return nil
		}
		out, err = v.toShares(maxAssets, res.TotalAssets, res.TotalSupply, vmath.RoundDown)
		return err
	})
	return out, err
}

func (v *Vault) maxWithdraw(ctx context.Context, owner uuid.UUID, res AccrualResult) (sdkmath.Int, error) {
	ownerAssets, err := v.toAssets(v.shares.BalanceOf(owner), res.TotalAssets, res.TotalSupply, vmath.RoundDown)
	if err != nil {
		return sdkmath.Int{}, err
	}
	capped := sdkmath.MinInt(ownerAssets, v.limits.MaxWithdraw)
	if v.QueueActive() {
		return capped, nil
	}
	return v.simulateWithdraw(ctx, capped)
}

func (v *Vault) previewWith(ctx context.Context, fn func(res AccrualResult) (sdkmath.Int, error)) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.read(func() error {
		res, err := v.computeAccrual(ctx, v.now)
		if err != nil {
			return err
		}
		out, err = fn(res)
		return err
	})
	return out, err
}
