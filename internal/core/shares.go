package core

import (
	"context"

	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

func (v *Vault) toShares(assets, totalAssets, totalSupply sdkmath.Int, rounding vmath.RoundingMode) (sdkmath.Int, error) {
	return vmath.ToShares(assets, totalAssets, totalSupply, v.offset, rounding)
}

func (v *Vault) toAssets(shares, totalAssets, totalSupply sdkmath.Int, rounding vmath.RoundingMode) (sdkmath.Int, error) {
	return vmath.ToAssets(shares, totalAssets, totalSupply, v.offset, rounding)
}

// shareUnit is one whole share in base units (10^decimals).
func (v *Vault) shareUnit() sdkmath.Int {
	return vmath.Pow10(v.Decimals())
}

func requirePositive(op string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrapf(ErrInvalidAmount, "%s amount %v", op, amount)
	}
	return nil
}

func (v *Vault) checkDepositBounds(caller uuid.UUID, assets sdkmath.Int) error {
	if assets.LT(v.limits.MinDeposit) || assets.GT(v.limits.MaxDeposit) {
		return errorsmod.Wrapf(ErrAssetAmountOutOfBounds,
			"deposit caller %s amount %s min %s max %s", caller, assets, v.limits.MinDeposit, v.limits.MaxDeposit)
	}
	return nil
}

func (v *Vault) checkWithdrawBounds(caller uuid.UUID, assets sdkmath.Int) error {
	if assets.LT(v.limits.MinWithdraw) || assets.GT(v.limits.MaxWithdraw) {
		return errorsmod.Wrapf(ErrAssetAmountOutOfBounds,
			"withdraw caller %s amount %s min %s max %s", caller, assets, v.limits.MinWithdraw, v.limits.MaxWithdraw)
	}
	return nil
}

// ============================================================================
// Deposit / Mint
// ============================================================================

// Deposit pulls assets from caller and mints shares to receiver. Shares
// round down.
func (v *Vault) Deposit(ctx context.Context, caller uuid.UUID, assets sdkmath.Int, receiver uuid.UUID) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := v.call("deposit", func() error {
		if err := requirePositive("deposit", assets); err != nil {
			return err
		}
		if _, err := v.accrue(ctx); err != nil {
			return err
		}
		var err error
		shares, err = v.toShares(assets, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
		if err != nil {
			return err
		}
		return v.deposit(ctx, caller, receiver, assets, shares)
	})
	return shares, err
}

// Mint mints exactly shares to receiver, pulling the assets they cost.
// Assets round up.
func (v *Vault) Mint(ctx context.Context, caller uuid.UUID, shares sdkmath.Int, receiver uuid.UUID) (sdkmath.Int, error) {
	var assets sdkmath.Int
	err := v.call("mint", func() error {
		if err := requirePositive("mint", shares); err != nil {
			return err
		}
		if _, err := v.accrue(ctx); err != nil {
			return err
		}
		var err error
		assets, err = v.toAssets(shares, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundUp)
		if err != nil {
			return err
		}
		return v.deposit(ctx, caller, receiver, assets, shares)
	})
	return assets, err
}

func (v *Vault) deposit(ctx context.Context, caller, receiver uuid.UUID, assets, shares sdkmath.Int) error {
	if err := v.beforeDeposit(ctx, caller, receiver, assets, shares); err != nil {
		return err
	}
	if ledger.IsNull(receiver) {
		return errorsmod.Wrapf(ErrInvalidReceiver, "deposit caller %s", caller)
	}
	if err := v.checkDepositBounds(caller, assets); err != nil {
		return err
	}
	if !shares.IsPositive() {
		return errorsmod.Wrapf(ErrZeroShares, "deposit caller %s amount %s", caller, assets)
	}

	newTotal, err := vmath.CheckedAdd(v.cachedTotalAssets, assets)
	if err != nil {
		return err
	}

	if err := v.asset.TransferFrom(v.id, caller, v.id, assets); err != nil {
		return transferFailure("deposit", err)
	}
	v.undo.push(func() {
		if err := v.asset.Transfer(v.id, caller, assets); err != nil {
			v.logger.Error().Err(err).Str("caller", caller.String()).Msg("refund of rolled back deposit failed")
		}
	})

	v.setCachedTotalAssets(newTotal)
	if err := v.mintShares(receiver, shares); err != nil {
		return err
	}

	if err := v.afterDeposit(ctx, caller, receiver, assets, shares); err != nil {
		return err
	}

	v.emit(&event.Deposit{
		Caller:   caller,
		Receiver: receiver,
		Assets:   assets,
		Shares:   shares,
	})
	return nil
}

// ============================================================================
// Withdraw / Redeem
// ============================================================================

// Withdraw burns the shares worth assets from owner and sends assets to
// receiver. Shares round up. With the queue active the shares are queued
// instead and assets are paid on claim.
func (v *Vault) Withdraw(ctx context.Context, caller uuid.UUID, assets sdkmath.Int, receiver, owner uuid.UUID) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := v.call("withdraw", func() error {
		if err := requirePositive("withdraw", assets); err != nil {
			return err
		}
		if _, err := v.accrue(ctx); err != nil {
			return err
		}

		balance := v.shares.BalanceOf(owner)
		maxAssets, err := v.toAssets(balance, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
		if err != nil {
			return err
		}
		if assets.GT(maxAssets) {
			return errorsmod.Wrapf(ErrExceededMaxWithdraw, "owner %s requested %s max %s", owner, assets, maxAssets)
		}

		shares, err = v.toShares(assets, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundUp)
		if err != nil {
			return err
		}
		return v.withdraw(ctx, caller, receiver, owner, assets, shares, ErrExceededMaxWithdraw)
	})
	return shares, err
}

// Redeem burns exactly shares from owner and sends what they are worth to
// receiver. Assets round down.
func (v *Vault) Redeem(ctx context.Context, caller uuid.UUID, shares sdkmath.Int, receiver, owner uuid.UUID) (sdkmath.Int, error) {
	var assets sdkmath.Int
	err := v.call("redeem", func() error {
		if err := requirePositive("redeem", shares); err != nil {
			return err
		}
		if _, err := v.accrue(ctx); err != nil {
			return err
		}

		balance := v.shares.BalanceOf(owner)
		if shares.GT(balance) {
			return errorsmod.Wrapf(ErrExceededMaxRedeem, "owner %s requested %s max %s", owner, shares, balance)
		}

		var err error
		assets, err = v.toAssets(shares, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
		if err != nil {
			return err
		}
		return v.withdraw(ctx, caller, receiver, owner, assets, shares, ErrExceededMaxRedeem)
	})
	return assets, err
}

func (v *Vault) withdraw(ctx context.Context, caller, receiver, owner uuid.UUID, assets, shares sdkmath.Int, maxErr *errorsmod.Error) error {
	if err := v.beforeWithdraw(ctx, caller, receiver, owner, assets, shares); err != nil {
		return err
	}
	if ledger.IsNull(receiver) {
		return errorsmod.Wrapf(ErrInvalidReceiver, "withdraw caller %s owner %s", caller, owner)
	}
	if caller != owner {
		if err := v.spendShareAllowance(owner, caller, shares); err != nil {
			return err
		}
	}

	if v.QueueActive() {
		if err := v.checkWithdrawBounds(caller, assets); err != nil {
			return err
		}
		if err := v.requestWithdrawal(caller, owner, receiver, shares, assets); err != nil {
			return err
		}
		return v.afterWithdraw(ctx, caller, receiver, owner, assets, shares)
	}

	fulfilled, err := v.executeWithdraw(ctx, assets)
	if err != nil {
		return err
	}
	if fulfilled.LT(assets) {
		if maxErr == ErrExceededMaxRedeem {
			maxShares, err := v.toShares(fulfilled, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
			if err != nil {
				return err
			}
			return errorsmod.Wrapf(maxErr, "owner %s requested %s max %s", owner, shares, maxShares)
		}
		return errorsmod.Wrapf(maxErr, "owner %s requested %s max %s", owner, assets, fulfilled)
	}

	if err := v.checkWithdrawBounds(caller, assets); err != nil {
		return err
	}

	// Burn before transfer: a reentrant asset sees consistent state
	if err := v.burnShares(owner, shares); err != nil {
		return err
	}
	v.setCachedTotalAssets(vmath.SaturatingSub(v.cachedTotalAssets, assets))

	if err := v.afterWithdraw(ctx, caller, receiver, owner, assets, shares); err != nil {
		return err
	}

	if err := v.asset.Transfer(v.id, receiver, assets); err != nil {
		return transferFailure("withdraw", err)
	}

	v.emit(&event.Withdraw{
		Caller:   caller,
		Receiver: receiver,
		Owner:    owner,
		Assets:   assets,
		Shares:   shares,
	})
	return nil
}

// ============================================================================
// Share token surface
// ============================================================================

// Transfer moves shares from caller to to.
func (v *Vault) Transfer(ctx context.Context, caller, to uuid.UUID, shares sdkmath.Int) error {
	return v.call("transfer", func() error {
		return v.transferShares(caller, to, shares)
	})
}

// TransferFrom moves shares from owner to to, spending caller's allowance.
func (v *Vault) TransferFrom(ctx context.Context, caller, owner, to uuid.UUID, shares sdkmath.Int) error {
	return v.call("transfer_from", func() error {
		if caller != owner {
			if err := v.spendShareAllowance(owner, caller, shares); err != nil {
				return err
			}
		}
		return v.transferShares(owner, to, shares)
	})
}

func (v *Vault) transferShares(from, to uuid.UUID, shares sdkmath.Int) error {
	if !vmath.IsValidAmount(shares) {
		return errorsmod.Wrapf(ErrInvalidAmount, "transfer amount %v", shares)
	}
	if ledger.IsNull(to) {
		return errorsmod.Wrapf(ErrInvalidReceiver, "transfer from %s", from)
	}
	if err := v.moveShares(from, to, shares); err != nil {
		return err
	}
	v.emit(&event.SharesTransferred{From: from, To: to, Shares: shares})
	return nil
}

// Approve sets spender's allowance over caller's shares.
func (v *Vault) Approve(ctx context.Context, caller, spender uuid.UUID, shares sdkmath.Int) error {
	return v.call("approve", func() error {
		if !vmath.IsValidAmount(shares) {
			return errorsmod.Wrapf(ErrInvalidAmount, "approve amount %v", shares)
		}
		if ledger.IsNull(spender) {
			return errorsmod.Wrapf(ErrInvalidReceiver, "approve from %s", caller)
		}
		v.setShareAllowance(caller, spender, shares)
		v.emit(&event.SharesApproved{Owner: caller, Spender: spender, Shares: shares})
		return nil
	})
}
