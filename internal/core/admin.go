package core

import (
	"context"

	"StrategyVault/internal/access"
	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// SetManagementFee updates the management fee. Fees owed under the old
// configuration are accrued first.
func (v *Vault) SetManagementFee(ctx context.Context, caller uuid.UUID, rate uint16, recipient uuid.UUID) error {
	return v.call("set_management_fee", func() error {
		if err := v.authorize(access.RoleFeeManager, caller); err != nil {
			return err
		}
		if err := validateFee(event.FeeKindManagement, rate, recipient); err != nil {
			return err
		}
		if _, err := v.accrue(ctx); err != nil {
			return err
		}

		v.saveFees()
		v.fees.ManagementFeeRate = rate
		v.fees.ManagementFeeRecipient = recipient

		v.emit(&event.FeeConfigUpdated{Kind: event.FeeKindManagement, RateBps: rate, Recipient: recipient})
		return nil
	})
}

// SetPerformanceFee updates the performance fee. Yield already reported is
// charged at the old rate first.
func (v *Vault) SetPerformanceFee(ctx context.Context, caller uuid.UUID, rate uint16, recipient uuid.UUID) error {
	return v.call("set_performance_fee", func() error {
		if err := v.authorize(access.RoleFeeManager, caller); err != nil {
			return err
		}
		if err := validateFee(event.FeeKindPerformance, rate, recipient); err != nil {
			return err
		}
		if _, err := v.accrue(ctx); err != nil {
			return err
		}

		v.saveFees()
		v.fees.PerformanceFeeRate = rate
		v.fees.PerformanceFeeRecipient = recipient

		v.emit(&event.FeeConfigUpdated{Kind: event.FeeKindPerformance, RateBps: rate, Recipient: recipient})
		return nil
	})
}

func validateFee(kind string, rate uint16, recipient uuid.UUID) error {
	if rate > vmath.BasisPoints {
		return errorsmod.Wrapf(ErrInvalidFeeRate, "%s fee %d bps exceeds %d", kind, rate, vmath.BasisPoints)
	}
	if rate > 0 && ledger.IsNull(recipient) {
		return errorsmod.Wrapf(ErrInvalidFeeRecipient, "%s fee %d bps has no recipient", kind, rate)
	}
	return nil
}

// SetDepositLimits bounds accepted deposit asset amounts (inclusive).
func (v *Vault) SetDepositLimits(ctx context.Context, caller uuid.UUID, minAmount, maxAmount sdkmath.Int) error {
	return v.call("set_deposit_limits", func() error {
		if err := v.authorize(access.RoleLimitManager, caller); err != nil {
			return err
		}
		if err := validateLimits(event.LimitKindDeposit, minAmount, maxAmount); err != nil {
			return err
		}
		v.saveLimits()
		v.limits.MinDeposit = minAmount
		v.limits.MaxDeposit = maxAmount
		v.emit(&event.LimitsUpdated{Kind: event.LimitKindDeposit, Min: minAmount, Max: maxAmount})
		return nil
	})
}

// SetWithdrawLimits bounds accepted withdraw asset amounts (inclusive).
func (v *Vault) SetWithdrawLimits(ctx context.Context, caller uuid.UUID, minAmount, maxAmount sdkmath.Int) error {
	return v.call("set_withdraw_limits", func() error {
		if err := v.authorize(access.RoleLimitManager, caller); err != nil {
			return err
		}
		if err := validateLimits(event.LimitKindWithdraw, minAmount, maxAmount); err != nil {
			return err
		}
		v.saveLimits()
		v.limits.MinWithdraw = minAmount
		v.limits.MaxWithdraw = maxAmount
		v.emit(&event.LimitsUpdated{Kind: event.LimitKindWithdraw, Min: minAmount, Max: maxAmount})
		return nil
	})
}

func validateLimits(kind string, minAmount, maxAmount sdkmath.Int) error {
	if !vmath.IsValidAmount(minAmount) || !vmath.IsValidAmount(maxAmount) {
		return errorsmod.Wrapf(ErrInvalidLimits, "%s limits must be non-negative", kind)
	}
	if maxAmount.GT(vmath.MaxUint256) {
		return errorsmod.Wrapf(ErrInvalidLimits, "%s max %s exceeds uint256", kind, maxAmount)
	}
	if minAmount.GT(maxAmount) {
		return errorsmod.Wrapf(ErrInvalidLimits, "%s min %s above max %s", kind, minAmount, maxAmount)
	}
	return nil
}

// GetFeeConfig returns the current fee configuration.
func (v *Vault) GetFeeConfig() FeeConfig { return v.fees }

// GetLimits returns the deposit/withdraw bounds.
func (v *Vault) GetLimits() Limits { return v.limits }
