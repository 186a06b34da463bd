package core

import (
	"context"

	"StrategyVault/internal/access"
	"StrategyVault/internal/event"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Hooks are caller-supplied callbacks around deposits and withdrawals. A
// non-nil error aborts the enclosing call. Hooks run inside the vault's
// guard, so they cannot call back into the vault.
type Hooks interface {
	BeforeDeposit(ctx context.Context, caller, receiver uuid.UUID, assets, shares sdkmath.Int) error
	AfterDeposit(ctx context.Context, caller, receiver uuid.UUID, assets, shares sdkmath.Int) error
	BeforeWithdraw(ctx context.Context, caller, receiver, owner uuid.UUID, assets, shares sdkmath.Int) error
	AfterWithdraw(ctx context.Context, caller, receiver, owner uuid.UUID, assets, shares sdkmath.Int) error
}

// HookConfig enables each hook individually.
type HookConfig struct {
	BeforeDeposit  bool `json:"before_deposit"`
	AfterDeposit   bool `json:"after_deposit"`
	BeforeWithdraw bool `json:"before_withdraw"`
	AfterWithdraw  bool `json:"after_withdraw"`
}

// SetHooks installs hooks and their toggles. A nil hooks value disables all.
func (v *Vault) SetHooks(ctx context.Context, caller uuid.UUID, hooks Hooks, cfg HookConfig) error {
	return v.call("set_hooks", func() error {
		if err := v.authorize(access.RoleHookManager, caller); err != nil {
			return err
		}
		if hooks == nil {
			cfg = HookConfig{}
		}
		v.saveHooks()
		v.hooks = hooks
		v.hookConfig = cfg

		v.emit(&event.HooksUpdated{
			BeforeDeposit:  cfg.BeforeDeposit,
			AfterDeposit:   cfg.AfterDeposit,
			BeforeWithdraw: cfg.BeforeWithdraw,
			AfterWithdraw:  cfg.AfterWithdraw,
		})
		return nil
	})
}

// GetHookConfig returns the current hook toggles.
func (v *Vault) GetHookConfig() HookConfig { return v.hookConfig }

func (v *Vault) beforeDeposit(ctx context.Context, caller, receiver uuid.UUID, assets, shares sdkmath.Int) error {
	if v.hooks == nil || !v.hookConfig.BeforeDeposit {
		return nil
	}
	if err := v.hooks.BeforeDeposit(ctx, caller, receiver, assets, shares); err != nil {
		return errorsmod.Wrapf(ErrHookRejected, "before deposit: %v", err)
	}
	return nil
}

func (v *Vault) afterDeposit(ctx context.Context, caller, receiver uuid.UUID, assets, shares sdkmath.Int) error {
	if v.hooks == nil || !v.hookConfig.AfterDeposit {
		return nil
	}
	if err := v.hooks.AfterDeposit(ctx, caller, receiver, assets, shares); err != nil {
		return errorsmod.Wrapf(ErrHookRejected, "after deposit: %v", err)
	}
	return nil
}

func (v *Vault) beforeWithdraw(ctx context.Context, caller, receiver, owner uuid.UUID, assets, shares sdkmath.Int) error {
	if v.hooks == nil || !v.hookConfig.BeforeWithdraw {
		return nil
	}
	if err := v.hooks.BeforeWithdraw(ctx, caller, receiver, owner, assets, shares); err != nil {
		return errorsmod.Wrapf(ErrHookRejected, "before withdraw: %v", err)
	}
	return nil
}

func (v *Vault) afterWithdraw(ctx context.Context, caller, receiver, owner uuid.UUID, assets, shares sdkmath.Int) error {
	if v.hooks == nil || !v.hookConfig.AfterWithdraw {
		return nil
	}
	if err := v.hooks.AfterWithdraw(ctx, caller, receiver, owner, assets, shares); err != nil {
		return errorsmod.Wrapf(ErrHookRejected, "after withdraw: %v", err)
	}
	return nil
}
