package core

import (
	"context"

	"StrategyVault/internal/access"
	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"
	"StrategyVault/internal/strategy"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// AddStrategy registers adapter as an Active strategy with zero allocation.
func (v *Vault) AddStrategy(ctx context.Context, caller uuid.UUID, adapter strategy.Adapter) error {
	return v.call("add_strategy", func() error {
		if err := v.authorize(access.RoleStrategyManager, caller); err != nil {
			return err
		}
		if adapter == nil {
			return errorsmod.Wrap(ErrUnknownAdapter, "nil adapter")
		}

		id := adapter.ID()
		if adapter.Asset() != v.asset.Denom() {
			return errorsmod.Wrapf(ErrInvalidStrategyAsset,
				"strategy %s asset %s vault asset %s", id, adapter.Asset(), v.asset.Denom())
		}

		v.saveStrategy(id)
		if err := v.allocations.Add(id); err != nil {
			return err
		}
		v.saveAdapter(id)
		v.adapters[id] = adapter

		v.emit(&event.StrategyAdded{Strategy: id, StrategyType: adapter.StrategyType().String()})
		return nil
	})
}

// RemoveStrategy deletes a strategy. A Halted strategy may be removed with
// allocation outstanding: the allocation leaves the ledger but stays counted
// in cachedTotalAssets, pending an external rescue that returns the funds
// to idle. Accrual never revisits a removed strategy.
func (v *Vault) RemoveStrategy(ctx context.Context, caller, id uuid.UUID) error {
	return v.call("remove_strategy", func() error {
		if err := v.authorize(access.RoleStrategyManager, caller); err != nil {
			return err
		}

		writtenOff := v.allocations.Get(id).Allocated
		v.saveStrategy(id)
		if err := v.allocations.Remove(id); err != nil {
			return err
		}
		v.saveAdapter(id)
		delete(v.adapters, id)

		if writtenOff.IsPositive() {
			v.logger.Warn().
				Str("strategy", id.String()).
				Str("written_off", writtenOff.String()).
				Msg("removed halted strategy with allocation")
		}
		v.emit(&event.StrategyRemoved{Strategy: id, WrittenOff: writtenOff})
		return nil
	})
}

// ToggleStrategyStatus flips a registered strategy between Active and
// Halted.
func (v *Vault) ToggleStrategyStatus(ctx context.Context, caller, id uuid.UUID) (ledger.StrategyStatus, error) {
	var status ledger.StrategyStatus
	err := v.call("toggle_strategy_status", func() error {
		if err := v.authorize(access.RoleStrategyManager, caller); err != nil {
			return err
		}
		v.saveStrategy(id)
		var err error
		status, err = v.allocations.Toggle(id)
		if err != nil {
			return err
		}
		v.emit(&event.StrategyStatusToggled{Strategy: id, Status: status.String()})
		return nil
	})
	return status, err
}

// SetDeallocationOrder replaces the withdrawal-time drain order.
func (v *Vault) SetDeallocationOrder(ctx context.Context, caller uuid.UUID, order []uuid.UUID) error {
	return v.call("set_deallocation_order", func() error {
		if err := v.authorize(access.RoleStrategyManager, caller); err != nil {
			return err
		}
		v.saveOrder()
		if err := v.allocations.SetOrder(order); err != nil {
			return err
		}
		v.emit(&event.DeallocationOrderSet{Order: v.allocations.Order()})
		return nil
	})
}

// AllocateFunds executes an allocation batch. Instructions for strategies
// that are not Active are skipped. The batch is atomic: if any instruction
// fails, ledger changes are rolled back and completed adapter calls are
// reversed with the same payload.
func (v *Vault) AllocateFunds(ctx context.Context, caller uuid.UUID, batch []strategy.Instruction) error {
	return v.call("allocate_funds", func() error {
		if err := v.authorize(access.RoleAllocator, caller); err != nil {
			return err
		}
		// Reconcile first so yield pulled back by a deallocation is
		// already in cachedTotalAssets.
		if _, err := v.accrue(ctx); err != nil {
			return err
		}

		for i, instr := range batch {
			if !v.allocations.IsActive(instr.Strategy) {
				v.logger.Debug().
					Int("index", i).
					Str("strategy", instr.Strategy.String()).
					Msg("skipping instruction for inactive strategy")
				continue
			}
			adapter, ok := v.adapters[instr.Strategy]
			if !ok {
				return errorsmod.Wrapf(ErrUnknownAdapter, "strategy %s", instr.Strategy)
			}

			var err error
			if instr.IsDeposit {
				err = v.allocateTo(ctx, adapter, instr.ExtraData)
			} else {
				err = v.deallocateFrom(ctx, adapter, instr.ExtraData)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (v *Vault) allocateTo(ctx context.Context, adapter strategy.Adapter, data []byte) error {
	id := adapter.ID()
	amount, err := v.withStrategyAllowance(id, func() (sdkmath.Int, error) {
		return adapter.AllocateFunds(ctx, data)
	})
	if err != nil {
		return adapterFailure(id, "allocate", err)
	}
	if !vmath.IsValidAmount(amount) {
		return errorsmod.Wrapf(ErrAdapterFailure, "strategy %s allocated invalid amount", id)
	}

	v.undo.push(func() {
		if _, err := adapter.DeallocateFunds(ctx, data); err != nil {
			v.logger.Error().Err(err).Str("strategy", id.String()).Msg("compensating deallocation failed")
		}
	})

	v.saveStrategy(id)
	v.allocations.SetAllocated(id, v.allocations.Get(id).Allocated.Add(amount))

	v.emit(&event.FundsAllocated{
		Strategy:  id,
		IsDeposit: true,
		Amount:    amount,
		ExtraData: data,
	})
	return nil
}

func (v *Vault) deallocateFrom(ctx context.Context, adapter strategy.Adapter, data []byte) error {
	id := adapter.ID()
	amount, err := adapter.DeallocateFunds(ctx, data)
	if err != nil {
		return adapterFailure(id, "deallocate", err)
	}
	if !vmath.IsValidAmount(amount) {
		return errorsmod.Wrapf(ErrAdapterFailure, "strategy %s deallocated invalid amount", id)
	}

	v.undo.push(func() {
		if _, err := v.withStrategyAllowance(id, func() (sdkmath.Int, error) {
			return adapter.AllocateFunds(ctx, data)
		}); err != nil {
			v.logger.Error().Err(err).Str("strategy", id.String()).Msg("compensating allocation failed")
		}
	})

	current := v.allocations.Get(id).Allocated
	if amount.GT(current) {
		v.logger.Warn().
			Str("strategy", id.String()).
			Str("allocated", current.String()).
			Str("returned", amount.String()).
			Msg("strategy returned more than allocated")
	}
	v.saveStrategy(id)
	v.allocations.SetAllocated(id, vmath.SaturatingSub(current, amount))

	v.emit(&event.FundsAllocated{
		Strategy:  id,
		IsDeposit: false,
		Amount:    amount,
		ExtraData: data,
	})
	return nil
}

// withStrategyAllowance grants strategy an allowance over available idle
// funds for the duration of fn only.
func (v *Vault) withStrategyAllowance(id uuid.UUID, fn func() (sdkmath.Int, error)) (sdkmath.Int, error) {
	if err := v.asset.Approve(v.id, id, v.availableIdle()); err != nil {
		return sdkmath.Int{}, transferFailure("approve strategy", err)
	}
	amount, err := fn()
	if resetErr := v.asset.Approve(v.id, id, sdkmath.ZeroInt()); resetErr != nil {
		v.logger.Error().Err(resetErr).Str("strategy", id.String()).Msg("allowance reset failed")
	}
	return amount, err
}

// --- queries ---

// GetStrategyData returns the ledger record for id (Inactive/zero if
// unknown).
func (v *Vault) GetStrategyData(id uuid.UUID) ledger.StrategyData {
	return v.allocations.Get(id)
}

// GetStrategies returns every registered strategy.
func (v *Vault) GetStrategies() []uuid.UUID {
	return v.allocations.Strategies()
}

// GetDeallocationOrder returns the withdrawal-time drain order.
func (v *Vault) GetDeallocationOrder() []uuid.UUID {
	return v.allocations.Order()
}

// Adapter returns the adapter bound to id.
func (v *Vault) Adapter(id uuid.UUID) (strategy.Adapter, bool) {
	adapter, ok := v.adapters[id]
	return adapter, ok
}
