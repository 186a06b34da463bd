package core

import (
	"context"

	"StrategyVault/internal/event"
	vmath "StrategyVault/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// executeWithdraw makes assets available in idle, pulling from strategies
// in deallocation order when idle (net of locked assets) falls short. It
// returns the amount available, which is less than assets only when
// liquidity is insufficient.
//
// Ledger decrements for strategies that paid out are kept even if the
// enclosing call later fails: the funds really moved to idle.
func (v *Vault) executeWithdraw(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	idle := v.availableIdle()
	if idle.GTE(assets) {
		return assets, nil
	}

	available, err := v.simulateWithdraw(ctx, assets)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if available.LT(assets) {
		return available, nil
	}

	remaining := assets.Sub(idle)
	for _, id := range v.allocations.Order() {
		if !v.allocations.IsActive(id) {
			continue
		}
		adapter, ok := v.adapters[id]
		if !ok {
			continue
		}

		limit, err := adapter.MaxWithdraw(ctx)
		if err != nil {
			return sdkmath.Int{}, adapterFailure(id, "max withdraw", err)
		}
		take := sdkmath.MinInt(remaining, limit)
		if !take.IsPositive() {
			continue
		}

		got, err := adapter.OnWithdraw(ctx, take)
		if err != nil {
			return sdkmath.Int{}, adapterFailure(id, "withdraw", err)
		}
		if !vmath.IsValidAmount(got) {
			got = sdkmath.ZeroInt()
		}

		v.recordStrategyWithdrawal(id, got)
		remaining = vmath.SaturatingSub(remaining, got)
		if remaining.IsZero() {
			break
		}
	}

	return assets.Sub(remaining), nil
}

// recordStrategyWithdrawal decrements allocated by what the strategy paid
// out. The change is sticky across rollback.
func (v *Vault) recordStrategyWithdrawal(id uuid.UUID, amount sdkmath.Int) {
	if amount.IsZero() {
		return
	}
	apply := func() {
		current := v.allocations.Get(id).Allocated
		if amount.GT(current) {
			v.logger.Warn().
				Str("strategy", id.String()).
				Str("allocated", current.String()).
				Str("returned", amount.String()).
				Msg("strategy returned more than allocated")
		}
		v.allocations.SetAllocated(id, vmath.SaturatingSub(current, amount))
	}
	v.saveStrategy(id)
	apply()
	v.undo.keep(apply)

	v.emitSticky(&event.FundsAllocated{
		Strategy:  id,
		IsDeposit: false,
		Amount:    amount,
	})
}

// simulateWithdraw mirrors executeWithdraw without adapter side effects,
// using reported withdraw limits. Strategies listed more than once are not
// double counted.
func (v *Vault) simulateWithdraw(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	total := v.availableIdle()
	if total.GTE(assets) {
		return assets, nil
	}

	consumed := make(map[uuid.UUID]sdkmath.Int)
	for _, id := range v.allocations.Order() {
		if !v.allocations.IsActive(id) {
			continue
		}
		adapter, ok := v.adapters[id]
		if !ok {
			continue
		}

		limit, err := adapter.MaxWithdraw(ctx)
		if err != nil {
			return sdkmath.Int{}, adapterFailure(id, "max withdraw", err)
		}
		if used, seen := consumed[id]; seen {
			limit = vmath.SaturatingSub(limit, used)
		} else {
			consumed[id] = sdkmath.ZeroInt()
		}

		take := sdkmath.MinInt(assets.Sub(total), limit)
		if !take.IsPositive() {
			continue
		}
		consumed[id] = consumed[id].Add(take)
		total = total.Add(take)
		if total.GTE(assets) {
			break
		}
	}
	return total, nil
}
