package core

import (
	vmath "StrategyVault/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// undoLog records inverse operations for every mutation made during a call,
// so a failed call leaves no partial state behind. sticky holds effects that
// mirror money which really moved (strategy withdrawals during fulfillment);
// they are re-applied after a rollback.
type undoLog struct {
	entries []func()
	sticky  []func()
}

func (u *undoLog) push(fn func()) {
	u.entries = append(u.entries, fn)
}

func (u *undoLog) keep(fn func()) {
	u.sticky = append(u.sticky, fn)
}

func (u *undoLog) rollback() {
	for i := len(u.entries) - 1; i >= 0; i-- {
		u.entries[i]()
	}
	for _, fn := range u.sticky {
		fn()
	}
	u.reset()
}

func (u *undoLog) reset() {
	u.entries = u.entries[:0]
	u.sticky = u.sticky[:0]
}

// --- journaled mutations ---

func (v *Vault) setCachedTotalAssets(amount sdkmath.Int) {
	prev := v.cachedTotalAssets
	v.undo.push(func() { v.cachedTotalAssets = prev })
	v.cachedTotalAssets = amount
}

func (v *Vault) mintShares(to uuid.UUID, amount sdkmath.Int) error {
	if err := v.shares.Mint(to, amount); err != nil {
		return err
	}
	v.undo.push(func() { _ = v.shares.Burn(to, amount) })
	return nil
}

func (v *Vault) burnShares(from uuid.UUID, amount sdkmath.Int) error {
	if err := v.shares.Burn(from, amount); err != nil {
		return err
	}
	v.undo.push(func() { _ = v.shares.Mint(from, amount) })
	return nil
}

func (v *Vault) moveShares(from, to uuid.UUID, amount sdkmath.Int) error {
	if err := v.shares.Move(from, to, amount); err != nil {
		return err
	}
	v.undo.push(func() { _ = v.shares.Move(to, from, amount) })
	return nil
}

func (v *Vault) setShareAllowance(owner, spender uuid.UUID, amount sdkmath.Int) {
	prev := v.shares.Allowance(owner, spender)
	v.undo.push(func() { v.shares.SetAllowance(owner, spender, prev) })
	v.shares.SetAllowance(owner, spender, amount)
}

func (v *Vault) spendShareAllowance(owner, spender uuid.UUID, amount sdkmath.Int) error {
	prev := v.shares.Allowance(owner, spender)
	if err := v.shares.SpendAllowance(owner, spender, amount, vmath.MaxUint256); err != nil {
		return err
	}
	v.undo.push(func() { v.shares.SetAllowance(owner, spender, prev) })
	return nil
}

// saveStrategy journals the current ledger record for id before a change.
func (v *Vault) saveStrategy(id uuid.UUID) {
	prev, existed := v.allocations.Lookup(id)
	v.undo.push(func() { v.allocations.Restore(id, prev, existed) })
}

func (v *Vault) saveOrder() {
	prev := v.allocations.Order()
	v.undo.push(func() { v.allocations.RestoreOrder(prev) })
}

func (v *Vault) saveAdapter(id uuid.UUID) {
	prev, existed := v.adapters[id]
	v.undo.push(func() {
		if existed {
			v.adapters[id] = prev
		} else {
			delete(v.adapters, id)
		}
	})
}

func (v *Vault) saveFees() {
	prev := v.fees
	v.undo.push(func() { v.fees = prev })
}

func (v *Vault) saveLimits() {
	prev := v.limits
	v.undo.push(func() { v.limits = prev })
}

func (v *Vault) saveHooks() {
	prevHooks, prevConfig := v.hooks, v.hookConfig
	v.undo.push(func() {
		v.hooks = prevHooks
		v.hookConfig = prevConfig
	})
}
