package core_test

import (
	"context"
	"errors"
	"testing"

	"StrategyVault/internal/access"
	"StrategyVault/internal/core"
	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	"StrategyVault/internal/strategy"
	"StrategyVault/internal/token"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test: Strategy lifecycle
// ============================================================================

func TestAddStrategy_RejectsForeignAsset(t *testing.T) {
	h := newHarness(t, false)
	other := token.NewMemoryAsset("DAI", 18)
	s := strategy.NewMemoryStrategy(uuid.New(), other, h.vault.ID())

	err := h.vault.AddStrategy(h.ctx, h.admin, s)
	assert.True(t, errors.Is(err, core.ErrInvalidStrategyAsset))
	assert.Empty(t, h.vault.GetStrategies())
}

func TestAddStrategy_Twice(t *testing.T) {
	h := newHarness(t, false)
	s := h.addStrategy()

	err := h.vault.AddStrategy(h.ctx, h.admin, s)
	assert.True(t, errors.Is(err, ledger.ErrStrategyAlreadyAdded))
}

func TestAddStrategy_RequiresRole(t *testing.T) {
	h := newHarness(t, false)
	outsider := uuid.New()
	s := strategy.NewMemoryStrategy(uuid.New(), h.asset, h.vault.ID())

	err := h.vault.AddStrategy(h.ctx, outsider, s)
	require.True(t, errors.Is(err, access.ErrUnauthorized))
	assert.Contains(t, err.Error(), outsider.String())
	assert.Contains(t, err.Error(), string(access.RoleStrategyManager))

	h.roles.Grant(access.RoleStrategyManager, outsider)
	assert.NoError(t, h.vault.AddStrategy(h.ctx, outsider, s))
}

func TestRemoveStrategy_Rules(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(100))
	s := h.addStrategy()
	h.allocate(s, units(40))

	err := h.vault.RemoveStrategy(h.ctx, h.admin, s.ID())
	require.True(t, errors.Is(err, ledger.ErrStrategyHasAllocation))

	err = h.vault.RemoveStrategy(h.ctx, h.admin, uuid.New())
	require.True(t, errors.Is(err, ledger.ErrStrategyDoesNotExist))

	_, err = h.vault.ToggleStrategyStatus(h.ctx, h.admin, s.ID())
	require.NoError(t, err)
	require.NoError(t, h.vault.RemoveStrategy(h.ctx, h.admin, s.ID()))

	assert.Equal(t, ledger.StatusInactive, h.vault.GetStrategyData(s.ID()).Status)
	assert.True(t, h.vault.GetStrategyData(s.ID()).Allocated.IsZero())

	removed := h.eventsOf(event.EventTypeStrategyRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, units(40).String(), removed[0].Payload.(*event.StrategyRemoved).WrittenOff.String())
}

func TestRemoveStrategy_HaltedAllocationStaysCountedUntilRescued(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(100))
	s := h.addStrategy()
	h.allocate(s, units(40))
	_, err := h.vault.ToggleStrategyStatus(h.ctx, h.admin, s.ID())
	require.NoError(t, err)
	require.NoError(t, h.vault.RemoveStrategy(h.ctx, h.admin, s.ID()))

	assert.Equal(t, units(100).String(), h.vault.CachedTotalAssets().String())
	_, err = h.vault.AccrueYield(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, units(100).String(), h.vault.CachedTotalAssets().String(), "accrual does not revisit removed strategies")

	// Only idle is withdrawable until the funds come back
	_, err = h.vault.Withdraw(h.ctx, user, units(100), user, user)
	require.True(t, errors.Is(err, core.ErrExceededMaxWithdraw))

	require.NoError(t, h.asset.Transfer(s.ID(), h.vault.ID(), units(40)))
	_, err = h.vault.Withdraw(h.ctx, user, units(100), user, user)
	require.NoError(t, err)
	assert.True(t, h.vault.CachedTotalAssets().IsZero())
}

func TestRemoveStrategy_ActiveInOrderFails(t *testing.T) {
	h := newHarness(t, false)
	s := h.addStrategy()
	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{s.ID()}))

	err := h.vault.RemoveStrategy(h.ctx, h.admin, s.ID())
	require.True(t, errors.Is(err, ledger.ErrStrategyInDeallocationOrder))

	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, nil))
	assert.NoError(t, h.vault.RemoveStrategy(h.ctx, h.admin, s.ID()))
}

func TestToggle_UnknownStrategy(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.vault.ToggleStrategyStatus(h.ctx, h.admin, uuid.New())
	assert.True(t, errors.Is(err, ledger.ErrStrategyDoesNotExist))
}

func TestSetDeallocationOrder_Validation(t *testing.T) {
	h := newHarness(t, false)
	a := h.addStrategy()
	b := h.addStrategy()
	_, err := h.vault.ToggleStrategyStatus(h.ctx, h.admin, b.ID())
	require.NoError(t, err)

	err = h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{a.ID(), uuid.New()})
	assert.True(t, errors.Is(err, ledger.ErrStrategyDoesNotExist))

	err = h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{a.ID(), b.ID()})
	assert.True(t, errors.Is(err, ledger.ErrStrategyIsHalted))

	// Duplicates are accepted as given
	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{a.ID(), a.ID()}))
	assert.Equal(t, []uuid.UUID{a.ID(), a.ID()}, h.vault.GetDeallocationOrder())
}

// ============================================================================
// Test: Allocation batches
// ============================================================================

func TestAllocate_DepositAndWithdrawInstructions(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(1000))
	s := h.addStrategy()

	require.NoError(t, h.vault.AllocateFunds(h.ctx, h.admin, []strategy.Instruction{
		{IsDeposit: true, Strategy: s.ID(), ExtraData: strategy.EncodeAmount(units(700))},
		{IsDeposit: false, Strategy: s.ID(), ExtraData: strategy.EncodeAmount(units(200))},
	}))

	assert.Equal(t, units(500).String(), h.vault.GetStrategyData(s.ID()).Allocated.String())
	assert.Equal(t, units(500).String(), h.vault.IdleAssets().String())
	assert.Equal(t, units(1000).String(), h.vault.CachedTotalAssets().String())
	assert.True(t, h.asset.Allowance(h.vault.ID(), s.ID()).IsZero())

	allocated := h.eventsOf(event.EventTypeFundsAllocated)
	require.Len(t, allocated, 2)
	first := allocated[0].Payload.(*event.FundsAllocated)
	assert.True(t, first.IsDeposit)
	assert.Equal(t, strategy.EncodeAmount(units(700)), first.ExtraData)
}

func TestAllocate_BatchIsAtomic(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(1000))
	a := h.addStrategy()
	b := h.addStrategy()
	b.SetAllocateError(errors.New("venue down"))

	seq := h.vault.Sequence()
	err := h.vault.AllocateFunds(h.ctx, h.admin, []strategy.Instruction{
		{IsDeposit: true, Strategy: a.ID(), ExtraData: strategy.EncodeAmount(units(300))},
		{IsDeposit: true, Strategy: b.ID(), ExtraData: strategy.EncodeAmount(units(300))},
	})
	require.True(t, errors.Is(err, core.ErrAdapterFailure))
	assert.Contains(t, err.Error(), "venue down")

	assert.True(t, h.vault.GetStrategyData(a.ID()).Allocated.IsZero())
	assert.True(t, h.asset.BalanceOf(a.ID()).IsZero())
	assert.Equal(t, units(1000).String(), h.vault.IdleAssets().String())
	assert.Equal(t, seq, h.vault.Sequence())
}

func TestAllocate_SkipsHaltedStrategy(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(1000))
	s := h.addStrategy()
	_, err := h.vault.ToggleStrategyStatus(h.ctx, h.admin, s.ID())
	require.NoError(t, err)

	require.NoError(t, h.vault.AllocateFunds(h.ctx, h.admin, []strategy.Instruction{
		{IsDeposit: true, Strategy: s.ID(), ExtraData: strategy.EncodeAmount(units(300))},
	}))
	assert.True(t, h.vault.GetStrategyData(s.ID()).Allocated.IsZero())
	assert.Equal(t, units(1000).String(), h.vault.IdleAssets().String())
}

func TestAllocate_ReconcilesBeforeDeallocating(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(100))
	s := h.addStrategy()
	h.allocate(s, units(50))

	// Yield the ledger has not seen yet comes back with the deallocation
	require.NoError(t, s.SetValue(units(55)))

	require.NoError(t, h.vault.AllocateFunds(h.ctx, h.admin, []strategy.Instruction{
		{IsDeposit: false, Strategy: s.ID(), ExtraData: strategy.EncodeAmount(units(55))},
	}))
	assert.True(t, h.vault.GetStrategyData(s.ID()).Allocated.IsZero())
	assert.Equal(t, units(105).String(), h.vault.CachedTotalAssets().String())
	assert.Equal(t, units(105).String(), h.vault.IdleAssets().String())
}

// ============================================================================
// Test: Deallocation sequencing
// ============================================================================

func TestWithdraw_FollowsDeallocationOrder(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(2000))
	a := h.addStrategy()
	b := h.addStrategy()
	h.allocate(a, units(1000))
	h.allocate(b, units(1000))
	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{a.ID(), b.ID()}))

	_, err := h.vault.Withdraw(h.ctx, user, units(1500), user, user)
	require.NoError(t, err)

	assert.True(t, h.vault.GetStrategyData(a.ID()).Allocated.IsZero())
	assert.Equal(t, units(500).String(), h.vault.GetStrategyData(b.ID()).Allocated.String())
	assert.Equal(t, units(1500).String(), h.asset.BalanceOf(user).String())
	assert.True(t, h.vault.IdleAssets().IsZero())
	assert.Equal(t, units(500).String(), h.vault.CachedTotalAssets().String())
}

func TestWithdraw_SkipsHaltedStrategyInOrder(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(2000))
	a := h.addStrategy()
	b := h.addStrategy()
	h.allocate(a, units(1000))
	h.allocate(b, units(1000))
	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{a.ID(), b.ID()}))
	_, err := h.vault.ToggleStrategyStatus(h.ctx, h.admin, a.ID())
	require.NoError(t, err)

	// A halted strategy's value is not reconciled
	require.NoError(t, a.SetValue(units(10)))

	_, err = h.vault.Withdraw(h.ctx, user, units(600), user, user)
	require.NoError(t, err)

	assert.Equal(t, units(1000).String(), h.vault.GetStrategyData(a.ID()).Allocated.String())
	assert.Equal(t, units(400).String(), h.vault.GetStrategyData(b.ID()).Allocated.String())

	// Still removable with allocation outstanding
	require.NoError(t, h.vault.RemoveStrategy(h.ctx, h.admin, a.ID()))
}

func TestWithdraw_StrategyPayoutSurvivesRollback(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(1000))
	s := h.addStrategy()
	h.allocate(s, units(1000))
	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{s.ID()}))
	require.NoError(t, h.vault.SetHooks(h.ctx, h.admin,
		&recordingHooks{rejectAfterWithdraw: errors.New("blocked")}, core.HookConfig{AfterWithdraw: true}))

	seq := h.vault.Sequence()
	_, err := h.vault.Withdraw(h.ctx, user, units(400), user, user)
	require.True(t, errors.Is(err, core.ErrHookRejected))

	// Funds really left the strategy, so the ledger follows them
	assert.Equal(t, units(600).String(), h.vault.GetStrategyData(s.ID()).Allocated.String())
	assert.Equal(t, units(400).String(), h.vault.IdleAssets().String())

	// The withdrawal itself did not happen
	assert.Equal(t, units(1000).String(), h.vault.BalanceOf(user).String())
	assert.Equal(t, units(1000).String(), h.vault.CachedTotalAssets().String())

	assert.Equal(t, seq+1, h.vault.Sequence())
	last := h.events[len(h.events)-1]
	assert.Equal(t, event.EventTypeFundsAllocated, last.EventType)
}

func TestWithdraw_AdapterFailureAborts(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(100))
	s := h.addStrategy()
	h.allocate(s, units(100))
	require.NoError(t, h.vault.SetDeallocationOrder(h.ctx, h.admin, []uuid.UUID{s.ID()}))
	s.SetWithdrawError(errors.New("paused"))

	_, err := h.vault.Withdraw(h.ctx, user, units(10), user, user)
	assert.True(t, errors.Is(err, core.ErrAdapterFailure))
	assert.Equal(t, units(100).String(), h.vault.BalanceOf(user).String())
}

// ============================================================================
// Test: Re-entrancy
// ============================================================================

func TestReentrancy_StrategyCallbackIsRejected(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(100))
	s := h.addStrategy()

	attacker := uuid.New()
	h.fund(attacker, units(10))

	var depositErr, viewErr error
	s.SetCallback(func(ctx context.Context) {
		_, depositErr = h.vault.Deposit(ctx, attacker, units(10), attacker)
		_, viewErr = h.vault.PreviewDeposit(ctx, units(10))
	})
	h.allocate(s, units(50))

	assert.True(t, errors.Is(depositErr, core.ErrReentrantCall))
	assert.True(t, errors.Is(viewErr, core.ErrReentrantCall))
	assert.True(t, h.vault.BalanceOf(attacker).IsZero())
}

func TestReentrancy_AssetTransferHookIsRejected(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(100))

	var reentryErr error
	h.asset.SetTransferHook(func(from, to uuid.UUID, amount sdkmath.Int) {
		if from == h.vault.ID() {
			_, reentryErr = h.vault.Redeem(h.ctx, user, units(1), user, user)
		}
	})
	_, err := h.vault.Redeem(h.ctx, user, units(10), user, user)
	require.NoError(t, err)

	assert.True(t, errors.Is(reentryErr, core.ErrReentrantCall))
	assert.Equal(t, units(90).String(), h.vault.BalanceOf(user).String())
}

// ============================================================================
// Test: Event chain
// ============================================================================

func TestEvents_HashChainLinks(t *testing.T) {
	h := newHarness(t, false)
	user := h.deposit(units(100))
	_, err := h.vault.Redeem(h.ctx, user, units(10), user, user)
	require.NoError(t, err)

	require.NotEmpty(t, h.events)
	for i := 1; i < len(h.events); i++ {
		assert.Equal(t, h.events[i-1].Sequence+1, h.events[i].Sequence)
		assert.Equal(t, h.events[i-1].StateHash, h.events[i].PrevHash)
	}
	assert.Equal(t, h.events[len(h.events)-1].StateHash, h.vault.StateHash())
}
