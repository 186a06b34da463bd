package ledger_test

import (
	"errors"
	"testing"

	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test: AllocationLedger lifecycle
// ============================================================================

func TestAllocationLedger_AddSetsActiveZero(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()

	require.NoError(t, l.Add(id))

	data := l.Get(id)
	assert.Equal(t, ledger.StatusActive, data.Status)
	assert.True(t, data.Allocated.IsZero())
	assert.True(t, l.IsMember(id))
}

func TestAllocationLedger_AddTwiceFails(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()
	require.NoError(t, l.Add(id))

	err := l.Add(id)
	assert.True(t, errors.Is(err, ledger.ErrStrategyAlreadyAdded))
}

func TestAllocationLedger_UnknownReadsInactive(t *testing.T) {
	l := ledger.NewAllocationLedger()
	data := l.Get(uuid.New())
	assert.Equal(t, ledger.StatusInactive, data.Status)
	assert.True(t, data.Allocated.IsZero())
}

func TestAllocationLedger_Toggle(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()
	require.NoError(t, l.Add(id))

	status, err := l.Toggle(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusHalted, status)

	status, err = l.Toggle(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, status)

	_, err = l.Toggle(uuid.New())
	assert.True(t, errors.Is(err, ledger.ErrStrategyDoesNotExist))
}

func TestAllocationLedger_RemoveRules(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()
	require.NoError(t, l.Add(id))
	l.SetAllocated(id, sdkmath.NewInt(100))

	// Active with allocation
	err := l.Remove(id)
	assert.True(t, errors.Is(err, ledger.ErrStrategyHasAllocation))

	// Halted may be removed mid-allocation
	_, err = l.Toggle(id)
	require.NoError(t, err)
	require.NoError(t, l.Remove(id))
	assert.False(t, l.IsMember(id))
	assert.True(t, l.Get(id).Allocated.IsZero())

	err = l.Remove(id)
	assert.True(t, errors.Is(err, ledger.ErrStrategyDoesNotExist))
}

func TestAllocationLedger_RemoveBlockedByOrderUnlessHalted(t *testing.T) {
	l := ledger.NewAllocationLedger()
	a := uuid.New()
	require.NoError(t, l.Add(a))
	require.NoError(t, l.SetOrder([]uuid.UUID{a}))

	err := l.Remove(a)
	assert.True(t, errors.Is(err, ledger.ErrStrategyInDeallocationOrder))

	_, err = l.Toggle(a)
	require.NoError(t, err)
	require.NoError(t, l.Remove(a))

	// Removed-but-not-purged entry stays in the order
	assert.Equal(t, []uuid.UUID{a}, l.Order())
}

func TestAllocationLedger_SetOrderValidation(t *testing.T) {
	l := ledger.NewAllocationLedger()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, l.Add(a))
	require.NoError(t, l.Add(b))

	err := l.SetOrder([]uuid.UUID{a, uuid.New()})
	assert.True(t, errors.Is(err, ledger.ErrStrategyDoesNotExist))

	_, err = l.Toggle(b)
	require.NoError(t, err)
	err = l.SetOrder([]uuid.UUID{a, b})
	assert.True(t, errors.Is(err, ledger.ErrStrategyIsHalted))

	// Failed updates leave the previous order untouched
	assert.Empty(t, l.Order())

	// Duplicates are accepted as given
	require.NoError(t, l.SetOrder([]uuid.UUID{a, a}))
	assert.Equal(t, []uuid.UUID{a, a}, l.Order())
}

func TestAllocationLedger_SetAllocatedSaturates(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()
	require.NoError(t, l.Add(id))

	l.SetAllocated(id, vmath.MaxUint256)
	assert.True(t, l.Get(id).Allocated.Equal(vmath.MaxUint120))
}

func TestAllocationLedger_RestoreRollsBack(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()

	prev, existed := l.Lookup(id)
	require.NoError(t, l.Add(id))
	l.Restore(id, prev, existed)
	assert.False(t, l.IsMember(id))
}

// ============================================================================
// Test: BalanceBook
// ============================================================================

func TestBalanceBook_MintBurnMove(t *testing.T) {
	b := ledger.NewBalanceBook()
	alice, bob := uuid.New(), uuid.New()

	b.Mint(alice, sdkmath.NewInt(100))
	require.NoError(t, b.Move(alice, bob, sdkmath.NewInt(30)))
	require.NoError(t, b.Burn(bob, sdkmath.NewInt(10)))

	assert.Equal(t, "70", b.BalanceOf(alice).String())
	assert.Equal(t, "20", b.BalanceOf(bob).String())
	assert.Equal(t, "90", b.TotalSupply().String())
}

func TestBalanceBook_MintOverflowLeavesBookUnchanged(t *testing.T) {
	b := ledger.NewBalanceBook()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, b.Mint(alice, vmath.MaxUint256))

	err := b.Mint(bob, sdkmath.OneInt())
	require.ErrorIs(t, err, vmath.ErrAmountOverflow)
	assert.True(t, b.BalanceOf(bob).IsZero())
	assert.True(t, b.TotalSupply().Equal(vmath.MaxUint256))
}

func TestBalanceBook_InsufficientBalance(t *testing.T) {
	b := ledger.NewBalanceBook()
	alice := uuid.New()
	b.Mint(alice, sdkmath.NewInt(5))

	err := b.Burn(alice, sdkmath.NewInt(6))
	assert.True(t, errors.Is(err, ledger.ErrInsufficientShares))

	err = b.Move(alice, uuid.New(), sdkmath.NewInt(6))
	assert.True(t, errors.Is(err, ledger.ErrInsufficientShares))

	assert.Equal(t, "5", b.TotalSupply().String())
}

func TestBalanceBook_SpendAllowance(t *testing.T) {
	b := ledger.NewBalanceBook()
	owner, spender := uuid.New(), uuid.New()

	b.SetAllowance(owner, spender, sdkmath.NewInt(50))
	require.NoError(t, b.SpendAllowance(owner, spender, sdkmath.NewInt(20), vmath.MaxUint256))
	assert.Equal(t, "30", b.Allowance(owner, spender).String())

	err := b.SpendAllowance(owner, spender, sdkmath.NewInt(31), vmath.MaxUint256)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientAllowance))

	// Unlimited allowance is never decremented
	b.SetAllowance(owner, spender, vmath.MaxUint256)
	require.NoError(t, b.SpendAllowance(owner, spender, sdkmath.NewInt(1000), vmath.MaxUint256))
	assert.True(t, b.Allowance(owner, spender).Equal(vmath.MaxUint256))
}

func TestBalanceBook_SnapshotRestore(t *testing.T) {
	b := ledger.NewBalanceBook()
	alice, bob := uuid.New(), uuid.New()
	b.Mint(alice, sdkmath.NewInt(10))
	b.Mint(bob, sdkmath.NewInt(20))
	b.SetAllowance(alice, bob, sdkmath.NewInt(3))

	restored := ledger.NewBalanceBook()
	restored.Restore(b.Snapshot())

	assert.Equal(t, "30", restored.TotalSupply().String())
	assert.Equal(t, "3", restored.Allowance(alice, bob).String())
	assert.Equal(t, b.Holders(), restored.Holders())
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_Healthy(t *testing.T) {
	l := ledger.NewAllocationLedger()
	b := ledger.NewBalanceBook()
	id := uuid.New()
	require.NoError(t, l.Add(id))
	l.SetAllocated(id, sdkmath.NewInt(10))
	b.Mint(uuid.New(), sdkmath.NewInt(10))

	v := ledger.NewInvariantValidator(l, b)
	assert.NoError(t, v.ValidateAll())
}

func TestInvariantValidator_OrderMayHoldHaltedAndRemovedEntries(t *testing.T) {
	l := ledger.NewAllocationLedger()
	b := ledger.NewBalanceBook()
	halted, removed := uuid.New(), uuid.New()
	require.NoError(t, l.Add(halted))
	require.NoError(t, l.Add(removed))
	require.NoError(t, l.SetOrder([]uuid.UUID{halted, removed}))

	_, err := l.Toggle(halted)
	require.NoError(t, err)
	_, err = l.Toggle(removed)
	require.NoError(t, err)
	require.NoError(t, l.Remove(removed))

	v := ledger.NewInvariantValidator(l, b)
	assert.NoError(t, v.ValidateAllocations())
	assert.Equal(t, []uuid.UUID{halted, removed}, l.Order())
}

func TestInvariantValidator_CatchesInactiveRecord(t *testing.T) {
	l := ledger.NewAllocationLedger()
	id := uuid.New()
	l.Restore(id, ledger.StrategyData{Status: ledger.StatusInactive, Allocated: sdkmath.ZeroInt()}, true)

	err := ledger.NewInvariantValidator(l, ledger.NewBalanceBook()).ValidateAllocations()
	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)
}
