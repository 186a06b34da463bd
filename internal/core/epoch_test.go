package core_test

import (
	"errors"
	"testing"

	"StrategyVault/internal/access"
	"StrategyVault/internal/core"
	"StrategyVault/internal/event"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test: Epoch lifecycle
// ============================================================================

func TestEpoch_StartsActiveAtOne(t *testing.T) {
	h := newHarness(t, true)

	assert.True(t, h.vault.QueueActive())
	assert.Equal(t, uint64(1), h.vault.LatestEpochID())
	assert.Equal(t, core.EpochActive, h.vault.GetEpochState(1))
	assert.Equal(t, core.EpochInactive, h.vault.GetEpochState(2))
	assert.False(t, h.vault.GetEpochPrice(1).Valid)
}

func TestEpoch_CloseTwiceWithoutProcessFails(t *testing.T) {
	h := newHarness(t, true)

	closed, err := h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), closed)
	assert.Equal(t, core.EpochProcessing, h.vault.GetEpochState(1))

	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	assert.True(t, errors.Is(err, core.ErrPreviousEpochNotProcessed))
	assert.Equal(t, uint64(2), h.vault.LatestEpochID())
}

func TestEpoch_ProcessPreconditions(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.vault.ProcessEpoch(h.ctx, h.admin)
	require.True(t, errors.Is(err, core.ErrNoEpochToProcess))

	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)

	// An empty epoch still locks a price
	price, err := h.vault.ProcessEpoch(h.ctx, h.admin)
	require.NoError(t, err)
	assert.True(t, price.Valid)
	assert.Equal(t, core.EpochProcessed, h.vault.GetEpochState(1))

	_, err = h.vault.ProcessEpoch(h.ctx, h.admin)
	assert.True(t, errors.Is(err, core.ErrEpochAlreadyProcessed))

	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	assert.NoError(t, err)
}

func TestEpoch_RequiresRole(t *testing.T) {
	h := newHarness(t, true)
	outsider := uuid.New()

	_, err := h.vault.CloseEpoch(h.ctx, outsider)
	assert.True(t, errors.Is(err, access.ErrUnauthorized))

	_, err = h.vault.ProcessEpoch(h.ctx, outsider)
	assert.True(t, errors.Is(err, access.ErrUnauthorized))

	_, err = h.vault.ToggleQueue(h.ctx, outsider)
	assert.True(t, errors.Is(err, access.ErrUnauthorized))
}

func TestEpoch_SyncVaultHasNoQueue(t *testing.T) {
	h := newHarness(t, false)

	assert.False(t, h.vault.QueueActive())
	_, err := h.vault.CloseEpoch(h.ctx, h.admin)
	assert.True(t, errors.Is(err, core.ErrQueueNotSupported))
	_, err = h.vault.ClaimWithdrawal(h.ctx, uuid.New(), []uint64{1})
	assert.True(t, errors.Is(err, core.ErrQueueNotSupported))
}

// ============================================================================
// Test: Requests and claims
// ============================================================================

func TestEpoch_RedeemQueuesShares(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(1000))
	receiver := uuid.New()

	_, err := h.vault.Redeem(h.ctx, user, units(400), receiver, user)
	require.NoError(t, err)

	assert.Equal(t, units(600).String(), h.vault.BalanceOf(user).String())
	assert.Equal(t, units(400).String(), h.vault.BalanceOf(h.vault.ID()).String())
	assert.Equal(t, units(400).String(), h.vault.UserEpochRequest(receiver, 1).String())
	assert.Equal(t, units(400).String(), h.vault.TotalRequestedShares(1).String())
	assert.Equal(t, []uint64{1}, h.vault.UserEpochRequests(receiver))

	// Nothing paid, supply unchanged
	assert.True(t, h.asset.BalanceOf(receiver).IsZero())
	assert.Equal(t, units(1000).String(), h.vault.TotalSupply().String())
	assert.Equal(t, units(1000).String(), h.vault.CachedTotalAssets().String())

	require.Len(t, h.eventsOf(event.EventTypeWithdrawalRequested), 1)
	assert.Empty(t, h.eventsOf(event.EventTypeWithdraw))
}

func TestEpoch_ClaimIsExact(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(1000))
	s := h.addStrategy()
	h.allocate(s, units(500))

	_, err := h.vault.Redeem(h.ctx, user, units(400), user, user)
	require.NoError(t, err)

	require.NoError(t, s.SetValue(sdkmath.NewInt(507_001_234)))

	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)
	price, err := h.vault.ProcessEpoch(h.ctx, h.admin)
	require.NoError(t, err)

	unit := sdkmath.NewInt(usdc)
	expected := units(400).Mul(price.Value).Quo(unit)

	// Price reflects the yield accrued at processing time
	assert.True(t, price.Value.GT(unit))
	assert.Equal(t, expected.String(), h.vault.PastEpochsUnclaimedAssets().String())
	assert.Equal(t, expected.String(), h.vault.LockedAssets().String())
	assert.Equal(t, units(600).String(), h.vault.TotalSupply().String())
	assert.True(t, h.vault.TotalRequestedShares(1).IsZero())

	before := h.asset.BalanceOf(user)
	claimed, err := h.vault.ClaimWithdrawal(h.ctx, user, []uint64{1})
	require.NoError(t, err)

	assert.Equal(t, expected.String(), claimed.String())
	assert.Equal(t, expected.String(), h.asset.BalanceOf(user).Sub(before).String())
	assert.True(t, h.vault.PastEpochsUnclaimedAssets().IsZero())
	assert.True(t, h.vault.UserEpochRequest(user, 1).IsZero())

	// Second claim pays nothing
	again, err := h.vault.ClaimWithdrawal(h.ctx, user, []uint64{1})
	require.NoError(t, err)
	assert.True(t, again.IsZero())
}

func TestEpoch_ClaimSkipsUnprocessed(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(100))
	_, err := h.vault.Redeem(h.ctx, user, units(10), user, user)
	require.NoError(t, err)

	claimed, err := h.vault.ClaimWithdrawal(h.ctx, user, []uint64{1, 7})
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())
	assert.Equal(t, units(10).String(), h.vault.UserEpochRequest(user, 1).String())

	_, err = h.vault.ClaimWithdrawal(h.ctx, user, nil)
	assert.True(t, errors.Is(err, core.ErrEmptyEpochIDs))
}

func TestEpoch_ProcessFailsWithoutIdleLiquidity(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(1000))
	s := h.addStrategy()
	h.allocate(s, units(1000))

	_, err := h.vault.Redeem(h.ctx, user, units(500), user, user)
	require.NoError(t, err)
	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)

	_, err = h.vault.ProcessEpoch(h.ctx, h.admin)
	require.True(t, errors.Is(err, core.ErrInsufficientBalance))
	assert.Equal(t, core.EpochProcessing, h.vault.GetEpochState(1))
	assert.Equal(t, units(500).String(), h.vault.TotalRequestedShares(1).String())
	assert.Equal(t, units(1000).String(), h.vault.TotalSupply().String())

	// Free liquidity, then retry
	require.NoError(t, h.vault.AllocateFunds(h.ctx, h.admin, deallocateAll(s.ID(), units(1000))))
	_, err = h.vault.ProcessEpoch(h.ctx, h.admin)
	assert.NoError(t, err)
}

func TestEpoch_CancelOnlyWhileOpen(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(1000))

	_, err := h.vault.Redeem(h.ctx, user, units(100), user, user)
	require.NoError(t, err)

	shares, err := h.vault.CancelWithdrawalRequest(h.ctx, user, 1)
	require.NoError(t, err)
	assert.Equal(t, units(100).String(), shares.String())
	assert.Equal(t, units(1000).String(), h.vault.BalanceOf(user).String())
	assert.True(t, h.vault.TotalRequestedShares(1).IsZero())

	_, err = h.vault.CancelWithdrawalRequest(h.ctx, user, 1)
	assert.True(t, errors.Is(err, core.ErrNoRequestingShares))

	_, err = h.vault.Redeem(h.ctx, user, units(100), user, user)
	require.NoError(t, err)
	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)

	_, err = h.vault.CancelWithdrawalRequest(h.ctx, user, 1)
	assert.True(t, errors.Is(err, core.ErrEpochAlreadyClosed))
}

func TestEpoch_MoveRequestToNextEpoch(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(1000))
	_, err := h.vault.Redeem(h.ctx, user, units(250), user, user)
	require.NoError(t, err)

	err = h.vault.MoveRequestToNextEpoch(h.ctx, uuid.New(), user)
	require.True(t, errors.Is(err, access.ErrUnauthorized))

	require.NoError(t, h.vault.MoveRequestToNextEpoch(h.ctx, h.admin, user))
	assert.True(t, h.vault.UserEpochRequest(user, 1).IsZero())
	assert.Equal(t, units(250).String(), h.vault.UserEpochRequest(user, 2).String())
	assert.Equal(t, units(250).String(), h.vault.TotalRequestedShares(2).String())

	err = h.vault.MoveRequestToNextEpoch(h.ctx, h.admin, user)
	assert.True(t, errors.Is(err, core.ErrNoRequestingShares))

	// A moved request can still be cancelled
	_, err = h.vault.CancelWithdrawalRequest(h.ctx, user, 2)
	assert.NoError(t, err)
}

func TestEpoch_ClaimForUsers(t *testing.T) {
	h := newHarness(t, true)
	alice := h.deposit(units(300))
	bob := h.deposit(units(700))

	_, err := h.vault.Redeem(h.ctx, alice, units(100), alice, alice)
	require.NoError(t, err)
	_, err = h.vault.Withdraw(h.ctx, bob, units(200), bob, bob)
	require.NoError(t, err)

	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)
	_, err = h.vault.ProcessEpoch(h.ctx, h.admin)
	require.NoError(t, err)

	_, err = h.vault.ClaimWithdrawalFor(h.ctx, uuid.New(), []uuid.UUID{alice}, []uint64{1})
	require.True(t, errors.Is(err, access.ErrUnauthorized))

	paid, err := h.vault.ClaimWithdrawalFor(h.ctx, h.admin, []uuid.UUID{alice, bob}, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, units(100).String(), paid[alice].String())
	assert.Equal(t, units(200).String(), paid[bob].String())
	assert.Equal(t, units(100).String(), h.asset.BalanceOf(alice).String())
	assert.Equal(t, units(200).String(), h.asset.BalanceOf(bob).String())
	assert.True(t, h.vault.PastEpochsUnclaimedAssets().IsZero())
	assert.Equal(t, units(700).String(), h.vault.CachedTotalAssets().String())
}

func TestEpoch_ReservedAssetsAreLocked(t *testing.T) {
	h := newHarness(t, true)
	user := h.deposit(units(1000))
	_, err := h.vault.Redeem(h.ctx, user, units(400), user, user)
	require.NoError(t, err)
	_, err = h.vault.CloseEpoch(h.ctx, h.admin)
	require.NoError(t, err)
	_, err = h.vault.ProcessEpoch(h.ctx, h.admin)
	require.NoError(t, err)

	active, err := h.vault.ToggleQueue(h.ctx, h.admin)
	require.NoError(t, err)
	require.False(t, active)

	// Synchronous path only sees idle minus the reservation
	maxAssets, err := h.vault.MaxWithdraw(h.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, units(600).String(), maxAssets.String())

	_, err = h.vault.Withdraw(h.ctx, user, units(600), user, user)
	require.NoError(t, err)
	assert.Equal(t, units(400).String(), h.vault.IdleAssets().String())

	claimed, err := h.vault.ClaimWithdrawal(h.ctx, user, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, units(400).String(), claimed.String())
	assert.True(t, h.vault.IdleAssets().IsZero())
}
