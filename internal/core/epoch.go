package core

import (
	"context"
	"sort"

	"StrategyVault/internal/access"
	"StrategyVault/internal/event"
	"StrategyVault/internal/ledger"
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// EpochState is the lifecycle position of one epoch.
type EpochState uint8

const (
	EpochInactive   EpochState = iota // No activity yet
	EpochActive                       // Current epoch, open to requests
	EpochProcessing                   // Closed, awaiting price
	EpochProcessed                    // Priced, assets reserved
)

func (s EpochState) String() string {
	switch s {
	case EpochActive:
		return "active"
	case EpochProcessing:
		return "processing"
	case EpochProcessed:
		return "processed"
	default:
		return "inactive"
	}
}

// EpochPrice is the locked assets-per-unit-share of a processed epoch.
// Valid is false until the epoch is processed.
type EpochPrice struct {
	Value sdkmath.Int `json:"value"`
	Valid bool        `json:"valid"`
}

// epochQueue holds the asynchronous withdrawal state. Requests are keyed by
// the receiver, who is the one entitled to cancel and claim.
type epochQueue struct {
	active         bool
	latestEpochID  uint64
	requests       map[uuid.UUID]map[uint64]sdkmath.Int
	totalRequested map[uint64]sdkmath.Int
	prices         map[uint64]sdkmath.Int
	unclaimed      sdkmath.Int
}

func newEpochQueue() *epochQueue {
	return &epochQueue{
		active:         true,
		latestEpochID:  1,
		requests:       make(map[uuid.UUID]map[uint64]sdkmath.Int),
		totalRequested: make(map[uint64]sdkmath.Int),
		prices:         make(map[uint64]sdkmath.Int),
		unclaimed:      sdkmath.ZeroInt(),
	}
}

// LockedAssets reserves assets owed to processed, unclaimed epochs.
func (q *epochQueue) LockedAssets() sdkmath.Int { return q.unclaimed }

func (q *epochQueue) request(user uuid.UUID, epochID uint64) sdkmath.Int {
	if amount, ok := q.requests[user][epochID]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (q *epochQueue) total(epochID uint64) sdkmath.Int {
	if amount, ok := q.totalRequested[epochID]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (q *epochQueue) state(epochID uint64) EpochState {
	switch {
	case epochID == 0 || epochID > q.latestEpochID:
		return EpochInactive
	case epochID == q.latestEpochID:
		return EpochActive
	}
	if _, priced := q.prices[epochID]; priced {
		return EpochProcessed
	}
	return EpochProcessing
}

// --- journaled queue mutations ---

func (v *Vault) setRequest(user uuid.UUID, epochID uint64, amount sdkmath.Int) {
	q := v.queue
	prev, existed := q.requests[user][epochID]
	v.undo.push(func() {
		if existed {
			q.requests[user][epochID] = prev
		} else {
			delete(q.requests[user], epochID)
		}
	})

	if q.requests[user] == nil {
		q.requests[user] = make(map[uint64]sdkmath.Int)
	}
	if amount.IsZero() {
		delete(q.requests[user], epochID)
		return
	}
	q.requests[user][epochID] = amount
}

func (v *Vault) setTotalRequested(epochID uint64, amount sdkmath.Int) {
	q := v.queue
	prev, existed := q.totalRequested[epochID]
	v.undo.push(func() {
		if existed {
			q.totalRequested[epochID] = prev
		} else {
			delete(q.totalRequested, epochID)
		}
	})
	q.totalRequested[epochID] = amount
}

func (v *Vault) setEpochPrice(epochID uint64, price sdkmath.Int) {
	q := v.queue
	v.undo.push(func() { delete(q.prices, epochID) })
	q.prices[epochID] = price
}

func (v *Vault) setUnclaimed(amount sdkmath.Int) {
	q := v.queue
	prev := q.unclaimed
	v.undo.push(func() { q.unclaimed = prev })
	q.unclaimed = amount
}

func (v *Vault) setLatestEpochID(id uint64) {
	q := v.queue
	prev := q.latestEpochID
	v.undo.push(func() { q.latestEpochID = prev })
	q.latestEpochID = id
}

func (v *Vault) requireQueue() error {
	if v.queue == nil {
		return errorsmod.Wrap(ErrQueueNotSupported, "vault is synchronous")
	}
	return nil
}

// QueueActive reports whether withdrawals are routed through epochs.
func (v *Vault) QueueActive() bool {
	return v.queue != nil && v.queue.active
}

// ============================================================================
// Requests
// ============================================================================

// requestWithdrawal moves shares from owner into vault custody and records
// them for receiver in the current epoch.
func (v *Vault) requestWithdrawal(caller, owner, receiver uuid.UUID, shares, assets sdkmath.Int) error {
	if err := v.moveShares(owner, v.id, shares); err != nil {
		return err
	}

	epochID := v.queue.latestEpochID
	v.setRequest(receiver, epochID, v.queue.request(receiver, epochID).Add(shares))
	v.setTotalRequested(epochID, v.queue.total(epochID).Add(shares))

	v.emit(&event.WithdrawalRequested{
		Caller:   caller,
		Owner:    owner,
		Receiver: receiver,
		EpochID:  epochID,
		Shares:   shares,
		Assets:   assets,
	})
	return nil
}

// CancelWithdrawalRequest returns caller's custodied shares for an epoch
// that has not been closed.
func (v *Vault) CancelWithdrawalRequest(ctx context.Context, caller uuid.UUID, epochID uint64) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := v.call("cancel_withdrawal_request", func() error {
		if err := v.requireQueue(); err != nil {
			return err
		}
		if epochID < v.queue.latestEpochID {
			return errorsmod.Wrapf(ErrEpochAlreadyClosed, "epoch %d latest %d", epochID, v.queue.latestEpochID)
		}

		shares = v.queue.request(caller, epochID)
		if shares.IsZero() {
			return errorsmod.Wrapf(ErrNoRequestingShares, "user %s epoch %d", caller, epochID)
		}

		v.setRequest(caller, epochID, sdkmath.ZeroInt())
		v.setTotalRequested(epochID, vmath.SaturatingSub(v.queue.total(epochID), shares))
		if err := v.moveShares(v.id, caller, shares); err != nil {
			return err
		}

		v.emit(&event.RequestCancelled{User: caller, EpochID: epochID, Shares: shares})
		return nil
	})
	return shares, err
}

// MoveRequestToNextEpoch re-queues user's whole current-epoch request into
// the next epoch.
func (v *Vault) MoveRequestToNextEpoch(ctx context.Context, caller, user uuid.UUID) error {
	return v.call("move_request_to_next_epoch", func() error {
		if err := v.authorize(access.RoleEpochManager, caller); err != nil {
			return err
		}
		if err := v.requireQueue(); err != nil {
			return err
		}

		current := v.queue.latestEpochID
		next := current + 1
		shares := v.queue.request(user, current)
		if shares.IsZero() {
			return errorsmod.Wrapf(ErrNoRequestingShares, "user %s epoch %d", user, current)
		}

		v.setRequest(user, current, sdkmath.ZeroInt())
		v.setTotalRequested(current, vmath.SaturatingSub(v.queue.total(current), shares))
		v.setRequest(user, next, v.queue.request(user, next).Add(shares))
		v.setTotalRequested(next, v.queue.total(next).Add(shares))

		v.emit(&event.RequestMoved{User: user, FromEpoch: current, ToEpoch: next, Shares: shares})
		return nil
	})
}

// ============================================================================
// Epoch lifecycle
// ============================================================================

// CloseEpoch moves the current epoch to Processing and opens the next one.
// The previous epoch must already be processed.
func (v *Vault) CloseEpoch(ctx context.Context, caller uuid.UUID) (uint64, error) {
	var closed uint64
	err := v.call("close_epoch", func() error {
		if err := v.authorize(access.RoleEpochManager, caller); err != nil {
			return err
		}
		if err := v.requireQueue(); err != nil {
			return err
		}

		closed = v.queue.latestEpochID
		if prev := closed - 1; prev > 0 && v.queue.state(prev) != EpochProcessed {
			return errorsmod.Wrapf(ErrPreviousEpochNotProcessed, "epoch %d", prev)
		}

		v.setLatestEpochID(closed + 1)
		v.emit(&event.EpochClosed{EpochID: closed})
		return nil
	})
	return closed, err
}

// ProcessEpoch prices the most recently closed epoch, reserves the assets
// its requesters are owed and burns their custodied shares.
func (v *Vault) ProcessEpoch(ctx context.Context, caller uuid.UUID) (EpochPrice, error) {
	var price EpochPrice
	err := v.call("process_epoch", func() error {
		if err := v.authorize(access.RoleEpochManager, caller); err != nil {
			return err
		}
		if err := v.requireQueue(); err != nil {
			return err
		}

		epochID := v.queue.latestEpochID - 1
		if epochID == 0 {
			return errorsmod.Wrap(ErrNoEpochToProcess, "current epoch has not been closed")
		}
		if v.queue.state(epochID) == EpochProcessed {
			return errorsmod.Wrapf(ErrEpochAlreadyProcessed, "epoch %d", epochID)
		}

		if _, err := v.accrue(ctx); err != nil {
			return err
		}

		unit := v.shareUnit()
		sharePrice, err := v.toAssets(unit, v.cachedTotalAssets, v.shares.TotalSupply(), vmath.RoundDown)
		if err != nil {
			return err
		}
		shares := v.queue.total(epochID)
		needed, err := vmath.MulDiv(shares, sharePrice, unit, vmath.RoundDown)
		if err != nil {
			return err
		}

		idle := v.IdleAssets()
		required, err := vmath.CheckedAdd(needed, v.queue.unclaimed)
		if err != nil {
			return err
		}
		if idle.LT(required) {
			return errorsmod.Wrapf(ErrInsufficientBalance, "epoch %d needs %s idle %s", epochID, required, idle)
		}

		v.setEpochPrice(epochID, sharePrice)
		v.setUnclaimed(required)
		if shares.IsPositive() {
			if err := v.burnShares(v.id, shares); err != nil {
				return err
			}
		}
		v.setTotalRequested(epochID, sdkmath.ZeroInt())
		v.setCachedTotalAssets(vmath.SaturatingSub(v.cachedTotalAssets, needed))

		v.emit(&event.EpochProcessed{
			EpochID:    epochID,
			SharePrice: sharePrice,
			Shares:     shares,
			Assets:     needed,
		})
		price = EpochPrice{Value: sharePrice, Valid: true}
		return nil
	})
	return price, err
}

// ToggleQueue switches withdrawals between the epoch queue and immediate
// fulfillment. Pending epochs keep progressing either way.
func (v *Vault) ToggleQueue(ctx context.Context, caller uuid.UUID) (bool, error) {
	var active bool
	err := v.call("toggle_queue", func() error {
		if err := v.authorize(access.RoleQueueManager, caller); err != nil {
			return err
		}
		if err := v.requireQueue(); err != nil {
			return err
		}

		q := v.queue
		prev := q.active
		v.undo.push(func() { q.active = prev })
		q.active = !prev
		active = q.active

		v.emit(&event.QueueToggled{Active: active})
		return nil
	})
	return active, err
}

// ============================================================================
// Claims
// ============================================================================

// ClaimWithdrawal pays caller for every processed epoch in epochIDs.
// Unprocessed or empty entries are skipped.
func (v *Vault) ClaimWithdrawal(ctx context.Context, caller uuid.UUID, epochIDs []uint64) (sdkmath.Int, error) {
	var assets sdkmath.Int
	err := v.call("claim_withdrawal", func() error {
		var err error
		assets, err = v.claim(caller, epochIDs)
		return err
	})
	return assets, err
}

// ClaimWithdrawalFor claims on behalf of each user. Assets still go to the
// user.
func (v *Vault) ClaimWithdrawalFor(ctx context.Context, caller uuid.UUID, users []uuid.UUID, epochIDs []uint64) (map[uuid.UUID]sdkmath.Int, error) {
	out := make(map[uuid.UUID]sdkmath.Int, len(users))
	err := v.call("claim_withdrawal_for", func() error {
		if err := v.authorize(access.RoleClaimer, caller); err != nil {
			return err
		}
		for _, user := range users {
			assets, err := v.claim(user, epochIDs)
			if err != nil {
				return err
			}
			out[user] = assets
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Vault) claim(user uuid.UUID, epochIDs []uint64) (sdkmath.Int, error) {
	if err := v.requireQueue(); err != nil {
		return sdkmath.Int{}, err
	}
	if len(epochIDs) == 0 {
		return sdkmath.Int{}, errorsmod.Wrapf(ErrEmptyEpochIDs, "user %s", user)
	}
	if ledger.IsNull(user) {
		return sdkmath.Int{}, errorsmod.Wrap(ErrInvalidReceiver, "claim for null account")
	}

	unit := v.shareUnit()
	total := sdkmath.ZeroInt()
	for _, epochID := range epochIDs {
		price, priced := v.queue.prices[epochID]
		if !priced {
			continue
		}
		shares := v.queue.request(user, epochID)
		if shares.IsZero() {
			continue
		}
		owed, err := vmath.MulDiv(shares, price, unit, vmath.RoundDown)
		if err != nil {
			return sdkmath.Int{}, err
		}
		if total, err = vmath.CheckedAdd(total, owed); err != nil {
			return sdkmath.Int{}, err
		}
		v.setRequest(user, epochID, sdkmath.ZeroInt())
	}

	if total.IsPositive() {
		v.setUnclaimed(vmath.SaturatingSub(v.queue.unclaimed, total))
		if err := v.asset.Transfer(v.id, user, total); err != nil {
			return sdkmath.Int{}, transferFailure("claim", err)
		}
	}

	v.emit(&event.WithdrawalClaimed{
		User:     user,
		EpochIDs: append([]uint64(nil), epochIDs...),
		Assets:   total,
	})
	return total, nil
}

// ============================================================================
// Queries
// ============================================================================

// LatestEpochID returns the current (Active) epoch, or 0 for a synchronous
// vault.
func (v *Vault) LatestEpochID() uint64 {
	if v.queue == nil {
		return 0
	}
	return v.queue.latestEpochID
}

// GetEpochState returns the lifecycle position of epochID.
func (v *Vault) GetEpochState(epochID uint64) EpochState {
	if v.queue == nil {
		return EpochInactive
	}
	return v.queue.state(epochID)
}

// GetEpochPrice returns the locked price of epochID, if processed.
func (v *Vault) GetEpochPrice(epochID uint64) EpochPrice {
	if v.queue == nil {
		return EpochPrice{Value: sdkmath.ZeroInt()}
	}
	price, ok := v.queue.prices[epochID]
	if !ok {
		return EpochPrice{Value: sdkmath.ZeroInt()}
	}
	return EpochPrice{Value: price, Valid: true}
}

// UserEpochRequest returns the shares user has queued in epochID.
func (v *Vault) UserEpochRequest(user uuid.UUID, epochID uint64) sdkmath.Int {
	if v.queue == nil {
		return sdkmath.ZeroInt()
	}
	return v.queue.request(user, epochID)
}

// UserEpochRequests returns every epoch with shares queued by user, in
// ascending order.
func (v *Vault) UserEpochRequests(user uuid.UUID) []uint64 {
	if v.queue == nil {
		return nil
	}
	ids := make([]uint64, 0, len(v.queue.requests[user]))
	for id := range v.queue.requests[user] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TotalRequestedShares returns the unprocessed shares queued in epochID.
func (v *Vault) TotalRequestedShares(epochID uint64) sdkmath.Int {
	if v.queue == nil {
		return sdkmath.ZeroInt()
	}
	return v.queue.total(epochID)
}

// PastEpochsUnclaimedAssets returns assets reserved for processed epochs.
func (v *Vault) PastEpochsUnclaimedAssets() sdkmath.Int {
	if v.queue == nil {
		return sdkmath.ZeroInt()
	}
	return v.queue.unclaimed
}
