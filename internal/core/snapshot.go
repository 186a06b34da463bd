package core

import (
	"fmt"
	"time"

	"StrategyVault/internal/ledger"
	"StrategyVault/internal/strategy"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Snapshot is the full vault state at one sequence. Adapters and hooks are
// live collaborators and are rebound on restore, not serialized.
type Snapshot struct {
	VaultID           uuid.UUID                         `json:"vault_id"`
	Sequence          int64                             `json:"sequence"`
	StateHash         []byte                            `json:"state_hash"`
	DecimalsOffset    uint8                             `json:"decimals_offset"`
	CachedTotalAssets sdkmath.Int                       `json:"cached_total_assets"`
	Shares            ledger.BookSnapshot               `json:"shares"`
	Strategies        map[uuid.UUID]ledger.StrategyData `json:"strategies"`
	DeallocationOrder []uuid.UUID                       `json:"deallocation_order"`
	Fees              FeeConfig                         `json:"fees"`
	Limits            Limits                            `json:"limits"`
	Queue             *QueueSnapshot                    `json:"queue,omitempty"`
	CreatedAt         time.Time                         `json:"created_at"`
}

// QueueSnapshot is the epoch queue portion of a Snapshot.
type QueueSnapshot struct {
	Active         bool                                 `json:"active"`
	LatestEpochID  uint64                               `json:"latest_epoch_id"`
	Requests       map[uuid.UUID]map[uint64]sdkmath.Int `json:"requests"`
	TotalRequested map[uint64]sdkmath.Int               `json:"total_requested"`
	Prices         map[uint64]sdkmath.Int               `json:"prices"`
	Unclaimed      sdkmath.Int                          `json:"unclaimed"`
}

// AdapterResolver returns the live adapter for a restored strategy.
type AdapterResolver func(id uuid.UUID) (strategy.Adapter, error)

// CreateSnapshot captures the vault. It fails with ErrReentrantCall if a call
// is in progress.
func (v *Vault) CreateSnapshot() (*Snapshot, error) {
	var snap *Snapshot
	err := v.read(func() error {
		hash := v.chain.tip
		snap = &Snapshot{
			VaultID:           v.id,
			Sequence:          v.sequence,
			StateHash:         hash[:],
			DecimalsOffset:    v.offset,
			CachedTotalAssets: v.cachedTotalAssets,
			Shares:            v.shares.Snapshot(),
			Strategies:        v.allocations.Snapshot(),
			DeallocationOrder: v.allocations.Order(),
			Fees:              v.fees,
			Limits:            v.limits,
			CreatedAt:         v.now,
		}
		if v.queue != nil {
			snap.Queue = v.queue.snapshot()
		}
		return nil
	})
	return snap, err
}

// RestoreFromSnapshot replaces the vault's state with snap. Every strategy
// in snap must resolve to an adapter. Hooks are cleared; reinstall them with
// SetHooks.
func (v *Vault) RestoreFromSnapshot(snap *Snapshot, resolve AdapterResolver) error {
	if !v.guard.TryLock() {
		return errorsmod.Wrap(ErrReentrantCall, "restore during call")
	}
	defer v.guard.Unlock()

	if snap.VaultID != v.id {
		return errorsmod.Wrapf(ErrInvalidConfig, "snapshot of vault %s restored into %s", snap.VaultID, v.id)
	}
	if snap.DecimalsOffset != v.offset {
		return errorsmod.Wrapf(ErrInvalidConfig, "snapshot offset %d vault offset %d", snap.DecimalsOffset, v.offset)
	}
	if (snap.Queue != nil) != (v.queue != nil) {
		return errorsmod.Wrap(ErrInvalidConfig, "snapshot queue mode does not match vault")
	}
	if len(snap.StateHash) != 32 {
		return errorsmod.Wrapf(ErrInvalidConfig, "state hash length %d", len(snap.StateHash))
	}

	adapters := make(map[uuid.UUID]strategy.Adapter, len(snap.Strategies))
	for id := range snap.Strategies {
		adapter, err := resolve(id)
		if err != nil {
			return fmt.Errorf("resolve strategy %s: %w", id, err)
		}
		adapters[id] = adapter
	}

	allocations := ledger.NewAllocationLedger()
	for id, data := range snap.Strategies {
		allocations.Restore(id, data, true)
	}
	allocations.RestoreOrder(snap.DeallocationOrder)

	shares := ledger.NewBalanceBook()
	shares.Restore(snap.Shares)

	validator := ledger.NewInvariantValidator(allocations, shares)
	if err := validator.ValidateAll(); err != nil {
		return fmt.Errorf("snapshot at seq %d: %w", snap.Sequence, err)
	}

	v.allocations = allocations
	v.shares = shares
	v.validator = validator
	v.adapters = adapters
	v.cachedTotalAssets = snap.CachedTotalAssets
	v.fees = snap.Fees
	v.limits = snap.Limits
	v.hooks = nil
	v.hookConfig = HookConfig{}
	v.sequence = snap.Sequence

	var hash [32]byte
	copy(hash[:], snap.StateHash)
	v.chain.reset(hash)

	if snap.Queue != nil {
		v.queue.restore(snap.Queue)
	}

	v.logger.Info().
		Int64("sequence", snap.Sequence).
		Int("strategies", len(adapters)).
		Msg("vault restored from snapshot")
	return nil
}

func (q *epochQueue) snapshot() *QueueSnapshot {
	out := &QueueSnapshot{
		Active:         q.active,
		LatestEpochID:  q.latestEpochID,
		Requests:       make(map[uuid.UUID]map[uint64]sdkmath.Int, len(q.requests)),
		TotalRequested: make(map[uint64]sdkmath.Int, len(q.totalRequested)),
		Prices:         make(map[uint64]sdkmath.Int, len(q.prices)),
		Unclaimed:      q.unclaimed,
	}
	for user, byEpoch := range q.requests {
		if len(byEpoch) == 0 {
			continue
		}
		inner := make(map[uint64]sdkmath.Int, len(byEpoch))
		for id, shares := range byEpoch {
			inner[id] = shares
		}
		out.Requests[user] = inner
	}
	for id, shares := range q.totalRequested {
		out.TotalRequested[id] = shares
	}
	for id, price := range q.prices {
		out.Prices[id] = price
	}
	return out
}

// restore keeps q's identity since the vault's locked-assets policy points
// at it.
func (q *epochQueue) restore(snap *QueueSnapshot) {
	q.active = snap.Active
	q.latestEpochID = snap.LatestEpochID
	q.requests = make(map[uuid.UUID]map[uint64]sdkmath.Int, len(snap.Requests))
	q.totalRequested = make(map[uint64]sdkmath.Int, len(snap.TotalRequested))
	q.prices = make(map[uint64]sdkmath.Int, len(snap.Prices))
	q.unclaimed = snap.Unclaimed
	if q.unclaimed.IsNil() {
		q.unclaimed = sdkmath.ZeroInt()
	}
	for user, byEpoch := range snap.Requests {
		inner := make(map[uint64]sdkmath.Int, len(byEpoch))
		for id, shares := range byEpoch {
			inner[id] = shares
		}
		q.requests[user] = inner
	}
	for id, shares := range snap.TotalRequested {
		q.totalRequested[id] = shares
	}
	for id, price := range snap.Prices {
		q.prices[id] = price
	}
}
