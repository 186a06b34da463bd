package ledger

import (
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// StrategyStatus is the lifecycle state of a strategy in the ledger.
type StrategyStatus uint8

const (
	StatusInactive StrategyStatus = iota // Not registered
	StatusActive
	StatusHalted
)

func (s StrategyStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusHalted:
		return "halted"
	default:
		return "inactive"
	}
}

// StrategyData is the per-strategy ledger record.
type StrategyData struct {
	Status    StrategyStatus `json:"status"`
	Allocated sdkmath.Int    `json:"allocated"`
}

func inactiveStrategy() StrategyData {
	return StrategyData{Status: StatusInactive, Allocated: sdkmath.ZeroInt()}
}

// AllocationLedger tracks registered strategies, their allocated capital and
// the withdrawal-time deallocation order.
// Not thread-safe. Owned by the vault's single writer.
type AllocationLedger struct {
	strategies map[uuid.UUID]StrategyData
	order      []uuid.UUID
}

func NewAllocationLedger() *AllocationLedger {
	return &AllocationLedger{
		strategies: make(map[uuid.UUID]StrategyData),
	}
}

// Add registers a strategy as Active with zero allocation.
func (l *AllocationLedger) Add(id uuid.UUID) error {
	if _, exists := l.strategies[id]; exists {
		return errorsmod.Wrapf(ErrStrategyAlreadyAdded, "strategy %s", id)
	}
	l.strategies[id] = StrategyData{Status: StatusActive, Allocated: sdkmath.ZeroInt()}
	return nil
}

// Remove deletes a strategy's ledger entry. A strategy with allocation can
// only be removed once halted; an active strategy must first be purged from
// the deallocation order.
func (l *AllocationLedger) Remove(id uuid.UUID) error {
	data, exists := l.strategies[id]
	if !exists {
		return errorsmod.Wrapf(ErrStrategyDoesNotExist, "strategy %s", id)
	}
	if data.Allocated.IsPositive() && data.Status != StatusHalted {
		return errorsmod.Wrapf(ErrStrategyHasAllocation, "strategy %s allocated %s", id, data.Allocated)
	}
	if data.Status != StatusHalted && l.inOrder(id) {
		return errorsmod.Wrapf(ErrStrategyInDeallocationOrder, "strategy %s", id)
	}
	delete(l.strategies, id)
	return nil
}

// Toggle flips Active <-> Halted and returns the new status.
func (l *AllocationLedger) Toggle(id uuid.UUID) (StrategyStatus, error) {
	data, exists := l.strategies[id]
	if !exists {
		return StatusInactive, errorsmod.Wrapf(ErrStrategyDoesNotExist, "strategy %s", id)
	}
	switch data.Status {
	case StatusActive:
		data.Status = StatusHalted
	case StatusHalted:
		data.Status = StatusActive
	default:
		return StatusInactive, errorsmod.Wrapf(ErrCannotToggleInactiveStrategy, "strategy %s", id)
	}
	l.strategies[id] = data
	return data.Status, nil
}

// Get returns the strategy record. Unknown strategies read as Inactive with
// zero allocation.
func (l *AllocationLedger) Get(id uuid.UUID) StrategyData {
	data, exists := l.strategies[id]
	if !exists {
		return inactiveStrategy()
	}
	return data
}

// IsMember reports whether the strategy is registered.
func (l *AllocationLedger) IsMember(id uuid.UUID) bool {
	_, exists := l.strategies[id]
	return exists
}

// IsActive reports whether the strategy is registered and Active.
func (l *AllocationLedger) IsActive(id uuid.UUID) bool {
	return l.Get(id).Status == StatusActive
}

// SetAllocated overwrites the allocated amount, clamped to uint120.
func (l *AllocationLedger) SetAllocated(id uuid.UUID, amount sdkmath.Int) {
	data, exists := l.strategies[id]
	if !exists {
		return
	}
	data.Allocated = vmath.SaturateUint120(amount)
	l.strategies[id] = data
}

// Strategies returns registered strategy ids in deterministic order.
func (l *AllocationLedger) Strategies() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.strategies))
	for id := range l.strategies {
		ids = append(ids, id)
	}
	SortAccounts(ids)
	return ids
}

// ActiveStrategies returns Active strategy ids in deterministic order.
func (l *AllocationLedger) ActiveStrategies() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.strategies))
	for id, data := range l.strategies {
		if data.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	SortAccounts(ids)
	return ids
}

// TotalAllocated sums allocated across all registered strategies.
func (l *AllocationLedger) TotalAllocated() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, data := range l.strategies {
		total = total.Add(data.Allocated)
	}
	return total
}

// SetOrder replaces the deallocation order wholesale. Entries are not
// deduplicated.
func (l *AllocationLedger) SetOrder(order []uuid.UUID) error {
	for _, id := range order {
		data, exists := l.strategies[id]
		if !exists {
			return errorsmod.Wrapf(ErrStrategyDoesNotExist, "deallocation order entry %s", id)
		}
		if data.Status == StatusHalted {
			return errorsmod.Wrapf(ErrStrategyIsHalted, "deallocation order entry %s", id)
		}
	}
	l.order = append([]uuid.UUID(nil), order...)
	return nil
}

// Order returns a copy of the deallocation order.
func (l *AllocationLedger) Order() []uuid.UUID {
	return append([]uuid.UUID(nil), l.order...)
}

// Restore puts back a previous record for id, or deletes it when it did not
// exist. Used to roll back a failed call.
func (l *AllocationLedger) Restore(id uuid.UUID, data StrategyData, existed bool) {
	if !existed {
		delete(l.strategies, id)
		return
	}
	l.strategies[id] = data
}

// Lookup returns the raw record and whether it exists.
func (l *AllocationLedger) Lookup(id uuid.UUID) (StrategyData, bool) {
	data, exists := l.strategies[id]
	return data, exists
}

// RestoreOrder replaces the order without validation.
func (l *AllocationLedger) RestoreOrder(order []uuid.UUID) {
	l.order = append([]uuid.UUID(nil), order...)
}

// Snapshot returns a copy of all strategy records.
func (l *AllocationLedger) Snapshot() map[uuid.UUID]StrategyData {
	out := make(map[uuid.UUID]StrategyData, len(l.strategies))
	for id, data := range l.strategies {
		out[id] = data
	}
	return out
}

func (l *AllocationLedger) inOrder(id uuid.UUID) bool {
	for _, entry := range l.order {
		if entry == id {
			return true
		}
	}
	return false
}
