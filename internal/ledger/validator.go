package ledger

import (
	vmath "StrategyVault/internal/math"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

// InvariantValidator checks structural ledger invariants after a call.
type InvariantValidator struct {
	allocations *AllocationLedger
	shares      *BalanceBook
}

func NewInvariantValidator(allocations *AllocationLedger, shares *BalanceBook) *InvariantValidator {
	return &InvariantValidator{
		allocations: allocations,
		shares:      shares,
	}
}

// ValidateSupply verifies share balances sum to total supply.
func (v *InvariantValidator) ValidateSupply() error {
	sum := sdkmath.ZeroInt()
	for _, holder := range v.shares.Holders() {
		sum = sum.Add(v.shares.BalanceOf(holder))
	}
	if !sum.Equal(v.shares.TotalSupply()) {
		return errorsmod.Wrapf(ErrInvariantViolation, "share balances sum %s != total supply %s", sum, v.shares.TotalSupply())
	}
	return nil
}

// ValidateAllocations verifies every allocated amount is within [0, uint120]
// and no registered strategy reads as Inactive.
func (v *InvariantValidator) ValidateAllocations() error {
	for id, data := range v.allocations.Snapshot() {
		if data.Allocated.IsNegative() {
			return errorsmod.Wrapf(ErrInvariantViolation, "strategy %s allocated %s is negative", id, data.Allocated)
		}
		if data.Allocated.GT(vmath.MaxUint120) {
			return errorsmod.Wrapf(ErrInvariantViolation, "strategy %s allocated %s exceeds uint120", id, data.Allocated)
		}
		if data.Status == StatusInactive {
			return errorsmod.Wrapf(ErrInvariantViolation, "registered strategy %s is inactive", id)
		}
	}
	return nil
}

// ValidateAll runs every check.
func (v *InvariantValidator) ValidateAll() error {
	if err := v.ValidateSupply(); err != nil {
		return err
	}
	return v.ValidateAllocations()
}
