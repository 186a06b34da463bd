// Package strategy defines the contract the vault consumes from yield
// adapters, plus an in-memory adapter.
package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Type classifies how an adapter settles.
type Type uint8

const (
	TypeAtomic Type = iota
	TypeAsync
	TypeCrosschain
)

func (t Type) String() string {
	switch t {
	case TypeAtomic:
		return "atomic"
	case TypeAsync:
		return "async"
	case TypeCrosschain:
		return "crosschain"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Adapter is an external yield destination. The vault treats every call as
// untrusted: results are reconciled against the ledger, never taken as state.
type Adapter interface {
	ID() uuid.UUID

	// Asset returns the denom of the underlying the adapter accepts.
	Asset() string

	// AllocateFunds pulls funds from the vault as described by data and
	// returns the amount actually allocated.
	AllocateFunds(ctx context.Context, data []byte) (sdkmath.Int, error)

	// DeallocateFunds returns funds to the vault as described by data and
	// returns the amount actually returned.
	DeallocateFunds(ctx context.Context, data []byte) (sdkmath.Int, error)

	// OnWithdraw returns up to amount to the vault during withdrawal
	// fulfillment and reports what was delivered.
	OnWithdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)

	TotalAllocatedValue(ctx context.Context) (sdkmath.Int, error)
	MaxAllocation(ctx context.Context) (sdkmath.Int, error)
	MaxWithdraw(ctx context.Context) (sdkmath.Int, error)
	StrategyType() Type
}
