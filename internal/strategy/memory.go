package strategy

import (
	"context"
	"fmt"

	vmath "StrategyVault/internal/math"
	"StrategyVault/internal/token"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// MemoryStrategy is an atomic adapter that holds its funds as a balance on a
// MemoryAsset under its own id. Its value is whatever that balance is, so
// yield and loss are simulated by minting or burning.
type MemoryStrategy struct {
	id    uuid.UUID
	asset *token.MemoryAsset
	vault uuid.UUID

	maxAllocation sdkmath.Int
	withdrawLimit *sdkmath.Int
	shortfall     sdkmath.Int

	allocateErr   error
	deallocateErr error
	withdrawErr   error
	callback      func(ctx context.Context)
}

func NewMemoryStrategy(id uuid.UUID, asset *token.MemoryAsset, vault uuid.UUID) *MemoryStrategy {
	return &MemoryStrategy{
		id:            id,
		asset:         asset,
		vault:         vault,
		maxAllocation: vmath.MaxUint256,
		shortfall:     sdkmath.ZeroInt(),
	}
}

func (s *MemoryStrategy) ID() uuid.UUID      { return s.id }
func (s *MemoryStrategy) Asset() string      { return s.asset.Denom() }
func (s *MemoryStrategy) StrategyType() Type { return TypeAtomic }

func (s *MemoryStrategy) AllocateFunds(ctx context.Context, data []byte) (sdkmath.Int, error) {
	s.invokeCallback(ctx)
	if s.allocateErr != nil {
		return sdkmath.Int{}, s.allocateErr
	}
	amount, err := DecodeAmount(data)
	if err != nil {
		return sdkmath.Int{}, err
	}

	room := vmath.SaturatingSub(s.maxAllocation, s.asset.BalanceOf(s.id))
	amount = sdkmath.MinInt(amount, room)
	if amount.IsZero() {
		return amount, nil
	}

	if err := s.asset.TransferFrom(s.id, s.vault, s.id, amount); err != nil {
		return sdkmath.Int{}, fmt.Errorf("strategy %s pull: %w", s.id, err)
	}
	return amount, nil
}

func (s *MemoryStrategy) DeallocateFunds(ctx context.Context, data []byte) (sdkmath.Int, error) {
	s.invokeCallback(ctx)
	if s.deallocateErr != nil {
		return sdkmath.Int{}, s.deallocateErr
	}
	amount, err := DecodeAmount(data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return s.send(sdkmath.MinInt(amount, s.asset.BalanceOf(s.id)))
}

func (s *MemoryStrategy) OnWithdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	s.invokeCallback(ctx)
	if s.withdrawErr != nil {
		return sdkmath.Int{}, s.withdrawErr
	}
	limit, _ := s.MaxWithdraw(ctx)
	deliver := vmath.SaturatingSub(sdkmath.MinInt(amount, limit), s.shortfall)
	return s.send(deliver)
}

func (s *MemoryStrategy) TotalAllocatedValue(ctx context.Context) (sdkmath.Int, error) {
	return s.asset.BalanceOf(s.id), nil
}

func (s *MemoryStrategy) MaxAllocation(ctx context.Context) (sdkmath.Int, error) {
	return s.maxAllocation, nil
}

func (s *MemoryStrategy) MaxWithdraw(ctx context.Context) (sdkmath.Int, error) {
	bal := s.asset.BalanceOf(s.id)
	if s.withdrawLimit != nil {
		return sdkmath.MinInt(bal, *s.withdrawLimit), nil
	}
	return bal, nil
}

// SetValue mints or burns so the strategy reports exactly value.
func (s *MemoryStrategy) SetValue(value sdkmath.Int) error {
	current := s.asset.BalanceOf(s.id)
	switch {
	case value.GT(current):
		return s.asset.Mint(s.id, value.Sub(current))
	case value.LT(current):
		return s.asset.Burn(s.id, current.Sub(value))
	}
	return nil
}

// SetWithdrawLimit caps MaxWithdraw. nil removes the cap.
func (s *MemoryStrategy) SetWithdrawLimit(limit *sdkmath.Int) { s.withdrawLimit = limit }

// SetMaxAllocation caps the balance AllocateFunds will fill up to.
func (s *MemoryStrategy) SetMaxAllocation(limit sdkmath.Int) { s.maxAllocation = limit }

// SetShortfall makes OnWithdraw deliver this much less than asked.
func (s *MemoryStrategy) SetShortfall(amount sdkmath.Int) { s.shortfall = amount }

func (s *MemoryStrategy) SetAllocateError(err error)   { s.allocateErr = err }
func (s *MemoryStrategy) SetDeallocateError(err error) { s.deallocateErr = err }
func (s *MemoryStrategy) SetWithdrawError(err error)   { s.withdrawErr = err }

// SetCallback installs a function run at the start of every mutating
// adapter call, e.g. to attempt re-entry into the vault.
func (s *MemoryStrategy) SetCallback(fn func(ctx context.Context)) { s.callback = fn }

func (s *MemoryStrategy) invokeCallback(ctx context.Context) {
	if s.callback != nil {
		s.callback(ctx)
	}
}

func (s *MemoryStrategy) send(amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsZero() {
		return amount, nil
	}
	if err := s.asset.Transfer(s.id, s.vault, amount); err != nil {
		return sdkmath.Int{}, fmt.Errorf("strategy %s return: %w", s.id, err)
	}
	return amount, nil
}
