package strategy_test

import (
	"context"
	"testing"

	"StrategyVault/internal/strategy"
	"StrategyVault/internal/token"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStrategy_AllocateAndWithdraw(t *testing.T) {
	ctx := context.Background()
	asset := token.NewMemoryAsset("USDC", 6)
	vault := uuid.New()
	asset.Mint(vault, sdkmath.NewInt(1000))

	s := strategy.NewMemoryStrategy(uuid.New(), asset, vault)
	require.NoError(t, asset.Approve(vault, s.ID(), sdkmath.NewInt(1000)))

	got, err := s.AllocateFunds(ctx, strategy.EncodeAmount(sdkmath.NewInt(600)))
	require.NoError(t, err)
	assert.Equal(t, "600", got.String())

	value, _ := s.TotalAllocatedValue(ctx)
	assert.Equal(t, "600", value.String())

	limit := sdkmath.NewInt(100)
	s.SetWithdrawLimit(&limit)
	got, err = s.OnWithdraw(ctx, sdkmath.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())
	assert.Equal(t, "500", asset.BalanceOf(vault).String())
}

func TestMemoryStrategy_MaxAllocationCapsDeposit(t *testing.T) {
	ctx := context.Background()
	asset := token.NewMemoryAsset("USDC", 6)
	vault := uuid.New()
	asset.Mint(vault, sdkmath.NewInt(1000))

	s := strategy.NewMemoryStrategy(uuid.New(), asset, vault)
	s.SetMaxAllocation(sdkmath.NewInt(250))
	require.NoError(t, asset.Approve(vault, s.ID(), sdkmath.NewInt(1000)))

	got, err := s.AllocateFunds(ctx, strategy.EncodeAmount(sdkmath.NewInt(600)))
	require.NoError(t, err)
	assert.Equal(t, "250", got.String())
}

func TestMemoryStrategy_SetValue(t *testing.T) {
	asset := token.NewMemoryAsset("USDC", 6)
	s := strategy.NewMemoryStrategy(uuid.New(), asset, uuid.New())

	require.NoError(t, s.SetValue(sdkmath.NewInt(50)))
	require.NoError(t, s.SetValue(sdkmath.NewInt(20)))
	value, _ := s.TotalAllocatedValue(context.Background())
	assert.Equal(t, "20", value.String())
}

func TestBatchPayloadRoundTrip(t *testing.T) {
	batch := []strategy.Instruction{
		{IsDeposit: true, Strategy: uuid.New(), ExtraData: strategy.EncodeAmount(sdkmath.NewInt(7))},
	}
	data, err := strategy.EncodeBatch(batch)
	require.NoError(t, err)

	decoded, err := strategy.DecodeBatch(data)
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)
}

func TestDecodeAmount_Invalid(t *testing.T) {
	_, err := strategy.DecodeAmount([]byte("abc"))
	assert.Error(t, err)
	_, err = strategy.DecodeAmount([]byte("-5"))
	assert.Error(t, err)
}
