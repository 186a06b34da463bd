package core_test

import (
	"context"
	"testing"
	"time"

	"StrategyVault/internal/access"
	"StrategyVault/internal/core"
	"StrategyVault/internal/event"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/strategy"
	"StrategyVault/internal/token"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

// usdc is one whole unit of a 6-decimal asset.
const usdc = 1_000_000

func units(n int64) sdkmath.Int { return sdkmath.NewInt(n * usdc) }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	t      *testing.T
	ctx    context.Context
	vault  *core.Vault
	asset  *token.MemoryAsset
	clock  *fakeClock
	roles  *access.Registry
	admin  uuid.UUID
	events []event.Envelope
}

func newHarness(t *testing.T, async bool) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		ctx:   context.Background(),
		asset: token.NewMemoryAsset("USDC", 6),
		clock: &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		roles: access.NewRegistry(),
		admin: uuid.New(),
	}
	h.roles.Grant(access.RoleAdmin, h.admin)

	logger := observability.NopLogger()
	v, err := core.NewVault(core.Config{
		ID:         uuid.New(),
		Asset:      h.asset,
		Async:      async,
		Clock:      h.clock,
		Authorizer: h.roles,
		Sink:       core.SinkFunc(func(env event.Envelope) { h.events = append(h.events, env) }),
		Metrics:    observability.NewMetricsWith(prometheus.NewRegistry()),
		Logger:     &logger,
	})
	require.NoError(t, err)
	h.vault = v
	return h
}

// fund mints assets to user and approves the vault to pull them.
func (h *harness) fund(user uuid.UUID, amount sdkmath.Int) {
	h.asset.Mint(user, amount)
	require.NoError(h.t, h.asset.Approve(user, h.vault.ID(), h.asset.BalanceOf(user)))
}

// deposit funds a fresh user and deposits amount for them.
func (h *harness) deposit(amount sdkmath.Int) uuid.UUID {
	user := uuid.New()
	h.fund(user, amount)
	_, err := h.vault.Deposit(h.ctx, user, amount, user)
	require.NoError(h.t, err)
	return user
}

func (h *harness) addStrategy() *strategy.MemoryStrategy {
	s := strategy.NewMemoryStrategy(uuid.New(), h.asset, h.vault.ID())
	require.NoError(h.t, h.vault.AddStrategy(h.ctx, h.admin, s))
	return s
}

func (h *harness) allocate(s *strategy.MemoryStrategy, amount sdkmath.Int) {
	require.NoError(h.t, h.vault.AllocateFunds(h.ctx, h.admin, []strategy.Instruction{
		{IsDeposit: true, Strategy: s.ID(), ExtraData: strategy.EncodeAmount(amount)},
	}))
}

func (h *harness) eventsOf(et event.EventType) []event.Envelope {
	var out []event.Envelope
	for _, env := range h.events {
		if env.EventType == et {
			out = append(out, env)
		}
	}
	return out
}

func deallocateAll(id uuid.UUID, amount sdkmath.Int) []strategy.Instruction {
	return []strategy.Instruction{{IsDeposit: false, Strategy: id, ExtraData: strategy.EncodeAmount(amount)}}
}
