package core_test

import (
	"testing"

	"StrategyVault/internal/core"
	"StrategyVault/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashChain_LinksEveryEvent(t *testing.T) {
	h := newHarness(t, true)
	h.deposit(units(100))
	h.deposit(units(50))
	s := h.addStrategy()
	h.allocate(s, units(40))

	require.NotEmpty(t, h.events)
	prev := core.GenesisHash()
	for i, env := range h.events {
		assert.Equal(t, int64(i+1), env.Sequence)
		assert.Equal(t, prev, env.PrevHash, "seq %d", env.Sequence)
		assert.True(t, core.VerifyEnvelope(env), "seq %d", env.Sequence)
		prev = env.StateHash
	}
	assert.Equal(t, prev, h.vault.StateHash())
}

func TestHashChain_DetectsTamperedPayload(t *testing.T) {
	h := newHarness(t, false)
	h.deposit(units(100))

	deposits := h.eventsOf(event.EventTypeDeposit)
	require.Len(t, deposits, 1)

	env := deposits[0]
	orig := env.Payload.(*event.Deposit)
	forged := *orig
	forged.Shares = orig.Shares.MulRaw(2)
	env.Payload = &forged

	assert.False(t, core.VerifyEnvelope(env))
	assert.True(t, core.VerifyEnvelope(deposits[0]))
}

func TestChainHash_DependsOnSequence(t *testing.T) {
	digest := []byte("payload")
	g := core.GenesisHash()
	assert.NotEqual(t, core.ChainHash(g, 1, digest), core.ChainHash(g, 2, digest))
	assert.Equal(t, core.ChainHash(g, 1, digest), core.ChainHash(g, 1, digest))
}
