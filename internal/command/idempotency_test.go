package command_test

import (
	"errors"
	"testing"

	"StrategyVault/internal/command"
	"StrategyVault/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	keys  map[string]bool
	err   error
	calls int
}

func (s *stubStore) IsDuplicate(key string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.keys[key], nil
}

func newChecker(store command.DedupStore) *command.IdempotencyChecker {
	return command.NewIdempotencyChecker(2, store, observability.NewMetricsWith(prometheus.NewRegistry()), observability.NopLogger())
}

func TestIdempotencyLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	lru := command.NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	require.True(t, lru.Contains("a"))
	lru.Add("c")

	assert.True(t, lru.Contains("a"))
	assert.False(t, lru.Contains("b"))
	assert.True(t, lru.Contains("c"))
	assert.Equal(t, int64(1), lru.Evictions())
}

func TestIdempotencyLRU_KeysRoundTripThroughWarm(t *testing.T) {
	lru := command.NewIdempotencyLRU(3)
	lru.Add("a")
	lru.Add("b")
	lru.Add("c")
	lru.Contains("a")

	keys := lru.Keys()
	assert.Equal(t, []string{"b", "c", "a"}, keys)

	warm := command.NewIdempotencyLRU(3)
	warm.WarmFromKeys(keys)
	assert.Equal(t, keys, warm.Keys())
}

func TestIdempotencyChecker_FallsBackToStore(t *testing.T) {
	store := &stubStore{keys: map[string]bool{"deposit:old": true}}
	ic := newChecker(store)

	assert.True(t, ic.IsDuplicate(command.TypeDeposit, "old"))
	assert.True(t, ic.IsDuplicate(command.TypeDeposit, "old"))
	assert.Equal(t, 1, store.calls, "second hit is served by the LRU")

	assert.False(t, ic.IsDuplicate(command.TypeDeposit, "new"))
	ic.MarkProcessed(command.TypeDeposit, "new")
	assert.True(t, ic.IsDuplicate(command.TypeDeposit, "new"))
}

func TestIdempotencyChecker_StoreErrorIsNotDuplicate(t *testing.T) {
	ic := newChecker(&stubStore{err: errors.New("connection refused")})
	assert.False(t, ic.IsDuplicate(command.TypeMint, "k"))
}

func TestIdempotencyChecker_TypeIsPartOfKey(t *testing.T) {
	ic := newChecker(nil)
	ic.MarkProcessed(command.TypeDeposit, "k")
	assert.False(t, ic.IsDuplicate(command.TypeMint, "k"))
}
