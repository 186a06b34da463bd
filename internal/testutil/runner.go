package testutil

import (
	"context"
	"testing"

	"StrategyVault/internal/access"
	"StrategyVault/internal/command"
	"StrategyVault/internal/core"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/strategy"
	"StrategyVault/internal/token"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// Fixed identities shared by shell tests.
var (
	VaultID    = uuid.MustParse("00000000-0000-4000-8000-0000000000aa")
	AdminID    = uuid.MustParse("00000000-0000-4000-8000-000000000001")
	AliceID    = uuid.MustParse("00000000-0000-4000-8000-000000000002")
	BobID      = uuid.MustParse("00000000-0000-4000-8000-000000000003")
	StrategyID = uuid.MustParse("00000000-0000-4000-8000-0000000000b1")
)

// RunnerOptions tweaks NewRunner.
type RunnerOptions struct {
	Async  bool
	Output command.OutputSink
	Store  command.DedupStore
}

// NewRunner builds a runner over a fresh in-memory asset with AdminID
// holding every role and one registered (not yet added) memory strategy.
func NewRunner(t *testing.T, opts RunnerOptions) *command.Runner {
	t.Helper()
	asset := token.NewMemoryAsset("USDC", 6)

	roles := access.NewRegistry()
	roles.Grant(access.RoleAdmin, AdminID)

	registry := strategy.NewRegistry()
	require.NoError(t, registry.Register(strategy.NewMemoryStrategy(StrategyID, asset, VaultID)))

	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	r, err := command.NewRunner(command.Config{
		Vault:      core.Config{ID: VaultID, Asset: asset, Authorizer: roles, Async: opts.Async},
		Strategies: registry,
		Dedup:      command.NewIdempotencyChecker(128, opts.Store, metrics, observability.NopLogger()),
		Output:     opts.Output,
		Metrics:    metrics,
		Logger:     observability.NopLogger(),
	})
	require.NoError(t, err)
	return r
}

// StartRunner runs r until the returned stop function is called. stop waits
// for Run to return, after which r.Vault() is safe to read.
func StartRunner(t *testing.T, r *command.Runner) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	var stopped bool
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return stop
}

// Submit applies a command and fails the test on transport errors. Vault
// rejections are returned in Result.Err.
func Submit(t *testing.T, r *command.Runner, typ command.Type, key string, caller uuid.UUID, p command.Payload) command.Result {
	t.Helper()
	res, err := r.Submit(context.Background(), &command.Command{Type: typ, Key: key, Caller: caller, Payload: p})
	require.NoError(t, err)
	return res
}
