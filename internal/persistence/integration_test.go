package persistence_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/persistence"
	"StrategyVault/internal/testutil"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog_PersistReplayAndCheckpoint(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	persistCh := make(chan persistence.CoreOutput, 64)
	worker := persistence.NewPersistenceWorker(db, persistCh, 4, 10*time.Millisecond,
		observability.NewMetricsWith(prometheus.NewRegistry()), observability.NopLogger())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	out := command.OutputFunc(func(o command.Output) {
		co, err := persistence.NewCoreOutput(o)
		assert.NoError(t, err)
		persistCh <- co
	})
	r := testutil.NewRunner(t, testutil.RunnerOptions{Output: out, Store: persistence.NewPostgresDedupStore(db)})
	stop := testutil.StartRunner(t, r)

	alice, admin, vault := testutil.AliceID, testutil.AdminID, testutil.VaultID
	testutil.Submit(t, r, command.TypeCreditAsset, "c1", admin, &command.CreditAssetPayload{Account: alice, Amount: sdkmath.NewInt(5_000)})
	testutil.Submit(t, r, command.TypeApproveAsset, "c2", alice, &command.ApproveAssetPayload{Spender: vault, Amount: sdkmath.NewInt(5_000)})
	testutil.Submit(t, r, command.TypeDeposit, "c3", alice, &command.DepositPayload{Assets: sdkmath.NewInt(5_000), Receiver: alice})
	rejected := testutil.Submit(t, r, command.TypeDeposit, "c4", alice, &command.DepositPayload{Assets: sdkmath.NewInt(1), Receiver: alice})
	require.Error(t, rejected.Err, "allowance is spent")

	stop()
	close(persistCh)
	require.NoError(t, <-done)

	snaps := persistence.NewSnapshotManager(db)
	latest, err := snaps.GetLatestCommandIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), latest)

	dedup := persistence.NewPostgresDedupStore(db)
	dup, err := dedup.IsDuplicate("deposit:c3")
	require.NoError(t, err)
	assert.True(t, dup)
	dup, err = dedup.IsDuplicate("deposit:c4")
	require.NoError(t, err)
	assert.False(t, dup, "rejected commands can be retried")

	applied, err := snaps.LoadCommandsFrom(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, applied, 4)
	assert.NotEmpty(t, applied[3].Error)

	replayed := testutil.NewRunner(t, testutil.RunnerOptions{})
	for _, a := range applied {
		replayed.Replay(ctx, a)
	}
	assert.Equal(t, r.Vault().StateHash(), replayed.Vault().StateHash())

	state, err := replayed.CheckpointNow()
	require.NoError(t, err)
	_, err = snaps.SaveSnapshot(ctx, state)
	require.NoError(t, err)

	n, err := snaps.VerifyPersisted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	loaded, err := snaps.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(4), loaded.CommandIndex)

	restored := testutil.NewRunner(t, testutil.RunnerOptions{})
	require.NoError(t, restored.Restore(loaded, nil))
	assert.Equal(t, r.Vault().StateHash(), restored.Vault().StateHash())
}

func TestMigrator_StatusAndDrift(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	m := persistence.NewMigrator(db, persistence.Migrations(), observability.NopLogger())
	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, st := range statuses {
		assert.True(t, st.Applied, st.Name)
		assert.False(t, st.Drifted, st.Name)
	}

	// Same version, different content.
	first := statuses[0]
	edited := fstest.MapFS{
		first.Name + ".up.sql": {Data: []byte("SELECT 1")},
	}
	err = persistence.NewMigrator(db, edited, observability.NopLogger()).Up(ctx)
	assert.ErrorIs(t, err, persistence.ErrMigrationDrift)
}
