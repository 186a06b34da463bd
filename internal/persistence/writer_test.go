package persistence

import (
	"testing"
	"testing/fstest"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/event"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = uuid.MustParse("00000000-0000-4000-8000-000000000002")
	bob   = uuid.MustParse("00000000-0000-4000-8000-000000000003")
)

func sampleOutput() command.Output {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := command.Command{
		Type:           command.TypeDeposit,
		Key:            "dep-1",
		Source:         "frontend",
		SourceSequence: 4,
		Caller:         alice,
		Payload:        &command.DepositPayload{Assets: sdkmath.NewInt(1_000), Receiver: bob},
	}
	env := event.Envelope{
		Sequence:   9,
		CommandKey: cmd.CompositeKey(),
		EventType:  event.EventTypeDeposit,
		Timestamp:  ts,
		Payload: &event.Deposit{
			Caller:   alice,
			Receiver: bob,
			Assets:   sdkmath.NewInt(1_000),
			Shares:   sdkmath.NewInt(1_000_000),
		},
	}
	env.StateHash[0] = 0xab
	env.PrevHash[31] = 0x01

	return command.Output{
		Applied: command.Applied{Index: 3, Command: cmd, Timestamp: ts},
		Events:  []event.Envelope{env},
	}
}

func TestNewCoreOutput_CommandRowRoundTrip(t *testing.T) {
	out := sampleOutput()

	co, err := NewCoreOutput(out)
	require.NoError(t, err)

	assert.Equal(t, int64(3), co.Command.Index)
	assert.Equal(t, "deposit:dep-1", co.Command.CommandKey)
	assert.Nil(t, co.Command.Error, "accepted commands have no error")

	applied, err := co.Command.Applied()
	require.NoError(t, err)
	assert.Equal(t, "dep-1", applied.Command.Key)
	assert.Equal(t, out.Applied.Timestamp, applied.Timestamp)
	assert.Equal(t, alice, applied.Command.Caller)

	p, ok := applied.Command.Payload.(*command.DepositPayload)
	require.True(t, ok)
	assert.Equal(t, "1000", p.Assets.String())
	assert.Equal(t, bob, p.Receiver)
}

func TestNewCoreOutput_RejectedCommandKeepsError(t *testing.T) {
	out := sampleOutput()
	out.Applied.Error = "insufficient balance"
	out.Events = nil

	co, err := NewCoreOutput(out)
	require.NoError(t, err)
	require.NotNil(t, co.Command.Error)
	assert.Empty(t, co.Events)

	applied, err := co.Command.Applied()
	require.NoError(t, err)
	assert.Equal(t, "insufficient balance", applied.Error)
}

func TestEventRow_EnvelopeRoundTrip(t *testing.T) {
	out := sampleOutput()

	co, err := NewCoreOutput(out)
	require.NoError(t, err)
	require.Len(t, co.Events, 1)
	assert.Equal(t, "Deposit", co.Events[0].EventType)
	assert.Len(t, co.Events[0].StateHash, 32)

	env, err := co.Events[0].Envelope()
	require.NoError(t, err)
	assert.Equal(t, out.Events[0].StateHash, env.StateHash)
	assert.Equal(t, out.Events[0].PrevHash, env.PrevHash)

	dep, ok := env.Payload.(*event.Deposit)
	require.True(t, ok)
	assert.Equal(t, "1000000", dep.Shares.String())
}

func TestCommandRow_UnknownTypeFails(t *testing.T) {
	_, err := CommandRow{Index: 1, CommandType: "flash_loan", Payload: []byte(`{}`)}.Applied()
	assert.ErrorContains(t, err, "unknown type")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2, $3)", placeholders(0, 3))
	assert.Equal(t, "($8, $9)", placeholders(7, 2))
}

func TestListMigrationFiles_SortedBySuffix(t *testing.T) {
	files := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"000001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("notes")},
	}

	up, err := ListMigrationFiles(files, ".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, up)
	assert.Equal(t, "000002", extractVersion(up[1]))
}

func TestMigrations_EmbeddedPairs(t *testing.T) {
	up, err := ListMigrationFiles(Migrations(), ".up.sql")
	require.NoError(t, err)
	down, err := ListMigrationFiles(Migrations(), ".down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, up)
	assert.Len(t, down, len(up), "every up migration has a down")
}

func TestLoadMigrations_PairsAndChecksums(t *testing.T) {
	files := fstest.MapFS{
		"000001_a.up.sql":   {Data: []byte("CREATE TABLE a ()")},
		"000001_a.down.sql": {Data: []byte("DROP TABLE a")},
		"000002_b.up.sql":   {Data: []byte("CREATE TABLE b ()")},
	}

	migs, err := LoadMigrations(files)
	require.NoError(t, err)
	require.Len(t, migs, 2)

	assert.Equal(t, "000001", migs[0].Version)
	assert.Equal(t, "000001_a", migs[0].Name)
	assert.Equal(t, "DROP TABLE a", migs[0].Down)
	assert.Empty(t, migs[1].Down, "a missing down file is allowed")
	assert.Len(t, migs[0].Checksum, 64)
	assert.NotEqual(t, migs[0].Checksum, migs[1].Checksum)

	files["000001_a.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id INT)")}
	edited, err := LoadMigrations(files)
	require.NoError(t, err)
	assert.NotEqual(t, migs[0].Checksum, edited[0].Checksum)
}
