package command_test

import (
	"encoding/json"
	"testing"

	"StrategyVault/internal/command"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_UnmarshalDecodesTypedPayload(t *testing.T) {
	raw := `{
		"type": "withdraw",
		"key": "w-1",
		"source": "frontend",
		"source_sequence": 7,
		"caller": "00000000-0000-4000-8000-000000000002",
		"payload": {
			"assets": "250000",
			"receiver": "00000000-0000-4000-8000-000000000003",
			"owner": "00000000-0000-4000-8000-000000000002"
		}
	}`

	var cmd command.Command
	require.NoError(t, json.Unmarshal([]byte(raw), &cmd))

	assert.Equal(t, command.TypeWithdraw, cmd.Type)
	assert.Equal(t, "withdraw:w-1", cmd.CompositeKey())
	assert.Equal(t, int64(7), cmd.SourceSequence)

	p, ok := cmd.Payload.(*command.WithdrawPayload)
	require.True(t, ok, "got %T", cmd.Payload)
	assert.Equal(t, "250000", p.Assets.String())
	assert.Equal(t, aliceID, p.Owner)
}

func TestDecodePayload_Validation(t *testing.T) {
	cases := []struct {
		name    string
		t       command.Type
		payload string
		wantErr string
	}{
		{"missing amount", command.TypeDeposit, `{"receiver":"00000000-0000-4000-8000-000000000002"}`, "assets is required"},
		{"negative amount", command.TypeMint, `{"shares":"-1"}`, "must not be negative"},
		{"missing strategy", command.TypeAddStrategy, `{}`, "strategy is required"},
		{"bad instruction", command.TypeAllocateFunds, `{"instructions":[{"is_deposit":true}]}`, "instructions[0].strategy is required"},
		{"bad uuid", command.TypeMoveRequestToNextEpoch, `{"user":"not-a-uuid"}`, "decode move_request_to_next_epoch payload"},
		{"unknown type", command.Type("flash_loan"), `{}`, "unknown command type"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := command.DecodePayload(tc.t, []byte(tc.payload))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDecodePayload_EmptyBodyForArgumentlessCommands(t *testing.T) {
	for _, typ := range []command.Type{command.TypeAccrueYield, command.TypeCloseEpoch, command.TypeProcessEpoch, command.TypeToggleQueue} {
		p, err := command.DecodePayload(typ, nil)
		require.NoError(t, err, "%s", typ)
		assert.IsType(t, &command.EmptyPayload{}, p)
	}
}

func TestParseType_CoversEveryType(t *testing.T) {
	for _, typ := range command.AllTypes {
		got, ok := command.ParseType(string(typ))
		assert.True(t, ok)
		assert.Equal(t, typ, got)

		_, err := command.NewPayload(typ)
		assert.NoError(t, err, "every listed type has a payload")
	}
	_, ok := command.ParseType("unknown")
	assert.False(t, ok)
}
