package command_test

import (
	"testing"

	"StrategyVault/internal/command"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceValidator(t *testing.T) {
	sv := command.NewSequenceValidator()

	require.NoError(t, sv.ValidateSequence("a", 0, false))
	sv.Advance("a", 0)

	assert.Error(t, sv.ValidateSequence("a", 3, false), "gap")
	assert.Equal(t, int64(1), sv.Gaps("a"))

	assert.NoError(t, sv.ValidateSequence("a", 0, true), "stale duplicate is fine")
	assert.Error(t, sv.ValidateSequence("a", 0, false), "stale new command is not")
	assert.Equal(t, int64(1), sv.OutOfOrder("a"))

	require.NoError(t, sv.ValidateSequence("b", 0, false), "sources are independent")
	assert.Equal(t, int64(1), sv.GetExpectedSequence("a"))
}

func TestSequenceValidator_StateRestore(t *testing.T) {
	sv := command.NewSequenceValidator()
	sv.Advance("a", 4)

	restored := command.NewSequenceValidator()
	for source, seq := range sv.State() {
		restored.SetExpectedSequence(source, seq)
	}
	assert.NoError(t, restored.ValidateSequence("a", 5, false))
	assert.Error(t, restored.ValidateSequence("a", 4, false))
}
