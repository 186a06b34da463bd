package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), "input %q", in)
	}
}

func TestNewLoggerTo_TagsComponentAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "runner", zerolog.InfoLevel)

	logger.Debug().Msg("hidden")
	logger.Info().Int64("command_index", 7).Msg("applied")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "runner", line["component"])
	assert.Equal(t, "applied", line["message"])
	assert.EqualValues(t, 7, line["command_index"])
	assert.Contains(t, line, "time")
}
