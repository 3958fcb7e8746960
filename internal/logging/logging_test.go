package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", false)

	logger.Info().Str("room_id", "R1").Msg("room created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "room created", line["message"])
	assert.Equal(t, "R1", line["room_id"])
	assert.Equal(t, "codeduel", line["service"])
	assert.Contains(t, line, "time")
}

func TestLogging_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", false)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogging_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := NewWithWriter(&bytes.Buffer{}, "chatty", false)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewWithWriter(&bytes.Buffer{}, "", false)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestLogging_PrettyOutputIsNotJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", true)

	logger.Debug().Msg("console line")
	out := buf.String()
	assert.Contains(t, out, "console line")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}
