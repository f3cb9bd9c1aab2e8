package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(&buf, "debug", "json")

	logger.Debug().Str("component", "test").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "debug", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(&buf, "warn", "json")

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(&buf, "loud", "json")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = Init(&buf, "", "json")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestInit_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(&buf, "info", "console")

	logger.Info().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, "info", "json")

	l := WithRequestID("req-42")
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}
