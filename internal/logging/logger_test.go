package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithComponent("aggregator").WithField("games", 3).Info("refresh complete")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "refresh complete", entry.Message)
	assert.Equal(t, "aggregator", entry.Fields["component"])
	assert.Equal(t, float64(3), entry.Fields["games"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "warn: shown")
}

func TestLogger_ChildrenDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelInfo, FormatJSON)
	parent.SetOutput(&buf)

	_ = parent.WithField("request", "a")
	parent.WithError(errors.New("boom")).Error("failed")

	line := strings.TrimSpace(buf.String())
	assert.NotContains(t, line, `"request"`)
	assert.Contains(t, line, `"error":"boom"`)
	assert.Contains(t, line, `"caller"`)
}

func TestFromContext(t *testing.T) {
	logger := NewDiscardLogger().WithField("requestId", "abc")
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLogLevel("verbose"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
