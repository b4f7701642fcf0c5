package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zap.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zap.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zap.InfoLevel, ParseLevel("whatever"))
}

func TestNew_WritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "skycp.log")

	logger, err := New(Options{Level: "warn", File: file})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("unit", "a/b"))
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "a/b", line["unit"])
	assert.Equal(t, "warn", line["level"])
}

func TestNew_Development(t *testing.T) {
	logger, err := New(Options{Level: "debug", Development: true, File: filepath.Join(t.TempDir(), "dev.log")})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}
