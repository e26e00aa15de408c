package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconledger/internal/config"
)

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	lm, err := NewLogger(&config.LogConfig{Level: "loud", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, "info", lm.Level())
}

func TestNewLogger_RejectsUnknownFormat(t *testing.T) {
	_, err := NewLogger(&config.LogConfig{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}

func TestLogScanOperation_WritesStructuredFields(t *testing.T) {
	lm, err := InitLogger(&config.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	defer func() { LoggerInstance = nil }()

	var buf bytes.Buffer
	lm.SetOutput(&buf)

	LogScanOperation("scan-1", "port", "127.0.0.1", "completed", 100, "2 open", 15, map[string]interface{}{"ports": 3})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "scan", record["type"])
	assert.Equal(t, "scan-1", record["scan_id"])
	assert.Equal(t, float64(3), record["ports"])
	assert.Equal(t, "Scan completed: port on 127.0.0.1", record["message"])
}

func TestHelpers_NoopWithoutInstance(t *testing.T) {
	LoggerInstance = nil
	assert.NotPanics(t, func() {
		Info("x")
		Warnf("%d", 1)
		WithField("k", "v").Info("discarded")
		LogSystemEvent("ledger", "startup", "msg", InfoLevel, nil)
	})
}

func TestNewLogger_FileOutputNeedsPath(t *testing.T) {
	_, err := NewLogger(&config.LogConfig{Level: "info", Format: "text", Output: "file"})
	assert.Error(t, err)
}

func TestUpdateConfig_ReloadsLevelAndFormat(t *testing.T) {
	cfg := &config.LogConfig{Level: "info", Format: "text", Output: "stdout"}
	lm, err := NewLogger(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	lm.SetOutput(&buf)

	require.NoError(t, lm.UpdateConfig(&config.LogConfig{Level: "debug", Format: "json", Output: "stdout"}))
	assert.Equal(t, "debug", lm.Level())

	buf.Reset()
	lm.logger.Debug("ledger reload")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ledger reload", record["message"])

	assert.Error(t, lm.UpdateConfig(&config.LogConfig{Level: "loud", Format: "json", Output: "stdout"}))
	assert.Equal(t, "debug", lm.Level())
}
