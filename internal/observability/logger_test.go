package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/webpilot-ai/webpilot/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func testLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "webpilot-test",
	}
}

func TestInitialize_WritesStructuredLogs(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(testLoggerConfig(), buf)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"k":"v"`)
	assert.Contains(t, out, "webpilot-test")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(testLoggerConfig(), first)
	Initialize(testLoggerConfig(), second)

	GetLogger().Info("once")
	_ = GetLogger().Sync()

	assert.Contains(t, first.String(), "once")
	assert.Empty(t, second.String(), "second Initialize must be a no-op")
}

func TestInitialize_RespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	cfg := testLoggerConfig()
	cfg.Level = "warn"
	Initialize(cfg, buf)

	GetLogger().Info("suppressed")
	GetLogger().Warn("kept")
	_ = GetLogger().Sync()

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "kept")
}

func TestInitialize_FileCore(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "webpilot.log")
	cfg := testLoggerConfig()
	cfg.LogFile = logFile
	Initialize(cfg, zapcore.AddSync(&syncBuffer{}))

	GetLogger().Info("to file")
	_ = GetLogger().Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestGetLogger_FallbackBeforeInit(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}
