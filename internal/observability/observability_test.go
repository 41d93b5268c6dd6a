package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-pulse-etl/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("fetched weather", "city", "Toronto")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fetched weather", entry["msg"])
	assert.Equal(t, "Toronto", entry["city"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "text", slog.LevelDebug)

	logger.Debug("sensor reading", "aqi", 87)

	out := buf.String()
	assert.Contains(t, out, "sensor reading")
	assert.Contains(t, out, "aqi=87")
	assert.NotContains(t, out, "\x1b[", "non-terminal output has no color codes")
}

func TestNewLogger_TeesToFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "etl.log")

	logger, closer, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("pipeline run complete", "rows", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pipeline run complete")
}

func TestNewLogger_NoFile(t *testing.T) {
	logger, closer, err := NewLogger(config.Default())
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.RowsInserted.WithLabelValues("weather").Add(3)
	assert.InDelta(t, 3, testutil.ToFloat64(a.RowsInserted.WithLabelValues("weather")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(b.RowsInserted.WithLabelValues("weather")), 1e-9)
}
