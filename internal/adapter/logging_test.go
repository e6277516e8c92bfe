package adapter

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupLogger_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rdioexport.log")

	logger, closer, err := SetupLogger(&LoggingConfig{File: path, Level: "debug"})
	require.NoError(t, err)
	logger.Debug("fetched objects", "synced", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"fetched objects"`)
	require.Contains(t, string(data), `"synced":3`)
}

func TestSetupLogger_EmptyFileDisablesLogging(t *testing.T) {
	logger, closer, err := SetupLogger(&LoggingConfig{})
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NoError(t, closer.Close())
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLogLevel("WARNING"))
	require.Equal(t, slog.LevelError, ParseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLogLevel("bogus"))
}
