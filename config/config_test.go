package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultRecencyDays, cfg.Analysis.RecencyDays)
	require.Equal(t, []string{"device", "gender"}, cfg.Analysis.Segments)
	require.Equal(t, DefaultUserIDColumn, cfg.Dataset.Columns.UserID)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpfunnel.yaml")
	body := []byte("analysis:\n  recency_days: 14\n  segments: [device]\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv(EnvRecencyDays, "30")
	t.Setenv(EnvEnableWrites, "yes")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Analysis.RecencyDays)
	require.Equal(t, []string{"device"}, cfg.Analysis.Segments)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Server.EnableWrites)
	// Untouched sections keep defaults.
	require.Equal(t, DefaultConfirmationFile, cfg.Dataset.Files.Confirmation)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)

	t.Setenv(EnvRecencyDays, "seven")
	_, err = Load("")
	require.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes "} {
		require.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "on"} {
		require.False(t, ParseBool(v), v)
	}
}
