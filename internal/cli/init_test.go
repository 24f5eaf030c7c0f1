package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"depenses/internal/config"
	"depenses/internal/log"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DEPENSES_CLI_TEST=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DEPENSES_CLI_TEST") })

	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), path))
	require.Equal(t, "from-file", os.Getenv("DEPENSES_CLI_TEST"))
}

func TestLoadEnvFileRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BAD-KEY=1\n"), 0o600))
	require.Error(t, LoadEnvFile(path))
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&config.Config{LogLevel: "warn"}, log.ComponentWorker, &buf)
	t.Cleanup(func() { log.SetDefault(log.New(log.DefaultConfig())) })

	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "component=worker")
}
