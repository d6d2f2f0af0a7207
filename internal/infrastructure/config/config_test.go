package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Upstream.ConnectTimeout)
	assert.Equal(t, 0, cfg.Trace.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.Hub.SendTimeout)
	assert.Empty(t, cfg.Dashboard.Password)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PERCH_SERVICE_URL", "http://perch:9000")
	t.Setenv("TRACE_HISTORY_LIMIT", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "http://perch:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 5000, cfg.Trace.HistoryLimit)
}

func TestLoadFileOverlay(t *testing.T) {
	t.Setenv("TEST_DASH_PW", "hunter2")

	dir := t.TempDir()
	path := filepath.Join(dir, "dev.yaml")
	content := `
server:
  port: "8090"
upstream:
  base_url: http://summarizer.internal:9000
dashboard:
  password: ${TEST_DASH_PW}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, "http://summarizer.internal:9000", cfg.Upstream.BaseURL)
	// ${VAR} references are expanded from the environment.
	assert.Equal(t, "hunter2", cfg.Dashboard.Password)
	// Fields absent from the file keep their env/default values.
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
}

func TestLoadFileUnresolvedVarKept(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.yaml")
	content := "dashboard:\n  password: ${DOES_NOT_EXIST_ANYWHERE}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "${DOES_NOT_EXIST_ANYWHERE}", cfg.Dashboard.Password)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/nest.yaml")
	require.Error(t, err)
}
