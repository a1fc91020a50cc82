package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the allowed config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "hmochat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 50, cfg.Dialogue.MaxSteps)
	assert.Equal(t, 3, cfg.Dialogue.SearchK)
	assert.False(t, cfg.Dialogue.FilterByHMO)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 9191
  shutdown_timeout: 3s
llm:
  provider: azure
  base_url: https://example.openai.azure.com
  model: gpt-4o
  api_key: sk-test-value
dialogue:
  max_steps: 20
  filter_by_hmo: true
vectorstore:
  provider: qdrant
  qdrant_host: qdrant.internal
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "azure", cfg.LLM.Provider)
	assert.Equal(t, "sk-test-value", cfg.LLM.APIKey.Value())
	assert.Equal(t, "2024-12-01-preview", cfg.LLM.APIVersion)
	assert.Equal(t, 20, cfg.Dialogue.MaxSteps)
	assert.True(t, cfg.Dialogue.FilterByHMO)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.QdrantHost)
	assert.Equal(t, 6334, cfg.VectorStore.QdrantPort)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "dialogue:\n  max_steps: 20\n", 0600)

	t.Setenv("HMOCHAT_DIALOGUE_MAX_STEPS", "7")
	t.Setenv("HMOCHAT_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("HMOCHAT_VECTORSTORE_CHROMEM_PATH", "/tmp/hmochat-index")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Dialogue.MaxSteps)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "/tmp/hmochat-index", cfg.VectorStore.ChromemPath)
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9000\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "dialogue:\n  max_steps: -1\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_steps")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"HMOCHAT_LLM_API_KEY":             "llm.api_key",
		"HMOCHAT_SERVER_HTTP_PORT":        "server.http_port",
		"HMOCHAT_VECTORSTORE_QDRANT_HOST": "vectorstore.qdrant_host",
		"HMOCHAT_DEBUG":                   "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
