package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATA_DIR", "LOG_LEVEL", "LOG_JSON", "MIN_TASK_VERSION", "CONCURRENCY", "METRICS_ADDR", "COLLECT_INTERVAL"} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "2.0.0", cfg.SerializerOptions().MinTaskVersion)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "anvil.yaml", `
data_dir: /var/lib/anvil
log_level: debug
concurrency: 4
collect_interval: 30s
`)
	t.Setenv("ANVIL_CONCURRENCY", "8")
	t.Setenv("ANVIL_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/anvil", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 30*time.Second, cfg.CollectInterval)
	assert.Equal(t, 8, cfg.SerializerOptions().Concurrency)
	assert.True(t, cfg.LogConfig().JSONOutput)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "bad yaml", content: "data_dir: [unterminated"},
		{name: "bad log level", content: "log_level: verbose"},
		{name: "negative concurrency", content: "concurrency: -1"},
		{name: "empty data dir", content: "data_dir: ''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, "anvil.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("ANVIL_TEST_VALUE", "")
	assert.Equal(t, "bar", GetEnv("ANVIL_TEST_VALUE", "bar"))
	assert.Equal(t, 42, GetEnvInt("ANVIL_TEST_VALUE", 42))

	t.Setenv("ANVIL_TEST_VALUE", "notint")
	assert.Equal(t, 7, GetEnvInt("ANVIL_TEST_VALUE", 7))
	assert.True(t, GetEnvBool("ANVIL_TEST_VALUE", true))
	assert.Equal(t, time.Second, GetEnvDuration("ANVIL_TEST_VALUE", time.Second))

	t.Setenv("ANVIL_TEST_VALUE", "100")
	assert.Equal(t, 100, GetEnvInt("ANVIL_TEST_VALUE", 42))
}

// unsetEnv removes key for the duration of the test. godotenv only sets
// variables that are absent, so an empty value is not enough.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, ok := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if ok {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "ANVIL_FROM_FILE")
	t.Setenv("ANVIL_PRESET", "process")
	path := writeFile(t, ".env", "ANVIL_FROM_FILE=file\nANVIL_PRESET=file\n")

	loaded := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "file", os.Getenv("ANVIL_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("ANVIL_PRESET"))
}
