package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/omarluq/keygate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullYAML = `
server:
  listen: "127.0.0.1:9000"
  timeout_ms: 60000
  max_concurrent: 10
  auth:
    api_key: "${KEYGATE_TEST_AUTH}"
upstream:
  model: "glm-4-plus"
  temperature: 0.6
  thinking: "enabled"
keys:
  name: "MY_KEY"
  list_var: "MY_KEYS"
  strategy: "least_loaded"
  rpm_limit: 30
gate:
  mode: "file_lock"
  lock_dir: "/tmp/keygate-locks"
  acquire_timeout_ms: 1500
rotation:
  cooldown_ms: 10000
  max_attempts: 4
health:
  circuit_breaker:
    failure_threshold: 3
logging:
  level: "debug"
  format: "json"
`

func TestLoadFromReaderYAML(t *testing.T) {
	t.Setenv("KEYGATE_TEST_AUTH", "secret-from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, 10, cfg.Server.MaxConcurrent)
	assert.Equal(t, "secret-from-env", cfg.Server.GetEffectiveAPIKey())

	assert.Equal(t, "glm-4-plus", cfg.Upstream.GetEffectiveModel())
	require.NotNil(t, cfg.Upstream.Temperature)
	assert.InDelta(t, 0.6, *cfg.Upstream.Temperature, 1e-9)
	assert.Nil(t, cfg.Upstream.TopP)

	assert.Equal(t, "MY_KEY", cfg.Keys.GetEffectiveName())
	assert.Equal(t, "MY_KEYS", cfg.Keys.ListVar)
	assert.Equal(t, 30, cfg.Keys.GetRPMLimitOption().MustGet())

	assert.Equal(t, "file_lock", cfg.Gate.GetEffectiveMode())
	assert.Equal(t, "/tmp/keygate-locks", cfg.Gate.GetEffectiveLockDir())
	assert.Equal(t, 4, cfg.Rotation.GetMaxAttemptsOption().MustGet())
	assert.Equal(t, 3, cfg.Health.CircuitBreaker.GetFailureThreshold())
}

func TestLoadFromReaderTOML(t *testing.T) {
	t.Parallel()

	tomlContent := `
[server]
listen = "127.0.0.1:8787"
max_concurrent = 4

[keys]
name = "MY_KEY"
strategy = "random"

[gate]
mode = "local"
acquire_timeout_ms = 250

[logging]
level = "info"
`
	cfg, err := config.LoadFromReaderWithFormat(strings.NewReader(tomlContent), config.FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Server.MaxConcurrent)
	assert.Equal(t, "random", cfg.Keys.GetEffectiveStrategy())
	assert.Equal(t, int64(250), cfg.Gate.GetAcquireTimeoutOption().MustGet().Milliseconds())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "keygate.yml")
	tomlPath := filepath.Join(dir, "keygate.toml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("keys:\n  name: \"A\"\n"), 0o600))
	require.NoError(t, os.WriteFile(tomlPath, []byte("[keys]\nname = \"B\"\n"), 0o600))

	cfg, err := config.Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "A", cfg.Keys.Name)

	cfg, err = config.Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "B", cfg.Keys.Name)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open config file")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		_, err := config.Load("/path/to/config.json")
		var unsupported *config.UnsupportedFormatError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, ".json", unsupported.Extension)
		assert.Contains(t, err.Error(), ".yaml, .yml, .toml")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		_, err := config.LoadFromReader(strings.NewReader("server: [unclosed"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config YAML")
	})

	t.Run("invalid toml", func(t *testing.T) {
		t.Parallel()
		_, err := config.LoadFromReaderWithFormat(strings.NewReader("[server]\nlisten = \"x"), config.FormatTOML)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config TOML")
	})
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    config.Format
		wantErr bool
	}{
		{path: "config.yaml", want: config.FormatYAML},
		{path: "config.YML", want: config.FormatYAML},
		{path: "/etc/keygate/config.toml", want: config.FormatTOML},
		{path: "config.TOML", want: config.FormatTOML},
		{path: "config.json", wantErr: true},
		{path: "config", wantErr: true},
		{path: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			got, err := config.DetectFormat(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExampleYAMLIsValid(t *testing.T) {
	t.Setenv("KEYGATE_API_KEY", "x")
	cfg, err := config.LoadFromReader(strings.NewReader(config.ExampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "x", cfg.Server.GetEffectiveAPIKey())
}
