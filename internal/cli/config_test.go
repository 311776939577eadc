package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigParsesYAML(t *testing.T) {
	path := writeConfig(t, `
inputs:
  - "pattern pool-a 1 0"
  - "nochange 1"
patterns:
  pool-a: "1.2.3.4 1024-65535 - -"
gc_interval: 30s
metrics_addr: "127.0.0.1:9100"
`)

	cfg, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pattern pool-a 1 0", "nochange 1"}, cfg.Inputs)
	assert.Equal(t, "1.2.3.4 1024-65535 - -", cfg.Patterns["pool-a"])
	assert.Equal(t, 2, cfg.NumOutputs)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestLoadConfigRequiresPath(t *testing.T) {
	_, err := loadConfig(viper.New(), "")
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnreadableFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildRegistryParsesNamedPatterns(t *testing.T) {
	cfg := &Config{Patterns: map[string]string{"pool-a": "1.2.3.4 1024-65535 - -"}}
	registry, err := buildRegistry(cfg)
	require.NoError(t, err)

	pat, ok := registry.Find("pool-a")
	require.True(t, ok)
	assert.EqualValues(t, 1024, pat.SPortLow)
}

func TestBuildRegistryRejectsBadPatternSpec(t *testing.T) {
	cfg := &Config{Patterns: map[string]string{"pool-a": "not a pattern"}}
	_, err := buildRegistry(cfg)
	assert.Error(t, err)
}

func TestBuildInputsResolvesPatternReferences(t *testing.T) {
	cfg := &Config{
		Inputs:     []string{"pattern pool-a 1 0", "nochange 1"},
		Patterns:   map[string]string{"pool-a": "1.2.3.4 1024-65535 - -"},
		NumOutputs: 2,
	}
	registry, err := buildRegistry(cfg)
	require.NoError(t, err)

	inputs, err := buildInputs(cfg, registry)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, 1, inputs[0].FOutput)
}

func TestBuildRewriterEndToEnd(t *testing.T) {
	cfg := &Config{
		Inputs:     []string{"pattern pool-a 1 0", "nochange 1"},
		Patterns:   map[string]string{"pool-a": "1.2.3.4 1024-65535 - -"},
		NumOutputs: 2,
	}
	r, err := buildRewriter(cfg)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestBuildRewriterRejectsConflictingPatterns(t *testing.T) {
	cfg := &Config{
		Inputs: []string{"pattern pool-a 0 0", "pattern pool-b 0 0"},
		Patterns: map[string]string{
			"pool-a": "1.2.3.4 1024-65535 9.9.9.9 80",
			"pool-b": "1.2.3.4 2000-3000 9.9.9.9 80",
		},
		NumOutputs: 1,
	}
	_, err := buildRewriter(cfg)
	assert.Error(t, err)
}
