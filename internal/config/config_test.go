package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
project:
  id: shop
  name: Shop
  ignore: ["generated/*"]
storage:
  driver: sqlite
  path: /tmp/shop.db
analysis:
  critical_path_limit: 5
  timeout: 30s
  hotspots:
    complexity: 20
layers:
  order:
    - name: api
      prefixes: [api]
    - name: service
      prefixes: [service]
    - name: data
      prefixes: [data, db]
  allowed:
    api: [service]
    service: [data]
cache:
  enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML), false)
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Project.ID)
	assert.Equal(t, []string{"generated/*"}, cfg.Project.Ignore)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Analysis.CriticalPathLimit)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 20, cfg.Analysis.Hotspots.Complexity)
	require.Len(t, cfg.Layers.Order, 3)
	assert.Equal(t, []string{"data", "db"}, cfg.Layers.Order[2].Prefixes)
	assert.Equal(t, []string{"service"}, cfg.Layers.Allowed["api"])
	assert.False(t, cfg.Cache.Enabled)

	// untouched keys keep defaults
	assert.Equal(t, 10, cfg.Analysis.ComplexityThreshold)
	assert.Equal(t, 0.8, cfg.Analysis.Hotspots.Instability)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ARCHDRIFT_PROJECT_ID", "from-env")
	t.Setenv("ARCHDRIFT_DB", "/tmp/env.db")
	t.Setenv("ARCHDRIFT_TIMEOUT", "2m")
	t.Setenv("ARCHDRIFT_WORKERS", "3")
	t.Setenv("ARCHDRIFT_CACHE", "true")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML), false)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Project.ID)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.Path)
	assert.Equal(t, 2*time.Minute, cfg.Analysis.Timeout)
	assert.Equal(t, 3, cfg.Analysis.Workers)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("ARCHDRIFT_WORKERS", "many")
	_, err := LoadConfig(writeConfig(t, sampleYAML), false)
	assert.ErrorContains(t, err, "ARCHDRIFT_WORKERS")
}

func TestLoadConfig_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	_, err := LoadConfig(missing, false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := LoadConfig(missing, true)
	require.NoError(t, err)
	assert.Equal(t, Default().Storage, cfg.Storage)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad driver", "storage:\n  driver: postgres\n", "storage.driver"},
		{"unnamed layer", "layers:\n  order:\n    - prefixes: [x]\n", "without a name"},
		{"duplicate layer", "layers:\n  order:\n    - name: a\n    - name: a\n", "duplicate layer"},
		{"unknown allowed", "layers:\n  order:\n    - name: a\n  allowed:\n    a: [b]\n", "unknown layer \"b\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body), false)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "project: [unterminated"), false)
	assert.Error(t, err)
}
