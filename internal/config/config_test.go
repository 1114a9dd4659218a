package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "eu-central-1", cfg.Archive.Region)
	assert.InDelta(t, 100, cfg.Analytics.NominalCapacity, 1e-12)
	assert.InDelta(t, 0.05, cfg.Analytics.Contamination, 1e-12)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BESS_HTTP_PORT", "9090")
	t.Setenv("BESS_POSTGRES_DSN", "postgres://localhost/bess")
	t.Setenv("BESS_CONTAMINATION", "0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "postgres://localhost/bess", cfg.Database.DSN)
	assert.InDelta(t, 0.1, cfg.Analytics.Contamination, 1e-12)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "7070"
analytics:
  nominal_capacity: 200
`), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.HTTP.Port)
	assert.InDelta(t, 200, cfg.Analytics.NominalCapacity, 1e-12)
}

func TestLoadRejectsBadContamination(t *testing.T) {
	t.Setenv("BESS_CONTAMINATION", "0.9")
	_, err := Load()
	assert.Error(t, err)
}

func TestHTTPAddress(t *testing.T) {
	assert.Equal(t, ":8080", (&Config{}).HTTPAddress())
	assert.Equal(t, ":9090", (&Config{HTTP: HTTPConfig{Port: "9090"}}).HTTPAddress())
	assert.Equal(t, ":9090", (&Config{HTTP: HTTPConfig{Port: ":9090"}}).HTTPAddress())
}
