package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/source"
)

func sources(t *testing.T) config.SourcesConfig {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg.Sources
}

func TestNewRegistry_Defaults(t *testing.T) {
	registry, err := NewRegistry(sources(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bundestag", "eu"}, registry.Tags())

	eu, err := registry.Get("eu")
	require.NoError(t, err)
	assert.Equal(t, source.KindSequential, eu.Kind())
}

func TestNewRegistry_Staging(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "landtag"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "landtag", "manifest.jsonl"), []byte("{}\n"), 0o644))

	cfg := sources(t)
	cfg.Bundestag.Enabled = false
	cfg.Europarl.Enabled = false
	cfg.Staging = config.StagingConfig{Enabled: true, Path: base}

	registry, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"landtag"}, registry.Tags())
}

func TestNewRegistry_StagingCannotShadow(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "bundestag"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "bundestag", "manifest.jsonl"), []byte("{}\n"), 0o644))

	cfg := sources(t)
	cfg.Staging = config.StagingConfig{Enabled: true, Path: base}

	_, err := NewRegistry(cfg, nil)
	assert.Error(t, err)
}

func TestNewRunStore(t *testing.T) {
	store, err := NewRunStore(config.DatabaseConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = NewRunStore(config.DatabaseConfig{Enabled: true, Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestNewIngestService_BadTimezone(t *testing.T) {
	_, err := NewIngestService(config.IngestConfig{DailyTimezone: "Mars/Olympus"}, nil, nil, source.NewRegistry())
	assert.Error(t, err)
}
