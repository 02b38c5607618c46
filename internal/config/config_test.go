package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.CatalogURL)
	assert.Equal(t, 19, cfg.Partitions)
	assert.Equal(t, 1000, cfg.Weighting.InstanceCap)
	assert.Equal(t, 8, cfg.Weighting.FixedOverhead)
	assert.Contains(t, cfg.Evaluation.ExcludedFields, "csrfmiddlewaretoken")
}

func TestLoad_PartialFileBackfills(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog_url: http://turkle.example:9000
partitions: 4
evaluation:
  solver: oracle
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://turkle.example:9000", cfg.CatalogURL)
	assert.Equal(t, 4, cfg.Partitions)
	assert.Equal(t, "oracle", cfg.Evaluation.Solver)
	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Weighting.InstanceCap)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, "results/formeval.db", cfg.Results.DatabasePath)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("partitions: -3\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog_url: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_Timeout(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CatalogTimeout = "not-a-duration"
	require.Error(t, cfg.Validate())
}
