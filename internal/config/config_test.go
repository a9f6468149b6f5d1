package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "JWT_SECRET", "REDIS_ADDR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 720*time.Hour, cfg.Cluster.TemporalEps)
	assert.Equal(t, "grid", cfg.Cluster.Index)
	assert.Equal(t, 500, cfg.Live.Capacity)
	assert.Equal(t, 30*time.Minute, cfg.RiskIndex.HalfLife)
	assert.Equal(t, "crime:live", cfg.Input.Redis.Key)
	assert.True(t, cfg.Input.Simulate.Enabled)
}

func TestLoadYAMLOverridesAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cluster:
  spatial_eps_m: 250
  temporal_eps: 2h
  index: naive
live:
  recompute_events: 3
input:
  simulate:
    enabled: false
`), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Cluster.SpatialEpsMeters)
	assert.Equal(t, 2*time.Hour, cfg.Cluster.TemporalEps)
	assert.Equal(t, 5, cfg.Cluster.MinPoints)
	assert.Equal(t, "naive", cfg.Cluster.Index)
	assert.Equal(t, 3, cfg.Live.RecomputeEvents)
	assert.False(t, cfg.Input.Simulate.Enabled)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.True(t, cfg.Input.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Input.Redis.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Cluster.Index = "kdtree"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	cfg = Default()
	cfg.Models.Contamination = 0.7
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Input.Redis.Enabled = true
	cfg.Input.Redis.Addr = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "config.example.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Live, cfg.Live)
	assert.Equal(t, Default().Cluster, cfg.Cluster)
	assert.Equal(t, "./data/clusters.jsonl", cfg.Output.ClustersJSONL)
}
