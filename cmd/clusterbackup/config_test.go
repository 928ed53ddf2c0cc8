package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/clusterbackup/pkg/log"
)

func TestNewConfigSeedsAgentDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "clusterbackup", cfg.Name)
	assert.Equal(t, int32(1), cfg.ConsensusStreamID)
	assert.Equal(t, int64(60_000), cfg.BackupQueryIntervalMs)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel)
}

func TestUnmarshalConfigRejectsUnknownFields(t *testing.T) {
	cfg := NewConfig()
	err := UnmarshalConfig(&cfg, []byte("not-a-real-field: true\n"))
	assert.Error(t, err)
}

func TestUnmarshalConfigOverridesDefaults(t *testing.T) {
	cfg := NewConfig()
	data := []byte("name: prod-backup\ncluster-consensus-endpoints:\n  - node0\n  - node1\n")

	require.NoError(t, UnmarshalConfig(&cfg, data))

	assert.Equal(t, "prod-backup", cfg.Name)
	assert.Equal(t, []string{"node0", "node1"}, cfg.ClusterConsensusEndpoints)
	// Fields absent from the document keep their NewConfig defaults.
	assert.Equal(t, int64(60_000), cfg.BackupQueryIntervalMs)
}

func TestParseConfigPathExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusterbackup.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\n"), 0o644))

	cfg := NewConfig()
	require.NoError(t, ParseConfigPath(path, &cfg))
	assert.Equal(t, "from-file", cfg.Name)
}

func TestParseConfigPathMissingExplicitFile(t *testing.T) {
	cfg := NewConfig()
	err := ParseConfigPath(filepath.Join(t.TempDir(), "missing.yml"), &cfg)
	assert.Error(t, err)
}

func TestParseConfigPathNoSearchPathHitsLeavesDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, ParseConfigPath("", &cfg))
	assert.Equal(t, "clusterbackup", cfg.Name)
}

func TestAgentConfigMapsFields(t *testing.T) {
	cfg := NewConfig()
	cfg.ClusterConsensusEndpoints = []string{"node0"}
	cfg.DataDir = "/tmp/data"

	ac := cfg.AgentConfig()
	assert.Equal(t, "/tmp/data", ac.DataDir)
	assert.Equal(t, []string{"node0"}, ac.ClusterConsensusEndpoints)
	assert.Equal(t, cfg.BackupResponseTimeoutMs, ac.BackupResponseTimeoutMs)
}
