package main

import (
	"bytes"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/clusterbackup/pkg/backup"
	"github.com/cuemby/clusterbackup/pkg/log"
)

// Config is the on-disk configuration for the clusterbackup binary,
// layered under CLI flag overrides in the style of superfly/litefs's
// cmd/litefs/config.go: a struct mirroring the agent's own Config plus the
// ambient bits (logging, metrics) a standalone process needs that the
// agent itself doesn't care about.
type Config struct {
	Name    string `yaml:"name"`
	DataDir string `yaml:"data-dir"`

	ClusterConsensusEndpoints []string `yaml:"cluster-consensus-endpoints"`
	ConsensusStreamID         int32    `yaml:"consensus-stream-id"`
	ResponseChannel           string   `yaml:"response-channel"`
	ResponseStreamID          int32    `yaml:"response-stream-id"`
	CatchupEndpoint           string   `yaml:"catchup-endpoint"`
	LogStreamID               int32    `yaml:"log-stream-id"`
	ReplayStreamID            int32    `yaml:"replay-stream-id"`

	BackupResponseTimeoutMs int64 `yaml:"backup-response-timeout-ms"`
	BackupQueryIntervalMs   int64 `yaml:"backup-query-interval-ms"`
	BackupProgressTimeoutMs int64 `yaml:"backup-progress-timeout-ms"`
	CoolDownIntervalMs      int64 `yaml:"cool-down-interval-ms"`

	LogLevel    log.Level `yaml:"log-level"`
	LogFormat   string    `yaml:"log-format"`
	MetricsAddr string    `yaml:"metrics-addr"`
}

// NewConfig returns a Config seeded from the agent's own defaults, so an
// empty config file still produces a runnable agent.
func NewConfig() Config {
	def := backup.DefaultConfig()
	return Config{
		Name:                      "clusterbackup",
		DataDir:                   "./clusterbackup-data",
		ConsensusStreamID:         def.ConsensusStreamID,
		ResponseStreamID:          def.ResponseStreamID,
		LogStreamID:               def.LogStreamID,
		ReplayStreamID:            def.ReplayStreamID,
		BackupResponseTimeoutMs:   def.BackupResponseTimeoutMs,
		BackupQueryIntervalMs:     def.BackupQueryIntervalMs,
		BackupProgressTimeoutMs:   def.BackupProgressTimeoutMs,
		CoolDownIntervalMs:        def.CoolDownIntervalMs,
		LogLevel:                  log.InfoLevel,
		LogFormat:                 "console",
		MetricsAddr:               ":9090",
	}
}

// AgentConfig converts the process config into the agent's own Config
// type.
func (c Config) AgentConfig() backup.Config {
	return backup.Config{
		DataDir:                   c.DataDir,
		ClusterConsensusEndpoints: c.ClusterConsensusEndpoints,
		ConsensusStreamID:         c.ConsensusStreamID,
		ResponseChannel:           c.ResponseChannel,
		ResponseStreamID:          c.ResponseStreamID,
		CatchupEndpoint:           c.CatchupEndpoint,
		LogStreamID:               c.LogStreamID,
		ReplayStreamID:            c.ReplayStreamID,
		BackupResponseTimeoutMs:   c.BackupResponseTimeoutMs,
		BackupQueryIntervalMs:     c.BackupQueryIntervalMs,
		BackupProgressTimeoutMs:   c.BackupProgressTimeoutMs,
		CoolDownIntervalMs:        c.CoolDownIntervalMs,
	}
}

// UnmarshalConfig decodes YAML into config, rejecting unknown fields the
// same way litefs's loader does so a typo in the config file fails loudly
// rather than silently keeping a default.
func UnmarshalConfig(config *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(config)
}

// ParseConfigPath loads configPath if given, otherwise searches the
// standard search path list, leaving config untouched (at its defaults) if
// none exist.
func ParseConfigPath(configPath string, config *Config) error {
	if configPath != "" {
		buf, err := os.ReadFile(configPath)
		if err != nil {
			return err
		}
		return UnmarshalConfig(config, buf)
	}

	for _, path := range configSearchPaths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		buf, err := os.ReadFile(abs)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return fmt.Errorf("cannot read config file at %s: %w", abs, err)
		}
		if err := UnmarshalConfig(config, buf); err != nil {
			return fmt.Errorf("cannot unmarshal config file at %s: %w", abs, err)
		}
		return nil
	}

	return nil
}

func configSearchPaths() []string {
	paths := []string{"clusterbackup.yml"}
	if u, _ := user.Current(); u != nil && u.HomeDir != "" {
		paths = append(paths, filepath.Join(u.HomeDir, "clusterbackup.yml"))
	}
	return append(paths, "/etc/clusterbackup.yml")
}
