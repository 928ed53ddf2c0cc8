package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/clusterbackup/pkg/backup"
	"github.com/cuemby/clusterbackup/pkg/backup/archive"
	"github.com/cuemby/clusterbackup/pkg/backup/consensus"
	"github.com/cuemby/clusterbackup/pkg/backup/model"
	"github.com/cuemby/clusterbackup/pkg/events"
	"github.com/cuemby/clusterbackup/pkg/log"
	"github.com/cuemby/clusterbackup/pkg/metrics"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clusterbackup",
	Short: "Standalone cluster backup agent",
	Long: `clusterbackup runs the duty cycle that discovers a cluster's
leader, pulls any snapshots it is missing, replicates the committed log into
a local archive, and keeps a durable recording-log index in sync.`,
	Version: Version,
	RunE:    runAgent,
}

var configPath string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"clusterbackup version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.Flags().String("name", "", "agent name, used in logs")
	rootCmd.Flags().String("data-dir", "", "data directory for the recording log and mark file")
	rootCmd.Flags().StringSlice("cluster-consensus-endpoints", nil, "candidate consensus endpoints to query")
	rootCmd.Flags().String("response-channel", "", "channel this agent's backup responses are addressed to")
	rootCmd.Flags().String("catchup-endpoint", "", "local endpoint snapshot/live-log replays are directed to")
	rootCmd.Flags().String("log-level", "", "debug|info|warn|error")
	rootCmd.Flags().String("log-format", "", "console|json")
	rootCmd.Flags().String("metrics-addr", "", "address the /metrics endpoint listens on")
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg := NewConfig()
	if err := ParseConfigPath(configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overlayFlags(cmd, &cfg)

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: strings.EqualFold(cfg.LogFormat, "json")})
	logger := log.WithComponent("main")

	if len(cfg.ClusterConsensusEndpoints) == 0 {
		return fmt.Errorf("at least one cluster consensus endpoint is required (--cluster-consensus-endpoints or config)")
	}

	// The backup query/response wire exchange and the archive control
	// protocol are both out-of-scope external collaborators (spec.md §1):
	// this repo defines their interfaces and a deterministic in-memory
	// implementation for its own tests, but ships no network client for
	// either, since doing so would mean fabricating an Aeron-compatible
	// client against a protocol no example in this build's corpus
	// implements. A real deployment supplies its own archive.Connector,
	// archive.LocalClient and consensus.Transport; this command wires the
	// in-memory ones so the duty cycle itself is runnable standalone.
	connector := archive.NewFakeConnector()
	localArchive := connector.Session(cfg.CatchupEndpoint)
	transport := consensus.NewFakeTransport()

	listener := &events.Listener{
		OnBackupQuery: func(endpoint string, correlationID int64) {
			logger.Debug().Str("endpoint", endpoint).Int64("correlation_id", correlationID).Msg("backup query sent")
		},
		OnBackupResponse: func(resp model.BackupResponse) {
			logger.Info().Int32("leader_member_id", resp.LeaderMemberID).Msg("backup response accepted")
		},
		OnPossibleFailure: func(err error) {
			logger.Warn().Err(err).Msg("possible failure")
		},
	}

	agent, err := backup.New(cfg.Name, cfg.AgentConfig(), backup.Deps{
		LocalArchive:     localArchive,
		ArchiveConnector: connector,
		Transport:        transport,
		Listener:         listener,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	errCh := make(chan error, 1)
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go runDutyCycle(agent, stopCh, doneCh)

	logger.Info().Str("agent", cfg.Name).Strs("endpoints", cfg.ClusterConsensusEndpoints).Msg("clusterbackup agent running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("shutting down after error")
	}

	close(stopCh)
	<-doneCh

	if err := metricsSrv.Close(); err != nil {
		logger.Warn().Err(err).Msg("metrics server close failed")
	}
	if err := agent.Close(); err != nil {
		return fmt.Errorf("failed to shut down agent cleanly: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// runDutyCycle drives the agent's duty cycle until stopCh is closed,
// backing off briefly whenever a cycle does no work so an idle agent
// doesn't spin a core. Mirrors the teacher's pkg/reconciler loop shape:
// one goroutine, one loop, log-and-continue on error.
func runDutyCycle(agent *backup.Agent, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	logger := log.WithComponent("duty-cycle")

	idleBackoff := time.Millisecond
	const maxIdleBackoff = 50 * time.Millisecond

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		workCount, err := agent.DoWork()
		if err != nil {
			logger.Warn().Err(err).Str("state", agent.State().String()).Msg("duty cycle error")
		}

		if workCount > 0 {
			idleBackoff = time.Millisecond
			continue
		}

		select {
		case <-stopCh:
			return
		case <-time.After(idleBackoff):
		}
		idleBackoff *= 2
		if idleBackoff > maxIdleBackoff {
			idleBackoff = maxIdleBackoff
		}
	}
}

func overlayFlags(cmd *cobra.Command, cfg *Config) {
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.Name = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetStringSlice("cluster-consensus-endpoints"); len(v) > 0 {
		cfg.ClusterConsensusEndpoints = v
	}
	if v, _ := cmd.Flags().GetString("response-channel"); v != "" {
		cfg.ResponseChannel = v
	}
	if v, _ := cmd.Flags().GetString("catchup-endpoint"); v != "" {
		cfg.CatchupEndpoint = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = log.Level(v)
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
}
