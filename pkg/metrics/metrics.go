// Package metrics exposes the backup agent's duty-cycle activity as
// Prometheus collectors (spec.md §6). Grounded on the teacher's
// pkg/metrics/metrics.go: package-level collector vars registered once in
// init(), served over promhttp.Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// State is the agent's current FSM state, one gauge set per state
	// label so a dashboard can chart transitions over time.
	State = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clusterbackup_state",
			Help: "Current backup agent state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterbackup_state_transitions_total",
			Help: "Total number of FSM state transitions by destination state",
		},
		[]string{"state"},
	)

	LiveLogPosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusterbackup_live_log_position",
			Help: "Current replicated live-log position",
		},
	)

	NextQueryDeadlineMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusterbackup_next_query_deadline_ms",
			Help: "Epoch-ms deadline of the next scheduled backup query",
		},
	)

	BackupQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterbackup_backup_queries_total",
			Help: "Total number of backup queries sent to candidate endpoints",
		},
	)

	BackupResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterbackup_backup_responses_total",
			Help: "Total number of accepted backup responses",
		},
	)

	SnapshotsRetrievedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterbackup_snapshots_retrieved_total",
			Help: "Total number of snapshots successfully retrieved from a leader's archive",
		},
	)

	ArchiveErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterbackup_archive_errors_total",
			Help: "Total number of archive control errors by fault kind",
		},
		[]string{"kind"},
	)

	RecordingLogEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusterbackup_recording_log_entries",
			Help: "Current number of entries in the local recording log",
		},
	)

	ResetBackupTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterbackup_reset_backup_total",
			Help: "Total number of RESET_BACKUP transitions",
		},
	)
)

func init() {
	prometheus.MustRegister(State)
	prometheus.MustRegister(StateTransitionsTotal)
	prometheus.MustRegister(LiveLogPosition)
	prometheus.MustRegister(NextQueryDeadlineMs)
	prometheus.MustRegister(BackupQueriesTotal)
	prometheus.MustRegister(BackupResponsesTotal)
	prometheus.MustRegister(SnapshotsRetrievedTotal)
	prometheus.MustRegister(ArchiveErrorsTotal)
	prometheus.MustRegister(RecordingLogEntriesTotal)
	prometheus.MustRegister(ResetBackupTotal)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetState zeroes every known state label and sets the active one to 1, so
// a gauge-per-state panel shows exactly one active series at a time.
func SetState(allStates []string, active string) {
	for _, s := range allStates {
		if s == active {
			State.WithLabelValues(s).Set(1)
		} else {
			State.WithLabelValues(s).Set(0)
		}
	}
	StateTransitionsTotal.WithLabelValues(active).Inc()
}
