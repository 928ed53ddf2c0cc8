package backup

// State is one of the eight stages of the backup duty cycle (spec.md §2).
type State int

const (
	StateInit State = iota
	StateBackupQuery
	StateSnapshotLengthRetrieve
	StateSnapshotRetrieve
	StateLiveLogReplay
	StateUpdateRecordingLog
	StateBackingUp
	StateResetBackup
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateBackupQuery:
		return "BACKUP_QUERY"
	case StateSnapshotLengthRetrieve:
		return "SNAPSHOT_LENGTH_RETRIEVE"
	case StateSnapshotRetrieve:
		return "SNAPSHOT_RETRIEVE"
	case StateLiveLogReplay:
		return "LIVE_LOG_REPLAY"
	case StateUpdateRecordingLog:
		return "UPDATE_RECORDING_LOG"
	case StateBackingUp:
		return "BACKING_UP"
	case StateResetBackup:
		return "RESET_BACKUP"
	default:
		return "UNKNOWN"
	}
}

// allStates lists every state name in a stable order, for metrics.SetState's
// gauge-per-state reset.
var allStates = []string{
	StateInit.String(),
	StateBackupQuery.String(),
	StateSnapshotLengthRetrieve.String(),
	StateSnapshotRetrieve.String(),
	StateLiveLogReplay.String(),
	StateUpdateRecordingLog.String(),
	StateBackingUp.String(),
	StateResetBackup.String(),
}
