// Package events defines the backup agent's listener: a single, in-process
// observer of duty-cycle milestones, not a fan-out broadcaster. Restructured
// from the teacher's channel-based Broker (one writer, many buffered
// subscriber channels, silently dropping events on a full buffer) into a
// struct of optional callback fields, per the design note that the agent
// has exactly one owner watching it synchronously and a dropped notification
// is a correctness bug, not acceptable backpressure behavior.
package events

import "github.com/cuemby/clusterbackup/pkg/backup/model"

// Listener receives notifications at the points spec.md §9 calls out. Every
// field is optional; a nil field is simply not invoked. Handlers are called
// synchronously from the duty-cycle thread and must not block.
type Listener struct {
	// OnBackupQuery fires after a query has been offered to a candidate
	// endpoint.
	OnBackupQuery func(endpoint string, correlationID int64)

	// OnBackupResponse fires after a response has been decoded and
	// accepted (correlation id already validated).
	OnBackupResponse func(resp model.BackupResponse)

	// OnLiveLogProgress fires whenever the live-log replay position
	// advances during BACKING_UP.
	OnLiveLogProgress func(position int64)

	// OnUpdatedRecordingLog fires after a term or snapshot entry has been
	// durably appended to the recording log.
	OnUpdatedRecordingLog func(entry model.Entry)

	// OnPossibleFailure fires when the agent reports a failure, whether a
	// warning (stall, unavailable counter) or a raised error; each report is
	// accompanied by a transition to RESET_BACKUP.
	OnPossibleFailure func(err error)
}

func (l *Listener) backupQuery(endpoint string, correlationID int64) {
	if l != nil && l.OnBackupQuery != nil {
		l.OnBackupQuery(endpoint, correlationID)
	}
}

func (l *Listener) backupResponse(resp model.BackupResponse) {
	if l != nil && l.OnBackupResponse != nil {
		l.OnBackupResponse(resp)
	}
}

func (l *Listener) liveLogProgress(position int64) {
	if l != nil && l.OnLiveLogProgress != nil {
		l.OnLiveLogProgress(position)
	}
}

func (l *Listener) updatedRecordingLog(entry model.Entry) {
	if l != nil && l.OnUpdatedRecordingLog != nil {
		l.OnUpdatedRecordingLog(entry)
	}
}

func (l *Listener) possibleFailure(err error) {
	if l != nil && l.OnPossibleFailure != nil {
		l.OnPossibleFailure(err)
	}
}

// NotifyBackupQuery is the exported entry point pkg/backup calls; it is safe
// to call on a nil *Listener.
func NotifyBackupQuery(l *Listener, endpoint string, correlationID int64) {
	l.backupQuery(endpoint, correlationID)
}

// NotifyBackupResponse is the exported entry point pkg/backup calls; it is
// safe to call on a nil *Listener.
func NotifyBackupResponse(l *Listener, resp model.BackupResponse) {
	l.backupResponse(resp)
}

// NotifyLiveLogProgress is the exported entry point pkg/backup calls; it is
// safe to call on a nil *Listener.
func NotifyLiveLogProgress(l *Listener, position int64) {
	l.liveLogProgress(position)
}

// NotifyUpdatedRecordingLog is the exported entry point pkg/backup calls; it
// is safe to call on a nil *Listener.
func NotifyUpdatedRecordingLog(l *Listener, entry model.Entry) {
	l.updatedRecordingLog(entry)
}

// NotifyPossibleFailure is the exported entry point pkg/backup calls; it is
// safe to call on a nil *Listener.
func NotifyPossibleFailure(l *Listener, err error) {
	l.possibleFailure(err)
}
