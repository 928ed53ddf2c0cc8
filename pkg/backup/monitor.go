package backup

import (
	"fmt"

	"github.com/cuemby/clusterbackup/pkg/backup/archive"
)

// snapshotRetrieveMonitor watches the local archive's recording signals
// while a snapshot is being transferred, confirming it starts at position 0
// and stops at the expected stop position before SNAPSHOT_RETRIEVE advances
// its cursor. Grounded on the original's SnapshotRetrieveMonitor inner
// class (ControlEventListener + RecordingSignalConsumer), reshaped into a
// value polled once per duty cycle rather than driven by its own adapter.
type snapshotRetrieveMonitor struct {
	local                *localArchiveHandle
	expectedStopPosition int64

	recordingID  int64
	done         bool
	errorMessage string
}

// localArchiveHandle wraps the local archive client whose control responses
// and recording signals the monitor polls.
type localArchiveHandle struct {
	client archive.LocalClient
}

func newSnapshotRetrieveMonitor(local *localArchiveHandle, expectedStopPosition int64) *snapshotRetrieveMonitor {
	return &snapshotRetrieveMonitor{
		local:                local,
		expectedStopPosition: expectedStopPosition,
		recordingID:          recordingPosNullRecordingID,
	}
}

const recordingPosNullRecordingID int64 = -1

// poll drains pending signals and responses from the local archive,
// returning an error if the archive reported a control-response error or an
// unexpected start/stop position.
func (m *snapshotRetrieveMonitor) poll() (int, error) {
	workCount := 0

	for {
		resp, ok := m.local.client.PollResponse()
		if !ok {
			break
		}
		workCount++
		if resp.Code == archive.ResponseError {
			m.errorMessage = resp.ErrorMessage
		}
	}

	for {
		sig, ok := m.local.client.PollSignal()
		if !ok {
			break
		}
		workCount++
		m.onSignal(sig)
	}

	if m.errorMessage != "" {
		return workCount, fmt.Errorf("error occurred while transferring snapshot: %s", m.errorMessage)
	}

	return workCount, nil
}

func (m *snapshotRetrieveMonitor) onSignal(sig archive.RecordingSignal) {
	switch {
	case sig.Signal == archive.SignalStart && m.recordingID == recordingPosNullRecordingID:
		if sig.Position != 0 {
			m.errorMessage = fmt.Sprintf("unexpected start position expected = 0, actual = %d", sig.Position)
		} else {
			m.recordingID = sig.RecordingID
		}
	case sig.Signal == archive.SignalStop && m.recordingID == sig.RecordingID:
		if m.expectedStopPosition == sig.Position {
			m.done = true
		} else {
			m.errorMessage = fmt.Sprintf("unexpected stop position expected = %d, actual = %d", m.expectedStopPosition, sig.Position)
		}
	}
}

func (m *snapshotRetrieveMonitor) isDone() bool {
	return m.done
}
