package recordinglog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/clusterbackup/pkg/backup/model"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestEmptyLog(t *testing.T) {
	log := openTestLog(t)

	empty, err := log.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, ok, err := log.FindLastTerm()
	require.NoError(t, err)
	assert.False(t, ok)

	unknown, err := log.IsUnknown(1, 0)
	require.NoError(t, err)
	assert.True(t, unknown)
}

func TestAppendTermAndSnapshot(t *testing.T) {
	log := openTestLog(t)

	term, err := log.AppendTerm(1, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, term.EntryIndex)
	assert.Equal(t, model.NullPosition, term.LogPosition)

	snap := model.Snapshot{
		RecordingID:         42,
		LeadershipTermID:    1,
		TermBaseLogPosition: 0,
		LogPosition:         500,
		TimestampMs:         1500,
		ServiceID:           model.ConsensusModuleServiceID,
	}
	snapEntry, err := log.AppendSnapshot(7, snap, 1500)
	require.NoError(t, err)
	assert.Equal(t, 1, snapEntry.EntryIndex)
	assert.Equal(t, int64(7), snapEntry.RecordingID)
	assert.Equal(t, model.EntryTypeSnapshot, snapEntry.Type)

	entries, err := log.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	empty, err := log.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestFindLastTermReturnsMostRecent(t *testing.T) {
	log := openTestLog(t)

	_, err := log.AppendTerm(1, 0, 1000)
	require.NoError(t, err)
	second, err := log.AppendTerm(2, 1000, 2000)
	require.NoError(t, err)

	last, ok, err := log.FindLastTerm()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.LeadershipTermID, last.LeadershipTermID)
}

func TestLatestSnapshotFiltersByServiceID(t *testing.T) {
	log := openTestLog(t)

	_, err := log.AppendSnapshot(1, model.Snapshot{LeadershipTermID: 1, ServiceID: 0}, 100)
	require.NoError(t, err)
	_, err = log.AppendSnapshot(2, model.Snapshot{LeadershipTermID: 2, ServiceID: model.ConsensusModuleServiceID}, 200)
	require.NoError(t, err)

	consensusSnap, ok, err := log.LatestSnapshot(model.ConsensusModuleServiceID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), consensusSnap.LeadershipTermID)

	serviceSnap, ok, err := log.LatestSnapshot(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), serviceSnap.LeadershipTermID)

	_, ok, err = log.LatestSnapshot(99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsUnknown(t *testing.T) {
	log := openTestLog(t)

	_, err := log.AppendTerm(5, 1000, 9999)
	require.NoError(t, err)

	unknown, err := log.IsUnknown(5, 1000)
	require.NoError(t, err)
	assert.False(t, unknown)

	unknown, err = log.IsUnknown(5, 2000)
	require.NoError(t, err)
	assert.True(t, unknown)
}

func TestCommitRecordingID(t *testing.T) {
	log := openTestLog(t)

	term, err := log.AppendTerm(1, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), term.RecordingID)

	require.NoError(t, log.CommitRecordingID(term.EntryIndex, 123))

	entries, err := log.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(123), entries[0].RecordingID)
}

func TestCommitRecordingIDUnknownIndex(t *testing.T) {
	log := openTestLog(t)
	err := log.CommitRecordingID(7, 1)
	assert.Error(t, err)
}

func TestReopenPersistsEntries(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(dir)
	require.NoError(t, err)
	_, err = log.AppendTerm(1, 0, 1000)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
