package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/clusterbackup/pkg/backup/model"
)

func TestBackupQueryRoundTrip(t *testing.T) {
	q := model.BackupQuery{
		CorrelationID:           42,
		ResponseStreamID:        2,
		ProtocolSemanticVersion: ProtocolVersion,
		ResponseChannel:         "endpoint=10.0.0.4:9020",
		EncodedCredentials:      []byte{0x01, 0x02, 0x03},
	}

	frame := EncodeBackupQuery(q)

	schemaID, templateID, err := PeekHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, SchemaID, schemaID)
	assert.Equal(t, TemplateBackupQuery, templateID)

	decoded, err := DecodeBackupQuery(frame)
	require.NoError(t, err)
	assert.Equal(t, q, decoded)
}

func TestBackupResponseRoundTrip(t *testing.T) {
	resp := model.BackupResponse{
		CorrelationID:           42,
		LogRecordingID:          1,
		LogLeadershipTermID:     2,
		LogTermBaseLogPosition:  1000,
		LastLeadershipTermID:    2,
		LastTermBaseLogPosition: 1000,
		CommitPositionCounterID: 7,
		LeaderMemberID:          1,
		Snapshots: []model.Snapshot{
			{RecordingID: 5, LeadershipTermID: 1, TermBaseLogPosition: 0, LogPosition: 500, TimestampMs: 1000, ServiceID: model.ConsensusModuleServiceID},
			{RecordingID: 6, LeadershipTermID: 1, TermBaseLogPosition: 0, LogPosition: 500, TimestampMs: 1000, ServiceID: 0},
		},
		ClusterMembers: "0,10.0.0.1:9010,10.0.0.1:9020;1,10.0.0.2:9010,10.0.0.2:9020",
	}

	frame := EncodeBackupResponse(resp)

	schemaID, templateID, err := PeekHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, SchemaID, schemaID)
	assert.Equal(t, TemplateBackupResponse, templateID)

	decoded, err := DecodeBackupResponse(frame)
	require.NoError(t, err)
	assert.Equal(t, resp, decoded)
}

func TestBackupResponseEmptySnapshots(t *testing.T) {
	resp := model.BackupResponse{CorrelationID: 1, ClusterMembers: ""}
	frame := EncodeBackupResponse(resp)

	decoded, err := DecodeBackupResponse(frame)
	require.NoError(t, err)
	assert.Empty(t, decoded.Snapshots)
	assert.Equal(t, "", decoded.ClusterMembers)
}

func TestDecodeBackupQueryRejectsWrongSchema(t *testing.T) {
	q := model.BackupQuery{CorrelationID: 1}
	frame := EncodeBackupQuery(q)
	frame[3] = byte(SchemaID + 1) // corrupt the low byte of schemaId

	_, err := DecodeBackupQuery(frame)
	assert.Error(t, err)
}

func TestDecodeBackupResponseRejectsWrongTemplate(t *testing.T) {
	q := model.BackupQuery{CorrelationID: 1}
	frame := EncodeBackupQuery(q)

	_, err := DecodeBackupResponse(frame)
	assert.Error(t, err)
}

func TestReadHeaderRejectsShortFrame(t *testing.T) {
	_, _, err := PeekHeader([]byte{0x00, 0x01})
	assert.Error(t, err)
}
