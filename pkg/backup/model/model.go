// Package model holds the data model shared across the backup agent:
// cluster membership, recording-log entries, and the backup query/response
// exchange (spec.md §3). Grounded on the teacher's plain struct-per-entity,
// JSON-tagged style (pkg/types) and on original_source/aeron-cluster's
// RecordingLog.Entry, RecordingLog.Snapshot and ClusterMember field shapes.
package model

import (
	"strconv"
	"strings"
)

// NullPosition marks an open-ended or unknown log position.
const NullPosition int64 = -1

// NullValue is the generic "unset" sentinel for ids and correlation ids,
// matching Aeron.NULL_VALUE. Centralizing it here keeps "no outstanding
// request" a single predicate rather than something re-derived per site.
const NullValue int64 = -1

// NullCounterID marks an unset/unassigned counter id.
const NullCounterID int32 = -1

// ConsensusModuleServiceID is the reserved serviceId denoting the
// consensus module's own snapshot, as opposed to a state-machine service.
const ConsensusModuleServiceID int32 = -1

// Member describes one node of the cluster being backed up.
type Member struct {
	ID                int32
	ConsensusEndpoint string
	ArchiveEndpoint   string
}

// ParseMembers parses the semicolon-separated member list carried in a
// BackupResponse's clusterMembers field. Each entry is
// "id,consensusEndpoint,archiveEndpoint"; malformed entries are skipped.
func ParseMembers(raw string) []Member {
	if raw == "" {
		return nil
	}

	var members []Member
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		fields := strings.Split(entry, ",")
		if len(fields) < 3 {
			continue
		}

		id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 32)
		if err != nil {
			continue
		}

		members = append(members, Member{
			ID:                int32(id),
			ConsensusEndpoint: fields[1],
			ArchiveEndpoint:   fields[2],
		})
	}

	return members
}

// FindMember returns the member with the given id, or nil.
func FindMember(members []Member, id int32) *Member {
	for i := range members {
		if members[i].ID == id {
			return &members[i]
		}
	}
	return nil
}

// FormatMembers is the inverse of ParseMembers, used by tests and by any
// in-process fake of the consensus wire protocol.
func FormatMembers(members []Member) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, formatMember(m))
	}
	return strings.Join(parts, ";")
}

func formatMember(m Member) string {
	return strconv.FormatInt(int64(m.ID), 10) + "," + m.ConsensusEndpoint + "," + m.ArchiveEndpoint
}

// EntryType distinguishes recording-log entries.
type EntryType int

const (
	EntryTypeTerm EntryType = iota
	EntryTypeSnapshot
)

func (t EntryType) String() string {
	if t == EntryTypeSnapshot {
		return "SNAPSHOT"
	}
	return "TERM"
}

// Entry is a recording-log term entry (spec.md §3).
type Entry struct {
	RecordingID         int64
	LeadershipTermID    int64
	TermBaseLogPosition int64
	LogPosition         int64 // NullPosition when open-ended
	TimestampMs         int64
	ServiceID           int32
	Type                EntryType
	Valid               bool
	EntryIndex          int
}

// Snapshot is a recording-log snapshot entry (spec.md §3).
type Snapshot struct {
	RecordingID         int64
	LeadershipTermID    int64
	TermBaseLogPosition int64
	LogPosition         int64
	TimestampMs         int64
	ServiceID           int32
}

// IsConsensusModule reports whether this snapshot belongs to the consensus
// module (serviceId == -1) rather than a state-machine service.
func (s Snapshot) IsConsensusModule() bool {
	return s.ServiceID == ConsensusModuleServiceID
}

// BackupQuery is the outbound consensus message (spec.md §6).
type BackupQuery struct {
	CorrelationID           int64
	ResponseStreamID        int32
	ProtocolSemanticVersion int32
	ResponseChannel         string
	EncodedCredentials      []byte
}

// BackupResponse is the inbound consensus message (spec.md §3, §6).
type BackupResponse struct {
	CorrelationID            int64
	LogRecordingID           int64
	LogLeadershipTermID      int64
	LogTermBaseLogPosition   int64
	LastLeadershipTermID     int64
	LastTermBaseLogPosition  int64
	CommitPositionCounterID  int32
	LeaderMemberID           int32
	Snapshots                []Snapshot
	ClusterMembers           string
}
