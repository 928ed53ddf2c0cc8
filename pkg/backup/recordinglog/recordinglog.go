// Package recordinglog is the durable, append-only index of recording-log
// entries and snapshots that the backup agent keeps consistent with the
// leader's archive (spec.md §3, §4.8). Grounded on the teacher's
// pkg/storage/boltdb.go bucket-per-entity, JSON-encoded-value idiom, and on
// original_source/aeron-cluster's RecordingLog (findLastTerm,
// getLatestSnapshot, isUnknown, append-only entry ordering).
package recordinglog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/clusterbackup/pkg/backup/model"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")

	keyNextIndex = []byte("next_index")
)

// Log is the bbolt-backed recording-log index.
type Log struct {
	db *bolt.DB
}

// Open opens (creating if absent) the recording-log database under dataDir.
func Open(dataDir string) (*Log, error) {
	path := filepath.Join(dataDir, "recording-log.db")

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open recording log: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init recording log buckets: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

func indexKey(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func (l *Log) nextIndex(tx *bolt.Tx) int {
	b := tx.Bucket(bucketMeta)
	v := b.Get(keyNextIndex)
	if v == nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(v))
}

func (l *Log) setNextIndex(tx *bolt.Tx, n int) error {
	b := tx.Bucket(bucketMeta)
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(n))
	return b.Put(keyNextIndex, v)
}

// Entries returns every entry in append order.
func (l *Log) Entries() ([]model.Entry, error) {
	var entries []model.Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		return b.ForEach(func(k, v []byte) error {
			var e model.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func (l *Log) append(e model.Entry) (model.Entry, error) {
	err := l.db.Update(func(tx *bolt.Tx) error {
		idx := l.nextIndex(tx)
		e.EntryIndex = idx

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}

		b := tx.Bucket(bucketEntries)
		if err := b.Put(indexKey(idx), data); err != nil {
			return err
		}

		return l.setNextIndex(tx, idx+1)
	})
	return e, err
}

// AppendTerm appends a new open-ended term entry and returns it with its
// assigned EntryIndex populated.
func (l *Log) AppendTerm(leadershipTermID, termBaseLogPosition, timestampMs int64) (model.Entry, error) {
	return l.append(model.Entry{
		LeadershipTermID:    leadershipTermID,
		TermBaseLogPosition: termBaseLogPosition,
		LogPosition:         model.NullPosition,
		TimestampMs:         timestampMs,
		ServiceID:           model.ConsensusModuleServiceID,
		Type:                model.EntryTypeTerm,
		Valid:               true,
	})
}

// AppendSnapshot appends a snapshot entry derived from a leader-reported
// snapshot descriptor, recording it against the given local recordingID.
func (l *Log) AppendSnapshot(localRecordingID int64, snap model.Snapshot, timestampMs int64) (model.Entry, error) {
	return l.append(model.Entry{
		RecordingID:         localRecordingID,
		LeadershipTermID:    snap.LeadershipTermID,
		TermBaseLogPosition: snap.TermBaseLogPosition,
		LogPosition:         snap.LogPosition,
		TimestampMs:         timestampMs,
		ServiceID:           snap.ServiceID,
		Type:                model.EntryTypeSnapshot,
		Valid:               true,
	})
}

// CommitRecordingID fixes the RecordingID of the term entry at entryIndex,
// called once the leader's recording has actually been identified or
// extended locally (spec.md §4.8 "update recording log").
func (l *Log) CommitRecordingID(entryIndex int, recordingID int64) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		key := indexKey(entryIndex)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("recording log: no entry at index %d", entryIndex)
		}

		var e model.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		e.RecordingID = recordingID

		out, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

// FindLastTerm returns the most recently appended term entry, if any.
func (l *Log) FindLastTerm() (model.Entry, bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return model.Entry{}, false, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == model.EntryTypeTerm && entries[i].Valid {
			return entries[i], true, nil
		}
	}
	return model.Entry{}, false, nil
}

// LatestSnapshot returns the most recently appended valid snapshot entry for
// the given serviceId, if any.
func (l *Log) LatestSnapshot(serviceID int32) (model.Entry, bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return model.Entry{}, false, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Type == model.EntryTypeSnapshot && e.Valid && e.ServiceID == serviceID {
			return e, true, nil
		}
	}
	return model.Entry{}, false, nil
}

// IsUnknown reports whether no valid term entry already covers the given
// leadership term at the given base log position. The agent calls this
// before appending a term entry for a leader-reported log range, to avoid
// duplicating one it already has (spec.md §4.8).
func (l *Log) IsUnknown(leadershipTermID, termBaseLogPosition int64) (bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if e.Type == model.EntryTypeTerm && e.Valid &&
			e.LeadershipTermID == leadershipTermID &&
			e.TermBaseLogPosition == termBaseLogPosition {
			return false, nil
		}
	}
	return true, nil
}

// IsEmpty reports whether the log has no entries at all, meaning the agent
// has never completed a backup cycle.
func (l *Log) IsEmpty() (bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
