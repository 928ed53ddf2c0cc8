// Package markfile maintains the agent's liveness mark file: a small file
// whose mtime and embedded activity timestamp are rewritten at most once per
// distinct millisecond of the duty cycle so an external supervisor can detect a hung or crashed agent
// (spec.md §1 external collaborator, §4.1 step 3). Grounded on
// original_source/aeron-cluster's ClusterMarkFile.updateActivityTimestamp,
// reimplemented without the original's memory-mapped layout using the
// teacher's plain os.WriteFile/os.MkdirAll idiom (pkg/storage/boltdb.go).
package markfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const fileName = "clusterbackup-mark.dat"

// File is the on-disk liveness mark file.
type File struct {
	path string
}

// Open ensures dataDir exists and returns a handle to its mark file.
func Open(dataDir string) (*File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("markfile: create data dir: %w", err)
	}
	return &File{path: filepath.Join(dataDir, fileName)}, nil
}

// UpdateActivityTimestamp rewrites the mark file with the given epoch-ms
// timestamp. The agent calls it on the first duty cycle of each distinct
// millisecond, regardless of FSM state.
func (f *File) UpdateActivityTimestamp(nowMs int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nowMs))
	return os.WriteFile(f.path, buf, 0o644)
}

// ActivityTimestamp reads back the last recorded activity timestamp. Used by
// tests and by an external liveness checker.
func (f *File) ActivityTimestamp() (int64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("markfile: corrupt file at %s", f.path)
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// Close is a no-op retained for symmetry with other collaborators that hold
// open file descriptors; the mark file is reopened on each write.
func (f *File) Close() error { return nil }
