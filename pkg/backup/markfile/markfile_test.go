package markfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAndReadActivityTimestamp(t *testing.T) {
	f, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.UpdateActivityTimestamp(12345))

	ts, err := f.ActivityTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ts)

	require.NoError(t, f.UpdateActivityTimestamp(67890))
	ts, err = f.ActivityTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(67890), ts)
}

func TestOpenCreatesDataDir(t *testing.T) {
	dir := t.TempDir() + "/nested/data"
	_, err := Open(dir)
	require.NoError(t, err)
}

func TestActivityTimestampMissingFile(t *testing.T) {
	f, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = f.ActivityTimestamp()
	assert.Error(t, err)
}
