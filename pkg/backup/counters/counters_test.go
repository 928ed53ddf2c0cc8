package counters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateGetSet(t *testing.T) {
	r := NewRegistry()
	c := r.Allocate("test.counter")

	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(0), v)

	c.Set(17)
	v, ok = c.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(17), v)
	assert.Equal(t, "test.counter", c.Label())
}

func TestReleaseMarksCounterClosed(t *testing.T) {
	r := NewRegistry()
	c := r.Allocate("test.counter")

	r.Release(c.ID())

	assert.True(t, c.IsClosed())

	_, ok := c.Get()
	assert.False(t, ok)

	c.Set(99) // no-op on a released counter
	_, ok = c.Get()
	assert.False(t, ok)

	_, ok = r.Lookup(c.ID())
	assert.False(t, ok)
}

func TestReleaseUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() { r.Release(ID(999)) })
}

func TestNewPublishedAllocatesThreeDistinctCounters(t *testing.T) {
	r := NewRegistry()
	p := NewPublished(r)

	require.NotNil(t, p.State)
	require.NotNil(t, p.LiveLogPosition)
	require.NotNil(t, p.NextQueryDeadline)

	ids := map[ID]bool{p.State.ID(): true, p.LiveLogPosition.ID(): true, p.NextQueryDeadline.ID(): true}
	assert.Len(t, ids, 3)
}
