package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointCursorRoundRobin(t *testing.T) {
	c := NewEndpointCursor([]string{"a", "b", "c"})

	_, ok := c.Current()
	assert.False(t, ok)

	assert.Equal(t, "a", c.Next())
	assert.Equal(t, "b", c.Next())
	assert.Equal(t, "c", c.Next())
	assert.Equal(t, "a", c.Next())

	cur, ok := c.Current()
	assert.True(t, ok)
	assert.Equal(t, "a", cur)
}

func TestEndpointCursorReset(t *testing.T) {
	c := NewEndpointCursor([]string{"a", "b"})
	c.Next()
	c.Next()

	c.Reset()
	_, ok := c.Current()
	assert.False(t, ok)
	assert.Equal(t, "a", c.Next())
}

func TestEndpointCursorPanicsOnEmpty(t *testing.T) {
	c := NewEndpointCursor(nil)
	require.Panics(t, func() { c.Next() })
}
