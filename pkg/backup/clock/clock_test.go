package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	f := NewFake(1000)
	assert.Equal(t, int64(1000), f.TimeMillis())

	assert.Equal(t, int64(1500), f.Advance(500))
	assert.Equal(t, int64(1500), f.TimeMillis())

	f.Set(42)
	assert.Equal(t, int64(42), f.TimeMillis())
}

func TestSystemClockMonotonicallyNonDecreasing(t *testing.T) {
	s := System{}
	a := s.TimeMillis()
	b := s.TimeMillis()
	assert.LessOrEqual(t, a, b)
}
