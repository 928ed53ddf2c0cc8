package backuperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocolMismatchIsFatal(t *testing.T) {
	err := ProtocolMismatch(1, 2)
	assert.Equal(t, KindProtocolMismatch, err.Kind)
	assert.Equal(t, SeverityFatal, err.Severity)
	assert.Contains(t, err.Error(), "expected schemaId=1")
}

func TestStallIsWarn(t *testing.T) {
	err := Stall()
	assert.Equal(t, KindStall, err.Kind)
	assert.Equal(t, SeverityWarn, err.Severity)
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindArchiveError, "request failed", cause)

	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestSeverityAndKindStrings(t *testing.T) {
	assert.Equal(t, "fatal", SeverityFatal.String())
	assert.Equal(t, "warn", SeverityWarn.String())
	assert.Equal(t, "unknown", Kind(999).String())
}
