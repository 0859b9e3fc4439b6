package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("node", WithFailureThreshold(3))

	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.True(t, b.RecordFailure(), "third failure opens the circuit")
	assert.True(t, b.IsOpen())

	assert.False(t, b.RecordFailure(), "already open, no transition")
}

func TestBreaker_ClosesAfterSuccesses(t *testing.T) {
	b := New("node", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	assert.False(t, b.RecordSuccess())
	assert.True(t, b.RecordSuccess(), "second success closes the circuit")
	assert.False(t, b.IsOpen())
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b := New("node", WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	assert.False(t, b.RecordFailure(), "streak was reset by the success")
	assert.False(t, b.IsOpen())
}
