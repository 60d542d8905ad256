package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New("audit-primary")
	assert.Equal(t, "audit-primary", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, b.IsOpen())
}

func TestBreakerTripsAtFailureThreshold(t *testing.T) {
	b := New("audit-primary", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback, "failure %d is below the threshold", i+1)
		assert.False(t, change.Opened)
	}

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	// Once open, further failures report no transition.
	_, change = b.RecordFailure()
	assert.False(t, change.Opened)
}

func TestBreakerRecoversAfterSuccessThreshold(t *testing.T) {
	b := New("audit-primary", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestCountersResetOnOppositeOutcome(t *testing.T) {
	t.Run("success while closed clears accumulated failures", func(t *testing.T) {
		b := New("audit-primary", WithFailureThreshold(2))
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.False(t, b.IsOpen())
		b.RecordFailure()
		assert.True(t, b.IsOpen())
	})

	t.Run("failure while open restarts the success streak", func(t *testing.T) {
		b := New("audit-primary", WithFailureThreshold(1), WithSuccessThreshold(2))
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordSuccess()
		assert.True(t, b.IsOpen())
		b.RecordSuccess()
		assert.False(t, b.IsOpen())
	})
}

func TestReset(t *testing.T) {
	b := New("audit-stream", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestStateString(t *testing.T) {
	b := New("audit-stream", WithFailureThreshold(1))
	assert.Equal(t, "closed", b.State().String())
	b.RecordFailure()
	assert.Equal(t, "open", b.State().String())
}

func TestProbeAdmitsOneCallerPerInterval(t *testing.T) {
	b := New("audit-primary", WithFailureThreshold(1))

	assert.True(t, b.Probe(time.Hour), "closed breakers always admit")

	b.RecordFailure()
	assert.False(t, b.Probe(time.Hour), "interval has not elapsed since the trip")

	assert.True(t, b.Probe(0))
	assert.False(t, b.Probe(time.Hour), "only one caller wins a due probe")
}
