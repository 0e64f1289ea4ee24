package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicState_CAS(t *testing.T) {
	s := NewAtomicState()
	assert.Equal(t, StateUnused, s.Load())

	assert.True(t, s.CAS(StateUnused, StateEmbryo))
	assert.Equal(t, StateEmbryo, s.Load())

	assert.False(t, s.CAS(StateUnused, StateRunnable), "CAS against a stale expected value must fail")
	assert.Equal(t, StateEmbryo, s.Load(), "a failed CAS must not change the state")
}

func TestState_TwinStable_RoundTrip(t *testing.T) {
	for _, s := range []State{StateRunnable, StateSleeping, StateZombie} {
		twin, ok := s.Twin()
		require.True(t, ok, "%s must have a twin", s)
		stable, ok := twin.Stable()
		require.True(t, ok, "%s's twin must resolve back to a stable state", twin)
		assert.Equal(t, s, stable)
	}
}

func TestState_NoTwinForTerminalOrTransientStates(t *testing.T) {
	for _, s := range []State{StateUnused, StateEmbryo, StateRunning} {
		_, ok := s.Twin()
		assert.False(t, ok, "%s must not have a twin", s)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "RUNNABLE", StateRunnable.String())
	assert.Equal(t, "neg-SLEEPING", StateNegSleeping.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
