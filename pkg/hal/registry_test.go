package hal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var changes []PinState
	r.Listen(PinChangedFunc(func(s PinState) { changes = append(changes, s) }))

	din, err := r.RegisterPin("b1.din.3", Bit, Out)
	require.NoError(t, err)
	ain, err := r.RegisterPin("b1.ain.14", Float, Out)
	require.NoError(t, err)
	_, err = r.RegisterPin("b1.din.3", Bit, Out)
	require.True(t, errors.Is(err, ErrDuplicatePin))

	require.NoError(t, r.Set(din, 5))
	v, err := r.Get(din)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)

	require.NoError(t, r.Set(din, 1))
	require.NoError(t, r.Set(ain, 512.5))
	v, err = r.Get(ain)
	require.NoError(t, err)
	assert.Equal(t, 512.5, v)

	require.Len(t, changes, 2)
	assert.Equal(t, "b1.din.3", changes[0].Name)
	assert.Equal(t, float64(1), changes[0].Value)
	assert.Equal(t, "b1.ain.14", changes[1].Name)

	h, ok := r.Lookup("b1.ain.14")
	require.True(t, ok)
	assert.Equal(t, ain, h)
	_, ok = r.Lookup("b2.ain.14")
	assert.False(t, ok)

	snapshot := r.Snapshot("b1.")
	require.Len(t, snapshot, 2)
	assert.Equal(t, "b1.ain.14", snapshot[0].Name)
	assert.Equal(t, "b1.din.3", snapshot[1].Name)
}

func TestRegistryUnknownPin(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(Handle(3))
	assert.Equal(t, ErrUnknownPin, err)
	assert.Equal(t, ErrUnknownPin, r.Set(Handle(-1), 1))
	_, ok := r.State(Handle(0))
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float64(0), Normalize(Bit, 0))
	assert.Equal(t, float64(1), Normalize(Bit, -3))
	assert.Equal(t, 0.25, Normalize(Float, 0.25))
	assert.Equal(t, "bit", Bit.String())
	assert.Equal(t, "in", In.String())
}
