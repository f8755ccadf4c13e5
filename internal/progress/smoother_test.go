package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmoother_ConvergesToTarget(t *testing.T) {
	s := NewSmoother(DefaultSpringConfig())
	s.SetTarget(0.6)

	var v float64
	for i := 0; i < 600; i++ {
		v = s.Step()
	}
	assert.InDelta(t, 0.6, v, 1e-3)
	assert.True(t, s.Settled())
}

func TestSmoother_MovesGradually(t *testing.T) {
	s := NewSmoother(DefaultSpringConfig())
	s.SetTarget(1)

	first := s.Step()
	assert.Greater(t, first, 0.0)
	assert.Less(t, first, 0.5)
	assert.False(t, s.Settled())
}

func TestSmoother_StaysInRange(t *testing.T) {
	// underdamped spring overshoots, output stays clamped
	s := NewSmoother(SpringConfig{FPS: 60, Frequency: 12, Damping: 0.1})
	s.SetTarget(1)
	for i := 0; i < 300; i++ {
		v := s.Step()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestSmoother_Reset(t *testing.T) {
	s := NewSmoother(DefaultSpringConfig())
	s.SetTarget(1)
	s.Step()
	s.Step()

	s.Reset(0.25)
	assert.Equal(t, 0.25, s.Value())
	assert.Equal(t, 0.25, s.Target())
	assert.True(t, s.Settled())
	assert.Equal(t, 0.25, s.Step())
}

func TestSmoother_ClampsTarget(t *testing.T) {
	s := NewSmoother(SpringConfig{})
	s.SetTarget(3)
	assert.Equal(t, 1.0, s.Target())
	s.SetTarget(-1)
	assert.Equal(t, 0.0, s.Target())
}
