package progress

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// Default spring settings for the scroll smoother.
const (
	DefaultFPS       = 60
	DefaultFrequency = 6.0
	DefaultDamping   = 1.0

	// settleEpsilon is how close position and velocity must be to rest
	// before the smoother reports that it has settled.
	settleEpsilon = 1e-4
)

// SpringConfig holds the spring smoother settings.
type SpringConfig struct {
	FPS       int     `json:"fps" mapstructure:"fps"`
	Frequency float64 `json:"frequency" mapstructure:"frequency"`
	Damping   float64 `json:"damping" mapstructure:"damping"`
}

// DefaultSpringConfig returns a critically damped spring at 60 FPS.
func DefaultSpringConfig() SpringConfig {
	return SpringConfig{FPS: DefaultFPS, Frequency: DefaultFrequency, Damping: DefaultDamping}
}

// Smoother is a spring filter over the raw scroll fraction. It is the only
// state kept between frames. Not safe for concurrent use.
type Smoother struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
	target float64
}

// NewSmoother creates a smoother resting at 0.
func NewSmoother(cfg SpringConfig) *Smoother {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Damping <= 0 {
		cfg.Damping = DefaultDamping
	}
	return &Smoother{
		spring: harmonica.NewSpring(harmonica.FPS(cfg.FPS), cfg.Frequency, cfg.Damping),
	}
}

// SetTarget sets the raw fraction the spring is pulled towards.
func (s *Smoother) SetTarget(target float64) {
	s.target = clamp01(target)
}

// Target returns the current raw fraction.
func (s *Smoother) Target() float64 {
	return s.target
}

// Step advances the spring by one frame and returns the smoothed fraction,
// clamped to [0,1].
func (s *Smoother) Step() float64 {
	s.pos, s.vel = s.spring.Update(s.pos, s.vel, s.target)
	return s.Value()
}

// Value returns the current smoothed fraction.
func (s *Smoother) Value() float64 {
	return clamp01(s.pos)
}

// Settled reports whether the spring is at rest on its target.
func (s *Smoother) Settled() bool {
	return math.Abs(s.pos-s.target) < settleEpsilon && math.Abs(s.vel) < settleEpsilon
}

// Reset places the spring at rest on value, discarding any motion.
func (s *Smoother) Reset(value float64) {
	value = clamp01(value)
	s.pos = value
	s.vel = 0
	s.target = value
}
