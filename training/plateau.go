package training

import (
	"fmt"
	"log"
	"math"
)

// PlateauMode selects whether the monitored metric should shrink or grow
type PlateauMode string

const (
	ModeMin PlateauMode = "min"
	ModeMax PlateauMode = "max"
)

// ThresholdMode selects how the improvement threshold is applied to the best metric
type ThresholdMode string

const (
	ThresholdRel ThresholdMode = "rel"
	ThresholdAbs ThresholdMode = "abs"
)

// PlateauConfig holds the construction parameters of ReduceLROnPlateau
type PlateauConfig struct {
	LearningRate  float64       // Initial learning rate
	Mode          PlateauMode   // "min" or "max"
	DecayRate     float64       // Multiplicative factor applied on a plateau, in (0, 1)
	Patience      int           // Bad epochs tolerated before decaying
	Threshold     float64       // Minimum change that counts as an improvement
	ThresholdMode ThresholdMode // "rel" or "abs"
	Cooldown      int           // Epochs to skip after a decay
	MinLR         float64       // Lower bound on the decayed learning rate
	Eps           float64       // Decays smaller than this are skipped
	Verbose       bool          // Log every reduction
	Logger        *log.Logger   // Defaults to log.Default()
}

// DefaultPlateauConfig returns the conventional defaults for the given learning rate
func DefaultPlateauConfig(learningRate float64) PlateauConfig {
	return PlateauConfig{
		LearningRate:  learningRate,
		Mode:          ModeMin,
		DecayRate:     0.1,
		Patience:      10,
		Threshold:     1e-4,
		ThresholdMode: ThresholdRel,
		Cooldown:      0,
		MinLR:         0,
		Eps:           1e-8,
	}
}

// Validate checks the configuration and reports the first problem found
func (c PlateauConfig) Validate() error {
	if err := requireFinite("learning_rate", c.LearningRate); err != nil {
		return err
	}
	if math.IsNaN(c.DecayRate) || c.DecayRate <= 0 || c.DecayRate >= 1 {
		return fmt.Errorf("%w: decay_rate must be in (0, 1), got %v", ErrInvalidConfig, c.DecayRate)
	}
	if c.Mode != ModeMin && c.Mode != ModeMax {
		return fmt.Errorf("%w: mode must be %q or %q, got %q", ErrInvalidConfig, ModeMin, ModeMax, c.Mode)
	}
	if c.ThresholdMode != ThresholdRel && c.ThresholdMode != ThresholdAbs {
		return fmt.Errorf("%w: threshold_mode must be %q or %q, got %q", ErrInvalidConfig, ThresholdRel, ThresholdAbs, c.ThresholdMode)
	}
	if c.Patience < 0 {
		return fmt.Errorf("%w: patience must be non-negative, got %d", ErrInvalidConfig, c.Patience)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must be non-negative, got %d", ErrInvalidConfig, c.Cooldown)
	}
	if err := requireNonNegative("threshold", c.Threshold); err != nil {
		return err
	}
	if err := requireNonNegative("min_lr", c.MinLR); err != nil {
		return err
	}
	return requireNonNegative("eps", c.Eps)
}

// PlateauState is the mutable part of a plateau scheduler. It is owned by
// exactly one caller; Transition must not run concurrently on the same state.
type PlateauState struct {
	BestMetric      float64
	CurrentLR       float64
	CooldownCounter int
	BadEpochs       int
}

// ReduceLROnPlateau reduces the learning rate when a metric has stopped improving.
// The configuration is immutable after construction; the state it steps is
// either the one it owns (Step) or one supplied by the caller (Transition).
type ReduceLROnPlateau struct {
	config PlateauConfig
	state  PlateauState
}

// NewReduceLROnPlateau validates cfg and creates a plateau scheduler
func NewReduceLROnPlateau(cfg PlateauConfig) (*ReduceLROnPlateau, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &ReduceLROnPlateau{config: cfg}
	s.state = s.InitialState()
	return s, nil
}

// Config returns the construction parameters
func (s *ReduceLROnPlateau) Config() PlateauConfig {
	return s.config
}

// InitialState returns the state a fresh scheduler starts from
func (s *ReduceLROnPlateau) InitialState() PlateauState {
	best := math.Inf(1)
	if s.config.Mode == ModeMax {
		best = math.Inf(-1)
	}
	return PlateauState{
		BestMetric: best,
		CurrentLR:  s.config.LearningRate,
	}
}

// IsBetter reports whether current improves on best by more than the threshold
func (s *ReduceLROnPlateau) IsBetter(current, best float64) bool {
	c := s.config
	if math.IsInf(best, 0) {
		// best*threshold is infinite too, so the relative forms would compare against NaN
		if c.Mode == ModeMin {
			return current < best
		}
		return current > best
	}
	switch {
	case c.Mode == ModeMin && c.ThresholdMode == ThresholdRel:
		return current < best-best*c.Threshold
	case c.Mode == ModeMin:
		return current < best-c.Threshold
	case c.ThresholdMode == ThresholdRel:
		return current > best+best*c.Threshold
	default:
		return current > best+c.Threshold
	}
}

// Transition advances state by one epoch given that epoch's metric and
// returns the resulting learning rate
func (s *ReduceLROnPlateau) Transition(state *PlateauState, metric float64) float64 {
	if state.CooldownCounter > 0 {
		state.CooldownCounter--
		return state.CurrentLR
	}

	if s.IsBetter(metric, state.BestMetric) {
		state.BestMetric = metric
		state.BadEpochs = 0
		return state.CurrentLR
	}

	state.BadEpochs++
	if state.BadEpochs > s.config.Patience {
		state.CooldownCounter = s.config.Cooldown
		state.BadEpochs = 0

		candidate := math.Max(state.CurrentLR*s.config.DecayRate, s.config.MinLR)
		if state.CurrentLR-candidate > s.config.Eps {
			if s.config.Verbose {
				s.logger().Printf("ReduceLROnPlateau: learning rate reduced from %g to %g", state.CurrentLR, candidate)
			}
			state.CurrentLR = candidate
		}
	}
	return state.CurrentLR
}

// Step checks if LR should be reduced based on metric.
// This is called once per epoch with the validation metric.
func (s *ReduceLROnPlateau) Step(metric float64) float64 {
	return s.Transition(&s.state, metric)
}

// GetLR returns the learning rate the scheduler currently holds
func (s *ReduceLROnPlateau) GetLR() float64 {
	return s.state.CurrentLR
}

// State returns a copy of the owned state for checkpointing
func (s *ReduceLROnPlateau) State() PlateauState {
	return s.state
}

// Restore replaces the owned state, typically from a checkpoint
func (s *ReduceLROnPlateau) Restore(state PlateauState) error {
	if math.IsNaN(state.CurrentLR) || math.IsInf(state.CurrentLR, 0) {
		return fmt.Errorf("%w: restored learning rate must be finite, got %v", ErrInvalidConfig, state.CurrentLR)
	}
	if state.CooldownCounter < 0 || state.BadEpochs < 0 {
		return fmt.Errorf("%w: restored counters must be non-negative", ErrInvalidConfig)
	}
	s.state = state
	return nil
}

func (s *ReduceLROnPlateau) GetName() string {
	return "ReduceLROnPlateau"
}

func (s *ReduceLROnPlateau) logger() *log.Logger {
	if s.config.Logger != nil {
		return s.config.Logger
	}
	return log.Default()
}
