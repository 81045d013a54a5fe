package training

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Scheduler type names accepted by SchedulerConfig.Type
const (
	TypeExponentialDecay = "exponential_decay"
	TypeNaturalExpDecay  = "natural_exp_decay"
	TypeInverseTimeDecay = "inverse_time_decay"
	TypePolynomialDecay  = "polynomial_decay"
	TypePiecewiseDecay   = "piecewise_decay"
	TypeCosineDecay      = "cosine_decay"
	TypeNoamDecay        = "noam_decay"
	TypeLinearLRWarmup   = "linear_lr_warmup"
	TypeMultiStepDecay   = "multi_step_decay"
	TypeStepDecay        = "step_decay"
	TypeConstant         = "constant"
)

// SchedulerConfig is the declarative form of a closed-form schedule.
// Only the fields relevant to Type are read.
type SchedulerConfig struct {
	Type string `json:"type"`

	LearningRate    *float64 `json:"learning_rate,omitempty"`
	DecaySteps      float64  `json:"decay_steps,omitempty"`
	DecayRate       *float64 `json:"decay_rate,omitempty"`
	Staircase       bool     `json:"staircase,omitempty"`
	EndLearningRate *float64 `json:"end_learning_rate,omitempty"`
	Power           *float64 `json:"power,omitempty"`
	Cycle           bool     `json:"cycle,omitempty"`

	Boundaries []float64 `json:"boundaries,omitempty"`
	Values     []float64 `json:"values,omitempty"`

	StepEachEpoch float64 `json:"step_each_epoch,omitempty"`
	Epochs        float64 `json:"epochs,omitempty"`

	DModel      float64 `json:"d_model,omitempty"`
	WarmupSteps float64 `json:"warmup_steps,omitempty"`

	// Warm-up: either Base or LearningRate names what follows the ramp
	StartLR float64          `json:"start_lr,omitempty"`
	EndLR   float64          `json:"end_lr,omitempty"`
	Base    *SchedulerConfig `json:"base,omitempty"`

	Milestones []int `json:"milestones,omitempty"`
	StepSize   int   `json:"step_size,omitempty"`
}

// ParseSchedulerConfig decodes a JSON scheduler document.
// Unknown fields and values of the wrong JSON type are configuration errors.
func ParseSchedulerConfig(data []byte) (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BuildScheduler parses a JSON scheduler document and constructs the schedule
func BuildScheduler(data []byte) (LRScheduler, error) {
	cfg, err := ParseSchedulerConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}

// Build constructs the schedule the configuration describes
func (c *SchedulerConfig) Build() (LRScheduler, error) {
	switch c.Type {
	case TypeExponentialDecay, TypeNaturalExpDecay, TypeInverseTimeDecay:
		lr, err := c.requireLR()
		if err != nil {
			return nil, err
		}
		if c.DecayRate == nil {
			return nil, fmt.Errorf("%w: %s requires decay_rate", ErrInvalidConfig, c.Type)
		}
		switch c.Type {
		case TypeExponentialDecay:
			return asScheduler(NewExponentialDecay(lr, c.DecaySteps, *c.DecayRate, c.Staircase))
		case TypeNaturalExpDecay:
			return asScheduler(NewNaturalExpDecay(lr, c.DecaySteps, *c.DecayRate, c.Staircase))
		default:
			return asScheduler(NewInverseTimeDecay(lr, c.DecaySteps, *c.DecayRate, c.Staircase))
		}

	case TypePolynomialDecay:
		lr, err := c.requireLR()
		if err != nil {
			return nil, err
		}
		return asScheduler(NewPolynomialDecay(lr, c.DecaySteps,
			valueOr(c.EndLearningRate, DefaultEndLearningRate), valueOr(c.Power, 1.0), c.Cycle))

	case TypePiecewiseDecay:
		return asScheduler(NewPiecewiseDecay(c.Boundaries, c.Values))

	case TypeCosineDecay:
		lr, err := c.requireLR()
		if err != nil {
			return nil, err
		}
		return asScheduler(NewCosineDecay(lr, c.StepEachEpoch, c.Epochs))

	case TypeNoamDecay:
		return asScheduler(NewNoamDecay(c.DModel, c.WarmupSteps, valueOr(c.LearningRate, 1.0)))

	case TypeLinearLRWarmup:
		var base LRScheduler
		switch {
		case c.Base != nil && c.LearningRate != nil:
			return nil, fmt.Errorf("%w: warm-up takes either base or learning_rate, not both", ErrInvalidConfig)
		case c.Base != nil:
			b, err := c.Base.Build()
			if err != nil {
				return nil, fmt.Errorf("warm-up base: %w", err)
			}
			base = b
		case c.LearningRate != nil:
			base = ConstantLR{LearningRate: *c.LearningRate}
		default:
			return nil, fmt.Errorf("%w: warm-up requires base or learning_rate", ErrInvalidConfig)
		}
		return asScheduler(NewLinearLRWarmup(base, c.WarmupSteps, c.StartLR, c.EndLR))

	case TypeMultiStepDecay:
		lr, err := c.requireLR()
		if err != nil {
			return nil, err
		}
		return asScheduler(NewMultiStepDecay(lr, c.Milestones, valueOr(c.DecayRate, 0.1)))

	case TypeStepDecay:
		lr, err := c.requireLR()
		if err != nil {
			return nil, err
		}
		return asScheduler(NewStepDecay(lr, c.StepSize, valueOr(c.DecayRate, 0.1)))

	case TypeConstant:
		lr, err := c.requireLR()
		if err != nil {
			return nil, err
		}
		if err := requireFinite("learning_rate", lr); err != nil {
			return nil, err
		}
		return ConstantLR{LearningRate: lr}, nil

	default:
		return nil, fmt.Errorf("%w: unknown scheduler type %q", ErrInvalidConfig, c.Type)
	}
}

func (c *SchedulerConfig) requireLR() (float64, error) {
	if c.LearningRate == nil {
		return 0, fmt.Errorf("%w: %s requires learning_rate", ErrInvalidConfig, c.Type)
	}
	return *c.LearningRate, nil
}

// plateauDocument mirrors PlateauConfig with JSON names and optional fields
type plateauDocument struct {
	LearningRate  *float64 `json:"learning_rate"`
	Mode          *string  `json:"mode,omitempty"`
	DecayRate     *float64 `json:"decay_rate,omitempty"`
	Patience      *int     `json:"patience,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
	ThresholdMode *string  `json:"threshold_mode,omitempty"`
	Cooldown      *int     `json:"cooldown,omitempty"`
	MinLR         *float64 `json:"min_lr,omitempty"`
	Eps           *float64 `json:"eps,omitempty"`
	Verbose       bool     `json:"verbose,omitempty"`
}

// ParsePlateauConfig decodes a JSON plateau document over DefaultPlateauConfig
// and validates the result
func ParsePlateauConfig(data []byte) (PlateauConfig, error) {
	var doc plateauDocument
	if err := decodeStrict(data, &doc); err != nil {
		return PlateauConfig{}, err
	}
	if doc.LearningRate == nil {
		return PlateauConfig{}, fmt.Errorf("%w: plateau scheduler requires learning_rate", ErrInvalidConfig)
	}

	cfg := DefaultPlateauConfig(*doc.LearningRate)
	if doc.Mode != nil {
		cfg.Mode = PlateauMode(*doc.Mode)
	}
	if doc.ThresholdMode != nil {
		cfg.ThresholdMode = ThresholdMode(*doc.ThresholdMode)
	}
	cfg.DecayRate = valueOr(doc.DecayRate, cfg.DecayRate)
	cfg.Threshold = valueOr(doc.Threshold, cfg.Threshold)
	cfg.MinLR = valueOr(doc.MinLR, cfg.MinLR)
	cfg.Eps = valueOr(doc.Eps, cfg.Eps)
	cfg.Patience = valueOr(doc.Patience, cfg.Patience)
	cfg.Cooldown = valueOr(doc.Cooldown, cfg.Cooldown)
	cfg.Verbose = doc.Verbose

	if err := cfg.Validate(); err != nil {
		return PlateauConfig{}, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// asScheduler lifts a typed constructor result into the interface without
// turning a nil pointer into a non-nil interface
func asScheduler[T LRScheduler](s T, err error) (LRScheduler, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
