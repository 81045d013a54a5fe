package training

import (
	"fmt"
	"math"
)

// LRScheduler defines the interface for learning rate scheduling strategies.
// Implementations are immutable once constructed, so GetLR is a pure function
// of the step and may be called in any order.
type LRScheduler interface {
	// GetLR returns the learning rate for the given global step (or epoch,
	// for epoch-based schedules)
	GetLR(step float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// ExponentialDecay computes lr0 * rate^(step/decaySteps)
type ExponentialDecay struct {
	LearningRate float64
	DecaySteps   float64
	DecayRate    float64
	Staircase    bool // Floor the exponent, producing a step function
}

// NewExponentialDecay creates an exponential decay schedule
func NewExponentialDecay(learningRate, decaySteps, decayRate float64, staircase bool) (*ExponentialDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if err := requirePositive("decay_steps", decaySteps); err != nil {
		return nil, err
	}
	if err := requirePositive("decay_rate", decayRate); err != nil {
		return nil, err
	}
	return &ExponentialDecay{
		LearningRate: learningRate,
		DecaySteps:   decaySteps,
		DecayRate:    decayRate,
		Staircase:    staircase,
	}, nil
}

func (s ExponentialDecay) GetLR(step float64) float64 {
	exponent := step / s.DecaySteps
	if s.Staircase {
		exponent = math.Floor(exponent)
	}
	return s.LearningRate * math.Pow(s.DecayRate, exponent)
}

func (s ExponentialDecay) GetName() string {
	return "ExponentialDecay"
}

// NaturalExpDecay computes lr0 * exp(-rate * step/decaySteps)
type NaturalExpDecay struct {
	LearningRate float64
	DecaySteps   float64
	DecayRate    float64
	Staircase    bool
}

// NewNaturalExpDecay creates a natural exponential decay schedule
func NewNaturalExpDecay(learningRate, decaySteps, decayRate float64, staircase bool) (*NaturalExpDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if err := requirePositive("decay_steps", decaySteps); err != nil {
		return nil, err
	}
	if err := requireFinite("decay_rate", decayRate); err != nil {
		return nil, err
	}
	return &NaturalExpDecay{
		LearningRate: learningRate,
		DecaySteps:   decaySteps,
		DecayRate:    decayRate,
		Staircase:    staircase,
	}, nil
}

func (s NaturalExpDecay) GetLR(step float64) float64 {
	ratio := step / s.DecaySteps
	if s.Staircase {
		ratio = math.Floor(ratio)
	}
	return s.LearningRate * math.Exp(-s.DecayRate*ratio)
}

func (s NaturalExpDecay) GetName() string {
	return "NaturalExpDecay"
}

// InverseTimeDecay computes lr0 / (1 + rate * step/decaySteps)
type InverseTimeDecay struct {
	LearningRate float64
	DecaySteps   float64
	DecayRate    float64
	Staircase    bool
}

// NewInverseTimeDecay creates an inverse time decay schedule
func NewInverseTimeDecay(learningRate, decaySteps, decayRate float64, staircase bool) (*InverseTimeDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if err := requirePositive("decay_steps", decaySteps); err != nil {
		return nil, err
	}
	// A negative rate would reach a zero denominator
	if err := requireNonNegative("decay_rate", decayRate); err != nil {
		return nil, err
	}
	return &InverseTimeDecay{
		LearningRate: learningRate,
		DecaySteps:   decaySteps,
		DecayRate:    decayRate,
		Staircase:    staircase,
	}, nil
}

func (s InverseTimeDecay) GetLR(step float64) float64 {
	ratio := step / s.DecaySteps
	if s.Staircase {
		ratio = math.Floor(ratio)
	}
	return s.LearningRate / (1 + s.DecayRate*ratio)
}

func (s InverseTimeDecay) GetName() string {
	return "InverseTimeDecay"
}

// DefaultEndLearningRate is the polynomial decay floor used when none is configured
const DefaultEndLearningRate = 0.0001

// PolynomialDecay interpolates from LearningRate down to EndLearningRate
// along (1 - step/decaySteps)^power.
//
// In cyclic mode the horizon is stretched to the next multiple of DecaySteps
// past the current step, so the rate only reaches EndLearningRate exactly on
// a cycle boundary. Step 0 uses a divisor of 1.
type PolynomialDecay struct {
	LearningRate    float64
	DecaySteps      float64
	EndLearningRate float64
	Power           float64
	Cycle           bool
}

// NewPolynomialDecay creates a polynomial decay schedule
func NewPolynomialDecay(learningRate, decaySteps, endLearningRate, power float64, cycle bool) (*PolynomialDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if err := requirePositive("decay_steps", decaySteps); err != nil {
		return nil, err
	}
	if err := requireFinite("end_learning_rate", endLearningRate); err != nil {
		return nil, err
	}
	if err := requireFinite("power", power); err != nil {
		return nil, err
	}
	return &PolynomialDecay{
		LearningRate:    learningRate,
		DecaySteps:      decaySteps,
		EndLearningRate: endLearningRate,
		Power:           power,
		Cycle:           cycle,
	}, nil
}

func (s PolynomialDecay) GetLR(step float64) float64 {
	decaySteps := s.DecaySteps
	if s.Cycle {
		div := math.Ceil(step / decaySteps)
		if div == 0 {
			div = 1
		}
		decaySteps *= div
	} else {
		step = math.Min(step, decaySteps)
	}
	return (s.LearningRate-s.EndLearningRate)*math.Pow(1-step/decaySteps, s.Power) + s.EndLearningRate
}

func (s PolynomialDecay) GetName() string {
	return "PolynomialDecay"
}

// PiecewiseDecay returns Values[i] for the first boundary the step has not
// yet reached, and the last value once every boundary is passed.
type PiecewiseDecay struct {
	Boundaries []float64
	Values     []float64
}

// NewPiecewiseDecay creates a piecewise constant schedule.
// Boundaries must be strictly increasing and len(values) == len(boundaries)+1.
func NewPiecewiseDecay(boundaries, values []float64) (*PiecewiseDecay, error) {
	if len(values) != len(boundaries)+1 {
		return nil, fmt.Errorf("%w: piecewise decay needs %d values for %d boundaries, got %d",
			ErrInvalidConfig, len(boundaries)+1, len(boundaries), len(values))
	}
	if !strictlyIncreasing(boundaries) {
		return nil, fmt.Errorf("%w: piecewise boundaries must be strictly increasing: %v", ErrInvalidConfig, boundaries)
	}
	for i, v := range values {
		if err := requireFinite(fmt.Sprintf("values[%d]", i), v); err != nil {
			return nil, err
		}
	}
	return &PiecewiseDecay{
		Boundaries: append([]float64(nil), boundaries...),
		Values:     append([]float64(nil), values...),
	}, nil
}

func (s PiecewiseDecay) GetLR(step float64) float64 {
	for i, boundary := range s.Boundaries {
		if step < boundary {
			return s.Values[i]
		}
	}
	return s.Values[len(s.Values)-1]
}

func (s PiecewiseDecay) GetName() string {
	return "PiecewiseDecay"
}

// CosineDecay anneals per epoch: lr0 * 0.5 * (cos(epoch*pi/epochs) + 1),
// where epoch = floor(step/StepEachEpoch)
type CosineDecay struct {
	LearningRate  float64
	StepEachEpoch float64
	Epochs        float64
}

// NewCosineDecay creates a cosine decay schedule
func NewCosineDecay(learningRate, stepEachEpoch, epochs float64) (*CosineDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if err := requirePositive("step_each_epoch", stepEachEpoch); err != nil {
		return nil, err
	}
	if err := requirePositive("epochs", epochs); err != nil {
		return nil, err
	}
	return &CosineDecay{
		LearningRate:  learningRate,
		StepEachEpoch: stepEachEpoch,
		Epochs:        epochs,
	}, nil
}

func (s CosineDecay) GetLR(step float64) float64 {
	epoch := math.Floor(step / s.StepEachEpoch)
	return s.LearningRate * 0.5 * (math.Cos(epoch*math.Pi/s.Epochs) + 1)
}

func (s CosineDecay) GetName() string {
	return "CosineDecay"
}

// NoamDecay is the transformer schedule:
// lr0 * dModel^-0.5 * min(step^-0.5, warmup^-1.5 * step).
// Steps are 1-indexed; step 0 is outside the domain and is not guarded.
type NoamDecay struct {
	DModel       float64
	WarmupSteps  float64
	LearningRate float64
}

// NewNoamDecay creates a Noam schedule
func NewNoamDecay(dModel, warmupSteps, learningRate float64) (*NoamDecay, error) {
	if err := requirePositive("d_model", dModel); err != nil {
		return nil, err
	}
	if err := requirePositive("warmup_steps", warmupSteps); err != nil {
		return nil, err
	}
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	return &NoamDecay{
		DModel:       dModel,
		WarmupSteps:  warmupSteps,
		LearningRate: learningRate,
	}, nil
}

func (s NoamDecay) GetLR(step float64) float64 {
	a := math.Pow(step, -0.5)
	b := math.Pow(s.WarmupSteps, -1.5) * step
	return s.LearningRate * math.Pow(s.DModel, -0.5) * math.Min(a, b)
}

func (s NoamDecay) GetName() string {
	return "NoamDecay"
}

// LinearLRWarmup ramps linearly from StartLR to EndLR over WarmupSteps and
// then hands off to Base evaluated at the same step
type LinearLRWarmup struct {
	Base        LRScheduler
	WarmupSteps float64
	StartLR     float64
	EndLR       float64
}

// NewLinearLRWarmup wraps base with a linear warm-up prefix.
// Use ConstantLR to warm up towards a scalar learning rate.
func NewLinearLRWarmup(base LRScheduler, warmupSteps, startLR, endLR float64) (*LinearLRWarmup, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: warm-up needs a base schedule", ErrInvalidConfig)
	}
	if err := requirePositive("warmup_steps", warmupSteps); err != nil {
		return nil, err
	}
	if err := requireFinite("start_lr", startLR); err != nil {
		return nil, err
	}
	if err := requireFinite("end_lr", endLR); err != nil {
		return nil, err
	}
	return &LinearLRWarmup{
		Base:        base,
		WarmupSteps: warmupSteps,
		StartLR:     startLR,
		EndLR:       endLR,
	}, nil
}

func (s LinearLRWarmup) GetLR(step float64) float64 {
	if step < s.WarmupSteps {
		return warmupRamp(step, s.WarmupSteps, s.StartLR, s.EndLR)
	}
	return s.Base.GetLR(step)
}

func (s LinearLRWarmup) GetName() string {
	return "LinearLRWarmup(" + s.Base.GetName() + ")"
}

func warmupRamp(step, warmupSteps, startLR, endLR float64) float64 {
	return startLR + (endLR-startLR)*(step/warmupSteps)
}

// MultiStepDecay multiplies the learning rate by DecayRate once for every
// milestone the epoch has reached
type MultiStepDecay struct {
	LearningRate float64
	Milestones   []int
	DecayRate    float64
}

// NewMultiStepDecay creates a multi-step schedule. Milestones must be
// strictly ascending and the rate must lie in [0, 1).
func NewMultiStepDecay(learningRate float64, milestones []int, decayRate float64) (*MultiStepDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if !strictlyIncreasing(milestones) {
		return nil, fmt.Errorf("%w: milestones must be strictly ascending: %v", ErrInvalidConfig, milestones)
	}
	if err := requireDecayFactor(decayRate); err != nil {
		return nil, err
	}
	return &MultiStepDecay{
		LearningRate: learningRate,
		Milestones:   append([]int(nil), milestones...),
		DecayRate:    decayRate,
	}, nil
}

func (s MultiStepDecay) GetLR(step float64) float64 {
	for i, milestone := range s.Milestones {
		if step < float64(milestone) {
			return s.LearningRate * math.Pow(s.DecayRate, float64(i))
		}
	}
	return s.LearningRate * math.Pow(s.DecayRate, float64(len(s.Milestones)))
}

func (s MultiStepDecay) GetName() string {
	return "MultiStepDecay"
}

// StepDecay reduces the learning rate by DecayRate every StepSize epochs
type StepDecay struct {
	LearningRate float64
	StepSize     int
	DecayRate    float64
}

// NewStepDecay creates a step decay schedule
func NewStepDecay(learningRate float64, stepSize int, decayRate float64) (*StepDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("%w: step_size must be positive, got %d", ErrInvalidConfig, stepSize)
	}
	if err := requireDecayFactor(decayRate); err != nil {
		return nil, err
	}
	return &StepDecay{
		LearningRate: learningRate,
		StepSize:     stepSize,
		DecayRate:    decayRate,
	}, nil
}

func (s StepDecay) GetLR(step float64) float64 {
	times := math.Floor(step / float64(s.StepSize))
	return s.LearningRate * math.Pow(s.DecayRate, times)
}

func (s StepDecay) GetName() string {
	return "StepDecay"
}

// requireDecayFactor rejects rates that would hold or grow the learning rate
func requireDecayFactor(decayRate float64) error {
	if math.IsNaN(decayRate) || decayRate < 0 || decayRate >= 1 {
		return fmt.Errorf("%w: decay_rate must be in [0, 1), got %v", ErrInvalidConfig, decayRate)
	}
	return nil
}

// LambdaDecay scales the base learning rate by a caller-supplied factor of the epoch
type LambdaDecay struct {
	LearningRate float64
	Lambda       func(epoch float64) float64
}

// NewLambdaDecay creates a lambda schedule
func NewLambdaDecay(learningRate float64, lambda func(epoch float64) float64) (*LambdaDecay, error) {
	if err := requireFinite("learning_rate", learningRate); err != nil {
		return nil, err
	}
	if lambda == nil {
		return nil, fmt.Errorf("%w: lambda decay needs a function", ErrInvalidConfig)
	}
	return &LambdaDecay{LearningRate: learningRate, Lambda: lambda}, nil
}

func (s LambdaDecay) GetLR(step float64) float64 {
	return s.LearningRate * s.Lambda(step)
}

func (s LambdaDecay) GetName() string {
	return "LambdaDecay"
}

// ConstantLR maintains a constant learning rate
type ConstantLR struct {
	LearningRate float64
}

func (s ConstantLR) GetLR(step float64) float64 {
	return s.LearningRate
}

func (s ConstantLR) GetName() string {
	return "ConstantLR"
}
