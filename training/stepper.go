package training

import "fmt"

// Decay produces one learning rate per call, advancing its own counter.
// It models training loops that query the schedule once per step or epoch
// instead of passing the step explicitly.
type Decay interface {
	Next() float64
}

// Stepper drives an LRScheduler with an internal counter
type Stepper struct {
	scheduler LRScheduler
	stepNum   float64
	stepSize  float64
}

// NewStepper starts scheduler at begin and advances it by stepSize per call
func NewStepper(scheduler LRScheduler, begin, stepSize float64) (*Stepper, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("%w: stepper needs a schedule", ErrInvalidConfig)
	}
	if err := requireFinite("begin", begin); err != nil {
		return nil, err
	}
	if err := requirePositive("step_size", stepSize); err != nil {
		return nil, err
	}
	return &Stepper{scheduler: scheduler, stepNum: begin, stepSize: stepSize}, nil
}

// Current returns the learning rate at the current counter without advancing
func (s *Stepper) Current() float64 {
	return s.scheduler.GetLR(s.stepNum)
}

// Advance moves the counter forward by one step (or one epoch)
func (s *Stepper) Advance() {
	s.stepNum += s.stepSize
}

// Next returns the current learning rate and then advances
func (s *Stepper) Next() float64 {
	lr := s.Current()
	s.Advance()
	return lr
}

// StepNum returns the counter value the next call will evaluate
func (s *Stepper) StepNum() float64 {
	return s.stepNum
}

// SetStepNum moves the counter, typically when resuming from a checkpoint
func (s *Stepper) SetStepNum(step float64) {
	s.stepNum = step
}

// Scheduler returns the wrapped schedule
func (s *Stepper) Scheduler() LRScheduler {
	return s.scheduler
}

// LinearWarmupStepper prefixes a Decay with a linear ramp.
// Its own counter starts at 1 while the wrapped decay keeps its own, and
// the wrapped decay advances on every call, including warm-up calls.
type LinearWarmupStepper struct {
	base        Decay
	warmupSteps float64
	startLR     float64
	endLR       float64
	stepNum     float64
}

// NewLinearWarmupStepper wraps base with a warm-up of warmupSteps calls
func NewLinearWarmupStepper(base Decay, warmupSteps, startLR, endLR float64) (*LinearWarmupStepper, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: warm-up needs a base decay", ErrInvalidConfig)
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
	return &LinearWarmupStepper{
		base:        base,
		warmupSteps: warmupSteps,
		startLR:     startLR,
		endLR:       endLR,
		stepNum:     1,
	}, nil
}

func (s *LinearWarmupStepper) Next() float64 {
	baseLR := s.base.Next()
	lr := baseLR
	if s.stepNum < s.warmupSteps {
		lr = warmupRamp(s.stepNum, s.warmupSteps, s.startLR, s.endLR)
	}
	s.stepNum++
	return lr
}
