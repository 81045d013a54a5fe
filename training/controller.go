package training

import (
	"fmt"
	"sync"
)

// ControllerSnapshot captures controller progress for checkpointing
type ControllerSnapshot struct {
	Step      int
	Epoch     int
	Scheduler string
	Plateau   *PlateauState
}

// ScheduleController applies a step schedule or a plateau scheduler to
// an optimizer. All methods serialize on one mutex, so a controller may be
// shared by goroutines of the same training loop.
type ScheduleController struct {
	optimizer LRSetter
	scheduler LRScheduler
	plateau   *ReduceLROnPlateau

	step  int
	epoch int
	mutex sync.Mutex
}

// NewScheduleController binds exactly one of a step schedule or a plateau
// scheduler to an optimizer and applies its initial learning rate.
func NewScheduleController(optimizer LRSetter, scheduler LRScheduler, plateau *ReduceLROnPlateau) (*ScheduleController, error) {
	if optimizer == nil {
		return nil, fmt.Errorf("%w: controller needs an optimizer", ErrInvalidConfig)
	}
	if (scheduler == nil) == (plateau == nil) {
		return nil, fmt.Errorf("%w: controller needs exactly one of a step schedule or a plateau scheduler", ErrInvalidConfig)
	}
	c := &ScheduleController{
		optimizer: optimizer,
		scheduler: scheduler,
		plateau:   plateau,
	}
	switch {
	case scheduler != nil:
		optimizer.SetLR(scheduler.GetLR(0))
	default:
		optimizer.SetLR(plateau.GetLR())
	}
	return c, nil
}

// OnStep applies the step schedule for the current global step and then
// advances the counter. Without a step schedule it only counts.
func (c *ScheduleController) OnStep() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.scheduler != nil {
		c.optimizer.SetLR(c.scheduler.GetLR(float64(c.step)))
	}
	c.step++
	return c.optimizer.GetLR()
}

// OnEpochEnd feeds the epoch metric to the plateau scheduler and applies its
// learning rate. Without a plateau scheduler it only counts the epoch.
func (c *ScheduleController) OnEpochEnd(metric float64) float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.epoch++
	if c.plateau != nil {
		c.optimizer.SetLR(c.plateau.Step(metric))
	}
	return c.optimizer.GetLR()
}

// Snapshot returns the controller progress
func (c *ScheduleController) Snapshot() ControllerSnapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	snap := ControllerSnapshot{Step: c.step, Epoch: c.epoch}
	if c.scheduler != nil {
		snap.Scheduler = c.scheduler.GetName()
	}
	if c.plateau != nil {
		state := c.plateau.State()
		snap.Plateau = &state
		snap.Scheduler = c.plateau.GetName()
	}
	return snap
}

// Resume restores progress from a snapshot and re-applies the learning rate
func (c *ScheduleController) Resume(snap ControllerSnapshot) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if snap.Step < 0 || snap.Epoch < 0 {
		return fmt.Errorf("%w: snapshot counters must be non-negative", ErrInvalidConfig)
	}
	if snap.Plateau != nil {
		if c.plateau == nil {
			return fmt.Errorf("%w: snapshot carries plateau state but controller has no plateau scheduler", ErrInvalidConfig)
		}
		if err := c.plateau.Restore(*snap.Plateau); err != nil {
			return err
		}
	}
	c.step = snap.Step
	c.epoch = snap.Epoch

	switch {
	case c.plateau != nil:
		c.optimizer.SetLR(c.plateau.GetLR())
	default:
		c.optimizer.SetLR(c.scheduler.GetLR(float64(c.step)))
	}
	return nil
}
