package training

import (
	"errors"
	"sync"
	"testing"
)

func TestScheduleControllerAppliesStepSchedule(t *testing.T) {
	piecewise := mustSchedule(NewPiecewiseDecay([]float64{3, 6, 9}, []float64{0.1, 0.2, 0.3, 0.4}))
	optimizer := NewBasicOptimizer(1.0)

	controller, err := NewScheduleController(optimizer, piecewise, nil)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	if optimizer.GetLR() != 0.1 {
		t.Fatalf("Expected initial LR 0.1 to be applied, got %v", optimizer.GetLR())
	}

	for step := 0; step < 12; step++ {
		lr := controller.OnStep()
		want := piecewise.GetLR(float64(step))
		if lr != want || optimizer.GetLR() != want {
			t.Errorf("step %d: expected LR %v, got %v (optimizer %v)", step, want, lr, optimizer.GetLR())
		}
	}

	snap := controller.Snapshot()
	if snap.Step != 12 || snap.Scheduler != "PiecewiseDecay" || snap.Plateau != nil {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestScheduleControllerAppliesPlateau(t *testing.T) {
	cfg := DefaultPlateauConfig(1.0)
	cfg.Patience = 1
	cfg.DecayRate = 0.5
	plateau, err := NewReduceLROnPlateau(cfg)
	if err != nil {
		t.Fatalf("Failed to create plateau scheduler: %v", err)
	}
	optimizer := NewBasicOptimizer(0)

	controller, err := NewScheduleController(optimizer, nil, plateau)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	for _, metric := range []float64{1.0, 1.0, 1.0} {
		controller.OnEpochEnd(metric)
	}
	if optimizer.GetLR() != 0.5 {
		t.Errorf("Expected plateau decay to reach the optimizer, got %v", optimizer.GetLR())
	}

	snap := controller.Snapshot()
	if snap.Epoch != 3 || snap.Plateau == nil || snap.Plateau.CurrentLR != 0.5 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestScheduleControllerResume(t *testing.T) {
	cfg := DefaultPlateauConfig(1.0)
	plateau, _ := NewReduceLROnPlateau(cfg)
	optimizer := NewBasicOptimizer(1.0)
	controller, err := NewScheduleController(optimizer, nil, plateau)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	snap := ControllerSnapshot{
		Step:    40,
		Epoch:   4,
		Plateau: &PlateauState{BestMetric: 0.2, CurrentLR: 0.01, BadEpochs: 2},
	}
	if err := controller.Resume(snap); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if optimizer.GetLR() != 0.01 {
		t.Errorf("Expected resumed LR 0.01, got %v", optimizer.GetLR())
	}
	if got := controller.Snapshot(); got.Step != 40 || got.Epoch != 4 || got.Plateau.BadEpochs != 2 {
		t.Errorf("Unexpected snapshot after resume: %+v", got)
	}

	stepOnly, _ := NewScheduleController(NewBasicOptimizer(0), ConstantLR{LearningRate: 1}, nil)
	if err := stepOnly.Resume(snap); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected configuration error resuming plateau state without a plateau scheduler, got %v", err)
	}
	if err := stepOnly.Resume(ControllerSnapshot{Step: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected configuration error for negative step, got %v", err)
	}
}

func TestScheduleControllerValidation(t *testing.T) {
	plateau, _ := NewReduceLROnPlateau(DefaultPlateauConfig(1.0))

	if _, err := NewScheduleController(nil, ConstantLR{LearningRate: 1}, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected configuration error for nil optimizer, got %v", err)
	}
	if _, err := NewScheduleController(NewBasicOptimizer(1), nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected configuration error without schedules, got %v", err)
	}
	if _, err := NewScheduleController(NewBasicOptimizer(1), ConstantLR{LearningRate: 1}, plateau); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected configuration error with both schedules, got %v", err)
	}
}

func TestScheduleControllerConcurrentSteps(t *testing.T) {
	exp := mustSchedule(NewExponentialDecay(1.0, 100, 0.5, true))
	controller, err := NewScheduleController(NewBasicOptimizer(1.0), exp, nil)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				controller.OnStep()
			}
		}()
	}
	wg.Wait()

	if snap := controller.Snapshot(); snap.Step != 800 {
		t.Errorf("Expected 800 serialized steps, got %d", snap.Step)
	}
}
