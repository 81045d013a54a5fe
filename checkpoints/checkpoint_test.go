package checkpoints

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tsawler/go-lrsched/training"
)

func testCheckpoint() *SchedulerCheckpoint {
	return &SchedulerCheckpoint{
		Scheduler: "ReduceLROnPlateau",
		TrainingState: TrainingState{
			Step:         1200,
			Epoch:        12,
			LearningRate: 0.025,
		},
		Plateau: &PlateauSnapshot{
			BestMetric:      0.3125,
			CurrentLR:       0.025,
			CooldownCounter: 1,
			BadEpochs:       0,
		},
		Metadata: CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "go-lrsched",
			CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Description: "Test checkpoint",
		},
	}
}

func TestCheckpointSaveLoad(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatJSON, FormatProto} {
		t.Run(format.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scheduler.ckpt")
			saver := NewCheckpointSaver(format)

			original := testCheckpoint()
			if err := saver.SaveCheckpoint(original, path); err != nil {
				t.Fatalf("Failed to save checkpoint: %v", err)
			}

			loaded, err := saver.LoadCheckpoint(path)
			if err != nil {
				t.Fatalf("Failed to load checkpoint: %v", err)
			}

			if loaded.Scheduler != original.Scheduler {
				t.Errorf("Scheduler mismatch: expected %s, got %s", original.Scheduler, loaded.Scheduler)
			}
			if loaded.TrainingState != original.TrainingState {
				t.Errorf("Training state mismatch: expected %+v, got %+v", original.TrainingState, loaded.TrainingState)
			}
			if loaded.Plateau == nil || *loaded.Plateau != *original.Plateau {
				t.Errorf("Plateau mismatch: expected %+v, got %+v", original.Plateau, loaded.Plateau)
			}
			if !loaded.Metadata.CreatedAt.Equal(original.Metadata.CreatedAt) {
				t.Errorf("CreatedAt mismatch: expected %v, got %v", original.Metadata.CreatedAt, loaded.Metadata.CreatedAt)
			}
			if loaded.Metadata.Description != original.Metadata.Description {
				t.Errorf("Description mismatch: expected %q, got %q", original.Metadata.Description, loaded.Metadata.Description)
			}
		})
	}
}

func TestCheckpointInfiniteBestMetric(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatJSON, FormatProto} {
		for _, best := range []float64{math.Inf(1), math.Inf(-1)} {
			path := filepath.Join(t.TempDir(), "scheduler.ckpt")
			saver := NewCheckpointSaver(format)

			checkpoint := testCheckpoint()
			checkpoint.Plateau.BestMetric = Metric(best)
			if err := saver.SaveCheckpoint(checkpoint, path); err != nil {
				t.Fatalf("%s: failed to save checkpoint: %v", format, err)
			}

			loaded, err := saver.LoadCheckpoint(path)
			if err != nil {
				t.Fatalf("%s: failed to load checkpoint: %v", format, err)
			}
			if float64(loaded.Plateau.BestMetric) != best {
				t.Errorf("%s: expected best metric %v, got %v", format, best, loaded.Plateau.BestMetric)
			}
		}
	}
}

func TestCheckpointJSONLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.json")
	checkpoint := testCheckpoint()
	checkpoint.Plateau.BestMetric = Metric(math.Inf(1))

	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read checkpoint: %v", err)
	}
	for _, want := range []string{`"best_metric": "+Inf"`, `"learning_rate": 0.025`, `"scheduler": "ReduceLROnPlateau"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %s in JSON checkpoint:\n%s", want, data)
		}
	}
}

func TestCheckpointMetadataDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.json")
	checkpoint := testCheckpoint()
	checkpoint.Metadata = CheckpointMetadata{}

	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	if checkpoint.Metadata.Framework != "go-lrsched" || checkpoint.Metadata.CreatedAt.IsZero() {
		t.Errorf("Expected metadata defaults, got %+v", checkpoint.Metadata)
	}
}

func TestCheckpointErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewCheckpointSaver(FormatJSON).LoadCheckpoint(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error loading missing JSON checkpoint")
	}
	if _, err := NewCheckpointSaver(FormatProto).LoadCheckpoint(filepath.Join(dir, "missing.pb")); err == nil {
		t.Error("Expected error loading missing proto checkpoint")
	}

	empty := filepath.Join(dir, "empty.pb")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("Failed to write empty file: %v", err)
	}
	if _, err := NewCheckpointSaver(FormatProto).LoadCheckpoint(empty); err == nil {
		t.Error("Expected error for proto checkpoint without scheduler field")
	}

	invalidJSON := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalidJSON, []byte(`{"plateau": {"best_metric": "sideways"}}`), 0644); err != nil {
		t.Fatalf("Failed to write invalid file: %v", err)
	}
	if _, err := NewCheckpointSaver(FormatJSON).LoadCheckpoint(invalidJSON); err == nil {
		t.Error("Expected error for invalid best metric")
	}

	unknown := NewCheckpointSaver(CheckpointFormat(99))
	if err := unknown.SaveCheckpoint(testCheckpoint(), filepath.Join(dir, "x")); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if err := unknown.SaveCheckpoint(nil, filepath.Join(dir, "x")); err == nil {
		t.Error("Expected error for nil checkpoint")
	}
}

func TestCheckpointControllerRoundTrip(t *testing.T) {
	cfg := training.DefaultPlateauConfig(1.0)
	cfg.Patience = 0
	cfg.DecayRate = 0.5
	plateau, err := training.NewReduceLROnPlateau(cfg)
	if err != nil {
		t.Fatalf("Failed to create plateau scheduler: %v", err)
	}
	optimizer := training.NewBasicOptimizer(1.0)
	controller, err := training.NewScheduleController(optimizer, nil, plateau)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	controller.OnEpochEnd(1.0)
	controller.OnEpochEnd(1.0)

	path := filepath.Join(t.TempDir(), "controller.pb")
	saver := NewCheckpointSaver(FormatProto)
	if err := saver.SaveCheckpoint(FromController(controller.Snapshot(), optimizer.GetLR()), path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	loaded, err := saver.LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}

	freshPlateau, _ := training.NewReduceLROnPlateau(cfg)
	freshOptimizer := training.NewBasicOptimizer(1.0)
	resumed, err := training.NewScheduleController(freshOptimizer, nil, freshPlateau)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	if err := resumed.Resume(loaded.ControllerSnapshot()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if freshOptimizer.GetLR() != 0.5 {
		t.Errorf("Expected resumed LR 0.5, got %v", freshOptimizer.GetLR())
	}
	if got, want := resumed.Snapshot(), controller.Snapshot(); got.Epoch != want.Epoch || *got.Plateau != *want.Plateau {
		t.Errorf("Resumed snapshot %+v does not match %+v", got, want)
	}
}
