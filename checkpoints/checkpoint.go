package checkpoints

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tsawler/go-lrsched/training"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// SchedulerCheckpoint represents the resumable state of a learning rate schedule
type SchedulerCheckpoint struct {
	Scheduler     string             `json:"scheduler"`
	TrainingState TrainingState      `json:"training_state"`
	Plateau       *PlateauSnapshot   `json:"plateau,omitempty"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// TrainingState captures the current training progress
type TrainingState struct {
	Step         int     `json:"step"`
	Epoch        int     `json:"epoch"`
	LearningRate float64 `json:"learning_rate"`
}

// PlateauSnapshot is the serialized form of training.PlateauState
type PlateauSnapshot struct {
	BestMetric      Metric  `json:"best_metric"`
	CurrentLR       float64 `json:"current_lr"`
	CooldownCounter int     `json:"cooldown_counter"`
	BadEpochs       int     `json:"bad_epochs"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Metric is a float64 whose JSON form keeps the infinities a fresh plateau
// scheduler starts from ("+Inf" / "-Inf")
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	switch {
	case math.IsInf(float64(m), 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(float64(m), -1):
		return []byte(`"-Inf"`), nil
	case math.IsNaN(float64(m)):
		return nil, fmt.Errorf("cannot encode NaN metric")
	}
	return json.Marshal(float64(m))
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "+Inf", "Inf":
			*m = Metric(math.Inf(1))
		case "-Inf":
			*m = Metric(math.Inf(-1))
		default:
			return fmt.Errorf("invalid metric %q", s)
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid metric: %v", err)
	}
	*m = Metric(f)
	return nil
}

// FromController builds a checkpoint from controller progress and the
// learning rate currently applied to the optimizer
func FromController(snap training.ControllerSnapshot, learningRate float64) *SchedulerCheckpoint {
	checkpoint := &SchedulerCheckpoint{
		Scheduler: snap.Scheduler,
		TrainingState: TrainingState{
			Step:         snap.Step,
			Epoch:        snap.Epoch,
			LearningRate: learningRate,
		},
	}
	if snap.Plateau != nil {
		checkpoint.Plateau = &PlateauSnapshot{
			BestMetric:      Metric(snap.Plateau.BestMetric),
			CurrentLR:       snap.Plateau.CurrentLR,
			CooldownCounter: snap.Plateau.CooldownCounter,
			BadEpochs:       snap.Plateau.BadEpochs,
		}
	}
	return checkpoint
}

// ControllerSnapshot converts the checkpoint back into controller progress
func (c *SchedulerCheckpoint) ControllerSnapshot() training.ControllerSnapshot {
	snap := training.ControllerSnapshot{
		Step:      c.TrainingState.Step,
		Epoch:     c.TrainingState.Epoch,
		Scheduler: c.Scheduler,
	}
	if c.Plateau != nil {
		snap.Plateau = &training.PlateauState{
			BestMetric:      float64(c.Plateau.BestMetric),
			CurrentLR:       c.Plateau.CurrentLR,
			CooldownCounter: c.Plateau.CooldownCounter,
			BadEpochs:       c.Plateau.BadEpochs,
		}
	}
	return snap
}

// CheckpointSaver handles saving scheduler checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint saves a scheduler checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *SchedulerCheckpoint, path string) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint is nil")
	}

	// Ensure metadata is set
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-lrsched"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatProto:
		return cs.saveProto(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a scheduler checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*SchedulerCheckpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatProto:
		return cs.loadProto(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *SchedulerCheckpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*SchedulerCheckpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint SchedulerCheckpoint
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	return &checkpoint, nil
}

// saveProto saves checkpoint in protobuf format
func (cs *CheckpointSaver) saveProto(checkpoint *SchedulerCheckpoint, path string) error {
	data, err := MarshalProto(checkpoint)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// loadProto loads checkpoint from protobuf format
func (cs *CheckpointSaver) loadProto(path string) (*SchedulerCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}
	return UnmarshalProto(data)
}
