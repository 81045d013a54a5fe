package checkpoints

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the protobuf Struct layout
const (
	fieldScheduler       = "scheduler"
	fieldStep            = "step"
	fieldEpoch           = "epoch"
	fieldLearningRate    = "learning_rate"
	fieldPlateau         = "plateau"
	fieldBestMetric      = "best_metric"
	fieldCurrentLR       = "current_lr"
	fieldCooldownCounter = "cooldown_counter"
	fieldBadEpochs       = "bad_epochs"
	fieldVersion         = "version"
	fieldFramework       = "framework"
	fieldCreatedAt       = "created_at"
	fieldDescription     = "description"
)

// MarshalProto encodes a checkpoint as a google.protobuf.Struct in binary
// wire format. Doubles are carried bit-exact, infinities included.
func MarshalProto(checkpoint *SchedulerCheckpoint) ([]byte, error) {
	fields := map[string]*structpb.Value{
		fieldScheduler:    structpb.NewStringValue(checkpoint.Scheduler),
		fieldStep:         structpb.NewNumberValue(float64(checkpoint.TrainingState.Step)),
		fieldEpoch:        structpb.NewNumberValue(float64(checkpoint.TrainingState.Epoch)),
		fieldLearningRate: structpb.NewNumberValue(checkpoint.TrainingState.LearningRate),
		fieldVersion:      structpb.NewStringValue(checkpoint.Metadata.Version),
		fieldFramework:    structpb.NewStringValue(checkpoint.Metadata.Framework),
		fieldCreatedAt:    structpb.NewStringValue(checkpoint.Metadata.CreatedAt.Format(time.RFC3339Nano)),
		fieldDescription:  structpb.NewStringValue(checkpoint.Metadata.Description),
	}

	if p := checkpoint.Plateau; p != nil {
		fields[fieldPlateau] = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				fieldBestMetric:      structpb.NewNumberValue(float64(p.BestMetric)),
				fieldCurrentLR:       structpb.NewNumberValue(p.CurrentLR),
				fieldCooldownCounter: structpb.NewNumberValue(float64(p.CooldownCounter)),
				fieldBadEpochs:       structpb.NewNumberValue(float64(p.BadEpochs)),
			},
		})
	}

	data, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	return data, nil
}

// UnmarshalProto decodes a checkpoint written by MarshalProto
func UnmarshalProto(data []byte) (*SchedulerCheckpoint, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %v", err)
	}

	fields := msg.GetFields()
	if _, ok := fields[fieldScheduler]; !ok {
		return nil, fmt.Errorf("checkpoint is missing %q", fieldScheduler)
	}

	checkpoint := &SchedulerCheckpoint{
		Scheduler: fields[fieldScheduler].GetStringValue(),
		TrainingState: TrainingState{
			Step:         int(fields[fieldStep].GetNumberValue()),
			Epoch:        int(fields[fieldEpoch].GetNumberValue()),
			LearningRate: fields[fieldLearningRate].GetNumberValue(),
		},
		Metadata: CheckpointMetadata{
			Version:     fields[fieldVersion].GetStringValue(),
			Framework:   fields[fieldFramework].GetStringValue(),
			Description: fields[fieldDescription].GetStringValue(),
		},
	}

	if created := fields[fieldCreatedAt].GetStringValue(); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("invalid checkpoint timestamp: %v", err)
		}
		checkpoint.Metadata.CreatedAt = t
	}

	if plateau := fields[fieldPlateau].GetStructValue(); plateau != nil {
		pf := plateau.GetFields()
		checkpoint.Plateau = &PlateauSnapshot{
			BestMetric:      Metric(pf[fieldBestMetric].GetNumberValue()),
			CurrentLR:       pf[fieldCurrentLR].GetNumberValue(),
			CooldownCounter: int(pf[fieldCooldownCounter].GetNumberValue()),
			BadEpochs:       int(pf[fieldBadEpochs].GetNumberValue()),
		}
	}

	return checkpoint, nil
}
