package training

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/features"
	"github.com/diagnoml/platform/pkg/ml/linear"
	"github.com/diagnoml/platform/pkg/registry"
	"github.com/diagnoml/platform/pkg/warehouse"
)

func optsWith(epochs int) linear.Options {
	return linear.Options{Epochs: epochs, LearningRate: 0.01}
}

func metricsWithAUC(auc float64) linear.Metrics {
	return linear.Metrics{AUC: auc}
}

// labeledSnapshot builds a snapshot where the outcome tracks HbA1c:
// positives run high, negatives run normal.
func labeledSnapshot(positives, negatives int) warehouse.Snapshot {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	snapshot := warehouse.Snapshot{ID: "snap-test", TakenAt: base}

	for i := 0; i < positives; i++ {
		snapshot.Examples = append(snapshot.Examples, warehouse.LabeledExample{
			Record:  labRecord(fmt.Sprintf("PID-P%d", i), 8.0+float64(i%5)*0.5, base),
			Outcome: true,
		})
	}
	for i := 0; i < negatives; i++ {
		snapshot.Examples = append(snapshot.Examples, warehouse.LabeledExample{
			Record:  labRecord(fmt.Sprintf("PID-N%d", i), 4.5+float64(i%5)*0.2, base),
			Outcome: false,
		})
	}
	return snapshot
}

func labRecord(pid string, hba1c float64, createdAt time.Time) models.MinimalRecord {
	return models.MinimalRecord{
		PID:              pid,
		Sex:              "f",
		AgeBand:          "46-60",
		SmokingStatus:    "never",
		AlcoholStatus:    "never",
		DrugsStatus:      "never",
		SportLevel:       "none",
		HbA1c:            hba1c,
		CholesterolTotal: 190,
		CRP:              1.2,
		CreatedAt:        createdAt,
		DataVersion:      models.CurrentDataVersion,
	}
}

func TestTrainRegistersCandidate(t *testing.T) {
	reg := registry.NewMemoryStore()
	trainer := NewTrainer(reg, 20)

	snapshot := labeledSnapshot(30, 30)
	candidate, err := trainer.Train(context.Background(), snapshot, DefaultSearchSpace())
	require.NoError(t, err)

	require.Equal(t, 1, candidate.Version)
	require.Equal(t, registry.StatusCandidate, candidate.Status)
	require.Equal(t, "snap-test", candidate.SnapshotID)
	require.NotEmpty(t, candidate.SchemaHash)
	require.NotEmpty(t, candidate.EncoderState)
	require.Greater(t, candidate.Hyperparameters.Epochs, 0)
	require.Greater(t, candidate.Hyperparameters.LearningRate, 0.0)

	// HbA1c separates the classes cleanly; the selected model must see it.
	require.Greater(t, candidate.Metrics.ValidationAUC, 0.9)

	// The persisted encoder state must reproduce the recorded schema hash.
	encoder, err := features.Restore(candidate.EncoderState)
	require.NoError(t, err)
	require.Equal(t, candidate.SchemaHash, encoder.SchemaHash())

	// Training never touches the production pointer.
	_, err = reg.Production(context.Background())
	require.ErrorIs(t, err, registry.ErrNoProduction)
}

func TestTrainIsDeterministic(t *testing.T) {
	snapshot := labeledSnapshot(30, 30)

	first, err := NewTrainer(registry.NewMemoryStore(), 20).Train(context.Background(), snapshot, DefaultSearchSpace())
	require.NoError(t, err)
	second, err := NewTrainer(registry.NewMemoryStore(), 20).Train(context.Background(), snapshot, DefaultSearchSpace())
	require.NoError(t, err)

	// Same snapshot, same fixed split seed: identical selection and
	// weights. Only the measured training time may differ.
	require.Equal(t, first.Hyperparameters, second.Hyperparameters)
	require.Equal(t, first.Weights, second.Weights)
	require.Equal(t, first.Metrics, second.Metrics)
}

func TestTrainInsufficientData(t *testing.T) {
	trainer := NewTrainer(registry.NewMemoryStore(), 20)

	_, err := trainer.Train(context.Background(), labeledSnapshot(5, 30), DefaultSearchSpace())
	require.True(t, IsInsufficientData(err), "got %v", err)

	var ide InsufficientDataError
	require.ErrorAs(t, err, &ide)
	require.Equal(t, "positive", ide.Class)
	require.Equal(t, 5, ide.Have)
	require.Equal(t, 20, ide.Need)

	_, err = trainer.Train(context.Background(), labeledSnapshot(30, 5), DefaultSearchSpace())
	require.True(t, IsInsufficientData(err), "got %v", err)
}

func TestTrainEmptySearchSpace(t *testing.T) {
	trainer := NewTrainer(registry.NewMemoryStore(), 20)

	_, err := trainer.Train(context.Background(), labeledSnapshot(30, 30), SearchSpace{})
	require.Error(t, err)
	require.False(t, IsInsufficientData(err))
}

func TestGridTieBreaksPreferFewerEpochs(t *testing.T) {
	a := gridResult{opts: optsWith(100), valMetrics: metricsWithAUC(0.8)}
	b := gridResult{opts: optsWith(400), valMetrics: metricsWithAUC(0.8)}
	require.True(t, a.betterThan(b))
	require.False(t, b.betterThan(a))

	higher := gridResult{opts: optsWith(400), valMetrics: metricsWithAUC(0.9)}
	require.True(t, higher.betterThan(a))

	fast := gridResult{opts: optsWith(100), valMetrics: metricsWithAUC(0.8), elapsed: time.Millisecond}
	slow := gridResult{opts: optsWith(100), valMetrics: metricsWithAUC(0.8), elapsed: time.Second}
	require.True(t, fast.betterThan(slow))
}
