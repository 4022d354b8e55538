package serving

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/features"
	"github.com/diagnoml/platform/pkg/ml/linear"
	"github.com/diagnoml/platform/pkg/registry"
	"github.com/diagnoml/platform/pkg/warehouse"
)

func TestRiskCategoryBoundaries(t *testing.T) {
	cases := []struct {
		p    float64
		want string
	}{
		{0, models.RiskLow},
		{0.29999, models.RiskLow},
		{0.3, models.RiskMedium},
		{0.5, models.RiskMedium},
		{0.69999, models.RiskMedium},
		{0.7, models.RiskHigh},
		{1, models.RiskHigh},
	}
	for _, c := range cases {
		if got := RiskCategory(c.p); got != c.want {
			t.Errorf("RiskCategory(%v) = %s, want %s", c.p, got, c.want)
		}
	}
}

func TestConfidenceScaledMargin(t *testing.T) {
	cases := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0, 1},
		{1, 1},
		{0.75, 0.5},
		{0.25, 0.5},
	}
	for _, c := range cases {
		if got := Confidence(c.p); got != c.want {
			t.Errorf("Confidence(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func servedRecord(pid string) models.MinimalRecord {
	return models.MinimalRecord{
		PID:              pid,
		Sex:              "f",
		AgeBand:          "46-60",
		SmokingStatus:    "never",
		AlcoholStatus:    "never",
		DrugsStatus:      "never",
		SportLevel:       "none",
		HbA1c:            5.4,
		CholesterolTotal: 190,
		CRP:              1.2,
		DataVersion:      models.CurrentDataVersion,
	}
}

// promoteModel registers and promotes a version whose weights produce a
// fixed probability regardless of the input features.
func promoteModel(t *testing.T, reg registry.Store, bias float64) registry.ModelVersion {
	t.Helper()

	encoder, err := features.Fit([]models.MinimalRecord{servedRecord("PID-FIT")})
	require.NoError(t, err)
	state, err := encoder.State()
	require.NoError(t, err)

	mv, err := reg.RegisterCandidate(context.Background(), registry.ModelVersion{
		SnapshotID:   "snap",
		SchemaHash:   encoder.SchemaHash(),
		EncoderState: state,
		Weights:      linear.Weights{Bias: bias, Coefficients: make([]float64, len(encoder.Names))},
		Metrics:      registry.Metrics{ValidationAUC: 0.8},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Promote(context.Background(), mv.Version))
	return mv
}

func TestPredictAgainstProduction(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryStore()
	records := warehouse.NewMemoryStore()
	predictions := NewMemoryPredictionStore()

	mv := promoteModel(t, reg, 2) // sigmoid(2) ≈ 0.88
	require.NoError(t, records.Append(ctx, servedRecord("PID-A")))

	predictor := NewPredictor(reg, records, predictions)

	// Version 0 resolves production.
	p, err := predictor.Predict(ctx, "PID-A", 0)
	require.NoError(t, err)

	require.Equal(t, mv.Version, p.ModelVersion)
	require.Equal(t, "PID-A", p.PID)
	require.InDelta(t, 0.88, p.Probability, 0.01)
	require.Equal(t, models.RiskHigh, p.RiskCategory)
	require.InDelta(t, Confidence(p.Probability), p.Confidence, 1e-12)
	require.NotEmpty(t, p.ID)

	// The prediction is persisted for the feedback boundary.
	known, err := predictions.HasPrediction(ctx, "PID-A")
	require.NoError(t, err)
	require.True(t, known)

	history, err := predictions.ListByPID(ctx, "PID-A", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestPredictPinnedVersion(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryStore()
	records := warehouse.NewMemoryStore()

	v1 := promoteModel(t, reg, -2) // sigmoid(-2) ≈ 0.12
	promoteModel(t, reg, 2)        // v2 takes production

	require.NoError(t, records.Append(ctx, servedRecord("PID-A")))
	predictor := NewPredictor(reg, records, NewMemoryPredictionStore())

	p, err := predictor.Predict(ctx, "PID-A", v1.Version)
	require.NoError(t, err)
	require.Equal(t, v1.Version, p.ModelVersion)
	require.Equal(t, models.RiskLow, p.RiskCategory)
}

func TestPredictWithoutProduction(t *testing.T) {
	predictor := NewPredictor(registry.NewMemoryStore(), warehouse.NewMemoryStore(), NewMemoryPredictionStore())

	_, err := predictor.Predict(context.Background(), "PID-A", 0)
	require.True(t, IsNotFound(err), "got %v", err)

	_, err = predictor.Predict(context.Background(), "PID-A", 42)
	require.True(t, IsNotFound(err), "got %v", err)
}

func TestPredictUnknownSubject(t *testing.T) {
	reg := registry.NewMemoryStore()
	promoteModel(t, reg, 2)

	predictor := NewPredictor(reg, warehouse.NewMemoryStore(), NewMemoryPredictionStore())
	_, err := predictor.Predict(context.Background(), "PID-MISSING", 0)
	require.ErrorIs(t, err, warehouse.ErrRecordNotFound)
}

func TestPredictRejectsSchemaHashMismatch(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryStore()
	records := warehouse.NewMemoryStore()

	encoder, err := features.Fit([]models.MinimalRecord{servedRecord("PID-FIT")})
	require.NoError(t, err)
	state, err := encoder.State()
	require.NoError(t, err)

	mv, err := reg.RegisterCandidate(ctx, registry.ModelVersion{
		SchemaHash:   "tampered",
		EncoderState: state,
		Weights:      linear.Weights{},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Promote(ctx, mv.Version))
	require.NoError(t, records.Append(ctx, servedRecord("PID-A")))

	predictor := NewPredictor(reg, records, NewMemoryPredictionStore())
	_, err = predictor.Predict(ctx, "PID-A", 0)
	require.True(t, features.IsSchemaMismatch(err), "got %v", err)
}
