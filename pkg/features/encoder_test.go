package features

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diagnoml/platform/pkg/common/models"
)

func strPtr(v string) *string { return &v }

func sampleRecord(pid string, hba1c float64) models.MinimalRecord {
	return models.MinimalRecord{
		PID:                 pid,
		Sex:                 "f",
		AgeBand:             "46-60",
		SmokingStatus:       "former",
		SmokingDurationBand: strPtr("5-15y"),
		SmokingAmountBand:   strPtr("10-20"),
		AlcoholStatus:       "never",
		DrugsStatus:         "never",
		SportLevel:          "low",
		SportHoursBand:      strPtr("1-3"),
		HbA1c:               hba1c,
		CholesterolTotal:    190,
		CRP:                 1.2,
		DataVersion:         models.CurrentDataVersion,
	}
}

func fitSample(t *testing.T) *Encoder {
	t.Helper()
	enc, err := Fit([]models.MinimalRecord{
		sampleRecord("PID-A", 5.0),
		sampleRecord("PID-B", 6.0),
		sampleRecord("PID-C", 7.0),
	})
	require.NoError(t, err)
	return enc
}

func TestFitRequiresRecords(t *testing.T) {
	_, err := Fit(nil)
	require.ErrorIs(t, err, ErrNoRecords)
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc := fitSample(t)
	rec := sampleRecord("PID-A", 5.0)

	first, err := enc.Encode(rec)
	require.NoError(t, err)
	second, err := enc.Encode(rec)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, first, len(enc.Names))
}

func TestEncodeNullableBands(t *testing.T) {
	enc := fitSample(t)

	rec := sampleRecord("PID-A", 5.0)
	rec.SmokingStatus = "never"
	rec.SmokingDurationBand = nil
	rec.SmokingAmountBand = nil

	vector, err := enc.Encode(rec)
	require.NoError(t, err)

	idx := indexOf(t, enc.Names, "smoking_duration_band")
	require.Equal(t, 0.0, vector[idx], "null band must encode as 0")

	rec.SmokingStatus = "former"
	rec.SmokingDurationBand = strPtr("<5y")
	rec.SmokingAmountBand = strPtr("<10")
	vector, err = enc.Encode(rec)
	require.NoError(t, err)
	require.Equal(t, 1.0, vector[idx], "first vocabulary entry must shift past the null slot")
}

func TestEncodeStandardizesLabs(t *testing.T) {
	enc := fitSample(t)

	idx := indexOf(t, enc.Names, "hba1c")
	vector, err := enc.Encode(sampleRecord("PID-B", 6.0))
	require.NoError(t, err)
	// 6.0 is the fitted mean.
	require.InDelta(t, 0.0, vector[idx], 1e-9)

	high, err := enc.Encode(sampleRecord("PID-C", 7.0))
	require.NoError(t, err)
	low, err := enc.Encode(sampleRecord("PID-A", 5.0))
	require.NoError(t, err)
	require.InDelta(t, -high[idx], low[idx], 1e-9, "symmetric values must standardize symmetrically")
}

func TestEncodeRejectsUnknownCategory(t *testing.T) {
	enc := fitSample(t)

	rec := sampleRecord("PID-A", 5.0)
	rec.AgeBand = "20-40"

	_, err := enc.Encode(rec)
	require.True(t, IsSchemaMismatch(err), "expected schema mismatch, got %v", err)

	var sme SchemaMismatchError
	require.ErrorAs(t, err, &sme)
	require.Equal(t, "age_band", sme.Field)
	require.Equal(t, "20-40", sme.Value)
}

func TestEncodeBatchPreservesOrder(t *testing.T) {
	enc := fitSample(t)

	records := make([]models.MinimalRecord, 50)
	for i := range records {
		records[i] = sampleRecord("PID-A", 5.0+float64(i%3))
	}

	vectors, err := enc.EncodeBatch(records)
	require.NoError(t, err)
	require.Len(t, vectors, len(records))

	idx := indexOf(t, enc.Names, "hba1c")
	for i, v := range vectors {
		expected, err := enc.Encode(records[i])
		require.NoError(t, err)
		require.Equal(t, expected[idx], v[idx], "row %d out of order", i)
	}
}

func TestEncodeBatchAbortsOnMismatch(t *testing.T) {
	enc := fitSample(t)

	records := []models.MinimalRecord{sampleRecord("PID-A", 5.0), sampleRecord("PID-B", 6.0)}
	records[1].Sex = "unknown"

	_, err := enc.EncodeBatch(records)
	require.True(t, IsSchemaMismatch(err))
}

func TestSchemaHashStableAcrossFits(t *testing.T) {
	a := fitSample(t)
	b, err := Fit([]models.MinimalRecord{sampleRecord("PID-Z", 9.0)})
	require.NoError(t, err)

	// Lab statistics differ between the fits; the schema does not.
	require.Equal(t, a.SchemaHash(), b.SchemaHash())
}

func TestStateRoundTrip(t *testing.T) {
	enc := fitSample(t)

	state, err := enc.State()
	require.NoError(t, err)

	restored, err := Restore(state)
	require.NoError(t, err)
	require.Equal(t, enc.SchemaHash(), restored.SchemaHash())

	rec := sampleRecord("PID-A", 5.0)
	original, err := enc.Encode(rec)
	require.NoError(t, err)
	roundTripped, err := restored.Encode(rec)
	require.NoError(t, err)
	require.Equal(t, original, roundTripped)
}

func TestRestoreRejectsGarbage(t *testing.T) {
	_, err := Restore([]byte("not json"))
	require.Error(t, err)

	_, err = Restore([]byte("{}"))
	require.Error(t, err)
}

func indexOf(t *testing.T, names []string, name string) int {
	t.Helper()
	for i, n := range names {
		if n == name {
			return i
		}
	}
	t.Fatalf("feature %s not found in %v", name, names)
	return -1
}
