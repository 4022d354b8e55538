package features

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/dataset"
)

// SchemaMismatchError reports a record the fitted encoder cannot represent.
// Silent defaulting is disallowed: an unknown category means an upstream
// data-quality regression, not a value to paper over.
type SchemaMismatchError struct {
	Field string
	Value string
}

func (e SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on %s: %q not in fitted vocabulary", e.Field, e.Value)
}

func IsSchemaMismatch(err error) bool {
	var sme SchemaMismatchError
	return errors.As(err, &sme)
}

var ErrNoRecords = errors.New("cannot fit encoder on zero records")

// LabStats is the fitted standardization state of one numeric lab field.
type LabStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Encoder is the fitted preprocessing state. It is versioned and persisted
// alongside the model it was fitted for; SchemaHash ties the two together.
type Encoder struct {
	Names    []string            `json:"feature_names"`
	Vocab    map[string][]string `json:"vocabulary"`
	Labs     map[string]LabStats `json:"lab_stats"`
	hashOnce sync.Once
	hash     string
}

// featureOrder fixes the position of every feature in the output vector.
var featureOrder = []string{
	"sex",
	"age_band",
	"smoking_status",
	"smoking_duration_band",
	"smoking_amount_band",
	"alcohol_status",
	"alcohol_duration_band",
	"drugs_status",
	"drugs_duration_band",
	"sport_level",
	"sport_hours_band",
	"hba1c",
	"cholesterol_total",
	"crp",
}

var labFields = []string{"hba1c", "cholesterol_total", "crp"}

// Fit learns the encoder state from a training batch: the categorical
// vocabularies come from the declared minimal-dataset enumerations, the lab
// standardization parameters from the batch itself.
func Fit(records []models.MinimalRecord) (*Encoder, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	enc := &Encoder{
		Names: append([]string(nil), featureOrder...),
		Vocab: map[string][]string{
			"sex":                   dataset.SexValues,
			"age_band":              dataset.AgeBands,
			"smoking_status":        dataset.StatusValues,
			"smoking_duration_band": dataset.DurationBands,
			"smoking_amount_band":   dataset.SmokingAmountBands,
			"alcohol_status":        dataset.StatusValues,
			"alcohol_duration_band": dataset.DurationBands,
			"drugs_status":          dataset.StatusValues,
			"drugs_duration_band":   dataset.DurationBands,
			"sport_level":           dataset.SportLevels,
			"sport_hours_band":      dataset.SportHoursBands,
		},
		Labs: make(map[string]LabStats, len(labFields)),
	}

	for _, field := range labFields {
		var sum float64
		for _, rec := range records {
			sum += labValue(rec, field)
		}
		mean := sum / float64(len(records))

		var sq float64
		for _, rec := range records {
			d := labValue(rec, field) - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(len(records)))
		if std == 0 {
			std = 1
		}
		enc.Labs[field] = LabStats{Mean: mean, Std: std}
	}

	return enc, nil
}

// Restore rebuilds a fitted encoder from its persisted JSON state.
func Restore(state []byte) (*Encoder, error) {
	var enc Encoder
	if err := json.Unmarshal(state, &enc); err != nil {
		return nil, fmt.Errorf("decoding encoder state: %w", err)
	}
	if len(enc.Names) == 0 || enc.Vocab == nil || enc.Labs == nil {
		return nil, errors.New("encoder state incomplete")
	}
	return &enc, nil
}

// State serializes the fitted preprocessing state for storage with a
// model version.
func (e *Encoder) State() ([]byte, error) {
	return json.Marshal(e)
}

// SchemaHash is a stable digest over the feature names and vocabularies.
// A model records it at training time; inference verifies it before use.
func (e *Encoder) SchemaHash() string {
	e.hashOnce.Do(func() {
		payload, _ := json.Marshal(struct {
			Names []string            `json:"feature_names"`
			Vocab map[string][]string `json:"vocabulary"`
		}{e.Names, e.Vocab})
		sum := sha256.Sum256(payload)
		e.hash = hex.EncodeToString(sum[:])
	})
	return e.hash
}

// Encode maps one minimal record into the fitted numeric feature space.
// Categorical fields become ordinal indexes (nullable bands shift by one so
// null encodes as 0); labs are standardized.
func (e *Encoder) Encode(rec models.MinimalRecord) ([]float64, error) {
	vector := make([]float64, 0, len(e.Names))
	for _, name := range e.Names {
		value, err := e.encodeField(rec, name)
		if err != nil {
			return nil, err
		}
		vector = append(vector, value)
	}
	return vector, nil
}

// EncodeBatch encodes a batch in parallel, preserving order. The first
// schema mismatch aborts the whole batch.
func (e *Encoder) EncodeBatch(records []models.MinimalRecord) ([][]float64, error) {
	vectors := make([][]float64, len(records))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range records {
		i := i
		g.Go(func() error {
			v, err := e.Encode(records[i])
			if err != nil {
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Encoder) encodeField(rec models.MinimalRecord, name string) (float64, error) {
	switch name {
	case "hba1c", "cholesterol_total", "crp":
		stats, ok := e.Labs[name]
		if !ok {
			return 0, SchemaMismatchError{Field: name, Value: "<no fitted stats>"}
		}
		return (labValue(rec, name) - stats.Mean) / stats.Std, nil
	case "sex":
		return e.ordinal(name, rec.Sex)
	case "age_band":
		return e.ordinal(name, rec.AgeBand)
	case "smoking_status":
		return e.ordinal(name, rec.SmokingStatus)
	case "smoking_duration_band":
		return e.nullableOrdinal(name, rec.SmokingDurationBand)
	case "smoking_amount_band":
		return e.nullableOrdinal(name, rec.SmokingAmountBand)
	case "alcohol_status":
		return e.ordinal(name, rec.AlcoholStatus)
	case "alcohol_duration_band":
		return e.nullableOrdinal(name, rec.AlcoholDurationBand)
	case "drugs_status":
		return e.ordinal(name, rec.DrugsStatus)
	case "drugs_duration_band":
		return e.nullableOrdinal(name, rec.DrugsDurationBand)
	case "sport_level":
		return e.ordinal(name, rec.SportLevel)
	case "sport_hours_band":
		return e.nullableOrdinal(name, rec.SportHoursBand)
	default:
		return 0, SchemaMismatchError{Field: name, Value: "<unknown feature>"}
	}
}

func (e *Encoder) ordinal(field, value string) (float64, error) {
	for i, v := range e.Vocab[field] {
		if v == value {
			return float64(i), nil
		}
	}
	return 0, SchemaMismatchError{Field: field, Value: value}
}

func (e *Encoder) nullableOrdinal(field string, value *string) (float64, error) {
	if value == nil {
		return 0, nil
	}
	idx, err := e.ordinal(field, *value)
	if err != nil {
		return 0, err
	}
	return idx + 1, nil
}

func labValue(rec models.MinimalRecord, field string) float64 {
	switch field {
	case "hba1c":
		return rec.HbA1c
	case "cholesterol_total":
		return rec.CholesterolTotal
	default:
		return rec.CRP
	}
}
