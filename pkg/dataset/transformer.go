package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/diagnoml/platform/pkg/common/models"
)

// ValidationError carries the offending field so a rejection is diagnosable
// without replaying data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Closed enumerations of the minimal dataset schema. Every categorical
// output field is one of these values or an explicit null.
var (
	SexValues          = []string{"m", "f", "d"}
	AgeBands           = []string{"18-30", "31-45", "46-60", "61-75", "76+"}
	StatusValues       = []string{"never", "current", "former"}
	DurationBands      = []string{"<5y", "5-15y", ">15y"}
	SmokingAmountBands = []string{"<10", "10-20", ">20"}
	SportLevels        = []string{"none", "low", "medium", "high"}
	SportHoursBands    = []string{"0", "1-3", "4-7", "8+"}
)

// Clinical plausibility ranges for the three lab values.
const (
	HbA1cMin            = 3.0
	HbA1cMax            = 20.0
	CholesterolTotalMin = 50.0
	CholesterolTotalMax = 500.0
	CRPMin              = 0.0
	CRPMax              = 300.0
)

// AgeBand maps whole years into adjacent inclusive integer bands:
// [18,30], [31,45], [46,60], [61,75], [76,∞).
func AgeBand(years int) (string, error) {
	switch {
	case years < 18:
		return "", ValidationError{Field: "age_years", Reason: fmt.Sprintf("%d is below the study minimum of 18", years)}
	case years <= 30:
		return "18-30", nil
	case years <= 45:
		return "31-45", nil
	case years <= 60:
		return "46-60", nil
	case years <= 75:
		return "61-75", nil
	case years <= 120:
		return "76+", nil
	default:
		return "", ValidationError{Field: "age_years", Reason: fmt.Sprintf("%d is not clinically plausible", years)}
	}
}

// DurationBand maps years of exposure: [0,5) → "<5y", [5,15] → "5-15y",
// (15,∞) → ">15y". The 5 and 15 edges are inclusive on the middle band.
func DurationBand(years float64) string {
	switch {
	case years < 5:
		return "<5y"
	case years <= 15:
		return "5-15y"
	default:
		return ">15y"
	}
}

// SmokingAmountBand maps cigarettes per day: [0,10) → "<10", [10,20] →
// "10-20", (20,∞) → ">20".
func SmokingAmountBand(perDay float64) string {
	switch {
	case perDay < 10:
		return "<10"
	case perDay <= 20:
		return "10-20"
	default:
		return ">20"
	}
}

// SportHoursBand maps weekly activity hours: 0 → "0", (0,3] → "1-3",
// (3,7] → "4-7", (7,∞) → "8+".
func SportHoursBand(hours float64) string {
	switch {
	case hours <= 0:
		return "0"
	case hours <= 3:
		return "1-3"
	case hours <= 7:
		return "4-7"
	default:
		return "8+"
	}
}

// Transformer minimizes validated raw records into the bounded categorical
// schema. The banding rules are pure and total; the only state is the
// schema version stamped on each output.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// Minimize converts one raw record into a minimal dataset record. The raw
// identity is not consulted; pseudonymization happens upstream and the PID
// is attached by the intake boundary.
func (t *Transformer) Minimize(raw models.RawRecord) (models.MinimalRecord, error) {
	if err := requireEnum("sex", raw.Sex, SexValues); err != nil {
		return models.MinimalRecord{}, err
	}
	ageBand, err := AgeBand(raw.AgeYears)
	if err != nil {
		return models.MinimalRecord{}, err
	}

	smokingDuration, smokingAmount, err := exposureBands("smoking", raw.SmokingStatus, raw.SmokingDurationYears, raw.CigarettesPerDay)
	if err != nil {
		return models.MinimalRecord{}, err
	}
	alcoholDuration, _, err := exposureBands("alcohol", raw.AlcoholStatus, raw.AlcoholDurationYears, nil)
	if err != nil {
		return models.MinimalRecord{}, err
	}
	drugsDuration, _, err := exposureBands("drugs", raw.DrugsStatus, raw.DrugsDurationYears, nil)
	if err != nil {
		return models.MinimalRecord{}, err
	}

	if err := requireEnum("sport_level", raw.SportLevel, SportLevels); err != nil {
		return models.MinimalRecord{}, err
	}
	var sportHours *string
	if raw.SportLevel == "none" {
		if raw.SportHoursPerWeek != nil && *raw.SportHoursPerWeek > 0 {
			return models.MinimalRecord{}, ValidationError{Field: "sport_hours_per_week", Reason: "must be absent or zero when sport_level is none"}
		}
	} else {
		if raw.SportHoursPerWeek == nil {
			return models.MinimalRecord{}, ValidationError{Field: "sport_hours_per_week", Reason: "required when sport_level is not none"}
		}
		band := SportHoursBand(*raw.SportHoursPerWeek)
		sportHours = &band
	}

	if err := requireRange("hba1c", raw.HbA1c, HbA1cMin, HbA1cMax); err != nil {
		return models.MinimalRecord{}, err
	}
	if err := requireRange("cholesterol_total", raw.CholesterolTotal, CholesterolTotalMin, CholesterolTotalMax); err != nil {
		return models.MinimalRecord{}, err
	}
	if err := requireRange("crp", raw.CRP, CRPMin, CRPMax); err != nil {
		return models.MinimalRecord{}, err
	}

	return models.MinimalRecord{
		Sex:                 raw.Sex,
		AgeBand:             ageBand,
		SmokingStatus:       raw.SmokingStatus,
		SmokingDurationBand: smokingDuration,
		SmokingAmountBand:   smokingAmount,
		AlcoholStatus:       raw.AlcoholStatus,
		AlcoholDurationBand: alcoholDuration,
		DrugsStatus:         raw.DrugsStatus,
		DrugsDurationBand:   drugsDuration,
		SportLevel:          raw.SportLevel,
		SportHoursBand:      sportHours,
		HbA1c:               raw.HbA1c,
		CholesterolTotal:    raw.CholesterolTotal,
		CRP:                 raw.CRP,
		CreatedAt:           time.Now().UTC(),
		DataVersion:         models.CurrentDataVersion,
	}, nil
}

// Reminimize is the identity on an already-minimal record: it validates and
// returns the record unchanged.
func (t *Transformer) Reminimize(rec models.MinimalRecord) (models.MinimalRecord, error) {
	if err := t.Validate(rec); err != nil {
		return models.MinimalRecord{}, err
	}
	return rec, nil
}

// Validate checks an existing minimal record against the closed schema.
func (t *Transformer) Validate(rec models.MinimalRecord) error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"sex", rec.Sex, SexValues},
		{"age_band", rec.AgeBand, AgeBands},
		{"smoking_status", rec.SmokingStatus, StatusValues},
		{"alcohol_status", rec.AlcoholStatus, StatusValues},
		{"drugs_status", rec.DrugsStatus, StatusValues},
		{"sport_level", rec.SportLevel, SportLevels},
	}
	for _, c := range checks {
		if err := requireEnum(c.field, c.value, c.allowed); err != nil {
			return err
		}
	}

	optional := []struct {
		field   string
		value   *string
		allowed []string
	}{
		{"smoking_duration_band", rec.SmokingDurationBand, DurationBands},
		{"smoking_amount_band", rec.SmokingAmountBand, SmokingAmountBands},
		{"alcohol_duration_band", rec.AlcoholDurationBand, DurationBands},
		{"drugs_duration_band", rec.DrugsDurationBand, DurationBands},
		{"sport_hours_band", rec.SportHoursBand, SportHoursBands},
	}
	for _, c := range optional {
		if c.value == nil {
			continue
		}
		if err := requireEnum(c.field, *c.value, c.allowed); err != nil {
			return err
		}
	}

	if err := requireRange("hba1c", rec.HbA1c, HbA1cMin, HbA1cMax); err != nil {
		return err
	}
	if err := requireRange("cholesterol_total", rec.CholesterolTotal, CholesterolTotalMin, CholesterolTotalMax); err != nil {
		return err
	}
	return requireRange("crp", rec.CRP, CRPMin, CRPMax)
}

// exposureBands derives the duration (and optionally amount) bands of one
// substance exposure. Status "never" requires the sub-fields to be absent
// and yields explicit nulls.
func exposureBands(prefix, status string, durationYears, amountPerDay *float64) (*string, *string, error) {
	if err := requireEnum(prefix+"_status", status, StatusValues); err != nil {
		return nil, nil, err
	}
	if status == "never" {
		if durationYears != nil {
			return nil, nil, ValidationError{Field: prefix + "_duration_years", Reason: "must be absent when status is never"}
		}
		if amountPerDay != nil {
			return nil, nil, ValidationError{Field: prefix + "_amount_per_day", Reason: "must be absent when status is never"}
		}
		return nil, nil, nil
	}

	if durationYears == nil {
		return nil, nil, ValidationError{Field: prefix + "_duration_years", Reason: "required when status is " + status}
	}
	if *durationYears < 0 {
		return nil, nil, ValidationError{Field: prefix + "_duration_years", Reason: "must not be negative"}
	}
	duration := DurationBand(*durationYears)

	var amount *string
	if prefix == "smoking" {
		if amountPerDay == nil {
			return nil, nil, ValidationError{Field: "cigarettes_per_day", Reason: "required when status is " + status}
		}
		if *amountPerDay < 0 {
			return nil, nil, ValidationError{Field: "cigarettes_per_day", Reason: "must not be negative"}
		}
		band := SmokingAmountBand(*amountPerDay)
		amount = &band
	}

	return &duration, amount, nil
}

func requireEnum(field, value string, allowed []string) error {
	for _, v := range allowed {
		if value == v {
			return nil
		}
	}
	return ValidationError{Field: field, Reason: fmt.Sprintf("%q is not one of %v", value, allowed)}
}

func requireRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return ValidationError{Field: field, Reason: fmt.Sprintf("%v outside plausible range [%v, %v]", value, min, max)}
	}
	return nil
}
