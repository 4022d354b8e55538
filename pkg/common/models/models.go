package models

import (
	"time"
)

// CurrentDataVersion tags every minimal dataset record written by this
// release of the transformer.
const CurrentDataVersion = "1.0.0"

// Identity is a subject's raw identity. It never crosses the intake
// boundary; everything downstream of pseudonymization sees only the PID.
type Identity struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
}

// RawRecord is a validated clinical/lab record as delivered by the data
// capture collaborator, before minimization.
type RawRecord struct {
	Identity Identity `json:"identity"`

	Sex      string `json:"sex"` // m, f, d
	AgeYears int    `json:"age_years"`

	SmokingStatus        string   `json:"smoking_status"` // never, current, former
	SmokingDurationYears *float64 `json:"smoking_duration_years"`
	CigarettesPerDay     *float64 `json:"cigarettes_per_day"`

	AlcoholStatus        string   `json:"alcohol_status"`
	AlcoholDurationYears *float64 `json:"alcohol_duration_years"`

	DrugsStatus        string   `json:"drugs_status"`
	DrugsDurationYears *float64 `json:"drugs_duration_years"`

	SportLevel        string   `json:"sport_level"` // none, low, medium, high
	SportHoursPerWeek *float64 `json:"sport_hours_per_week"`

	HbA1c            float64 `json:"hba1c"`             // %
	CholesterolTotal float64 `json:"cholesterol_total"` // mg/dL
	CRP              float64 `json:"crp"`               // mg/L
}

// MinimalRecord is the privacy-minimized feature source keyed by PID.
// Inapplicable band fields are explicit nulls, never omitted; downstream
// schema validation treats missing and null differently.
type MinimalRecord struct {
	PID string `json:"pseudonym"`

	Sex     string `json:"sex"`
	AgeBand string `json:"age_band"`

	SmokingStatus       string  `json:"smoking_status"`
	SmokingDurationBand *string `json:"smoking_duration_band"`
	SmokingAmountBand   *string `json:"smoking_amount_band"`

	AlcoholStatus       string  `json:"alcohol_status"`
	AlcoholDurationBand *string `json:"alcohol_duration_band"`

	DrugsStatus       string  `json:"drugs_status"`
	DrugsDurationBand *string `json:"drugs_duration_band"`

	SportLevel     string  `json:"sport_level"`
	SportHoursBand *string `json:"sport_hours_band"`

	HbA1c            float64 `json:"hba1c"`
	CholesterolTotal float64 `json:"cholesterol_total"`
	CRP              float64 `json:"crp"`

	CreatedAt   time.Time `json:"created_at"`
	DataVersion string    `json:"data_version"`
}

// Risk categories are a fixed function of the predicted probability:
// p < 0.3 low, 0.3 <= p < 0.7 medium, p >= 0.7 high.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Prediction is one immutable inference result.
type Prediction struct {
	ID           string    `json:"id"`
	PID          string    `json:"pseudonym"`
	Probability  float64   `json:"diagnosis_probability"`
	RiskCategory string    `json:"risk_category"`
	Confidence   float64   `json:"confidence_score"`
	ModelVersion int       `json:"model_version"`
	Timestamp    time.Time `json:"prediction_timestamp"`
}

// FeedbackRecord is a confirmed ground-truth outcome for a previously
// predicted subject.
type FeedbackRecord struct {
	ID              string    `json:"id"`
	PID             string    `json:"pseudonym"`
	Outcome         bool      `json:"outcome"`
	DiagnosisMethod string    `json:"diagnosis_method"`
	Timestamp       time.Time `json:"timestamp"`
}

// DriftReport compares a reference (training-time) window against a
// current (serving-time) window.
type DriftReport struct {
	ReferenceWindowID string             `json:"reference_window_id"`
	CurrentWindowID   string             `json:"current_window_id"`
	FeatureScores     map[string]float64 `json:"feature_scores"`
	AggregateScore    float64            `json:"aggregate_score"`
	Verdict           string             `json:"verdict"` // stable, drifted
	ReferenceSize     int                `json:"reference_size"`
	CurrentSize       int                `json:"current_size"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

const (
	VerdictStable  = "stable"
	VerdictDrifted = "drifted"
)

// Event is the structured monitoring payload published to the
// observability collaborator.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
