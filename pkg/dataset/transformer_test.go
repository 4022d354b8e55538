package dataset

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/diagnoml/platform/pkg/common/models"
)

func floatPtr(v float64) *float64 { return &v }

func validRaw() models.RawRecord {
	return models.RawRecord{
		Identity:             models.Identity{FirstName: "Erika", LastName: "Mustermann", DateOfBirth: "1969-04-12"},
		Sex:                  "f",
		AgeYears:             54,
		SmokingStatus:        "former",
		SmokingDurationYears: floatPtr(12),
		CigarettesPerDay:     floatPtr(15),
		AlcoholStatus:        "never",
		DrugsStatus:          "never",
		SportLevel:           "low",
		SportHoursPerWeek:    floatPtr(2),
		HbA1c:                5.4,
		CholesterolTotal:     190,
		CRP:                  1.2,
	}
}

func TestAgeBandEdges(t *testing.T) {
	cases := []struct {
		years int
		want  string
	}{
		{18, "18-30"},
		{29, "18-30"},
		{30, "18-30"},
		{31, "31-45"},
		{45, "31-45"},
		{46, "46-60"},
		{60, "46-60"},
		{61, "61-75"},
		{75, "61-75"},
		{76, "76+"},
		{120, "76+"},
	}
	for _, c := range cases {
		got, err := AgeBand(c.years)
		if err != nil {
			t.Fatalf("AgeBand(%d) failed: %v", c.years, err)
		}
		if got != c.want {
			t.Errorf("AgeBand(%d) = %s, want %s", c.years, got, c.want)
		}
	}

	for _, years := range []int{17, 0, -1, 121} {
		if _, err := AgeBand(years); !IsValidationError(err) {
			t.Errorf("AgeBand(%d) should be rejected, got %v", years, err)
		}
	}
}

func TestDurationBandEdges(t *testing.T) {
	cases := []struct {
		years float64
		want  string
	}{
		{0, "<5y"},
		{4.9, "<5y"},
		{5, "5-15y"},
		{15, "5-15y"},
		{15.1, ">15y"},
	}
	for _, c := range cases {
		if got := DurationBand(c.years); got != c.want {
			t.Errorf("DurationBand(%v) = %s, want %s", c.years, got, c.want)
		}
	}
}

func TestSmokingAmountBandEdges(t *testing.T) {
	cases := []struct {
		perDay float64
		want   string
	}{
		{0, "<10"},
		{9.9, "<10"},
		{10, "10-20"},
		{20, "10-20"},
		{20.5, ">20"},
	}
	for _, c := range cases {
		if got := SmokingAmountBand(c.perDay); got != c.want {
			t.Errorf("SmokingAmountBand(%v) = %s, want %s", c.perDay, got, c.want)
		}
	}
}

func TestSportHoursBandEdges(t *testing.T) {
	cases := []struct {
		hours float64
		want  string
	}{
		{0, "0"},
		{0.5, "1-3"},
		{3, "1-3"},
		{3.5, "4-7"},
		{7, "4-7"},
		{7.5, "8+"},
	}
	for _, c := range cases {
		if got := SportHoursBand(c.hours); got != c.want {
			t.Errorf("SportHoursBand(%v) = %s, want %s", c.hours, got, c.want)
		}
	}
}

func TestMinimizeProducesValidRecord(t *testing.T) {
	rec, err := NewTransformer().Minimize(validRaw())
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}

	if rec.AgeBand != "46-60" {
		t.Errorf("age band = %s, want 46-60", rec.AgeBand)
	}
	if rec.SmokingDurationBand == nil || *rec.SmokingDurationBand != "5-15y" {
		t.Errorf("smoking duration band = %v, want 5-15y", rec.SmokingDurationBand)
	}
	if rec.SmokingAmountBand == nil || *rec.SmokingAmountBand != "10-20" {
		t.Errorf("smoking amount band = %v, want 10-20", rec.SmokingAmountBand)
	}
	if rec.AlcoholDurationBand != nil {
		t.Errorf("alcohol duration band should be null for never, got %v", *rec.AlcoholDurationBand)
	}
	if rec.DataVersion != models.CurrentDataVersion {
		t.Errorf("data version = %s", rec.DataVersion)
	}

	if err := NewTransformer().Validate(rec); err != nil {
		t.Fatalf("minimized record failed validation: %v", err)
	}
}

func TestMinimizeExplicitNullsInJSON(t *testing.T) {
	rec, err := NewTransformer().Minimize(validRaw())
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// Inapplicable bands must serialize as explicit nulls, never be
	// omitted.
	for _, key := range []string{`"alcohol_duration_band":null`, `"drugs_duration_band":null`} {
		if !strings.Contains(string(payload), key) {
			t.Errorf("payload missing %s: %s", key, payload)
		}
	}
}

func TestMinimizeRejectsSubfieldsWhenNever(t *testing.T) {
	raw := validRaw()
	raw.AlcoholStatus = "never"
	raw.AlcoholDurationYears = floatPtr(3)

	if _, err := NewTransformer().Minimize(raw); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMinimizeRequiresSubfieldsWhenExposed(t *testing.T) {
	raw := validRaw()
	raw.SmokingDurationYears = nil

	if _, err := NewTransformer().Minimize(raw); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMinimizeSportHours(t *testing.T) {
	raw := validRaw()
	raw.SportLevel = "none"
	raw.SportHoursPerWeek = floatPtr(4)
	if _, err := NewTransformer().Minimize(raw); !IsValidationError(err) {
		t.Fatalf("expected rejection of hours with sport_level none, got %v", err)
	}

	raw = validRaw()
	raw.SportLevel = "none"
	raw.SportHoursPerWeek = nil
	rec, err := NewTransformer().Minimize(raw)
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}
	if rec.SportHoursBand != nil {
		t.Fatalf("sport hours band should be null, got %v", *rec.SportHoursBand)
	}
}

func TestMinimizeRejectsImplausibleLabs(t *testing.T) {
	cases := []func(*models.RawRecord){
		func(r *models.RawRecord) { r.HbA1c = 2.9 },
		func(r *models.RawRecord) { r.HbA1c = 20.1 },
		func(r *models.RawRecord) { r.CholesterolTotal = 49 },
		func(r *models.RawRecord) { r.CholesterolTotal = 501 },
		func(r *models.RawRecord) { r.CRP = -0.1 },
		func(r *models.RawRecord) { r.CRP = 301 },
	}
	for i, mutate := range cases {
		raw := validRaw()
		mutate(&raw)
		if _, err := NewTransformer().Minimize(raw); !IsValidationError(err) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestMinimizeRejectsUnknownEnums(t *testing.T) {
	raw := validRaw()
	raw.Sex = "x"
	if _, err := NewTransformer().Minimize(raw); !IsValidationError(err) {
		t.Fatalf("expected validation error for sex, got %v", err)
	}

	raw = validRaw()
	raw.SmokingStatus = "sometimes"
	if _, err := NewTransformer().Minimize(raw); !IsValidationError(err) {
		t.Fatalf("expected validation error for smoking_status, got %v", err)
	}
}

func TestReminimizeIsIdentity(t *testing.T) {
	transformer := NewTransformer()
	rec, err := transformer.Minimize(validRaw())
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}

	again, err := transformer.Reminimize(rec)
	if err != nil {
		t.Fatalf("reminimize failed: %v", err)
	}

	before, _ := json.Marshal(rec)
	after, _ := json.Marshal(again)
	if string(before) != string(after) {
		t.Fatalf("reminimize changed the record:\n%s\n%s", before, after)
	}
}

func TestValidateRejectsCorruptedRecord(t *testing.T) {
	transformer := NewTransformer()
	rec, err := transformer.Minimize(validRaw())
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}

	rec.AgeBand = "20-40"
	if err := transformer.Validate(rec); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
