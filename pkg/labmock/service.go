// Package labmock simulates an external laboratory API for development and
// testing. It produces synthetic lab values drawn from per-test normal and
// abnormal distributions.
package labmock

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// ReferenceRange describes one lab test: its unit, clinical reference
// bounds, and the distributions synthetic values are drawn from.
type ReferenceRange struct {
	Unit         string  `json:"unit"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	NormalMean   float64 `json:"-"`
	NormalStd    float64 `json:"-"`
	AbnormalMean float64 `json:"-"`
	AbnormalStd  float64 `json:"-"`
}

// ReferenceRanges lists every test the mock can serve.
var ReferenceRanges = map[string]ReferenceRange{
	"hba1c":             {Unit: "%", Min: 4.0, Max: 5.6, NormalMean: 5.2, NormalStd: 0.3, AbnormalMean: 7.5, AbnormalStd: 1.5},
	"cholesterol_total": {Unit: "mg/dL", Min: 0, Max: 200, NormalMean: 180, NormalStd: 20, AbnormalMean: 260, AbnormalStd: 40},
	"cholesterol_ldl":   {Unit: "mg/dL", Min: 0, Max: 100, NormalMean: 90, NormalStd: 15, AbnormalMean: 150, AbnormalStd: 30},
	"cholesterol_hdl":   {Unit: "mg/dL", Min: 40, Max: 60, NormalMean: 55, NormalStd: 10, AbnormalMean: 35, AbnormalStd: 8},
	"crp":               {Unit: "mg/L", Min: 0, Max: 3.0, NormalMean: 1.0, NormalStd: 0.5, AbnormalMean: 8.0, AbnormalStd: 3.0},
	"glucose_fasting":   {Unit: "mg/dL", Min: 70, Max: 100, NormalMean: 90, NormalStd: 8, AbnormalMean: 140, AbnormalStd: 30},
	"triglycerides":     {Unit: "mg/dL", Min: 0, Max: 150, NormalMean: 100, NormalStd: 25, AbnormalMean: 220, AbnormalStd: 50},
}

type Result struct {
	TestType     string    `json:"test_type"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit"`
	ReferenceMin float64   `json:"reference_min"`
	ReferenceMax float64   `json:"reference_max"`
	Timestamp    time.Time `json:"timestamp"`
}

// Service generates synthetic results. It is seedable so tests are
// reproducible.
type Service struct {
	mu                  sync.Mutex
	rng                 *rand.Rand
	abnormalProbability float64
}

func NewService(seed int64, abnormalProbability float64) *Service {
	return &Service{
		rng:                 rand.New(rand.NewSource(seed)),
		abnormalProbability: abnormalProbability,
	}
}

// Generate draws one synthetic value for a test type. Unknown tests return
// false.
func (s *Service) Generate(testType string) (Result, bool) {
	ranges, ok := ReferenceRanges[testType]
	if !ok {
		return Result{}, false
	}

	s.mu.Lock()
	abnormal := s.rng.Float64() < s.abnormalProbability
	var value float64
	if abnormal {
		value = s.rng.NormFloat64()*ranges.AbnormalStd + ranges.AbnormalMean
	} else {
		value = s.rng.NormFloat64()*ranges.NormalStd + ranges.NormalMean
	}
	s.mu.Unlock()

	value = math.Round(math.Max(0, value)*100) / 100

	return Result{
		TestType:     testType,
		Value:        value,
		Unit:         ranges.Unit,
		ReferenceMin: ranges.Min,
		ReferenceMax: ranges.Max,
		Timestamp:    time.Now().UTC(),
	}, true
}
