// Package drift compares the feature distribution seen at training time
// against the current serving window using the Population Stability Index.
//
// Each feature column is binned into ten equal-width bins spanning the
// reference range, plus an underflow and an overflow bin. The aggregate
// score is the maximum per-feature PSI: a single badly shifted feature is
// enough to flag the window, and the per-feature scores in the report say
// which one.
package drift

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/diagnoml/platform/pkg/common/models"
)

// InsufficientWindowError means a window is too small for the PSI bins to
// carry signal. The report is then inconclusive: neither stable nor
// drifted.
type InsufficientWindowError struct {
	Window string
	Have   int
	Need   int
}

func (e InsufficientWindowError) Error() string {
	return fmt.Sprintf("%s window has %d samples, need %d", e.Window, e.Have, e.Need)
}

func IsInsufficientWindow(err error) bool {
	var iwe InsufficientWindowError
	return errors.As(err, &iwe)
}

const (
	binCount = 10
	// Zero bin fractions are floored here so the PSI log term stays
	// finite. Two identical windows still score exactly zero because
	// their floored fractions match.
	minBinFraction = 1e-4
)

type Detector struct {
	threshold float64
	minWindow int
}

func NewDetector(threshold float64, minWindowSize int) *Detector {
	return &Detector{threshold: threshold, minWindow: minWindowSize}
}

// Detect scores the current window against the reference window. Both are
// row-major feature matrices in the same fitted feature space.
func (d *Detector) Detect(ctx context.Context, refID, curID string, reference, current [][]float64, featureNames []string) (models.DriftReport, error) {
	if len(reference) < d.minWindow {
		return models.DriftReport{}, InsufficientWindowError{Window: "reference", Have: len(reference), Need: d.minWindow}
	}
	if len(current) < d.minWindow {
		return models.DriftReport{}, InsufficientWindowError{Window: "current", Have: len(current), Need: d.minWindow}
	}
	if ctx.Err() != nil {
		return models.DriftReport{}, ctx.Err()
	}

	featureCount := len(reference[0])
	scores := make(map[string]float64, featureCount)
	var aggregate float64
	for col := 0; col < featureCount; col++ {
		score := psi(column(reference, col), column(current, col))
		name := fmt.Sprintf("f%d", col)
		if col < len(featureNames) {
			name = featureNames[col]
		}
		scores[name] = score
		if score > aggregate {
			aggregate = score
		}
	}

	verdict := models.VerdictStable
	if aggregate > d.threshold {
		verdict = models.VerdictDrifted
	}

	return models.DriftReport{
		ReferenceWindowID: refID,
		CurrentWindowID:   curID,
		FeatureScores:     scores,
		AggregateScore:    aggregate,
		Verdict:           verdict,
		ReferenceSize:     len(reference),
		CurrentSize:       len(current),
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// psi bins both samples over the reference range and sums
// (cur-ref)·ln(cur/ref) over the bin fractions.
func psi(reference, current []float64) float64 {
	min, max := reference[0], reference[0]
	for _, v := range reference {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	refCounts := binCounts(reference, min, max)
	curCounts := binCounts(current, min, max)

	var score float64
	for i := range refCounts {
		refFrac := fraction(refCounts[i], len(reference))
		curFrac := fraction(curCounts[i], len(current))
		score += (curFrac - refFrac) * math.Log(curFrac/refFrac)
	}
	return score
}

// binCounts distributes values over binCount equal-width bins across
// [min, max], with bin 0 for underflow and the last bin for overflow.
func binCounts(values []float64, min, max float64) []int {
	counts := make([]int, binCount+2)
	width := (max - min) / binCount
	for _, v := range values {
		switch {
		case v < min:
			counts[0]++
		case v > max:
			counts[binCount+1]++
		case width == 0:
			counts[1]++
		default:
			bin := int((v - min) / width)
			if bin >= binCount {
				bin = binCount - 1
			}
			counts[bin+1]++
		}
	}
	return counts
}

func fraction(count, total int) float64 {
	frac := float64(count) / float64(total)
	if frac < minBinFraction {
		return minBinFraction
	}
	return frac
}

func column(matrix [][]float64, col int) []float64 {
	out := make([]float64, len(matrix))
	for i, row := range matrix {
		out[i] = row[col]
	}
	return out
}
