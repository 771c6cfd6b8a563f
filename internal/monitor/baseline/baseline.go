// Package baseline derives a robust "normal volume" estimate from a series
// of historical bucket volumes. Outliers are removed with the IQR rule so a
// previous spike inside the window does not inflate its own baseline.
package baseline

import (
	"math"
	"sort"
)

// Method selects the aggregate applied to the filtered series.
type Method string

const (
	Median Method = "median" // robust default
	Mean   Method = "mean"
)

const iqrFactor = 1.5

// Estimate returns the baseline for a series of bucket volumes.
//
// Empty input yields 0 (caller treats as "no baseline"). Fewer than 3 values
// yields the plain mean. Otherwise outliers outside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR] are removed; if that discards more than half
// the points the filter is retried as mean +/- 2 stddev, and if everything
// is discarded the original series is used. The result is never derived
// from an empty set when the input is non-empty.
func Estimate(values []float64, method Method) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < 3 {
		return mean(values)
	}

	filtered := removeOutliers(values)
	if len(filtered) == 0 {
		filtered = values
	}

	if method == Mean {
		return mean(filtered)
	}
	return median(filtered)
}

// removeOutliers applies the IQR rule, falling back to a wider 2-sigma rule
// when the IQR filter would discard more than half the series.
func removeOutliers(values []float64) []float64 {
	if len(values) < 4 {
		return values
	}

	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	if iqr == 0 {
		// No spread, nothing to filter.
		return values
	}

	lower := q1 - iqrFactor*iqr
	upper := q3 + iqrFactor*iqr

	filtered := keepWithin(values, lower, upper)

	minKeep := len(values) / 2
	if minKeep < 1 {
		minKeep = 1
	}
	if len(filtered) < minKeep {
		// IQR was too aggressive; retry within two standard deviations.
		m := mean(values)
		sd := stddev(values, m)
		filtered = keepWithin(values, m-2*sd, m+2*sd)
	}

	if len(filtered) == 0 {
		return values
	}
	return filtered
}

func keepWithin(values []float64, lower, upper float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lower && v <= upper {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation around m.
func stddev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func median(values []float64) float64 {
	return quantile(values, 0.5)
}

// quantile computes the p-quantile with linear interpolation between the
// two nearest ranks.
func quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
