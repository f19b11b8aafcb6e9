package score

import (
	"fmt"
	"math"
)

// DefaultBuckets is the number of calibration buckets used when none is given.
const DefaultBuckets = 10

// bucketEpsilon absorbs float error so estimates on a boundary open the upper bucket.
const bucketEpsilon = 1e-9

// ResolvedPoint is a single estimate paired with the outcome of its forecast.
type ResolvedPoint struct {
	Estimate float64 `json:"estimate" yaml:"estimate"`
	Outcome  Outcome `json:"outcome" yaml:"outcome"`
}

// Bucket summarizes the estimates falling within [Start, End).
type Bucket struct {
	Start        float64 `json:"start" yaml:"start"`
	End          float64 `json:"end" yaml:"end"`
	Count        int     `json:"count" yaml:"count"`
	MeanEstimate float64 `json:"mean_estimate" yaml:"meanEstimate"`
	ActualRate   float64 `json:"actual_rate" yaml:"actualRate"`
}

// Calibrate groups points into equal-width probability buckets and compares
// the mean estimate of each bucket with the observed rate of outcomes.
// Only non-empty buckets are returned, ordered by Start.
func Calibrate(points []ResolvedPoint, buckets int) ([]*Bucket, error) {
	if buckets < 1 {
		return nil, fmt.Errorf("bucket count must be positive: %d", buckets)
	}
	if len(points) == 0 {
		return nil, ErrEmptyInput
	}

	sums := make([]float64, buckets)
	hits := make([]int, buckets)
	counts := make([]int, buckets)

	for i, p := range points {
		if math.IsNaN(p.Estimate) || p.Estimate < 0 || p.Estimate > 1 {
			return nil, fmt.Errorf("%w: point[%d] = %v", ErrDomainRange, i, p.Estimate)
		}
		if !p.Outcome.Valid() {
			return nil, fmt.Errorf("%w: point[%d] outcome %d", ErrInvalidOutcome, i, p.Outcome)
		}

		idx := int(math.Floor(p.Estimate*float64(buckets) + bucketEpsilon))
		if idx == buckets {
			idx--
		}
		sums[idx] += p.Estimate
		hits[idx] += int(p.Outcome)
		counts[idx]++
	}

	width := 1 / float64(buckets)
	list := make([]*Bucket, 0, buckets)
	for i := 0; i < buckets; i++ {
		if counts[i] == 0 {
			continue
		}
		n := float64(counts[i])
		list = append(list, &Bucket{
			Start:        float64(i) * width,
			End:          float64(i+1) * width,
			Count:        counts[i],
			MeanEstimate: sums[i] / n,
			ActualRate:   float64(hits[i]) / n,
		})
	}

	return list, nil
}
