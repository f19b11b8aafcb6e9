// Package score implements the proper scoring rules used to grade forecasts
// and the aggregations built on top of them.
package score

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrDomainRange is returned when an estimate is outside [0,1] or when a
	// log score would be infinite for the realized outcome.
	ErrDomainRange = errors.New("estimate outside of the scoring domain")

	// ErrEmptyInput is returned when there is nothing to score or average.
	ErrEmptyInput = errors.New("no values to score")

	// ErrInvalidOutcome is returned for outcomes other than 0 or 1.
	ErrInvalidOutcome = errors.New("outcome must be 0 or 1")
)

// Outcome is the binary resolution of a forecast.
type Outcome int

const (
	// No means the event did not happen.
	No Outcome = 0
	// Yes means the event happened.
	Yes Outcome = 1
)

// Valid reports whether o is 0 or 1.
func (o Outcome) Valid() bool {
	return o == No || o == Yes
}

// ParseOutcome converts yes/no, y/n, true/false or 1/0 into an Outcome.
func ParseOutcome(v string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1":
		return Yes, nil
	case "no", "n", "false", "0":
		return No, nil
	default:
		return No, fmt.Errorf("%w: %q", ErrInvalidOutcome, v)
	}
}

// Scores holds the three scoring rules for a single resolved forecast.
type Scores struct {
	Brier float64 `json:"brier" yaml:"brier"`
	LogN  float64 `json:"logn" yaml:"logn"`
	Log2  float64 `json:"log2" yaml:"log2"`
}

// Forecast scores every estimate of a forecast against its outcome.
func Forecast(points []float64, outcome Outcome) (*Scores, error) {
	b, err := Brier(points, outcome)
	if err != nil {
		return nil, fmt.Errorf("brier score: %w", err)
	}
	ln, err := LogN(points, outcome)
	if err != nil {
		return nil, fmt.Errorf("logn score: %w", err)
	}
	l2, err := Log2(points, outcome)
	if err != nil {
		return nil, fmt.Errorf("log2 score: %w", err)
	}
	return &Scores{Brier: b, LogN: ln, Log2: l2}, nil
}

// Brier returns the mean squared error of points against outcome.
// Lower is better; 0 is a perfect forecast.
func Brier(points []float64, outcome Outcome) (float64, error) {
	return meanOf(points, outcome, func(p, o float64) (float64, error) {
		d := p - o
		return d * d, nil
	})
}

// LogN returns the mean natural-log likelihood of outcome under points.
func LogN(points []float64, outcome Outcome) (float64, error) {
	return meanOf(points, outcome, logScore(math.Log))
}

// Log2 returns the mean base-2 log likelihood of outcome under points.
func Log2(points []float64, outcome Outcome) (float64, error) {
	return meanOf(points, outcome, logScore(math.Log2))
}

// logScore evaluates o*log(p) + (1-o)*log(1-p). The term with a zero
// coefficient is skipped, so a certain and correct estimate scores 0.
func logScore(log func(float64) float64) func(p, o float64) (float64, error) {
	return func(p, o float64) (float64, error) {
		var s float64
		if o != 0 {
			if p == 0 {
				return 0, fmt.Errorf("%w: estimate 0 with outcome 1", ErrDomainRange)
			}
			s += o * log(p)
		}
		if o != 1 {
			if p == 1 {
				return 0, fmt.Errorf("%w: estimate 1 with outcome 0", ErrDomainRange)
			}
			s += (1 - o) * log(1-p)
		}
		return s, nil
	}
}

func meanOf(points []float64, outcome Outcome, fn func(p, o float64) (float64, error)) (float64, error) {
	if !outcome.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOutcome, outcome)
	}
	if len(points) == 0 {
		return 0, ErrEmptyInput
	}

	o := float64(outcome)
	var sum float64
	for i, p := range points {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return 0, fmt.Errorf("%w: point[%d] = %v", ErrDomainRange, i, p)
		}
		v, err := fn(p, o)
		if err != nil {
			return 0, fmt.Errorf("point[%d]: %w", i, err)
		}
		sum += v
	}

	return sum / float64(len(points)), nil
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}
