package score

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidMetric is returned for unknown metric names.
var ErrInvalidMetric = errors.New("invalid score metric")

// Metric selects one of the cached resolution scores.
type Metric string

const (
	MetricBrier Metric = "brier"
	MetricLogN  Metric = "logn"
	MetricLog2  Metric = "log2"
)

// Metrics lists the supported metrics in display order.
var Metrics = []Metric{MetricBrier, MetricLogN, MetricLog2}

// ParseMetric converts a metric name into a Metric.
func ParseMetric(v string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(v)))
	switch m {
	case MetricBrier, MetricLogN, MetricLog2:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: brier, logn, log2)", ErrInvalidMetric, v)
	}
}

// Value returns the value of metric m from s.
func (s *Scores) Value(m Metric) (float64, error) {
	switch m {
	case MetricBrier:
		return s.Brier, nil
	case MetricLogN:
		return s.LogN, nil
	case MetricLog2:
		return s.Log2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMetric, m)
	}
}

// Reader provides the cached scores of resolved forecasts.
// A non-empty category restricts results to forecasts whose category
// contains it (case-sensitive).
type Reader interface {
	ResolutionScores(ctx context.Context, metric Metric, category string) ([]float64, error)
}

// Average returns the mean of the cached metric over all resolved forecasts
// matching category. Each resolved forecast contributes one value.
func Average(ctx context.Context, r Reader, metric Metric, category string) (float64, error) {
	if r == nil {
		return 0, errors.New("score reader required")
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return 0, err
	}

	list, err := r.ResolutionScores(ctx, metric, category)
	if err != nil {
		return 0, fmt.Errorf("reading %s scores: %w", metric, err)
	}

	avg, err := Mean(list)
	if err != nil {
		if category != "" {
			return 0, fmt.Errorf("%w: no resolved forecasts in category %q", err, category)
		}
		return 0, fmt.Errorf("%w: no resolved forecasts", err)
	}
	return avg, nil
}

// Summary holds the averages of every metric for a slice of resolved forecasts.
type Summary struct {
	Category  string  `json:"category,omitempty" yaml:"category,omitempty"`
	Forecasts int     `json:"forecasts" yaml:"forecasts"`
	Brier     float64 `json:"brier" yaml:"brier"`
	LogN      float64 `json:"logn" yaml:"logn"`
	Log2      float64 `json:"log2" yaml:"log2"`
}

// Summarize averages all metrics for the resolved forecasts matching category.
func Summarize(ctx context.Context, r Reader, category string) (*Summary, error) {
	if r == nil {
		return nil, errors.New("score reader required")
	}

	s := &Summary{Category: category}
	targets := map[Metric]*float64{
		MetricBrier: &s.Brier,
		MetricLogN:  &s.LogN,
		MetricLog2:  &s.Log2,
	}

	counts := make([]int, len(Metrics))
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range Metrics {
		g.Go(func() error {
			list, err := r.ResolutionScores(ctx, m, category)
			if err != nil {
				return fmt.Errorf("reading %s scores: %w", m, err)
			}
			avg, err := Mean(list)
			if err != nil {
				return err
			}
			*targets[m] = avg
			counts[i] = len(list)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrEmptyInput) && category != "" {
			return nil, fmt.Errorf("%w: no resolved forecasts in category %q", err, category)
		}
		return nil, err
	}

	s.Forecasts = counts[0]
	return s, nil
}
