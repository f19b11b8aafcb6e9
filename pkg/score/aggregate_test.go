package score

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolved struct {
	category string
	scores   Scores
}

type memReader struct {
	list []resolved
	err  error
}

func (m *memReader) ResolutionScores(_ context.Context, metric Metric, category string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, 0)
	for _, r := range m.list {
		if category != "" && !strings.Contains(r.category, category) {
			continue
		}
		v, err := r.scores.Value(metric)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func testReader() *memReader {
	return &memReader{list: []resolved{
		{"Politics", Scores{Brier: 0.10, LogN: -0.5, Log2: -0.7}},
		{"US Politics", Scores{Brier: 0.30, LogN: -0.9, Log2: -1.3}},
		{"Sports", Scores{Brier: 0.50, LogN: -1.0, Log2: -1.5}},
	}}
}

func TestParseMetric(t *testing.T) {
	tests := map[string]Metric{
		"brier":  MetricBrier,
		"LOGN":   MetricLogN,
		" log2 ": MetricLog2,
	}
	for in, want := range tests {
		got, err := ParseMetric(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMetric("rmse")
	assert.ErrorIs(t, err, ErrInvalidMetric)
}

func TestAverage_All(t *testing.T) {
	avg, err := Average(context.Background(), testReader(), MetricBrier, "")
	require.NoError(t, err)
	assert.InDelta(t, (0.10+0.30+0.50)/3, avg, delta)
}

func TestAverage_Category(t *testing.T) {
	avg, err := Average(context.Background(), testReader(), MetricBrier, "Politics")
	require.NoError(t, err)
	assert.InDelta(t, 0.20, avg, delta)

	avg, err = Average(context.Background(), testReader(), MetricLogN, "Sports")
	require.NoError(t, err)
	assert.InDelta(t, -1.0, avg, delta)
}

func TestAverage_CaseSensitive(t *testing.T) {
	_, err := Average(context.Background(), testReader(), MetricBrier, "politics")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestAverage_Empty(t *testing.T) {
	_, err := Average(context.Background(), &memReader{}, MetricLog2, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Average(context.Background(), testReader(), MetricBrier, "Weather")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Contains(t, err.Error(), "Weather")
}

func TestAverage_InvalidInput(t *testing.T) {
	_, err := Average(context.Background(), testReader(), Metric("rmse"), "")
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = Average(context.Background(), nil, MetricBrier, "")
	assert.Error(t, err)
}

func TestAverage_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Average(context.Background(), &memReader{err: boom}, MetricBrier, "")
	assert.ErrorIs(t, err, boom)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(context.Background(), testReader(), "Politics")
	require.NoError(t, err)
	assert.Equal(t, "Politics", s.Category)
	assert.Equal(t, 2, s.Forecasts)
	assert.InDelta(t, 0.20, s.Brier, delta)
	assert.InDelta(t, -0.7, s.LogN, delta)
	assert.InDelta(t, -1.0, s.Log2, delta)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(context.Background(), testReader(), "Weather")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
