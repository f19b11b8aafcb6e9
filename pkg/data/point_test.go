package data

import (
	"context"
	"testing"
	"time"

	"github.com/mchmarny/forecast/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 {
	return &v
}

func TestAddAndGetPoints(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := addTestForecast(t, s, "Tech")

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.AddPoint(ctx, &Point{
		ForecastID: id,
		Estimate:   0.4,
		UpperCI:    ptr(0.6),
		LowerCI:    ptr(0.2),
		Reason:     "base rate",
		CreatedAt:  first.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = s.AddPoint(ctx, &Point{ForecastID: id, Estimate: 0.3, CreatedAt: first})
	require.NoError(t, err)

	points, err := s.GetPoints(ctx, id)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, 0.3, points[0].Estimate)
	assert.Nil(t, points[0].UpperCI)
	assert.Nil(t, points[0].LowerCI)

	assert.Equal(t, 0.4, points[1].Estimate)
	require.NotNil(t, points[1].UpperCI)
	assert.Equal(t, 0.6, *points[1].UpperCI)
	assert.Equal(t, 0.2, *points[1].LowerCI)
	assert.Equal(t, "base rate", points[1].Reason)

	estimates, err := s.PointEstimates(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []float64{0.3, 0.4}, estimates)
}

func TestAddPoint_Invalid(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := addTestForecast(t, s, "Tech")

	tests := []struct {
		name  string
		point *Point
	}{
		{"nil", nil},
		{"above one", &Point{ForecastID: id, Estimate: 1.1}},
		{"negative", &Point{ForecastID: id, Estimate: -0.2}},
		{"upper below estimate", &Point{ForecastID: id, Estimate: 0.5, UpperCI: ptr(0.4)}},
		{"lower above estimate", &Point{ForecastID: id, Estimate: 0.5, LowerCI: ptr(0.6)}},
		{"upper out of range", &Point{ForecastID: id, Estimate: 0.5, UpperCI: ptr(1.5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddPoint(ctx, tt.point)
			assert.ErrorIs(t, err, ErrInvalidPoint)
		})
	}
}

func TestAddPoint_MissingForecast(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.AddPoint(context.Background(), &Point{ForecastID: 7, Estimate: 0.5})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePoint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := addTestForecast(t, s, "Tech", 0.5)

	points, err := s.GetPoints(ctx, id)
	require.NoError(t, err)
	require.Len(t, points, 1)

	require.NoError(t, s.UpdatePoint(ctx, points[0].ID, 0.55, ptr(0.7), ptr(0.4)))

	points, err = s.GetPoints(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.55, points[0].Estimate)
	assert.Equal(t, 0.7, *points[0].UpperCI)
	assert.Equal(t, 0.4, *points[0].LowerCI)

	assert.ErrorIs(t, s.UpdatePoint(ctx, points[0].ID, 2, nil, nil), ErrInvalidPoint)
	assert.ErrorIs(t, s.UpdatePoint(ctx, 999, 0.5, nil, nil), ErrNotFound)
}

func TestUpdatePoint_KeepsBounds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := addTestForecast(t, s, "Tech")

	pid, err := s.AddPoint(ctx, &Point{ForecastID: id, Estimate: 0.6, UpperCI: ptr(0.8), LowerCI: ptr(0.4)})
	require.NoError(t, err)

	require.NoError(t, s.UpdatePoint(ctx, pid, 0.65, nil, nil))

	points, err := s.GetPoints(ctx, id)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 0.65, points[0].Estimate)
	require.NotNil(t, points[0].UpperCI)
	require.NotNil(t, points[0].LowerCI)
	assert.Equal(t, 0.8, *points[0].UpperCI)
	assert.Equal(t, 0.4, *points[0].LowerCI)

	// only the given bound changes
	require.NoError(t, s.UpdatePoint(ctx, pid, 0.65, ptr(0.9), nil))
	points, err = s.GetPoints(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.9, *points[0].UpperCI)
	assert.Equal(t, 0.4, *points[0].LowerCI)

	// new estimate is checked against the stored bounds
	assert.ErrorIs(t, s.UpdatePoint(ctx, pid, 0.95, nil, nil), ErrInvalidPoint)
	assert.ErrorIs(t, s.UpdatePoint(ctx, pid, 0.3, nil, nil), ErrInvalidPoint)

	points, err = s.GetPoints(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.65, points[0].Estimate)
}

func TestDeletePoint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := addTestForecast(t, s, "Tech", 0.5, 0.6)

	points, err := s.GetPoints(ctx, id)
	require.NoError(t, err)
	require.NoError(t, s.DeletePoint(ctx, points[0].ID))

	points, err = s.GetPoints(ctx, id)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	assert.ErrorIs(t, s.DeletePoint(ctx, 999), ErrNotFound)
}

func TestPoints_LockedAfterResolution(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := addTestForecast(t, s, "Tech", 0.5)

	points, err := s.GetPoints(ctx, id)
	require.NoError(t, err)

	_, err = s.ResolveForecast(ctx, id, score.Yes, time.Now())
	require.NoError(t, err)

	_, err = s.AddPoint(ctx, &Point{ForecastID: id, Estimate: 0.9})
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.ErrorIs(t, s.UpdatePoint(ctx, points[0].ID, 0.9, nil, nil), ErrAlreadyResolved)
	assert.ErrorIs(t, s.DeletePoint(ctx, points[0].ID), ErrAlreadyResolved)
}
