package data

import (
	"context"
	"testing"
	"time"

	"github.com/mchmarny/forecast/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImport(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	n, err := s.Import(ctx, []*ImportForecast{
		{
			Question:  "Will the launch happen in May?",
			Category:  "Space",
			CreatedAt: day,
			Points: []*ImportPoint{
				{Estimate: 0.6, CreatedAt: day},
				{Estimate: 0.7, CreatedAt: day.Add(48 * time.Hour)},
				{Estimate: 0.8},
			},
			Resolution: &ImportResolution{Outcome: score.Yes, ResolvedAt: day.Add(30 * 24 * time.Hour)},
		},
		{
			Question: "Will it rain tomorrow?",
			Category: "Weather",
			Points:   []*ImportPoint{{Estimate: 0.3}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resolved, err := s.ListForecasts(ctx, "Space", StatusResolved)
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	r, err := s.GetResolution(ctx, resolved[0].ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0967, r.Brier, 1e-4)

	open, err := s.ListForecasts(ctx, "Weather", StatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestImport_StopsOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n, err := s.Import(ctx, []*ImportForecast{
		{Question: "Valid?", Points: []*ImportPoint{{Estimate: 0.5}}},
		{Question: "Certain?", Points: []*ImportPoint{{Estimate: 1}}, Resolution: &ImportResolution{Outcome: score.No}},
		{Question: "Never reached?"},
	})
	assert.ErrorIs(t, err, score.ErrDomainRange)
	assert.Equal(t, 1, n)

	// the failing forecast is rolled back as a whole
	list, err := s.ListForecasts(ctx, "", StatusAll)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Valid?", list[0].Question)
}

func TestImport_Invalid(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Import(ctx, []*ImportForecast{{Question: ""}})
	assert.ErrorIs(t, err, ErrInvalidForecast)

	_, err = s.Import(ctx, []*ImportForecast{{Question: "Q", Points: []*ImportPoint{{Estimate: 2}}}})
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = s.Import(ctx, []*ImportForecast{nil})
	assert.ErrorIs(t, err, ErrInvalidForecast)
}
