package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/forecast/pkg/score"
)

const (
	insertResolutionSQL = `INSERT INTO resolutions (
			forecast_id,
			outcome,
			resolved_at,
			brier_score,
			logn_score,
			log2_score
		)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	selectResolutionSQL = `SELECT
			id,
			forecast_id,
			outcome,
			resolved_at,
			brier_score,
			logn_score,
			log2_score
		FROM resolutions
		WHERE forecast_id = ?
	`

	resolutionExistsSQL = `SELECT COUNT(*) FROM resolutions WHERE forecast_id = ?`
)

// Resolution is the outcome of a forecast with the scores cached at resolution time.
type Resolution struct {
	ID         int64         `json:"id" yaml:"id"`
	ForecastID int64         `json:"forecast_id" yaml:"forecastID"`
	Outcome    score.Outcome `json:"outcome" yaml:"outcome"`
	ResolvedAt time.Time     `json:"resolved_at" yaml:"resolvedAt"`

	score.Scores `yaml:",inline"`
}

// ResolveForecast records the outcome of a forecast. All points of the
// forecast are scored against the outcome in the same transaction that
// writes the resolution, so a concurrent point insert can not be missed.
func (s *Store) ResolveForecast(ctx context.Context, forecastID int64, outcome score.Outcome, resolvedAt time.Time) (*Resolution, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !outcome.Valid() {
		return nil, fmt.Errorf("%w: %d", score.ErrInvalidOutcome, outcome)
	}

	var r *Resolution
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireOpen(ctx, tx, forecastID); err != nil {
			return err
		}
		var err error
		r, err = s.resolve(ctx, tx, forecastID, outcome, resolvedAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("forecast resolved",
		"forecast", forecastID,
		"outcome", outcome,
		"brier", r.Brier,
		"logn", r.LogN,
		"log2", r.Log2,
	)
	return r, nil
}

func (s *Store) resolve(ctx context.Context, q querier, forecastID int64, outcome score.Outcome, resolvedAt time.Time) (*Resolution, error) {
	points, err := s.pointEstimates(ctx, q, forecastID)
	if err != nil {
		return nil, err
	}

	scores, err := score.Forecast(points, outcome)
	if err != nil {
		return nil, fmt.Errorf("scoring forecast %d: %w", forecastID, err)
	}

	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}

	r := &Resolution{
		ForecastID: forecastID,
		Outcome:    outcome,
		ResolvedAt: fromUnix(toUnix(resolvedAt)),
		Scores:     *scores,
	}

	if err := q.QueryRowContext(ctx, s.rebind(insertResolutionSQL),
		forecastID, int(outcome), toUnix(resolvedAt), r.Brier, r.LogN, r.Log2,
	).Scan(&r.ID); err != nil {
		return nil, fmt.Errorf("failed to insert resolution for forecast %d: %w", forecastID, err)
	}

	return r, nil
}

// GetResolution returns the resolution of a forecast or ErrNotFound.
func (s *Store) GetResolution(ctx context.Context, forecastID int64) (*Resolution, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		r        Resolution
		outcome  int
		resolved int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(selectResolutionSQL), forecastID).Scan(
		&r.ID, &r.ForecastID, &outcome, &resolved, &r.Brier, &r.LogN, &r.Log2)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: resolution for forecast %d", ErrNotFound, forecastID)
		}
		return nil, fmt.Errorf("failed to scan resolution: %w", err)
	}

	r.Outcome = score.Outcome(outcome)
	r.ResolvedAt = fromUnix(resolved)
	return &r, nil
}

// requireOpen fails unless the forecast exists and has no resolution.
func (s *Store) requireOpen(ctx context.Context, q querier, forecastID int64) error {
	if err := s.requireForecast(ctx, q, forecastID); err != nil {
		return err
	}

	var n int
	if err := q.QueryRowContext(ctx, s.rebind(resolutionExistsSQL), forecastID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check resolution of forecast %d: %w", forecastID, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: forecast %d", ErrAlreadyResolved, forecastID)
	}
	return nil
}
