package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/forecast/pkg/score"
)

const (
	insertForecastSQL = `INSERT INTO forecasts (
			question,
			short_question,
			category,
			resolution_criteria,
			created_at
		)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	selectForecastSQL = `SELECT
			id,
			question,
			short_question,
			category,
			resolution_criteria,
			created_at
		FROM forecasts
		WHERE id = ?
	`

	listForecastsSQL = `SELECT
			f.id,
			f.question,
			f.short_question,
			f.category,
			f.resolution_criteria,
			f.created_at,
			(SELECT COUNT(*) FROM forecast_points p WHERE p.forecast_id = f.id) AS points,
			(SELECT p.estimate FROM forecast_points p WHERE p.forecast_id = f.id
				ORDER BY p.created_at DESC, p.id DESC LIMIT 1) AS latest,
			r.outcome
		FROM forecasts f
		LEFT JOIN resolutions r ON r.forecast_id = f.id
	`

	forecastExistsSQL = `SELECT COUNT(*) FROM forecasts WHERE id = ?`

	deleteForecastSQL = `DELETE FROM forecasts WHERE id = ?`
)

// ErrInvalidForecast is returned when a forecast is missing required fields.
var ErrInvalidForecast = errors.New("invalid forecast")

// ForecastStatus filters forecasts by lifecycle state.
type ForecastStatus string

const (
	StatusAll      ForecastStatus = "all"
	StatusOpen     ForecastStatus = "open"
	StatusResolved ForecastStatus = "resolved"
	StatusStale    ForecastStatus = "stale"
)

// StaleAfter is how long an open forecast can go without a new point before
// it is considered stale.
const StaleAfter = 30 * 24 * time.Hour

// ParseStatus converts a status name into a ForecastStatus; empty means all.
func ParseStatus(v string) (ForecastStatus, error) {
	switch s := ForecastStatus(strings.ToLower(strings.TrimSpace(v))); s {
	case "":
		return StatusAll, nil
	case StatusAll, StatusOpen, StatusResolved, StatusStale:
		return s, nil
	default:
		return "", fmt.Errorf("invalid status %q (valid: all, open, resolved, stale)", v)
	}
}

// Forecast is a question under prediction.
type Forecast struct {
	ID                 int64     `json:"id" yaml:"id"`
	Question           string    `json:"question" yaml:"question"`
	ShortQuestion      string    `json:"short_question,omitempty" yaml:"shortQuestion,omitempty"`
	Category           string    `json:"category,omitempty" yaml:"category,omitempty"`
	ResolutionCriteria string    `json:"resolution_criteria,omitempty" yaml:"resolutionCriteria,omitempty"`
	CreatedAt          time.Time `json:"created_at" yaml:"createdAt"`
}

func (f *Forecast) validate() error {
	if f == nil {
		return fmt.Errorf("%w: forecast required", ErrInvalidForecast)
	}
	if strings.TrimSpace(f.Question) == "" {
		return fmt.Errorf("%w: question required", ErrInvalidForecast)
	}
	return nil
}

// ForecastListItem is a forecast with a summary of its state.
type ForecastListItem struct {
	Forecast `yaml:",inline"`

	Points         int            `json:"points" yaml:"points"`
	LatestEstimate *float64       `json:"latest_estimate,omitempty" yaml:"latestEstimate,omitempty"`
	Outcome        *score.Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// Resolved reports whether the forecast has an outcome.
func (f *ForecastListItem) Resolved() bool {
	return f.Outcome != nil
}

// ForecastDetail is a forecast with all of its points and its resolution.
type ForecastDetail struct {
	Forecast   *Forecast   `json:"forecast" yaml:"forecast"`
	Points     []*Point    `json:"points" yaml:"points"`
	Resolution *Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// AddForecast saves a new forecast and returns its ID.
func (s *Store) AddForecast(ctx context.Context, f *Forecast) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if err := f.validate(); err != nil {
		return 0, err
	}
	return s.insertForecast(ctx, s.db, f)
}

func (s *Store) insertForecast(ctx context.Context, q querier, f *Forecast) (int64, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	var id int64
	if err := q.QueryRowContext(ctx, s.rebind(insertForecastSQL),
		strings.TrimSpace(f.Question),
		strings.TrimSpace(f.ShortQuestion),
		strings.TrimSpace(f.Category),
		strings.TrimSpace(f.ResolutionCriteria),
		toUnix(f.CreatedAt),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert forecast: %w", err)
	}

	f.ID = id
	return id, nil
}

// GetForecast returns the forecast with id or ErrNotFound.
func (s *Store) GetForecast(ctx context.Context, id int64) (*Forecast, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.getForecast(ctx, s.db, id)
}

func (s *Store) getForecast(ctx context.Context, q querier, id int64) (*Forecast, error) {
	var (
		f       Forecast
		created int64
	)
	err := q.QueryRowContext(ctx, s.rebind(selectForecastSQL), id).Scan(
		&f.ID, &f.Question, &f.ShortQuestion, &f.Category, &f.ResolutionCriteria, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: forecast %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan forecast %d: %w", id, err)
	}
	f.CreatedAt = fromUnix(created)
	return &f, nil
}

func (s *Store) requireForecast(ctx context.Context, q querier, id int64) error {
	var n int
	if err := q.QueryRowContext(ctx, s.rebind(forecastExistsSQL), id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check forecast %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: forecast %d", ErrNotFound, id)
	}
	return nil
}

// GetForecastDetail returns the forecast with its points and resolution.
func (s *Store) GetForecastDetail(ctx context.Context, id int64) (*ForecastDetail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := s.GetForecast(ctx, id)
	if err != nil {
		return nil, err
	}

	points, err := s.GetPoints(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &ForecastDetail{Forecast: f, Points: points}

	r, err := s.GetResolution(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	d.Resolution = r

	return d, nil
}

// ListForecasts returns forecasts whose category contains category,
// filtered by status, newest first. Stale forecasts are open ones without
// a point in the last StaleAfter.
func (s *Store) ListForecasts(ctx context.Context, category string, status ForecastStatus) ([]*ForecastListItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	where := make([]string, 0, 3)
	args := make([]any, 0, 2)
	if category != "" {
		where = append(where, s.containsExpr("f.category"))
		args = append(args, category)
	}
	switch status {
	case StatusOpen:
		where = append(where, "r.id IS NULL")
	case StatusResolved:
		where = append(where, "r.id IS NOT NULL")
	case StatusStale:
		where = append(where, "r.id IS NULL",
			"NOT EXISTS (SELECT 1 FROM forecast_points p WHERE p.forecast_id = f.id AND p.created_at >= ?)")
		args = append(args, toUnix(time.Now().Add(-StaleAfter)))
	}

	query := listForecastsSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.created_at DESC, f.id DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute forecast select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*ForecastListItem, 0)
	for rows.Next() {
		var (
			item    ForecastListItem
			created int64
			latest  sql.NullFloat64
			outcome sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.Question, &item.ShortQuestion, &item.Category,
			&item.ResolutionCriteria, &created, &item.Points, &latest, &outcome); err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}
		item.CreatedAt = fromUnix(created)
		item.LatestEstimate = floatPtr(latest)
		if outcome.Valid {
			o := score.Outcome(outcome.Int64)
			item.Outcome = &o
		}
		list = append(list, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate forecast rows: %w", err)
	}

	return list, nil
}

// DeleteForecast removes the forecast together with its points and resolution.
func (s *Store) DeleteForecast(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireForecast(ctx, tx, id); err != nil {
			return err
		}
		for _, q := range []string{
			`DELETE FROM post_forecasts WHERE forecast_id = ?`,
			`DELETE FROM resolutions WHERE forecast_id = ?`,
			`DELETE FROM forecast_points WHERE forecast_id = ?`,
			deleteForecastSQL,
		} {
			if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
				return fmt.Errorf("failed to delete forecast %d: %w", id, err)
			}
		}
		return nil
	})
}
