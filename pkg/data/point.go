package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	insertPointSQL = `INSERT INTO forecast_points (
			forecast_id,
			estimate,
			upper_ci,
			lower_ci,
			reason,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	selectPointsSQL = `SELECT
			id,
			forecast_id,
			estimate,
			upper_ci,
			lower_ci,
			reason,
			created_at
		FROM forecast_points
		WHERE forecast_id = ?
		ORDER BY created_at, id
	`

	selectPointEstimatesSQL = `SELECT estimate FROM forecast_points WHERE forecast_id = ?`

	selectPointForecastSQL = `SELECT forecast_id FROM forecast_points WHERE id = ?`

	selectPointBoundsSQL = `SELECT forecast_id, upper_ci, lower_ci FROM forecast_points WHERE id = ?`

	updatePointSQL = `UPDATE forecast_points SET estimate = ?, upper_ci = ?, lower_ci = ? WHERE id = ?`

	deletePointSQL = `DELETE FROM forecast_points WHERE id = ?`
)

// ErrInvalidPoint is returned when an estimate or its bounds are out of range.
var ErrInvalidPoint = errors.New("invalid forecast point")

// Point is one point-in-time probability estimate for a forecast.
type Point struct {
	ID         int64     `json:"id" yaml:"id"`
	ForecastID int64     `json:"forecast_id" yaml:"forecastID"`
	Estimate   float64   `json:"estimate" yaml:"estimate"`
	UpperCI    *float64  `json:"upper_ci,omitempty" yaml:"upperCI,omitempty"`
	LowerCI    *float64  `json:"lower_ci,omitempty" yaml:"lowerCI,omitempty"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"createdAt"`
}

func validateEstimate(estimate float64, upper, lower *float64) error {
	for name, v := range map[string]*float64{"estimate": &estimate, "upper": upper, "lower": lower} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || *v < 0 || *v > 1 {
			return fmt.Errorf("%w: %s must be within [0,1]: %v", ErrInvalidPoint, name, *v)
		}
	}
	if upper != nil && *upper < estimate {
		return fmt.Errorf("%w: upper bound %v below estimate %v", ErrInvalidPoint, *upper, estimate)
	}
	if lower != nil && *lower > estimate {
		return fmt.Errorf("%w: lower bound %v above estimate %v", ErrInvalidPoint, *lower, estimate)
	}
	return nil
}

// AddPoint records a new estimate for an open forecast and returns its ID.
func (s *Store) AddPoint(ctx context.Context, p *Point) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("%w: point required", ErrInvalidPoint)
	}
	if err := validateEstimate(p.Estimate, p.UpperCI, p.LowerCI); err != nil {
		return 0, err
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireOpen(ctx, tx, p.ForecastID); err != nil {
			return err
		}
		var err error
		id, err = s.insertPoint(ctx, tx, p)
		return err
	})
	return id, err
}

func (s *Store) insertPoint(ctx context.Context, q querier, p *Point) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var id int64
	if err := q.QueryRowContext(ctx, s.rebind(insertPointSQL),
		p.ForecastID,
		p.Estimate,
		nullFloat(p.UpperCI),
		nullFloat(p.LowerCI),
		strings.TrimSpace(p.Reason),
		toUnix(p.CreatedAt),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert point for forecast %d: %w", p.ForecastID, err)
	}

	p.ID = id
	return id, nil
}

// GetPoints returns all points of a forecast ordered by time.
func (s *Store) GetPoints(ctx context.Context, forecastID int64) ([]*Point, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectPointsSQL), forecastID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute point select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Point, 0)
	for rows.Next() {
		var (
			p            Point
			upper, lower sql.NullFloat64
			created      int64
		)
		if err := rows.Scan(&p.ID, &p.ForecastID, &p.Estimate, &upper, &lower, &p.Reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan point row: %w", err)
		}
		p.UpperCI = floatPtr(upper)
		p.LowerCI = floatPtr(lower)
		p.CreatedAt = fromUnix(created)
		list = append(list, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate point rows: %w", err)
	}

	return list, nil
}

// PointEstimates returns the estimates of a forecast in no particular order.
func (s *Store) PointEstimates(ctx context.Context, forecastID int64) ([]float64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.pointEstimates(ctx, s.db, forecastID)
}

func (s *Store) pointEstimates(ctx context.Context, q querier, forecastID int64) ([]float64, error) {
	rows, err := q.QueryContext(ctx, s.rebind(selectPointEstimatesSQL), forecastID)
	if err != nil {
		return nil, fmt.Errorf("failed to select estimates for forecast %d: %w", forecastID, err)
	}
	defer rows.Close()

	list := make([]float64, 0)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		list = append(list, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate estimates: %w", err)
	}

	return list, nil
}

// UpdatePoint corrects the estimate of an existing point. A nil bound keeps
// the stored one and the estimate is validated against the resulting bounds.
func (s *Store) UpdatePoint(ctx context.Context, id int64, estimate float64, upper, lower *float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := validateEstimate(estimate, upper, lower); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			forecastID int64
			curUpper   sql.NullFloat64
			curLower   sql.NullFloat64
		)
		if err := tx.QueryRowContext(ctx, s.rebind(selectPointBoundsSQL), id).Scan(&forecastID, &curUpper, &curLower); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: point %d", ErrNotFound, id)
			}
			return fmt.Errorf("failed to select point %d: %w", id, err)
		}
		if err := s.requireOpen(ctx, tx, forecastID); err != nil {
			return err
		}

		if upper == nil {
			upper = floatPtr(curUpper)
		}
		if lower == nil {
			lower = floatPtr(curLower)
		}
		if err := validateEstimate(estimate, upper, lower); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.rebind(updatePointSQL),
			estimate, nullFloat(upper), nullFloat(lower), id); err != nil {
			return fmt.Errorf("failed to update point %d: %w", id, err)
		}
		return nil
	})
}

// DeletePoint removes a single point from an open forecast.
func (s *Store) DeletePoint(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireOpenPoint(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(deletePointSQL), id); err != nil {
			return fmt.Errorf("failed to delete point %d: %w", id, err)
		}
		return nil
	})
}

func (s *Store) requireOpenPoint(ctx context.Context, q querier, id int64) error {
	var forecastID int64
	if err := q.QueryRowContext(ctx, s.rebind(selectPointForecastSQL), id).Scan(&forecastID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: point %d", ErrNotFound, id)
		}
		return fmt.Errorf("failed to select point %d: %w", id, err)
	}
	return s.requireOpen(ctx, q, forecastID)
}
