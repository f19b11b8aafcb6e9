package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/forecast/pkg/score"
)

const (
	selectCategorySummariesSQL = `SELECT
			f.category,
			COUNT(*),
			AVG(r.brier_score),
			AVG(r.logn_score),
			AVG(r.log2_score)
		FROM resolutions r
		JOIN forecasts f ON f.id = r.forecast_id
		GROUP BY f.category
		ORDER BY f.category
	`

	selectResolvedPointsSQL = `SELECT
			p.estimate,
			r.outcome
		FROM forecast_points p
		JOIN resolutions r ON r.forecast_id = p.forecast_id
		JOIN forecasts f ON f.id = p.forecast_id
	`
)

var scoreColumns = map[score.Metric]string{
	score.MetricBrier: "brier_score",
	score.MetricLogN:  "logn_score",
	score.MetricLog2:  "log2_score",
}

// ResolutionScores returns the cached metric of every resolved forecast whose
// category contains category. An empty category returns all of them.
func (s *Store) ResolutionScores(ctx context.Context, metric score.Metric, category string) ([]float64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	col, ok := scoreColumns[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", score.ErrInvalidMetric, metric)
	}

	query := fmt.Sprintf(`SELECT r.%s FROM resolutions r JOIN forecasts f ON f.id = r.forecast_id`, col)
	args := make([]any, 0, 1)
	if category != "" {
		query += " WHERE " + s.containsExpr("f.category")
		args = append(args, category)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s scores: %w", metric, err)
	}
	defer rows.Close()

	list := make([]float64, 0)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s score: %w", metric, err)
		}
		list = append(list, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s scores: %w", metric, err)
	}

	return list, nil
}

// CategorySummaries returns score averages per distinct category of resolved forecasts.
func (s *Store) CategorySummaries(ctx context.Context) ([]*score.Summary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectCategorySummariesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to select category summaries: %w", err)
	}
	defer rows.Close()

	list := make([]*score.Summary, 0)
	for rows.Next() {
		var c score.Summary
		if err := rows.Scan(&c.Category, &c.Forecasts, &c.Brier, &c.LogN, &c.Log2); err != nil {
			return nil, fmt.Errorf("failed to scan category summary: %w", err)
		}
		list = append(list, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category summaries: %w", err)
	}

	return list, nil
}

// ResolvedPoints returns every estimate of resolved forecasts in category
// paired with the forecast outcome. A non-zero since drops points made before it.
func (s *Store) ResolvedPoints(ctx context.Context, category string, since time.Time) ([]score.ResolvedPoint, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if category != "" {
		where = append(where, s.containsExpr("f.category"))
		args = append(args, category)
	}
	if !since.IsZero() {
		where = append(where, "p.created_at >= ?")
		args = append(args, toUnix(since))
	}

	var b strings.Builder
	b.WriteString(selectResolvedPointsSQL)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select resolved points: %w", err)
	}
	defer rows.Close()

	list := make([]score.ResolvedPoint, 0)
	for rows.Next() {
		var (
			p       score.ResolvedPoint
			outcome int
		)
		if err := rows.Scan(&p.Estimate, &outcome); err != nil {
			return nil, fmt.Errorf("failed to scan resolved point: %w", err)
		}
		p.Outcome = score.Outcome(outcome)
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resolved points: %w", err)
	}

	return list, nil
}
