package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/forecast/pkg/score"
)

// ImportPoint is a point of an imported forecast.
type ImportPoint struct {
	Estimate  float64   `json:"estimate" yaml:"estimate"`
	UpperCI   *float64  `json:"upper_ci,omitempty" yaml:"upper,omitempty"`
	LowerCI   *float64  `json:"lower_ci,omitempty" yaml:"lower,omitempty"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"date"`
}

// ImportResolution is the optional outcome of an imported forecast.
type ImportResolution struct {
	Outcome    score.Outcome `json:"outcome" yaml:"outcome"`
	ResolvedAt time.Time     `json:"resolved_at" yaml:"date"`
}

// ImportForecast is a forecast with its history as read from an import file.
type ImportForecast struct {
	Question           string            `json:"question" yaml:"question"`
	ShortQuestion      string            `json:"short_question,omitempty" yaml:"short,omitempty"`
	Category           string            `json:"category,omitempty" yaml:"category,omitempty"`
	ResolutionCriteria string            `json:"resolution_criteria,omitempty" yaml:"criteria,omitempty"`
	CreatedAt          time.Time         `json:"created_at" yaml:"date"`
	Points             []*ImportPoint    `json:"points,omitempty" yaml:"points,omitempty"`
	Resolution         *ImportResolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// Import saves each forecast with its points and, when present, its
// resolution. Every forecast is written in its own transaction; the first
// failure stops the import and returns the number of forecasts saved.
func (s *Store) Import(ctx context.Context, list []*ImportForecast) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	for i, in := range list {
		if err := s.importForecast(ctx, in); err != nil {
			return i, fmt.Errorf("importing forecast[%d]: %w", i, err)
		}
	}

	return len(list), nil
}

func (s *Store) importForecast(ctx context.Context, in *ImportForecast) error {
	if in == nil {
		return fmt.Errorf("%w: forecast required", ErrInvalidForecast)
	}

	f := &Forecast{
		Question:           in.Question,
		ShortQuestion:      in.ShortQuestion,
		Category:           in.Category,
		ResolutionCriteria: in.ResolutionCriteria,
		CreatedAt:          in.CreatedAt,
	}
	if err := f.validate(); err != nil {
		return err
	}

	for i, p := range in.Points {
		if p == nil {
			return fmt.Errorf("%w: point[%d] is empty", ErrInvalidPoint, i)
		}
		if err := validateEstimate(p.Estimate, p.UpperCI, p.LowerCI); err != nil {
			return fmt.Errorf("point[%d]: %w", i, err)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := s.insertForecast(ctx, tx, f)
		if err != nil {
			return err
		}

		for _, p := range in.Points {
			created := p.CreatedAt
			if created.IsZero() {
				created = f.CreatedAt
			}
			if _, err := s.insertPoint(ctx, tx, &Point{
				ForecastID: id,
				Estimate:   p.Estimate,
				UpperCI:    p.UpperCI,
				LowerCI:    p.LowerCI,
				Reason:     p.Reason,
				CreatedAt:  created,
			}); err != nil {
				return err
			}
		}

		if in.Resolution != nil {
			if _, err := s.resolve(ctx, tx, id, in.Resolution.Outcome, in.Resolution.ResolvedAt); err != nil {
				return err
			}
		}

		slog.Debug("forecast imported", "id", id, "points", len(in.Points), "resolved", in.Resolution != nil)
		return nil
	})
}
