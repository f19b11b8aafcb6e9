package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/mchmarny/forecast/pkg/score"
	"github.com/urfave/cli/v2"
)

var (
	metricFlag = &cli.StringFlag{
		Name:  "metric",
		Usage: fmt.Sprintf("Scoring rule [%s]", strings.Join(metricNames(), ", ")),
		Value: string(score.MetricBrier),
	}

	bucketsFlag = &cli.IntFlag{
		Name:  "buckets",
		Usage: "Number of equal-width probability buckets",
		Value: score.DefaultBuckets,
	}

	sinceFlag = &cli.StringFlag{
		Name:  "since",
		Usage: "Only include estimates made on or after this date (YYYY-MM-DD)",
	}

	scoreCmd = &cli.Command{
		Name:            "score",
		Usage:           "Report scores of resolved forecasts",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:   "average",
				Usage:  "Average score of resolved forecasts",
				Action: cmdAverageScore,
				Flags: []cli.Flag{
					metricFlag,
					categoryFlag,
				},
			},
			{
				Name:   "summary",
				Usage:  "Average of every scoring rule",
				Action: cmdScoreSummary,
				Flags:  []cli.Flag{categoryFlag},
			},
			{
				Name:   "categories",
				Usage:  "Score summary per category",
				Action: cmdCategoryScores,
			},
			{
				Name:   "calibration",
				Usage:  "Compare estimates with observed outcome rates",
				Action: cmdCalibration,
				Flags: []cli.Flag{
					categoryFlag,
					bucketsFlag,
					sinceFlag,
				},
			},
		},
	}
)

func metricNames() []string {
	list := make([]string, 0, len(score.Metrics))
	for _, m := range score.Metrics {
		list = append(list, string(m))
	}
	return list
}

// AverageResult is the average of one scoring rule.
type AverageResult struct {
	Metric   score.Metric `json:"metric" yaml:"metric"`
	Category string       `json:"category,omitempty" yaml:"category,omitempty"`
	Average  float64      `json:"average" yaml:"average"`
}

func averageScore(ctx context.Context, s *data.Store, metric, category string) (*AverageResult, error) {
	m, err := score.ParseMetric(metric)
	if err != nil {
		return nil, err
	}
	avg, err := score.Average(ctx, s, m, category)
	if err != nil {
		return nil, err
	}
	return &AverageResult{Metric: m, Category: category, Average: avg}, nil
}

// calibration buckets resolved estimates; an empty since includes all of them.
func calibration(ctx context.Context, s *data.Store, category, since string, buckets int) ([]*score.Bucket, error) {
	var from time.Time
	if since != "" {
		t, err := parseDate(since)
		if err != nil {
			return nil, err
		}
		from = t
	}
	points, err := s.ResolvedPoints(ctx, category, from)
	if err != nil {
		return nil, err
	}
	return score.Calibrate(points, buckets)
}

func cmdAverageScore(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	res, err := averageScore(c.Context, s, c.String(metricFlag.Name), c.String(categoryFlag.Name))
	if err != nil {
		return fmt.Errorf("computing average score: %w", err)
	}

	return encode(c, res)
}

func cmdScoreSummary(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	sum, err := score.Summarize(c.Context, s, c.String(categoryFlag.Name))
	if err != nil {
		return fmt.Errorf("summarizing scores: %w", err)
	}

	return encode(c, sum)
}

func cmdCategoryScores(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	list, err := s.CategorySummaries(c.Context)
	if err != nil {
		return fmt.Errorf("summarizing categories: %w", err)
	}

	return encode(c, list)
}

func cmdCalibration(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	list, err := calibration(c.Context, s, c.String(categoryFlag.Name), c.String(sinceFlag.Name), c.Int(bucketsFlag.Name))
	if err != nil {
		return fmt.Errorf("computing calibration: %w", err)
	}

	return encode(c, list)
}
