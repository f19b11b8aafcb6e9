package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/forecast/pkg/score"
	"github.com/urfave/cli/v2"
)

var (
	outcomeFlag = &cli.StringFlag{
		Name:     "outcome",
		Aliases:  []string{"o"},
		Usage:    "Whether the event happened [yes, no, 1, 0]",
		Required: true,
	}

	dateFlag = &cli.StringFlag{
		Name:  "date",
		Usage: "Date (YYYY-MM-DD, default: today)",
	}

	resolveCmd = &cli.Command{
		Name:   "resolve",
		Usage:  "Record the outcome of a forecast and score its estimates",
		Action: cmdResolve,
		Flags: []cli.Flag{
			forecastIDFlag,
			outcomeFlag,
			dateFlag,
		},
	}
)

func cmdResolve(c *cli.Context) error {
	outcome, err := score.ParseOutcome(c.String(outcomeFlag.Name))
	if err != nil {
		return err
	}

	resolvedAt, err := parseDate(c.String(dateFlag.Name))
	if err != nil {
		return err
	}

	s, err := getStore(c)
	if err != nil {
		return err
	}

	id := c.Int64(forecastIDFlag.Name)
	r, err := s.ResolveForecast(c.Context, id, outcome, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolving forecast %d: %w", id, err)
	}
	slog.Info("forecast resolved", "id", id, "outcome", outcome)

	return encode(c, r)
}
