package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	pointIDFlag = &cli.Int64Flag{
		Name:     "point",
		Usage:    "Point ID",
		Required: true,
	}

	estimateFlag = &cli.Float64Flag{
		Name:     "estimate",
		Aliases:  []string{"p"},
		Usage:    "Probability the event happens [0-1]",
		Required: true,
	}

	upperFlag = &cli.Float64Flag{
		Name:  "upper",
		Usage: "Upper bound of the confidence interval [0-1]",
	}

	lowerFlag = &cli.Float64Flag{
		Name:  "lower",
		Usage: "Lower bound of the confidence interval [0-1]",
	}

	reasonFlag = &cli.StringFlag{
		Name:  "reason",
		Usage: "Why the estimate was made or changed",
	}

	pointCmd = &cli.Command{
		Name:            "point",
		Usage:           "Manage probability estimates of open forecasts",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Add an estimate to a forecast",
				Action: cmdAddPoint,
				Flags: []cli.Flag{
					forecastIDFlag,
					estimateFlag,
					upperFlag,
					lowerFlag,
					reasonFlag,
				},
			},
			{
				Name:   "update",
				Usage:  "Change an estimate, keeping bounds that are not given",
				Action: cmdUpdatePoint,
				Flags: []cli.Flag{
					pointIDFlag,
					estimateFlag,
					upperFlag,
					lowerFlag,
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete an estimate",
				Action: cmdDeletePoint,
				Flags:  []cli.Flag{pointIDFlag},
			},
		},
	}
)

func cmdAddPoint(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	p := &data.Point{
		ForecastID: c.Int64(forecastIDFlag.Name),
		Estimate:   c.Float64(estimateFlag.Name),
		UpperCI:    optionalFloat(c, upperFlag.Name),
		LowerCI:    optionalFloat(c, lowerFlag.Name),
		Reason:     c.String(reasonFlag.Name),
	}

	id, err := s.AddPoint(c.Context, p)
	if err != nil {
		return fmt.Errorf("adding point: %w", err)
	}
	slog.Debug("point added", "forecast", p.ForecastID, "id", id)

	return encode(c, &idResult{ID: id})
}

func cmdUpdatePoint(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	id := c.Int64(pointIDFlag.Name)
	err = s.UpdatePoint(c.Context, id,
		c.Float64(estimateFlag.Name),
		optionalFloat(c, upperFlag.Name),
		optionalFloat(c, lowerFlag.Name),
	)
	if err != nil {
		return fmt.Errorf("updating point: %w", err)
	}
	slog.Info("point updated", "id", id)
	return nil
}

func cmdDeletePoint(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	id := c.Int64(pointIDFlag.Name)
	if err := s.DeletePoint(c.Context, id); err != nil {
		return fmt.Errorf("deleting point: %w", err)
	}
	slog.Info("point deleted", "id", id)
	return nil
}
