package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	forecastIDFlag = &cli.Int64Flag{
		Name:     "id",
		Usage:    "Forecast ID",
		Required: true,
	}

	questionFlag = &cli.StringFlag{
		Name:     "question",
		Aliases:  []string{"q"},
		Usage:    "Full question being forecast",
		Required: true,
	}

	shortQuestionFlag = &cli.StringFlag{
		Name:  "short",
		Usage: "Short form of the question",
	}

	categoryFlag = &cli.StringFlag{
		Name:  "category",
		Usage: "Category (on queries, matches categories containing the value)",
	}

	criteriaFlag = &cli.StringFlag{
		Name:  "criteria",
		Usage: "How the question will be resolved",
	}

	statusFlag = &cli.StringFlag{
		Name:  "status",
		Usage: "Forecast status [all, open, resolved, stale]",
		Value: string(data.StatusAll),
	}

	forecastCmd = &cli.Command{
		Name:            "forecast",
		Usage:           "Manage forecast questions",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Add a new forecast question",
				Action: cmdAddForecast,
				Flags: []cli.Flag{
					questionFlag,
					shortQuestionFlag,
					categoryFlag,
					criteriaFlag,
				},
			},
			{
				Name:   "list",
				Usage:  "List forecasts",
				Action: cmdListForecasts,
				Flags: []cli.Flag{
					categoryFlag,
					statusFlag,
				},
			},
			{
				Name:   "show",
				Usage:  "Show forecast with its points and resolution",
				Action: cmdShowForecast,
				Flags:  []cli.Flag{forecastIDFlag},
			},
			{
				Name:   "delete",
				Usage:  "Delete forecast with all of its points and resolution",
				Action: cmdDeleteForecast,
				Flags:  []cli.Flag{forecastIDFlag},
			},
		},
	}
)

type idResult struct {
	ID int64 `json:"id" yaml:"id"`
}

func cmdAddForecast(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	f := &data.Forecast{
		Question:           c.String(questionFlag.Name),
		ShortQuestion:      c.String(shortQuestionFlag.Name),
		Category:           c.String(categoryFlag.Name),
		ResolutionCriteria: c.String(criteriaFlag.Name),
	}

	id, err := s.AddForecast(c.Context, f)
	if err != nil {
		return fmt.Errorf("adding forecast: %w", err)
	}
	slog.Debug("forecast added", "id", id)

	return encode(c, &idResult{ID: id})
}

func cmdListForecasts(c *cli.Context) error {
	status, err := data.ParseStatus(c.String(statusFlag.Name))
	if err != nil {
		return err
	}

	s, err := getStore(c)
	if err != nil {
		return err
	}

	list, err := s.ListForecasts(c.Context, c.String(categoryFlag.Name), status)
	if err != nil {
		return fmt.Errorf("listing forecasts: %w", err)
	}

	return encode(c, list)
}

func cmdShowForecast(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	d, err := s.GetForecastDetail(c.Context, c.Int64(forecastIDFlag.Name))
	if err != nil {
		return fmt.Errorf("getting forecast: %w", err)
	}

	return encode(c, d)
}

func cmdDeleteForecast(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	id := c.Int64(forecastIDFlag.Name)
	if err := s.DeleteForecast(c.Context, id); err != nil {
		return fmt.Errorf("deleting forecast: %w", err)
	}
	slog.Info("forecast deleted", "id", id)
	return nil
}
