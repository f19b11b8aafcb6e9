package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	importFileFlag = &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "YAML file with forecasts, their points and optional resolution",
		Required: true,
	}

	importCmd = &cli.Command{
		Name:   "import",
		Usage:  "Import forecasts with their history from a YAML file",
		Action: cmdImport,
		Flags:  []cli.Flag{importFileFlag},
	}
)

// ImportResult summarizes an import run.
type ImportResult struct {
	File     string `json:"file" yaml:"file"`
	Read     int    `json:"read" yaml:"read"`
	Imported int    `json:"imported" yaml:"imported"`
	Duration string `json:"duration" yaml:"duration"`
}

type importFile struct {
	Forecasts []*data.ImportForecast `yaml:"forecasts"`
}

func cmdImport(c *cli.Context) error {
	start := time.Now()
	path := c.String(importFileFlag.Name)

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading import file %s: %w", path, err)
	}

	var in importFile
	if err := yaml.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("parsing import file %s: %w", path, err)
	}

	s, err := getStore(c)
	if err != nil {
		return err
	}

	slog.Info("importing forecasts", "file", path, "count", len(in.Forecasts))
	n, err := s.Import(c.Context, in.Forecasts)
	if err != nil {
		return fmt.Errorf("importing forecasts (%d of %d saved): %w", n, len(in.Forecasts), err)
	}

	return encode(c, &ImportResult{
		File:     path,
		Read:     len(in.Forecasts),
		Imported: n,
		Duration: time.Since(start).String(),
	})
}
