package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mchmarny/forecast/pkg/config"
	"github.com/mchmarny/forecast/pkg/data"
	"github.com/mchmarny/forecast/pkg/logging"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "forecast"
	appConfigKey = "app-config"
	dateLayout   = "2006-01-02"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	configDirFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Path to the config directory (default: $HOME/.forecast)",
	}

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	dbDriverFlag = &urfave.StringFlag{
		Name:  "db-driver",
		Usage: "Database driver [sqlite, postgres] (overrides config)",
	}

	dsnFlag = &urfave.StringFlag{
		Name:  "dsn",
		Usage: "Sqlite file path or Postgres connection string (overrides config)",
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir    string
	Config *config.Config
	Format string

	store *data.Store
}

// Store opens the configured database on first use.
func (a *appConfig) Store(ctx context.Context) (*data.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	driver, dsn, err := a.Config.Source()
	if err != nil {
		return nil, fmt.Errorf("resolving database source: %w", err)
	}

	s, err := data.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	slog.Debug("database opened", "driver", driver)

	a.store = s
	return s, nil
}

func (a *appConfig) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
	a.store = nil
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func getStore(c *urfave.Context) (*data.Store, error) {
	return getConfig(c).Store(c.Context)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Track probabilistic forecasts and score them once they resolve",
		Metadata:             map[string]any{},
		Flags: []urfave.Flag{
			configDirFlag,
			debugFlag,
			formatFlag,
			dbDriverFlag,
			dsnFlag,
		},
		Commands: []*urfave.Command{
			forecastCmd,
			pointCmd,
			resolveCmd,
			scoreCmd,
			postCmd,
			importCmd,
			secretCmd,
			resetCmd,
			serverCmd,
		},
		Before: before,
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok {
				cfg.closeStore()
			}
			return nil
		},
	}
}

func before(c *urfave.Context) error {
	dir := c.String(configDirFlag.Name)
	if dir == "" {
		d, _, err := config.GetOrCreateHomeDir(appName)
		if err != nil {
			return fmt.Errorf("resolving config directory: %w", err)
		}
		dir = d
	}

	debug := c.Bool(debugFlag.Name)
	if debug {
		setLogger(c, "debug")
	}

	conf, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !debug {
		setLogger(c, conf.LogLevel)
	}

	if v := c.String(dbDriverFlag.Name); v != "" {
		conf.DB.Driver = v
	}
	if v := c.String(dsnFlag.Name); v != "" {
		if conf.DB.Driver == data.DriverPostgres {
			conf.DB.DSN = v
		} else {
			conf.DB.Path = v
		}
	}

	format := formatJSON
	switch f := c.String(formatFlag.Name); f {
	case formatJSON, "":
	case formatYAML, "yml":
		format = formatYAML
	default:
		return fmt.Errorf("unsupported output format: %s", f)
	}

	c.App.Metadata[appConfigKey] = &appConfig{
		Dir:    dir,
		Config: conf,
		Format: format,
	}
	return nil
}

func setLogger(c *urfave.Context, level string) {
	slog.SetDefault(slog.New(logging.NewCLIHandler(c.App.ErrWriter, logging.ParseLogLevel(level))))
}

func encode(c *urfave.Context, v any) error {
	return encodeTo(c.App.Writer, getConfig(c).Format, v)
}

func encodeTo(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// parseDate parses YYYY-MM-DD or returns now when v is empty.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", v, err)
	}
	return t, nil
}

func optionalFloat(c *urfave.Context, name string) *float64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Float64(name)
	return &v
}
