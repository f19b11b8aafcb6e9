package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the confirmation prompt",
	}

	resetCmd = &cli.Command{
		Name:   "reset",
		Usage:  "Delete all local data and start fresh",
		Flags:  []cli.Flag{yesFlag},
		Action: cmdReset,
	}
)

func cmdReset(c *cli.Context) error {
	cfg := getConfig(c)

	driver, path, err := cfg.Config.Source()
	if err != nil {
		return err
	}
	if driver != data.DriverSQLite {
		return fmt.Errorf("reset only supports the %s driver, drop the %s database manually", data.DriverSQLite, driver)
	}

	if !c.Bool(yesFlag.Name) {
		fmt.Fprintf(c.App.Writer, "This will permanently delete all data in %s\n", path)
		fmt.Fprint(c.App.Writer, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(c.App.Writer, "Aborted.")
			return nil
		}
	}

	// close the DB before deleting the file
	cfg.closeStore()

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting database: %w", err)
		}
	}
	slog.Info("database deleted", "path", path)

	// re-initialize empty database
	if _, err := cfg.Store(c.Context); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}

	slog.Info("database re-initialized", "path", path)
	fmt.Fprintln(c.App.Writer, "Reset complete.")
	return nil
}
