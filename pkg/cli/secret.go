package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mchmarny/forecast/pkg/config"
	"github.com/urfave/cli/v2"
)

var (
	secretUserFlag = &cli.StringFlag{
		Name:  "user",
		Usage: "Database user (default: db.user from config)",
	}

	secretCmd = &cli.Command{
		Name:            "secret",
		Usage:           "Manage the Postgres password in the OS keychain",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "Store the password (read from stdin)",
				Action: cmdSetSecret,
				Flags:  []cli.Flag{secretUserFlag},
			},
			{
				Name:   "delete",
				Usage:  "Remove the password",
				Action: cmdDeleteSecret,
				Flags:  []cli.Flag{secretUserFlag},
			},
		},
	}
)

func secretUser(c *cli.Context) (string, error) {
	user := c.String(secretUserFlag.Name)
	if user == "" {
		user = getConfig(c).Config.DB.User
	}
	if user == "" {
		return "", errors.New("database user required, set --user or db.user in config")
	}
	return user, nil
}

func cmdSetSecret(c *cli.Context) error {
	user, err := secretUser(c)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Password for %s: ", user)
	pwd, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && pwd == "" {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := config.SavePassword(user, strings.TrimSpace(pwd)); err != nil {
		return err
	}
	slog.Info("password saved", "user", user, "service", config.KeyringService)
	return nil
}

func cmdDeleteSecret(c *cli.Context) error {
	user, err := secretUser(c)
	if err != nil {
		return err
	}

	if err := config.DeletePassword(user); err != nil {
		return err
	}
	slog.Info("password deleted", "user", user, "service", config.KeyringService)
	return nil
}
