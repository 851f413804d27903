package cmd

import (
	"context"
	"os"

	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/version"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

const (
	debugFlag  = "debug"
	configFlag = "config"
	adminFlag  = "admin"
)

func RootCommand() *cli.Command {
	return &cli.Command{
		Name:            "novpn",
		Usage:           "Keep VPN and proxy exit nodes away from your service",
		Version:         version.String(),
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "Enable debug output",
			},
			&cli.StringFlag{
				Name:    configFlag,
				Usage:   "Path to the config file (TOML or YAML)",
				Value:   config.DefaultPath(),
				Sources: cli.EnvVars("NOVPN_CONFIG"),
			},
			&cli.StringFlag{
				Name:    adminFlag,
				Usage:   "Admin API address, overrides listen.admin",
				Sources: cli.EnvVars("NOVPN_ADMIN"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool(debugFlag) {
				log.SetLevel(log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			ServeCommand(),
			CheckCommand(),
			ReloadCommand(),
			InfoCommand(),
			LogsCommand(),
			MonitorCommand(),
			FetchCommand(),
			PresetsCommand(),
			CertsCommand(),
		},
	}
}

func newLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.GetLevel(),
	})
}
