package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/proxy"
	"github.com/bernd/novpn/tui"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the gates, DNSBL, admin API and list refresh",
		Description: "Loads the config (writing the documented default on first run), fetches\n" +
			"every list once and then serves until interrupted. SIGHUP reloads.",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tui.PrintHeader()
			logger := newLogger()

			settings := config.NewManager(cmd.String(configFlag), logger)
			// Load errors are logged and the defaults stay active.
			_ = settings.Load()

			srv, err := proxy.NewServer(settings, logger)
			if err != nil {
				return err
			}
			go reloadOnHangup(ctx, srv, logger)

			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Shut down")
			return nil
		},
	}
}

func reloadOnHangup(ctx context.Context, srv *proxy.Server, logger *log.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("Reloading on SIGHUP")
			if _, err := srv.Reload(ctx); err != nil {
				logger.Error("Reload failed", "error", err)
			}
		}
	}
}
