package cmd

import (
	"context"
	"time"

	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/proxy"
	"github.com/bernd/novpn/tui"
	"github.com/urfave/cli/v3"
)

func CertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "certs",
		Usage: "Generate mTLS credentials for the admin API",
		Description: "Writes a CA, a server keypair and a client keypair. Point listen.tls-dir\n" +
			"at the directory to require client certificates on the admin API.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Output directory",
				Value: config.DefaultTLSDir(),
			},
			&cli.StringSliceFlag{
				Name:  "host",
				Usage: "Extra IP or DNS name for the server certificate (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "lifetime",
				Usage: "Certificate lifetime",
				Value: 365 * 24 * time.Hour,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tui.Status("Generating", "mTLS credentials")
			creds, err := proxy.GenerateMTLSCredentials(cmd.Duration("lifetime"), cmd.StringSlice("host")...)
			if err != nil {
				return err
			}
			dir := cmd.String("dir")
			if err := creds.WriteFiles(dir); err != nil {
				return err
			}
			tui.Status("Saved", "to %s", dir)
			return nil
		},
	}
}
