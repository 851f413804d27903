package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bernd/novpn/proxy"
	"github.com/bernd/novpn/tui"
	"github.com/urfave/cli/v3"
)

func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Ask the running service whether an IP is blocked",
		ArgsUsage: "<ip>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ip := cmd.Args().First()
			if ip == "" {
				return fmt.Errorf("usage: novpn check <ip>")
			}
			client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			blocked, err := client.Check(ip)
			if err != nil {
				return err
			}
			printCheck(ip, blocked)
			return nil
		},
	}
}

func printCheck(ip string, blocked bool) {
	if blocked {
		tui.Status("Blocked", "%s is flagged as a VPN/proxy", ip)
		return
	}
	tui.Status("Clean", "%s is not in any block list", ip)
}

func ReloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "reload",
		Usage: "Reload the config and IP lists of the running service",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			tui.Status("Reloading", "config and IP lists")
			outcome, err := client.Reload(ctx)
			if outcome != nil {
				tui.Status("Loaded", "%d IPs and %d CIDR ranges", outcome.IPs, outcome.Ranges)
				if outcome.Failed > 0 {
					tui.Warn("%d of %d sources failed", outcome.Failed, outcome.Sources)
				}
				if outcome.Retained {
					tui.Warn("every source failed, previous lists kept")
				}
			}
			return err
		},
	}
}

func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show version and loaded list sizes of the running service",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			info, err := client.Info()
			if err != nil {
				return err
			}
			printInfo(info)
			return nil
		},
	}
}

func printInfo(info *proxy.Info) {
	tui.Status("novpn", "%s", info.Version.Version)
	tui.Status("Loaded", "%d IPs, %d CIDR ranges from %d source(s)", info.IPs, info.Ranges, info.Sources)
	if info.Scheduled {
		tui.Status("Refresh", "every %s", info.Interval)
	} else {
		tui.Status("Refresh", "periodic refresh disabled")
	}
	if last := info.LastRefresh; last != nil {
		tui.Status("Last", "refresh %s took %s, %d failed", last.ID, last.Duration.Round(time.Millisecond), last.Failed)
	}
}

func LogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Print recent gate decisions",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "blocked",
				Usage: "Only show blocked connections",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Show at most this many entries",
				Value: 50,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			entries, err := client.Logs()
			if err != nil {
				return err
			}
			entries = filterEntries(entries, cmd.Bool("blocked"), int(cmd.Int("limit")))
			if len(entries) == 0 {
				tui.Status("Empty", "no decisions recorded")
				return nil
			}
			fmt.Println(tui.Table(logHeaders, logRows(entries)))
			return nil
		},
	}
}

var logHeaders = []string{"ID", "TIME", "SOURCE", "ADDR", "ACTION", "REASON"}

// filterEntries keeps the newest limit entries, optionally only blocks.
func filterEntries(entries []proxy.LogEntry, blockedOnly bool, limit int) []proxy.LogEntry {
	if blockedOnly {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.Action == proxy.ActionBlock {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func logRows(entries []proxy.LogEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatUint(e.ID, 10),
			e.Time.Format("15:04:05"),
			string(e.Source),
			e.Addr,
			string(e.Action),
			e.Reason,
		})
	}
	return rows
}
