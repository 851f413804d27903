package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bernd/novpn/blocklist"
	"github.com/bernd/novpn/tui"
	"github.com/urfave/cli/v3"
)

func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download and parse lists once, without a running service",
		ArgsUsage: "[url...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "preset",
				Usage: "Include a built-in preset (repeatable, see `novpn presets`)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Connect and read timeout per list",
				Value: blocklist.DefaultTimeout,
			},
			&cli.StringSliceFlag{
				Name:  "check",
				Usage: "Check an IP against the fetched lists (repeatable)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			urls := fetchSources(cmd.StringSlice("preset"), cmd.Args().Slice())
			if len(urls) == 0 {
				return fmt.Errorf("no lists given; pass URLs or --preset")
			}

			cache := blocklist.NewCache(blocklist.WithLogger(newLogger()))
			tui.Status("Fetching", "%d list(s)", len(urls))
			outcome := cache.Refresh(ctx, blocklist.SourceList{URLs: urls, Timeout: cmd.Duration("timeout")})
			printOutcome(outcome)

			for _, ip := range cmd.StringSlice("check") {
				printCheck(ip, cache.IsBlocked(ip))
			}
			if outcome.Failed == outcome.Sources {
				return fmt.Errorf("every list failed to download")
			}
			return nil
		},
	}
}

// fetchSources puts preset feeds first, then explicit URLs, without
// duplicates.
func fetchSources(presets, urls []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range append(blocklist.NewPresetRegistry().Expand(presets), urls...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func printOutcome(o blocklist.RefreshOutcome) {
	for _, f := range o.Failures {
		tui.Warn("%s: %s", f.URL, f.Error)
	}
	tui.Status("Loaded", "%d IPs and %d CIDR ranges in %s", o.IPs, o.Ranges, o.Duration.Round(time.Millisecond))
}
