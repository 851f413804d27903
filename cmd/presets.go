package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/bernd/novpn/blocklist"
	"github.com/bernd/novpn/tui"
	"github.com/urfave/cli/v3"
)

func PresetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "presets",
		Usage: "List the built-in feed presets",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "urls",
				Usage: "Show the expanded feed URLs",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println(tui.Table(presetHeaders(cmd.Bool("urls")), presetRows(blocklist.NewPresetRegistry(), cmd.Bool("urls"))))
			return nil
		},
	}
}

func presetHeaders(urls bool) []string {
	if urls {
		return []string{"NAME", "GROUP", "FEEDS"}
	}
	return []string{"NAME", "GROUP", "FEEDS", "DESCRIPTION"}
}

func presetRows(reg *blocklist.PresetRegistry, urls bool) [][]string {
	var rows [][]string
	for _, p := range reg.All() {
		feeds := reg.Expand([]string{p.Name})
		if urls {
			rows = append(rows, []string{p.Name, p.Group, strings.Join(feeds, "\n")})
			continue
		}
		rows = append(rows, []string{p.Name, p.Group, fmt.Sprint(len(feeds)), p.Description})
	}
	return rows
}
