package main

import (
	"context"
	"fmt"
	"os"

	"StockWatch/internal/errors"

	"github.com/urfave/cli/v3"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the YAML config `FILE`",
	Value:   "configs/config.yaml",
	Sources: cli.EnvVars("CONFIG_PATH"),
}

func main() {
	cmd := &cli.Command{
		Name:  "stockwatch",
		Usage: "Daily moving-average trend and stop-loss signals for a watchlist",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Evaluate the watchlist once and print the report",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{Name: "progress", Aliases: []string{"p"}, Usage: "Show a progress bar on stderr"},
					&cli.BoolFlag{Name: "notify", Usage: "Also send the report to Telegram"},
				},
				Action: runAction,
			},
			{
				Name:  "daemon",
				Usage: "Run the daily schedule, Telegram commands and the metrics endpoint",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{Name: "run-on-start", Usage: "Evaluate once immediately", Sources: cli.EnvVars("RUN_ON_START")},
				},
				Action: daemonAction,
			},
			{
				Name:  "inspect",
				Usage: "Show the cached series and pull record of a symbol",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Ticker symbol", Required: true},
					&cli.IntFlag{Name: "history", Usage: "Number of past signals to show", Value: 10},
				},
				Action: inspectAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: ")+err.Error())
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration and watchlist problems, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, errors.ErrInvalidConfig) {
		return 2
	}
	return 1
}
