package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/stock-data/internal/version"
)

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "stocketl:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "stocketl",
		Usage:   "Load daily, intraday and SMA market data into a database",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config `FILE`; defaults and the environment are used when empty",
				Sources: cli.EnvVars("STOCKETL_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			migrateCommand(),
			scheduleCommand(),
			versionCommand(),
		},
	}
}

// jobFlags override the job section of the config file.
func jobFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "symbols",
			Usage: "comma-separated ticker symbols, e.g. IBM,MSFT",
		},
		&cli.StringFlag{
			Name:  "endpoints",
			Usage: "comma-separated endpoints: daily, intraday, sma",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "number of concurrent workers",
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run every (symbol, endpoint) unit once and print a summary",
		Flags: append(jobFlags(),
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "draw a progress bar on stderr",
			},
		),
		Action: runAction,
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create the tables if they do not exist",
		Action: migrateAction,
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:   "schedule",
		Usage:  "Run on the configured schedule until interrupted",
		Flags:  jobFlags(),
		Action: scheduleAction,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(context.Context, *cli.Command) error {
			fmt.Println(version.String())
			return nil
		},
	}
}
