package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "assessor",
		Usage: "grade coding-test submissions and run timed test sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.toml (default: $XDG_CONFIG_HOME/assessor/config.toml)",
				Sources: cli.EnvVars("ASSESSOR_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error; overrides the config file",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored log output",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			sqsWorkerCommand(),
			execCommand(),
			behaveCommand(),
			healthCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
