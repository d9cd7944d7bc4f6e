package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/assessor/internal/behave"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/gatherer/termgath"
	"github.com/urfave/cli/v3"
)

func behaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "behave",
		Usage:     "run behaviour scenarios from a TOML file against the sandbox",
		ArgsUsage: "<behave.toml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "stream every scenario's events"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				path = "behave.toml"
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			configured, err := a.cfg.Catalog()
			if err != nil {
				return err
			}
			suite, err := behave.ParseFile(path, configured.All())
			if err != nil {
				return err
			}
			catalog, err := suite.Catalog(configured.All())
			if err != nil {
				return err
			}
			h, err := a.harness(catalog)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			var watch func(behave.Case) gatherer.Gatherer
			if cmd.Bool("verbose") {
				watch = func(c behave.Case) gatherer.Gatherer {
					fmt.Fprintf(out, "\n## %s\n", c.Name)
					return termgath.New(out, true)
				}
			}
			outcomes, err := behave.Run(ctx, h, suite, watch)
			if err != nil {
				return err
			}

			failed := 0
			for _, o := range outcomes {
				if o.Passed() {
					fmt.Fprintf(out, "%s %s (%s)\n", color.GreenString("PASS"), o.Case.Name, o.Elapsed.Round(time.Millisecond))
					continue
				}
				failed++
				fmt.Fprintf(out, "%s %s\n", color.RedString("FAIL"), o.Case.Name)
				for _, p := range o.Problems {
					fmt.Fprintf(out, "     %s\n", p)
				}
			}
			fmt.Fprintf(out, "%d/%d scenarios passed\n", len(outcomes)-failed, len(outcomes))
			if failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
