package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/assessor/internal/behave"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer/termgath"
	"github.com/urfave/cli/v3"
)

type casesFile struct {
	Tests []behave.SpecTest `toml:"tests"`
}

func readCases(path string) ([]domain.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f casesFile
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cases := make([]domain.TestCase, len(f.Tests))
	for i, t := range f.Tests {
		cases[i] = domain.TestCase{ID: strconv.Itoa(i + 1), Input: t.In, ExpectedOutput: t.Ans}
	}
	return cases, nil
}

func execCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "run a source file against test cases and print verdicts",
		ArgsUsage: "<source file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Usage: "language id", Required: true},
			&cli.StringFlag{Name: "cases", Usage: "TOML file with [[tests]] in/ans pairs", Required: true},
			&cli.DurationFlag{Name: "time-limit", Usage: "per-case time limit"},
			&cli.Int64Flag{Name: "memory-kib", Usage: "per-case memory limit in KiB"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "show outputs of failing cases"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src := cmd.Args().First()
			if src == "" {
				return cli.Exit("a source file is required", 2)
			}
			code, err := os.ReadFile(src)
			if err != nil {
				return err
			}
			cases, err := readCases(cmd.String("cases"))
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			h, err := a.harness(nil)
			if err != nil {
				return err
			}

			outcomes, err := h.Grade(ctx, domain.SubmissionSpec{
				LanguageID:     cmd.String("lang"),
				Code:           string(code),
				TestCases:      cases,
				TimeLimit:      cmd.Duration("time-limit"),
				MemoryLimitKiB: cmd.Int64("memory-kib"),
			}, termgath.New(cmd.Root().Writer, cmd.Bool("verbose")))
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				if !o.Passed {
					return cli.Exit("", 1)
				}
			}
			return nil
		},
	}
}
