package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/assessor/internal/isolate"
	"github.com/programme-lv/assessor/internal/records"
	"github.com/programme-lv/assessor/internal/runner"
	"github.com/urfave/cli/v3"
)

type health int

const (
	healthOkay health = iota
	healthWarn
	healthError
)

func (h health) String() string {
	switch h {
	case healthOkay:
		return color.HiGreenString("OKAY")
	case healthWarn:
		return color.HiYellowString("WARN")
	}
	return color.HiRedString("ERROR")
}

type feedbackRow struct {
	unit    string
	health  health
	message string
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check the sandbox, every language and the configured backends",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rows := []feedbackRow{a.checkSandbox(ctx)}
			if rows[0].health != healthError {
				catalog, err := a.cfg.Catalog()
				if err != nil {
					return err
				}
				r, err := a.runner()
				if err != nil {
					return err
				}
				rows = append(rows, checkLanguages(ctx, r, catalog.All())...)
			}
			rows = append(rows, a.checkBackends(ctx)...)

			renderFeedback(cmd.Root().Writer, rows)
			for _, row := range rows {
				if row.health == healthError {
					return cli.Exit("", 1)
				}
			}
			return nil
		},
	}
}

func (a *app) checkSandbox(ctx context.Context) feedbackRow {
	row := feedbackRow{unit: "Sandbox (" + a.cfg.Sandbox.Runner + ")"}
	if a.cfg.Sandbox.Runner == "isolate" {
		box, err := isolate.New("isolate", 1).NewBox(ctx)
		if err != nil {
			row.health, row.message = healthError, err.Error()
			return row
		}
		if err := box.Close(); err != nil {
			row.health, row.message = healthWarn, err.Error()
			return row
		}
		row.message = "box " + box.Path() + " created and cleaned up"
		return row
	}
	dir := a.cfg.Sandbox.WorkDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		row.health, row.message = healthError, err.Error()
		return row
	}
	probe, err := os.CreateTemp(dir, "health-*")
	if err != nil {
		row.health, row.message = healthError, err.Error()
		return row
	}
	probe.Close()
	os.Remove(probe.Name())
	row.health, row.message = healthWarn, "process runner is not isolated; work dir "+dir
	return row
}

// checkLanguages runs each language's hello world program. Languages
// without one are reported as warnings.
func checkLanguages(ctx context.Context, r runner.Runner, langs []runner.Language) []feedbackRow {
	rows := make([]feedbackRow, 0, len(langs))
	for _, lang := range langs {
		row := feedbackRow{unit: orDefault(lang.Name, lang.ID)}
		if lang.HelloWorld == "" {
			row.health, row.message = healthWarn, "no hello world program configured"
			rows = append(rows, row)
			continue
		}
		row.health, row.message = helloWorld(ctx, r, lang)
		rows = append(rows, row)
	}
	return rows
}

func helloWorld(ctx context.Context, r runner.Runner, lang runner.Language) (health, string) {
	prog, err := r.Compile(ctx, lang, lang.HelloWorld)
	if err != nil {
		var ce *runner.CompileError
		if errors.As(err, &ce) {
			return healthError, firstLine(ce.Message())
		}
		return healthError, err.Error()
	}
	res, err := r.Run(ctx, prog, nil, runner.Limits{Time: 5 * time.Second, MemoryKiB: 512 * 1024})
	if err != nil {
		return healthError, err.Error()
	}
	if res.Status != runner.StatusOK {
		return healthError, fmt.Sprintf("%s: %s", res.Status, orDefault(res.Message, firstLine(res.Stderr)))
	}
	out := strings.TrimSpace(res.Stdout)
	if !strings.Contains(out, "Hello") {
		return healthWarn, "unexpected output: " + firstLine(out)
	}
	return healthOkay, fmt.Sprintf("%s in %dms, %dKiB", out, res.RuntimeMs, res.MemoryKiB)
}

func (a *app) checkBackends(ctx context.Context) []feedbackRow {
	var rows []feedbackRow
	check := func(unit string, err error, okMsg string) {
		if err != nil {
			rows = append(rows, feedbackRow{unit: unit, health: healthError, message: err.Error()})
			return
		}
		rows = append(rows, feedbackRow{unit: unit, health: healthOkay, message: okMsg})
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if a.cfg.Session.Store == "redis" {
		_, err := a.redis(ctx)
		check("Redis", err, a.cfg.Redis.Addr)
	}
	if a.cfg.Postgres.DSN != "" {
		pg, err := records.Open(ctx, a.cfg.Postgres.DSN, a.logger)
		if err == nil {
			a.closers = append(a.closers, pg.Close)
		}
		check("Postgres", err, "connected, schema ready")
	}
	if a.cfg.NATS.URL != "" {
		nc, err := nats.Connect(a.cfg.NATS.URL, nats.Name("assessor-health"), nats.Timeout(5*time.Second))
		if err == nil {
			nc.Close()
		}
		check("NATS", err, a.cfg.NATS.URL)
	}
	return rows
}

func renderFeedback(w io.Writer, rows []feedbackRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tHEALTH\tMESSAGE")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.unit, row.health, firstLine(row.message))
	}
	tw.Flush()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
