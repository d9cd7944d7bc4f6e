// Package termgath prints grading events to a terminal.
package termgath

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/runner"
)

var (
	okay  = color.New(color.FgGreen, color.Bold)
	fail  = color.New(color.FgRed, color.Bold)
	warn  = color.New(color.FgYellow, color.Bold)
	faint = color.New(color.Faint)
)

type TerminalGatherer struct {
	out       io.Writer
	startedAt time.Time
	verbose   bool
	tally     gatherer.Tally
}

// New prints to out. With verbose set, case input and output are shown
// trimmed to the stream rectangle.
func New(out io.Writer, verbose bool) *TerminalGatherer {
	return &TerminalGatherer{out: out, startedAt: time.Now(), verbose: verbose}
}

func (t *TerminalGatherer) StartJob(systemInfo string) {
	fmt.Fprintln(t.out, "== Evaluation started ==")
	if systemInfo != "" && t.verbose {
		faint.Fprintln(t.out, systemInfo)
	}
}

func (t *TerminalGatherer) StartCompile() {
	fmt.Fprintln(t.out, "-- Compilation started --")
}

func (t *TerminalGatherer) FinishCompile(report *runner.CompileReport) {
	fmt.Fprintln(t.out, "-- Compilation finished --")
	if report != nil {
		faint.Fprintf(t.out, "exit=%d wall=%dms mem=%dKiB\n", report.ExitCode, report.WallMs, report.MemoryKiB)
	}
}

func (t *TerminalGatherer) ReachTest(order int, tc domain.TestCase) {
	if t.verbose {
		faint.Fprintf(t.out, "-> #%d %s\n", order+1, tc.ID)
	}
}

func (t *TerminalGatherer) FinishTest(o domain.TestCaseOutcome) {
	t.tally.Add(o)
	verdict := okay.Sprint("PASS")
	switch {
	case o.Passed:
	case o.ErrorKind == domain.InternalExecutionError:
		verdict = warn.Sprint(o.ErrorKind.Short())
	default:
		verdict = fail.Sprint(o.ErrorKind.Short())
	}
	fmt.Fprintf(t.out, "<- #%d %-8s %s  %dms %dKiB\n", o.Order+1, o.TestCaseID, verdict, o.RuntimeMs, o.MemoryKiB)
	if o.ErrorMessage != "" && o.ErrorKind != domain.CompilationError {
		faint.Fprintf(t.out, "   %s\n", o.ErrorMessage)
	}
	if t.verbose && !o.Passed {
		t.block("expected", o.ExpectedOutput)
		t.block("actual", o.ActualOutput)
		t.block("stderr", o.Stderr)
	}
}

func (t *TerminalGatherer) block(title, s string) {
	if s == "" {
		return
	}
	faint.Fprintf(t.out, "   %s:\n", title)
	trimmed := gatherer.TrimToRect(s, 10, 80)
	for _, line := range strings.Split(trimmed, "\n") {
		fmt.Fprintf(t.out, "     %s\n", line)
	}
}

func (t *TerminalGatherer) CompileError(msg string) {
	fail.Fprintln(t.out, "== Compilation error ==")
	fmt.Fprintln(t.out, gatherer.TrimToRect(msg, 40, 120))
}

func (t *TerminalGatherer) InternalError(msg string) {
	warn.Fprintf(t.out, "== Internal error: %s ==\n", msg)
}

func (t *TerminalGatherer) FinishNoError() {
	dur := time.Since(t.startedAt).Round(time.Millisecond)
	summary := fmt.Sprintf("%d/%d passed", t.tally.Passed, t.tally.Total)
	if t.tally.Passed == t.tally.Total {
		summary = okay.Sprint(summary)
	} else {
		summary = fail.Sprint(summary)
	}
	fmt.Fprintf(t.out, "== Evaluation finished in %s: %s ==\n", dur, summary)
}
