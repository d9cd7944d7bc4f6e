package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/assessor/internal/isolate"
)

// IsolateRunner runs programs in isolate boxes: separate namespaces, a
// cgroup per run, no network and a wiped filesystem.
type IsolateRunner struct {
	isolate        *isolate.Isolate
	compileLimits  isolate.Constraints
	wallTimeFactor float64
	logger         *slog.Logger
}

func NewIsolateRunner(iso *isolate.Isolate, compileTimeout time.Duration, logger *slog.Logger) *IsolateRunner {
	c := isolate.DefaultConstraints()
	if compileTimeout > 0 {
		c.CPUTime = compileTimeout
		c.WallTime = 2 * compileTimeout
	}
	return &IsolateRunner{
		isolate:        iso,
		compileLimits:  c,
		wallTimeFactor: 2,
		logger:         logger,
	}
}

func (r *IsolateRunner) Compile(ctx context.Context, lang Language, code string) (*Program, error) {
	if !lang.Compiled() {
		return &Program{
			Language: lang,
			Files:    map[string][]byte{lang.CodeFname: []byte(code)},
		}, nil
	}

	box, err := r.isolate.NewBox(ctx)
	if err != nil {
		return nil, infraErr("create box", err)
	}
	defer r.closeBox(box)

	if err := box.AddFile(lang.CodeFname, []byte(code)); err != nil {
		return nil, infraErr("write source", err)
	}

	r.logger.Debug("compiling", "box_id", box.Id(), "lang", lang.ID)
	out, err := box.Command(lang.CompileCmd, &r.compileLimits).Run(ctx, nil)
	if err != nil {
		return nil, infraErr("compile", err)
	}

	m := out.Metrics
	report := &CompileReport{
		Stdout:    string(out.Stdout),
		Stderr:    string(out.Stderr),
		ExitCode:  m.ExitCode,
		WallMs:    int64(m.TimeWallSec * 1000),
		MemoryKiB: memoryOf(m),
	}
	if m.Status != isolate.StatusOK || m.ExitCode != 0 || !box.HasFile(lang.CompiledFname) {
		if report.Stderr == "" && m.Message != "" {
			report.Stderr = m.Message
		}
		return nil, &CompileError{Report: report}
	}

	compiled, err := box.GetFile(lang.CompiledFname)
	if err != nil {
		return nil, infraErr("read compiled file", err)
	}
	return &Program{
		Language:    lang,
		Files:       map[string][]byte{lang.CompiledFname: compiled},
		Compilation: report,
	}, nil
}

func (r *IsolateRunner) Run(ctx context.Context, prog *Program, stdin []byte, lim Limits) (*RunResult, error) {
	box, err := r.isolate.NewBox(ctx)
	if err != nil {
		return nil, infraErr("create box", err)
	}
	defer r.closeBox(box)

	for name, content := range prog.Files {
		if err := box.AddExecutable(name, content); err != nil {
			return nil, infraErr("write program", err)
		}
	}

	constraints := isolate.DefaultConstraints().WithTimeLimit(lim.Time, r.wallTimeFactor)
	if lim.MemoryKiB > 0 {
		constraints.MemoryKiB = lim.MemoryKiB
	}

	out, err := box.Command(prog.Language.ExecCmd, &constraints).Run(ctx, stdin)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, infraErr("run", err)
	}

	m := out.Metrics
	res := &RunResult{
		Status:    StatusOK,
		Stdout:    string(out.Stdout),
		Stderr:    string(out.Stderr),
		ExitCode:  m.ExitCode,
		Signal:    m.ExitSignal,
		RuntimeMs: int64(m.TimeWallSec * 1000),
		CpuMs:     int64(m.TimeSec * 1000),
		MemoryKiB: memoryOf(m),
	}
	switch {
	case m.Status == isolate.StatusTimedOut:
		res.Status = StatusTimeout
		res.Message = m.Message
	case m.CgOomKilled || (lim.MemoryKiB > 0 && res.MemoryKiB > lim.MemoryKiB):
		res.Status = StatusCrash
		res.Message = "memory limit exceeded"
	case m.Status == isolate.StatusSignaled:
		res.Status = StatusCrash
		res.Message = m.Message
	case m.Status == isolate.StatusRuntimeError || m.ExitCode != 0:
		res.Status = StatusCrash
		res.Message = fmt.Sprintf("exited with code %d", m.ExitCode)
	}
	return res, nil
}

func (r *IsolateRunner) closeBox(box *isolate.Box) {
	if err := box.Close(); err != nil {
		r.logger.Warn("failed to close isolate box", "box_id", box.Id(), "error", err)
	}
}

func memoryOf(m *isolate.Metrics) int64 {
	if m.CgMemKb > 0 {
		return m.CgMemKb
	}
	return m.MaxRssKb
}
