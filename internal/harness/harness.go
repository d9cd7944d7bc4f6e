// Package harness grades one submission against its test cases: compile
// once, run every case in a fresh sandbox, compare and classify.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/runner"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	DefaultTimeLimit time.Duration
	DefaultMemoryKiB int64
	// Grace is added to the time limit before the harness gives up on a
	// runner call that has not returned.
	Grace      time.Duration
	SystemInfo string
}

func DefaultConfig() Config {
	return Config{
		DefaultTimeLimit: 2 * time.Second,
		DefaultMemoryKiB: 256 * 1024,
		Grace:            500 * time.Millisecond,
	}
}

type Harness struct {
	runner  runner.Runner
	catalog *runner.Catalog
	pool    *Pool
	cfg     Config
	logger  *slog.Logger
}

func New(r runner.Runner, catalog *runner.Catalog, pool *Pool, cfg Config, logger *slog.Logger) *Harness {
	return &Harness{
		runner:  r,
		catalog: catalog,
		pool:    pool,
		cfg:     cfg,
		logger:  logger,
	}
}

func (h *Harness) Catalog() *runner.Catalog { return h.catalog }

func (h *Harness) Pool() *Pool { return h.pool }

// Grade returns exactly one outcome per test case, in input order. Per-case
// failures are reported in the outcomes. An error is returned only for an
// unknown language or when ctx is cancelled, in which case all outstanding
// runs of the submission are stopped and no outcomes are returned.
func (h *Harness) Grade(ctx context.Context, spec domain.SubmissionSpec, gath gatherer.Gatherer) ([]domain.TestCaseOutcome, error) {
	lang, err := h.catalog.Get(spec.LanguageID)
	if err != nil {
		return nil, err
	}
	if gath == nil {
		gath = gatherer.Nop()
	}
	gath = gatherer.Locked(gath)
	lim := h.limits(spec)
	logger := h.logger.With("language", lang.ID, "cases", len(spec.TestCases))

	gath.StartJob(h.cfg.SystemInfo)
	if lang.Compiled() {
		gath.StartCompile()
	}

	prog, err := h.compile(ctx, lang, spec.Code)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var ce *runner.CompileError
	switch {
	case errors.As(err, &ce):
		gath.FinishCompile(ce.Report)
		msg := ce.Message()
		outcomes := failAll(spec.TestCases, domain.CompilationError, msg)
		for _, o := range outcomes {
			gath.FinishTest(o)
		}
		gath.CompileError(msg)
		logger.Debug("compilation failed", "exit_code", ce.Report.ExitCode)
		return outcomes, nil
	case err != nil:
		msg := fmt.Sprintf("sandbox failure during compilation: %v", err)
		outcomes := failAll(spec.TestCases, domain.InternalExecutionError, msg)
		for _, o := range outcomes {
			gath.FinishTest(o)
		}
		gath.InternalError(msg)
		logger.Error("compilation could not run", "error", err)
		return outcomes, nil
	}
	if lang.Compiled() {
		gath.FinishCompile(prog.Compilation)
	}

	outcomes := make([]domain.TestCaseOutcome, len(spec.TestCases))
	var g errgroup.Group
	for i, tc := range spec.TestCases {
		g.Go(func() error {
			o, err := h.runCase(ctx, prog, i, tc, lim, gath)
			if err != nil {
				return err
			}
			outcomes[i] = o
			gath.FinishTest(o)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Info("grading cancelled", "error", err)
		return nil, err
	}

	gath.FinishNoError()
	return outcomes, nil
}

func (h *Harness) limits(spec domain.SubmissionSpec) runner.Limits {
	lim := runner.Limits{Time: spec.TimeLimit, MemoryKiB: spec.MemoryLimitKiB}
	if lim.Time <= 0 {
		lim.Time = h.cfg.DefaultTimeLimit
	}
	if lim.MemoryKiB <= 0 {
		lim.MemoryKiB = h.cfg.DefaultMemoryKiB
	}
	return lim
}

func (h *Harness) compile(ctx context.Context, lang runner.Language, code string) (*runner.Program, error) {
	if err := h.pool.Acquire(ctx); err != nil {
		return nil, err
	}
	defer h.pool.Release()
	return h.runner.Compile(ctx, lang, code)
}

// runCase returns an error only when the submission context is done.
func (h *Harness) runCase(
	ctx context.Context,
	prog *runner.Program,
	order int,
	tc domain.TestCase,
	lim runner.Limits,
	gath gatherer.Gatherer,
) (domain.TestCaseOutcome, error) {
	if err := h.pool.Acquire(ctx); err != nil {
		return domain.TestCaseOutcome{}, err
	}
	defer h.pool.Release()

	gath.ReachTest(order, tc)

	caseCtx, cancel := context.WithTimeout(ctx, lim.Time+h.cfg.Grace)
	defer cancel()

	start := time.Now()
	res, err := h.runner.Run(caseCtx, prog, []byte(tc.Input), lim)
	if ctx.Err() != nil {
		return domain.TestCaseOutcome{}, ctx.Err()
	}

	o := domain.TestCaseOutcome{
		TestCaseID:     tc.ID,
		Order:          order,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	}
	switch {
	case err != nil && errors.Is(caseCtx.Err(), context.DeadlineExceeded):
		o.RuntimeMs = time.Since(start).Milliseconds()
		o.ErrorKind = domain.TimeoutError
		o.ErrorMessage = fmt.Sprintf("time limit of %s exceeded", lim.Time)
		return o, nil
	case err != nil:
		h.logger.Error("sandbox failure", "test_case_id", tc.ID, "error", err)
		o.ErrorKind = domain.InternalExecutionError
		o.ErrorMessage = err.Error()
		return o, nil
	}

	classify(&o, res)
	return o, nil
}

func classify(o *domain.TestCaseOutcome, res *runner.RunResult) {
	o.ActualOutput = res.Stdout
	o.Stderr = res.Stderr
	o.ExitCode = res.ExitCode
	o.RuntimeMs = res.RuntimeMs
	o.CpuMs = res.CpuMs
	o.MemoryKiB = res.MemoryKiB

	switch res.Status {
	case runner.StatusTimeout:
		o.ErrorKind = domain.TimeoutError
		o.ErrorMessage = orDefault(res.Message, "time limit exceeded")
	case runner.StatusCrash:
		o.ErrorKind = domain.RuntimeError
		o.ErrorMessage = orDefault(res.Message, "program crashed")
	default:
		if OutputsMatch(res.Stdout, o.ExpectedOutput) {
			o.Passed = true
		} else {
			o.ErrorKind = domain.WrongAnswer
			o.ErrorMessage = "output does not match the expected output"
		}
	}
}

func failAll(cases []domain.TestCase, kind domain.ErrorKind, msg string) []domain.TestCaseOutcome {
	outcomes := make([]domain.TestCaseOutcome, len(cases))
	for i, tc := range cases {
		outcomes[i] = domain.TestCaseOutcome{
			TestCaseID:     tc.ID,
			Order:          i,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ErrorKind:      kind,
			ErrorMessage:   msg,
		}
	}
	return outcomes
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
