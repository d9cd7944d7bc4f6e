// Package runner executes untrusted programs in a sandbox, one
// (program, stdin) pair per call.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks . Runner

// Runner builds and runs programs. Every Run starts from a fresh sandbox:
// nothing written by one run is visible to another.
type Runner interface {
	// Compile prepares code for running. For compiled languages a build
	// failure is returned as *CompileError; sandbox failures as *InfraError.
	Compile(ctx context.Context, lang Language, code string) (*Program, error)

	// Run executes prog with stdin under lim. Time and memory overruns are
	// reported through RunResult.Status, never as errors.
	Run(ctx context.Context, prog *Program, stdin []byte, lim Limits) (*RunResult, error)
}

// Program is everything needed to start a submission in a fresh sandbox.
type Program struct {
	Language Language
	// Files are copied into each sandbox before running.
	Files map[string][]byte
	// Compilation is nil for interpreted languages.
	Compilation *CompileReport
}

type CompileReport struct {
	Stdout    string
	Stderr    string
	ExitCode  int64
	WallMs    int64
	MemoryKiB int64
}

type Limits struct {
	Time      time.Duration
	MemoryKiB int64
}

type Status int

const (
	StatusOK Status = iota
	// StatusTimeout means the time limit was exceeded.
	StatusTimeout
	// StatusCrash means a non-zero exit, a signal, or a memory overrun.
	StatusCrash
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusCrash:
		return "crash"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type RunResult struct {
	Status    Status
	Stdout    string
	Stderr    string
	ExitCode  int64
	Signal    *int64
	RuntimeMs int64
	CpuMs     int64
	MemoryKiB int64
	// Message explains a timeout or crash, e.g. "memory limit exceeded".
	Message string
}

// CompileError is a build failure caused by the submitted code.
type CompileError struct {
	Report *CompileReport
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compilation failed with exit code %d", e.Report.ExitCode)
}

// Message is the text shown to the user for the failed build.
func (e *CompileError) Message() string {
	if e.Report.Stderr != "" {
		return e.Report.Stderr
	}
	if e.Report.Stdout != "" {
		return e.Report.Stdout
	}
	return e.Error()
}

// InfraError is a sandbox failure not attributable to user code.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

func infraErr(op string, err error) error {
	var ie *InfraError
	if errors.As(err, &ie) {
		return err
	}
	return &InfraError{Op: op, Err: err}
}

// Exec compiles and runs code once.
func Exec(ctx context.Context, r Runner, lang Language, code string, stdin []byte, lim Limits) (*RunResult, error) {
	prog, err := r.Compile(ctx, lang, code)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, prog, stdin, lim)
}
