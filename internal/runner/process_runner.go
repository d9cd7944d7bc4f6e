package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const maxOutputBytes = 64 << 20

// ProcessRunner runs programs as plain child processes in a fresh
// temporary directory per call, with an empty environment, their own
// process group and sampled memory accounting. It is meant for hosts
// without isolate; with network isolation enabled each run also gets its
// own user and network namespace.
type ProcessRunner struct {
	baseDir        string
	compileTimeout time.Duration
	pollInterval   time.Duration
	isolateNetwork bool
	logger         *slog.Logger
}

type ProcessRunnerOption func(*ProcessRunner)

func WithCompileTimeout(d time.Duration) ProcessRunnerOption {
	return func(r *ProcessRunner) { r.compileTimeout = d }
}

func WithPollInterval(d time.Duration) ProcessRunnerOption {
	return func(r *ProcessRunner) { r.pollInterval = d }
}

// WithNetworkIsolation starts each process in new user and network
// namespaces. Requires unprivileged user namespaces.
func WithNetworkIsolation() ProcessRunnerOption {
	return func(r *ProcessRunner) { r.isolateNetwork = true }
}

func NewProcessRunner(baseDir string, logger *slog.Logger, opts ...ProcessRunnerOption) *ProcessRunner {
	r := &ProcessRunner{
		baseDir:        baseDir,
		compileTimeout: 30 * time.Second,
		pollInterval:   10 * time.Millisecond,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ProcessRunner) Compile(ctx context.Context, lang Language, code string) (*Program, error) {
	if !lang.Compiled() {
		return &Program{
			Language: lang,
			Files:    map[string][]byte{lang.CodeFname: []byte(code)},
		}, nil
	}

	dir, err := r.freshDir("compile")
	if err != nil {
		return nil, infraErr("create dir", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, lang.CodeFname), []byte(code), 0644); err != nil {
		return nil, infraErr("write source", err)
	}

	compileCtx, cancel := context.WithTimeout(ctx, r.compileTimeout)
	defer cancel()

	out, err := r.exec(compileCtx, dir, lang.CompileCmd, nil, 0)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, infraErr("compile", err)
	}

	report := &CompileReport{
		Stdout:    string(out.stdout),
		Stderr:    string(out.stderr),
		ExitCode:  out.exitCode,
		WallMs:    out.wall.Milliseconds(),
		MemoryKiB: out.peakKiB,
	}
	if compileCtx.Err() != nil {
		report.Stderr += fmt.Sprintf("\ncompilation exceeded %s", r.compileTimeout)
		return nil, &CompileError{Report: report}
	}
	compiled, readErr := os.ReadFile(filepath.Join(dir, lang.CompiledFname))
	if out.exitCode != 0 || out.signal != nil || readErr != nil {
		return nil, &CompileError{Report: report}
	}

	return &Program{
		Language:    lang,
		Files:       map[string][]byte{lang.CompiledFname: compiled},
		Compilation: report,
	}, nil
}

func (r *ProcessRunner) Run(ctx context.Context, prog *Program, stdin []byte, lim Limits) (*RunResult, error) {
	dir, err := r.freshDir("run")
	if err != nil {
		return nil, infraErr("create dir", err)
	}
	defer os.RemoveAll(dir)

	for name, content := range prog.Files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0755); err != nil {
			return nil, infraErr("write program", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, lim.Time)
	defer cancel()

	out, err := r.exec(runCtx, dir, prog.Language.ExecCmd, stdin, lim.MemoryKiB)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, infraErr("run", err)
	}

	res := &RunResult{
		Status:    StatusOK,
		Stdout:    string(out.stdout),
		Stderr:    string(out.stderr),
		ExitCode:  out.exitCode,
		Signal:    out.signal,
		RuntimeMs: out.wall.Milliseconds(),
		CpuMs:     out.cpu.Milliseconds(),
		MemoryKiB: out.peakKiB,
	}
	switch {
	case out.memExceeded:
		res.Status = StatusCrash
		res.Message = "memory limit exceeded"
	case runCtx.Err() != nil:
		res.Status = StatusTimeout
		res.Message = fmt.Sprintf("time limit of %s exceeded", lim.Time)
	case out.signal != nil:
		res.Status = StatusCrash
		res.Message = fmt.Sprintf("killed by signal %d", *out.signal)
	case out.exitCode != 0:
		res.Status = StatusCrash
		res.Message = fmt.Sprintf("exited with code %d", out.exitCode)
	}
	return res, nil
}

func (r *ProcessRunner) freshDir(kind string) (string, error) {
	if err := os.MkdirAll(r.baseDir, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(r.baseDir, kind+"-*")
}

type procOutput struct {
	stdout      []byte
	stderr      []byte
	exitCode    int64
	signal      *int64
	wall        time.Duration
	cpu         time.Duration
	peakKiB     int64
	memExceeded bool
}

func (r *ProcessRunner) exec(ctx context.Context, dir, command string, stdin []byte, memLimitKiB int64) (*procOutput, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + dir,
		"TMPDIR=" + dir,
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if r.isolateNetwork {
		cmd.SysProcAttr.Cloneflags = syscall.CLONE_NEWUSER | syscall.CLONE_NEWNET
		cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getuid(), HostID: os.Getuid(), Size: 1}}
		cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getgid(), HostID: os.Getgid(), Size: 1}}
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 500 * time.Millisecond

	cmd.Stdin = bytes.NewReader(stdin)
	stdout := &limitedBuffer{limit: maxOutputBytes}
	stderr := &limitedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid

	var peak atomic.Int64
	var exceeded atomic.Bool
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		r.monitorMemory(monitorCtx, pid, memLimitKiB, &peak, &exceeded)
	}()

	waitErr := cmd.Wait()
	wall := time.Since(start)
	stopMonitor()
	<-monitorDone
	// reap anything the program left behind in its group
	_ = syscall.Kill(-pid, syscall.SIGKILL)

	out := &procOutput{
		stdout:      stdout.Bytes(),
		stderr:      stderr.Bytes(),
		wall:        wall,
		peakKiB:     peak.Load(),
		memExceeded: exceeded.Load(),
	}
	if st := cmd.ProcessState; st != nil {
		out.cpu = st.UserTime() + st.SystemTime()
		if ru, ok := st.SysUsage().(*syscall.Rusage); ok && ru.Maxrss > out.peakKiB {
			out.peakKiB = ru.Maxrss
		}
	}
	if memLimitKiB > 0 && out.peakKiB > memLimitKiB {
		out.memExceeded = true
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			if ctx.Err() != nil || errors.Is(waitErr, exec.ErrWaitDelay) {
				return out, nil
			}
			return nil, waitErr
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig := int64(ws.Signal())
			out.signal = &sig
		}
		out.exitCode = int64(exitErr.ExitCode())
	}
	return out, nil
}

// monitorMemory samples the resident memory of the process tree rooted at
// pid and kills the group once it exceeds limitKiB.
func (r *ProcessRunner) monitorMemory(ctx context.Context, pid int, limitKiB int64, peak *atomic.Int64, exceeded *atomic.Bool) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rss, err := treeRssKiB(int32(pid))
		if err != nil {
			continue
		}
		if rss > peak.Load() {
			peak.Store(rss)
		}
		if limitKiB > 0 && rss > limitKiB {
			exceeded.Store(true)
			_ = syscall.Kill(-pid, syscall.SIGKILL)
			return
		}
	}
}

func treeRssKiB(pid int32) (int64, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	total := int64(mem.RSS / 1024)
	children, _ := p.Children()
	for _, c := range children {
		if rss, err := treeRssKiB(c.Pid); err == nil {
			total += rss
		}
	}
	return total, nil
}

type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Buffer.Len()
	if room < len(p) {
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
