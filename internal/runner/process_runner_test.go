package runner_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/programme-lv/assessor/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shell = runner.Language{
	ID:        "sh",
	Name:      "POSIX shell",
	CodeFname: "main.sh",
	ExecCmd:   "sh main.sh",
}

// a "compiled" shell: syntax is checked at build time
var checkedShell = runner.Language{
	ID:            "sh-checked",
	Name:          "POSIX shell (checked)",
	CodeFname:     "main.sh",
	CompileCmd:    "sh -n main.sh && cp main.sh prog && chmod +x prog",
	CompiledFname: "prog",
	ExecCmd:       "sh ./prog",
}

func newProcessRunner(t *testing.T) *runner.ProcessRunner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return runner.NewProcessRunner(t.TempDir(), logger, runner.WithCompileTimeout(5*time.Second))
}

var defaultLimits = runner.Limits{Time: 2 * time.Second, MemoryKiB: 512 * 1024}

func TestProcessRunner_EchoesStdin(t *testing.T) {
	r := newProcessRunner(t)
	res, err := runner.Exec(context.Background(), r, shell, "cat", []byte("1 2\n3\n"), defaultLimits)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusOK, res.Status)
	assert.Equal(t, "1 2\n3\n", res.Stdout)
	assert.Equal(t, int64(0), res.ExitCode)
}

func TestProcessRunner_NonZeroExitIsCrash(t *testing.T) {
	r := newProcessRunner(t)
	res, err := runner.Exec(context.Background(), r, shell, "echo oops >&2; exit 3", nil, defaultLimits)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCrash, res.Status)
	assert.Equal(t, int64(3), res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Contains(t, res.Message, "exited with code 3")
}

func TestProcessRunner_Timeout(t *testing.T) {
	r := newProcessRunner(t)
	start := time.Now()
	res, err := runner.Exec(context.Background(), r, shell, "sleep 10", nil,
		runner.Limits{Time: 300 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, runner.StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessRunner_ParentCancellation(t *testing.T) {
	r := newProcessRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := runner.Exec(ctx, r, shell, "sleep 10", nil, runner.Limits{Time: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestProcessRunner_FreshDirectoryPerRun(t *testing.T) {
	r := newProcessRunner(t)
	ctx := context.Background()
	prog, err := r.Compile(ctx, shell, "ls; touch leftover")
	require.NoError(t, err)

	first, err := r.Run(ctx, prog, nil, defaultLimits)
	require.NoError(t, err)
	assert.NotContains(t, first.Stdout, "leftover")

	second, err := r.Run(ctx, prog, nil, defaultLimits)
	require.NoError(t, err)
	assert.NotContains(t, second.Stdout, "leftover")
}

func TestProcessRunner_EmptyEnvironment(t *testing.T) {
	t.Setenv("ASSESSOR_SECRET", "hunter2")
	r := newProcessRunner(t)
	res, err := runner.Exec(context.Background(), r, shell, "env", nil, defaultLimits)
	require.NoError(t, err)
	assert.NotContains(t, res.Stdout, "hunter2")
}

func TestProcessRunner_CompiledLanguage(t *testing.T) {
	r := newProcessRunner(t)
	ctx := context.Background()

	prog, err := r.Compile(ctx, checkedShell, "read x; echo $((x * 2))")
	require.NoError(t, err)
	require.NotNil(t, prog.Compilation)
	assert.Contains(t, prog.Files, "prog")

	res, err := r.Run(ctx, prog, []byte("21\n"), defaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Stdout)
}

func TestProcessRunner_CompileError(t *testing.T) {
	r := newProcessRunner(t)
	_, err := r.Compile(context.Background(), checkedShell, "if then fi (")

	var ce *runner.CompileError
	require.ErrorAs(t, err, &ce)
	assert.NotEqual(t, int64(0), ce.Report.ExitCode)
	assert.NotEmpty(t, ce.Message())
}
