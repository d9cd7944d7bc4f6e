package isolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// MaxOutputBytes caps how much of stdout and stderr is kept per run.
const MaxOutputBytes = 64 << 20

type Cmd struct {
	box         *Box
	command     string
	Constraints Constraints
}

type Output struct {
	Stdout  []byte
	Stderr  []byte
	Metrics *Metrics
}

// Run executes the command with stdin and waits for it. Failures of the
// sandboxed program are reported through Metrics; a non-nil error means
// isolate itself failed.
func (c *Cmd) Run(ctx context.Context, stdin []byte) (*Output, error) {
	metaFilePath, err := newTempIsolateFilePath()
	if err != nil {
		return nil, err
	}
	defer os.Remove(metaFilePath)

	args := []string{
		"--cg",
		"--box-id", strconv.Itoa(c.box.id),
		"--env=HOME=/box",
		"--env=PATH=/usr/local/bin:/usr/bin:/bin",
		"--meta=" + metaFilePath,
	}
	args = append(args, c.Constraints.Args()...)
	args = append(args, "--run", "--", "/bin/sh", "-c", c.command)

	cmd := exec.CommandContext(ctx, c.box.isolate.bin, args...)
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(stdin)
	stdout := &cappedBuffer{limit: MaxOutputBytes}
	stderr := &cappedBuffer{limit: MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
	}

	metaFileBytes, err := os.ReadFile(metaFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read isolate meta file: %w", err)
	}
	metrics, err := parseMetaFile(metaFileBytes)
	if err != nil {
		return nil, err
	}
	if metrics.Status == StatusInternalError {
		return nil, fmt.Errorf("isolate internal error: %s", metrics.Message)
	}

	return &Output{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Metrics: metrics,
	}, nil
}

func newTempIsolateFilePath() (string, error) {
	file, err := os.CreateTemp("", "isolate.*.txt")
	if err != nil {
		return "", err
	}
	err = file.Close()
	if err != nil {
		return "", err
	}
	return file.Name(), nil
}

// cappedBuffer silently drops bytes past its limit so that a flood of
// output cannot exhaust host memory.
type cappedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.limit - b.Buffer.Len(); room < len(p) {
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return n, nil
	}
	b.Buffer.Write(p)
	return n, nil
}
