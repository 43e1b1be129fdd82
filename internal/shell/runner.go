package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Spec describes one external command invocation.
type Spec struct {
	Argv    []string
	Dir     string
	Env     []string // appended to the parent environment when non-nil
	Input   string   // written to stdin before the process runs
	Timeout time.Duration
}

// Result captures the outcome of a finished command. ExitCode is -1 when the
// process was killed before it could report one.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Elapsed  time.Duration
}

// Runner executes external commands. The concrete implementation is Exec;
// consumers hold the interface so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// Exec runs commands with os/exec. The zero value is usable.
type Exec struct{}

// Run executes spec to completion and captures stdout, stderr and their
// interleaved combination. A non-zero exit status is not an error: callers in
// this tool decide success from output, not from exit codes. Run errors only
// when the command cannot be started at all.
func (Exec) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("shell: empty command")
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if spec.Input != "" {
		cmd.Stdin = bytes.NewBufferString(spec.Input)
	}

	var stdout, stderr, combined bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &combined)
	cmd.Stderr = io.MultiWriter(&stderr, &combined)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		ExitCode: 0,
		Elapsed:  time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("shell: start %s: %w", spec.Argv[0], err)
	}
	return res, nil
}

// MustSucceed wraps a Result into an error when the command exited non-zero,
// carrying the captured output for diagnosis. Used for the few invocations
// where a failure is fatal to the run (e.g. resolving HEAD).
func MustSucceed(spec Spec, res Result) error {
	if res.ExitCode == 0 {
		return nil
	}
	return fmt.Errorf("shell: command %v exited with %d\nstdout:\n%s\nstderr:\n%s",
		spec.Argv, res.ExitCode, res.Stdout, res.Stderr)
}
