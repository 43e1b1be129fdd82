package fixer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bgdnvk/patchloop/internal/shell"
)

// OneShot drives the codex CLI in its non-interactive exec mode: one
// invocation carrying the whole task, file edits allowed, no commits.
type OneShot struct {
	Dir     string
	Runner  shell.Runner
	Timeout time.Duration
	Logf    func(format string, args ...any)
}

func (a *OneShot) Name() string { return "codex-exec" }

func (a *OneShot) logf(format string, args ...any) {
	if a.Logf != nil {
		a.Logf(format, args...)
	}
}

func (a *OneShot) Apply(ctx context.Context, logs string) (bool, error) {
	task := buildTask(logs)

	res, err := a.Runner.Run(ctx, shell.Spec{
		Argv: []string{
			"codex", "exec",
			"--full-auto",
			"--sandbox", "workspace-write",
			task,
		},
		Dir:     a.Dir,
		Timeout: a.Timeout,
	})
	if err != nil {
		return false, err
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		a.logf("[codex] %s", out)
	}
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		a.logf("[codex] activity: %s", errOut)
	}

	if res.ExitCode != 0 {
		a.logf("[codex] exited with %d, treating as no further changes", res.ExitCode)
		return false, nil
	}
	return true, nil
}

func buildTask(logs string) string {
	return fmt.Sprintf(
		"You are running in a CI autofix loop for a Vercel deployment.\n\n"+
			"The build or deployment has failed. Your goal:\n"+
			"1. Read the build logs.\n"+
			"2. Identify the root cause of the failure.\n"+
			"3. Modify files in this Git repository to fix the issue.\n"+
			"4. DO NOT commit; just edit files. A separate step will commit and push.\n\n"+
			"Here are the Vercel logs:\n\n%s\n", logs)
}
