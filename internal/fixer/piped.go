package fixer

import (
	"context"
	"strings"
	"time"

	"github.com/bgdnvk/patchloop/internal/shell"
)

// noChangeMarker is the conventional token a piped agent prints when the
// logs need no fix.
const noChangeMarker = "NO_CHANGES"

// terminalDemands are the phrases an agent prints when a plain pipe is not
// enough and it wants a real terminal.
var terminalDemands = []string{
	"not a tty",
	"not a terminal",
	"cursor position",
	"raw mode is not supported",
	"stdin is not interactive",
}

// Piped feeds the logs to an arbitrary agent command on stdin. If the plain
// invocation complains about the missing terminal, it is retried once
// through the pseudo-terminal driver.
type Piped struct {
	Dir     string
	Command []string
	Runner  shell.Runner
	Timeout time.Duration
	Logf    func(format string, args ...any)

	// runPTY is injectable for tests; defaults to shell.RunPTY.
	runPTY func(ctx context.Context, spec shell.PTYSpec) (shell.PTYResult, error)
}

func (a *Piped) Name() string { return "piped" }

func (a *Piped) logf(format string, args ...any) {
	if a.Logf != nil {
		a.Logf(format, args...)
	}
}

func (a *Piped) Apply(ctx context.Context, logs string) (bool, error) {
	res, err := a.Runner.Run(ctx, shell.Spec{
		Argv:    a.Command,
		Dir:     a.Dir,
		Input:   logs,
		Timeout: a.Timeout,
	})
	if err != nil {
		return false, err
	}
	output := res.Combined
	exitCode := res.ExitCode

	if demandsTerminal(output) {
		a.logf("[agent] command wants a real terminal, retrying on a pty...")
		runPTY := a.runPTY
		if runPTY == nil {
			runPTY = shell.RunPTY
		}
		pres, err := runPTY(ctx, shell.PTYSpec{
			Argv:        a.Command,
			Dir:         a.Dir,
			Input:       logs,
			Timeout:     a.Timeout,
			AutoConfirm: true,
			Logf:        a.Logf,
		})
		if err != nil {
			return false, err
		}
		output = pres.Output
		exitCode = pres.ExitCode
		if pres.TimedOut {
			a.logf("[agent] pty run hit the %s timeout (killed=%v)", a.Timeout, pres.Killed)
		}
	}

	if out := strings.TrimSpace(output); out != "" {
		a.logf("[agent] %s", out)
	}

	if strings.Contains(strings.ToUpper(output), noChangeMarker) {
		return false, nil
	}
	if exitCode != 0 {
		a.logf("[agent] exited with %d, treating as no further changes", exitCode)
		return false, nil
	}
	return true, nil
}

func demandsTerminal(output string) bool {
	lower := strings.ToLower(output)
	for _, phrase := range terminalDemands {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
