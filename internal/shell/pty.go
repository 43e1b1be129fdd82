package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// cursorProbe is the terminal escape sequence interactive CLIs emit to ask
// where the cursor is. A program that never gets an answer assumes it has no
// terminal and refuses to run, so the driver answers with a fixed dummy
// position and removes the probe from the captured output.
const (
	cursorProbe = "\x1b[6n"
	cursorReply = "\x1b[1;1R"
)

// confirmPrompt maps a phrase an interactive agent prints while waiting for a
// keystroke to the reply that unblocks it.
type confirmPrompt struct {
	phrase string
	reply  string
}

var defaultConfirmPrompts = []confirmPrompt{
	{phrase: "Would you like to run the following command?", reply: "y\n"},
	{phrase: "Press enter to confirm", reply: "\n"},
}

// PTYSpec describes a command that must believe it is attached to a real
// terminal.
type PTYSpec struct {
	Argv  []string
	Dir   string
	Env   []string
	Input string // primed once after spawn, followed by newline and EOT

	// Timeout is the hard deadline for the whole invocation. Zero means the
	// 2 minute default.
	Timeout time.Duration

	// AutoConfirm answers the known confirmation prompts as they appear.
	AutoConfirm bool

	// NudgeAfter is how long the child may stay silent before a bare newline
	// is sent to unstick a waiting prompt. Zero means the 30s default,
	// negative disables nudging.
	NudgeAfter time.Duration

	Logf func(format string, args ...any)
}

// PTYResult reports what the child did. Output has every cursor probe
// removed. A timeout is not an error: TimedOut/Killed record the escalation
// and ExitCode reflects whatever the process actually returned.
type PTYResult struct {
	Output   string
	ExitCode int
	TimedOut bool
	Killed   bool
	Elapsed  time.Duration
}

const (
	ptyPollSlice    = 100 * time.Millisecond
	ptyKillGrace    = 3 * time.Second
	ptyHeartbeat    = 10 * time.Second
	ptyDrainWindow  = 500 * time.Millisecond
	ptyDefaultLimit = 2 * time.Minute
	ptyDefaultNudge = 30 * time.Second
)

// RunPTY runs spec.Argv attached to a pseudo-terminal. The child's stdin,
// stdout and stderr are all bound to the subordinate side. A single polling
// loop owns all state: it services the timeout, the liveness heartbeat, the
// silence nudge and prompt auto-answers on every 100ms slice, then drains
// trailing output once the child is gone. The terminal descriptor is released
// on every exit path.
func RunPTY(ctx context.Context, spec PTYSpec) (PTYResult, error) {
	if len(spec.Argv) == 0 {
		return PTYResult{ExitCode: -1}, fmt.Errorf("shell: empty command")
	}
	logf := spec.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = ptyDefaultLimit
	}
	nudgeAfter := spec.NudgeAfter
	if nudgeAfter == 0 {
		nudgeAfter = ptyDefaultNudge
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return PTYResult{ExitCode: -1}, fmt.Errorf("shell: start %s on pty: %w", spec.Argv[0], err)
	}
	defer ptmx.Close()

	// Give the child a believable window size: mirror the operator's
	// terminal when there is one, otherwise a sane fixed size.
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		_ = pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(w), Rows: uint16(h)})
	} else {
		_ = pty.Setsize(ptmx, &pty.Winsize{Cols: 120, Rows: 40})
	}

	// One-shot priming: the target program reads its task from stdin once,
	// so write it immediately and follow with EOT to close the "file".
	if spec.Input != "" {
		_, _ = ptmx.WriteString(spec.Input)
		_, _ = ptmx.WriteString("\n")
		_, _ = ptmx.WriteString("\x04")
	}

	// Reader goroutine feeds chunks to the polling loop; it exits when the
	// child closes its side of the terminal.
	readCh := make(chan []byte, 16)
	go func() {
		defer close(readCh)
		for {
			buf := make([]byte, 1024)
			n, err := ptmx.Read(buf)
			if n > 0 {
				readCh <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var output bytes.Buffer
	start := time.Now()
	lastOutput := start
	lastHeartbeat := start
	deadline := start.Add(timeout)

	res := PTYResult{ExitCode: -1}
	var waitErr error
	exited := false
	readOpen := true
	var terminatedAt time.Time

	ticker := time.NewTicker(ptyPollSlice)
	defer ticker.Stop()

	handleChunk := func(chunk []byte) {
		if bytes.Contains(chunk, []byte(cursorProbe)) {
			_, _ = ptmx.WriteString(cursorReply)
			chunk = bytes.ReplaceAll(chunk, []byte(cursorProbe), nil)
		}
		if len(chunk) > 0 {
			lastOutput = time.Now()
		}
		output.Write(chunk)
		if spec.AutoConfirm {
			for _, p := range defaultConfirmPrompts {
				if bytes.Contains(chunk, []byte(p.phrase)) {
					_, _ = ptmx.WriteString(p.reply)
				}
			}
		}
	}

poll:
	for {
		select {
		case <-ctx.Done():
			res.TimedOut = true
			res.Killed = true
			_ = cmd.Process.Kill()
			waitErr = <-waitCh
			exited = true
			break poll
		case chunk, ok := <-readCh:
			if !ok {
				readOpen = false
				break poll
			}
			handleChunk(chunk)
		case waitErr = <-waitCh:
			exited = true
			break poll
		case <-ticker.C:
			now := time.Now()
			if now.After(deadline) && !res.TimedOut {
				res.TimedOut = true
				terminatedAt = now
				logf("[pty] command exceeded timeout; terminating...")
				_ = cmd.Process.Signal(syscall.SIGTERM)
			}
			if res.TimedOut && !res.Killed && !terminatedAt.IsZero() && now.Sub(terminatedAt) > ptyKillGrace {
				res.Killed = true
				logf("[pty] process did not exit; killing...")
				_ = cmd.Process.Kill()
			}
			if now.Sub(lastOutput) > ptyHeartbeat && now.Sub(lastHeartbeat) > ptyHeartbeat {
				logf("[pty] command still running (no new output)...")
				lastHeartbeat = now
			}
			if nudgeAfter > 0 && now.Sub(lastOutput) > nudgeAfter {
				_, _ = ptmx.WriteString("\n")
				lastOutput = now
				logf("[pty] sent newline to nudge interactive prompt")
			}
		}
	}

	// Final drain: the child may have exited with output still buffered on
	// the terminal. Stop when the reader closes or goes quiet.
	if readOpen {
	drain:
		for {
			select {
			case chunk, ok := <-readCh:
				if !ok {
					break drain
				}
				handleChunk(chunk)
			case <-time.After(ptyDrainWindow):
				break drain
			}
		}
	}

	if !exited {
		select {
		case waitErr = <-waitCh:
		case <-time.After(2 * time.Second):
			_ = cmd.Process.Kill()
			res.Killed = true
			waitErr = <-waitCh
		}
	}

	res.ExitCode = exitCodeFrom(waitErr)
	res.Elapsed = time.Since(start)
	// Probes that straddled read boundaries were answered late or not at
	// all, but they must never reach the captured logs.
	res.Output = strings.ReplaceAll(output.String(), cursorProbe, "")
	return res, nil
}

func exitCodeFrom(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
