package fixer

import (
	"context"
	"strings"
	"testing"

	"github.com/bgdnvk/patchloop/internal/shell"
)

type cannedRunner struct {
	res   shell.Result
	specs []shell.Spec
}

func (c *cannedRunner) Run(_ context.Context, spec shell.Spec) (shell.Result, error) {
	c.specs = append(c.specs, spec)
	return c.res, nil
}

func TestPipedFeedsLogsOnStdin(t *testing.T) {
	runner := &cannedRunner{res: shell.Result{Stdout: "patched two files"}}
	agent := &Piped{Dir: "/repo", Command: []string{"myfixer"}, Runner: runner}

	ran, err := agent.Apply(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("agent should report it ran")
	}
	if len(runner.specs) != 1 || runner.specs[0].Input != "Error: build failed" {
		t.Errorf("specs = %+v", runner.specs)
	}
}

func TestPipedNoChangesMarker(t *testing.T) {
	tests := []struct {
		name string
		res  shell.Result
	}{
		{"marker on stdout", shell.Result{Stdout: "all good\nNO_CHANGES\n", Combined: "all good\nNO_CHANGES\n"}},
		{"lowercase marker", shell.Result{Combined: "no_changes"}},
		{"non-zero exit", shell.Result{Combined: "something broke", ExitCode: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &Piped{Command: []string{"myfixer"}, Runner: &cannedRunner{res: tt.res}}
			ran, err := agent.Apply(context.Background(), "logs")
			if err != nil {
				t.Fatal(err)
			}
			if ran {
				t.Error("agent must report no change")
			}
		})
	}
}

func TestPipedRetriesOnPTYWhenTerminalDemanded(t *testing.T) {
	runner := &cannedRunner{res: shell.Result{
		Combined: "Error: stdin is not interactive, cursor position unknown",
		ExitCode: 1,
	}}

	var ptySpec *shell.PTYSpec
	agent := &Piped{
		Dir:     "/repo",
		Command: []string{"myfixer", "--tui"},
		Runner:  runner,
		runPTY: func(_ context.Context, spec shell.PTYSpec) (shell.PTYResult, error) {
			ptySpec = &spec
			return shell.PTYResult{Output: "applied a fix", ExitCode: 0}, nil
		},
	}

	ran, err := agent.Apply(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatal(err)
	}
	if ptySpec == nil {
		t.Fatal("expected a pty retry")
	}
	if !ptySpec.AutoConfirm {
		t.Error("pty retry should auto-answer confirmation prompts")
	}
	if ptySpec.Input != "Error: build failed" {
		t.Errorf("pty input = %q", ptySpec.Input)
	}
	if !ran {
		t.Error("successful pty retry should report ran")
	}
}

func TestPipedNoPTYRetryOnPlainFailure(t *testing.T) {
	agent := &Piped{
		Command: []string{"myfixer"},
		Runner:  &cannedRunner{res: shell.Result{Combined: "segfault", ExitCode: 1}},
		runPTY: func(_ context.Context, _ shell.PTYSpec) (shell.PTYResult, error) {
			t.Fatal("pty retry must only happen on terminal demands")
			return shell.PTYResult{}, nil
		},
	}
	ran, err := agent.Apply(context.Background(), "logs")
	if err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("failed agent must report no change")
	}
}

func TestDemandsTerminal(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"Error: output is not a tty", true},
		{"could not read cursor position", true},
		{"Raw mode is not supported on this device", true},
		{"Error: module not found", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := demandsTerminal(tt.output); got != tt.want {
			t.Errorf("demandsTerminal(%q) = %v, want %v", tt.output, got, tt.want)
		}
	}
}

func TestOneShotDeclinesOnNonZeroExit(t *testing.T) {
	agent := &OneShot{Dir: "/repo", Runner: &cannedRunner{res: shell.Result{ExitCode: 1}}}
	ran, err := agent.Apply(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("non-zero exit must report no change")
	}
}

func TestOneShotBuildsTask(t *testing.T) {
	runner := &cannedRunner{res: shell.Result{Stdout: "done"}}
	agent := &OneShot{Dir: "/repo", Runner: runner}

	ran, err := agent.Apply(context.Background(), "Error: exit code 1")
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("clean exit must report ran")
	}

	spec := runner.specs[0]
	if spec.Argv[0] != "codex" || spec.Argv[1] != "exec" {
		t.Errorf("argv = %v", spec.Argv)
	}
	task := spec.Argv[len(spec.Argv)-1]
	if !strings.Contains(task, "Error: exit code 1") || !strings.Contains(task, "DO NOT commit") {
		t.Errorf("task = %q", task)
	}
}
