package fixer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeTree struct {
	// states is consumed one HasChanges call at a time.
	states []bool
	calls  int
}

func (f *fakeTree) HasChanges(context.Context) (bool, error) {
	state := f.states[f.calls]
	if f.calls < len(f.states)-1 {
		f.calls++
	}
	return state, nil
}

type fakeAgent struct {
	ran    bool
	called bool
}

func (f *fakeAgent) Name() string { return "fake" }
func (f *fakeAgent) Apply(context.Context, string) (bool, error) {
	f.called = true
	return f.ran, nil
}

func TestFixEmptyLogsIsNoOp(t *testing.T) {
	agent := &fakeAgent{ran: true}
	inv := &Invoker{Agent: agent, Tree: &fakeTree{states: []bool{false}}, Dir: t.TempDir()}

	changed, err := inv.Fix(context.Background(), "   \n")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("empty logs must report no change")
	}
	if agent.called {
		t.Error("agent must not run on empty logs")
	}
}

func TestFixCleanBeforeAndAfterIsNoChange(t *testing.T) {
	// Scenario: agent runs but leaves the tree identical to the clean
	// baseline.
	inv := &Invoker{
		Agent: &fakeAgent{ran: true},
		Tree:  &fakeTree{states: []bool{false, false}},
		Dir:   t.TempDir(),
	}
	changed, err := inv.Fix(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("clean before and after must report no change")
	}
}

func TestFixDirtyAfterReportsChange(t *testing.T) {
	inv := &Invoker{
		Agent: &fakeAgent{ran: true},
		Tree:  &fakeTree{states: []bool{false, true}},
		Dir:   t.TempDir(),
	}
	changed, err := inv.Fix(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("newly dirty tree must report change")
	}
}

func TestFixAgentDeclinedWins(t *testing.T) {
	// Agent said NO_CHANGES; a pre-existing dirty tree must not override
	// that.
	inv := &Invoker{
		Agent: &fakeAgent{ran: false},
		Tree:  &fakeTree{states: []bool{true, true}},
		Dir:   t.TempDir(),
	}
	changed, err := inv.Fix(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("declined agent must report no change")
	}
}

func TestFixWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	inv := &Invoker{
		Agent: &fakeAgent{ran: true},
		Tree:  &fakeTree{states: []bool{false, true}},
		Dir:   dir,
		now:   func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	logs := "Error: Command \"npm run build\" exited with 1"
	if _, err := inv.Fix(context.Background(), logs); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, SnapshotFile))
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "# Vercel build logs") {
		t.Errorf("missing heading:\n%s", content)
	}
	if !strings.Contains(content, "2024-05-01 12:00:00") {
		t.Errorf("missing timestamp:\n%s", content)
	}
	if !strings.Contains(content, logs) {
		t.Errorf("logs not embedded verbatim:\n%s", content)
	}
}

func TestFixSnapshotFailureIsNotFatal(t *testing.T) {
	inv := &Invoker{
		Agent: &fakeAgent{ran: true},
		Tree:  &fakeTree{states: []bool{false, true}},
		Dir:   filepath.Join(t.TempDir(), "does", "not", "exist"),
	}
	changed, err := inv.Fix(context.Background(), "Error: build failed")
	if err != nil {
		t.Fatalf("snapshot write failure must be swallowed, got %v", err)
	}
	if !changed {
		t.Error("fix result must not depend on the snapshot")
	}
}
