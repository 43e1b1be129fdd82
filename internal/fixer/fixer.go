// Package fixer hands failing build logs to an external code-modification
// agent and reports whether the working tree changed. The agent variant is
// chosen at construction time; the invoker owns everything the variants
// share: the log snapshot file, the dirty-tree baseline, and the final
// change predicate.
package fixer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SnapshotFile is written into the repository root before every agent
// invocation so a file-oriented agent has durable context. It gets staged
// and pushed along with the fix.
const SnapshotFile = "dev_debug_logs.md"

// Agent attempts to modify the working tree based on failing logs.
// Apply returns false when the agent affirmatively declined to change
// anything (a no-op marker in its output, or a non-zero exit). Declining is
// never an error; errors are reserved for the invocation itself going wrong.
type Agent interface {
	Name() string
	Apply(ctx context.Context, logs string) (bool, error)
}

// Worktree is the slice of gitrepo the invoker needs.
type Worktree interface {
	HasChanges(ctx context.Context) (bool, error)
}

// Invoker wraps an Agent with the shared pre/post bookkeeping.
type Invoker struct {
	Agent Agent
	Tree  Worktree
	Dir   string
	Logf  func(format string, args ...any)

	now func() time.Time
}

func (inv *Invoker) logf(format string, args ...any) {
	if inv.Logf != nil {
		inv.Logf(format, args...)
	}
}

// Fix runs the agent on the logs and reports whether the working tree holds
// changes worth publishing. Empty logs are a no-op. A pre-existing dirty
// tree still counts as publishable when the agent ran: the publisher's
// "nothing to commit" check is the final arbiter of forward progress.
func (inv *Invoker) Fix(ctx context.Context, logs string) (bool, error) {
	if strings.TrimSpace(logs) == "" {
		inv.logf("[fixer] no logs to hand to the agent, skipping")
		return false, nil
	}

	inv.writeSnapshot(logs)

	hadChangesBefore, err := inv.Tree.HasChanges(ctx)
	if err != nil {
		return false, err
	}

	inv.logf("[fixer] running %s agent on latest build logs...", inv.Agent.Name())
	ran, err := inv.Agent.Apply(ctx, logs)
	if err != nil {
		return false, err
	}
	if !ran {
		inv.logf("[fixer] %s reports no changes needed", inv.Agent.Name())
		return false, nil
	}

	hasChangesAfter, err := inv.Tree.HasChanges(ctx)
	if err != nil {
		return false, err
	}
	if !hasChangesAfter && !hadChangesBefore {
		inv.logf("[fixer] %s made no file changes", inv.Agent.Name())
		return false, nil
	}

	inv.logf("[fixer] %s appears to have modified the repo", inv.Agent.Name())
	return true, nil
}

// writeSnapshot persists the logs as Markdown. Best-effort: a write failure
// is logged and swallowed, it must never abort the run.
func (inv *Invoker) writeSnapshot(logs string) {
	now := time.Now
	if inv.now != nil {
		now = inv.now
	}
	path := filepath.Join(inv.Dir, SnapshotFile)
	content := fmt.Sprintf("# Vercel build logs\n\nFetched: %s\n\n```\n%s\n```\n",
		now().UTC().Format("2006-01-02 15:04:05 MST"), logs)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		inv.logf("[fixer] could not write log snapshot %s: %v", path, err)
		return
	}
	inv.logf("[fixer] wrote logs to %s for agent context", path)
}
