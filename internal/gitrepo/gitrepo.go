// Package gitrepo wraps the git operations the loop needs: resolving HEAD,
// sampling working-tree dirtiness, and publishing the agent's edits.
package gitrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/bgdnvk/patchloop/internal/shell"
)

// Commit identifies the current HEAD in both short and full form.
type Commit struct {
	Short string
	Full  string
}

// Repo operates on one local working tree.
type Repo struct {
	Dir    string
	Runner shell.Runner
}

func New(dir string, runner shell.Runner) *Repo {
	return &Repo{Dir: dir, Runner: runner}
}

func (r *Repo) git(ctx context.Context, args ...string) (shell.Result, error) {
	return r.Runner.Run(ctx, shell.Spec{
		Argv: append([]string{"git"}, args...),
		Dir:  r.Dir,
	})
}

// Head returns the current commit. Failing to resolve HEAD means the tool is
// not pointed at a usable repository, so this is strict.
func (r *Repo) Head(ctx context.Context) (Commit, error) {
	spec := shell.Spec{Argv: []string{"git", "rev-parse", "--short=7", "HEAD"}, Dir: r.Dir}
	short, err := r.Runner.Run(ctx, spec)
	if err != nil {
		return Commit{}, err
	}
	if err := shell.MustSucceed(spec, short); err != nil {
		return Commit{}, err
	}

	spec = shell.Spec{Argv: []string{"git", "rev-parse", "HEAD"}, Dir: r.Dir}
	full, err := r.Runner.Run(ctx, spec)
	if err != nil {
		return Commit{}, err
	}
	if err := shell.MustSucceed(spec, full); err != nil {
		return Commit{}, err
	}

	return Commit{
		Short: strings.TrimSpace(short.Stdout),
		Full:  strings.TrimSpace(full.Stdout),
	}, nil
}

// HasChanges reports whether the working tree differs from HEAD, staged or
// not. git diff --quiet exits 1 when differences exist.
func (r *Repo) HasChanges(ctx context.Context) (bool, error) {
	unstaged, err := r.git(ctx, "diff", "--quiet")
	if err != nil {
		return false, err
	}
	if unstaged.ExitCode != 0 {
		return true, nil
	}
	staged, err := r.git(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	return staged.ExitCode != 0, nil
}

// CommitMessage is the fixed message used for every auto-fix commit.
const CommitMessage = "chore: auto-fix based on deployment build logs"

// CommitAndPush stages everything, commits, and pushes. It returns false when
// there was nothing to commit. Any other commit failure, and any push failure
// after a commit was created, is fatal: the local repository may now be ahead
// of the remote with no automatic rollback.
func (r *Repo) CommitAndPush(ctx context.Context, remote, branch string) (bool, error) {
	addSpec := shell.Spec{Argv: []string{"git", "add", "-A"}, Dir: r.Dir}
	add, err := r.Runner.Run(ctx, addSpec)
	if err != nil {
		return false, err
	}
	if err := shell.MustSucceed(addSpec, add); err != nil {
		return false, err
	}

	commit, err := r.git(ctx, "commit", "-m", CommitMessage)
	if err != nil {
		return false, err
	}
	if commit.ExitCode != 0 {
		out := strings.ToLower(commit.Stdout + commit.Stderr)
		if strings.Contains(out, "nothing to commit") {
			return false, nil
		}
		return false, fmt.Errorf("gitrepo: commit failed:\nstdout:\n%s\nstderr:\n%s", commit.Stdout, commit.Stderr)
	}

	push, err := r.git(ctx, "push", remote, branch)
	if err != nil {
		return false, err
	}
	if push.ExitCode != 0 {
		return false, fmt.Errorf("gitrepo: push to %s %s failed:\nstdout:\n%s\nstderr:\n%s",
			remote, branch, push.Stdout, push.Stderr)
	}
	return true, nil
}
