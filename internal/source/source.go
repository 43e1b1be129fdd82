// Package source resolves "the build logs for the commit I just pushed". It
// chains the correlation paths in order of reliability: the GitHub
// deployments API when a token is configured, then the Vercel CLI's
// structured listing, then the text-table fallback.
package source

import (
	"context"
	"strings"

	"github.com/bgdnvk/patchloop/internal/gitrepo"
	"github.com/bgdnvk/patchloop/internal/vercel"
)

// HeadResolver yields the current commit. Strict: failure here is fatal.
type HeadResolver interface {
	Head(ctx context.Context) (gitrepo.Commit, error)
}

// Platform is the slice of vercel.Client the source needs.
type Platform interface {
	DeploymentForCommit(ctx context.Context, shortSHA string) (*vercel.Match, error)
	InspectLogs(ctx context.Context, id string) (string, error)
}

// CommitIndex is an optional structured index of commit → deployment URL
// (the GitHub deployments API). Errors and misses both fall through to the
// Platform paths.
type CommitIndex interface {
	DeploymentURLForCommit(ctx context.Context, sha string) (string, error)
}

type Deployments struct {
	Repo   HeadResolver
	Vercel Platform
	Index  CommitIndex // nil when not configured
	Logf   func(format string, args ...any)
}

func (d *Deployments) logf(format string, args ...any) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

// Resolve correlates the current HEAD to a deployment. A nil match with a
// nil error means nothing was found within the bounded search.
func (d *Deployments) Resolve(ctx context.Context) (gitrepo.Commit, *vercel.Match, error) {
	head, err := d.Repo.Head(ctx)
	if err != nil {
		return gitrepo.Commit{}, nil, err
	}

	if d.Index != nil {
		url, err := d.Index.DeploymentURLForCommit(ctx, head.Full)
		if err != nil {
			d.logf("[source] github lookup failed, falling back to vercel cli: %v", err)
		} else if url != "" {
			d.logf("[source] matched commit %s via github deployments api", head.Short)
			return head, &vercel.Match{DeploymentID: url, Source: "github-api"}, nil
		}
	}

	match, err := d.Vercel.DeploymentForCommit(ctx, head.Short)
	if err != nil {
		return head, nil, err
	}
	return head, match, nil
}

// Logs implements the loop's LogSource: the raw build logs for the current
// commit's deployment, or "" when the deployment is not visible (or has no
// logs) yet.
func (d *Deployments) Logs(ctx context.Context) (string, string, error) {
	_, match, err := d.Resolve(ctx)
	if err != nil {
		return "", "", err
	}
	if match == nil {
		return "", "", nil
	}

	logs, err := d.Vercel.InspectLogs(ctx, match.DeploymentID)
	if err != nil {
		return match.DeploymentID, "", err
	}
	if strings.TrimSpace(logs) == "" {
		d.logf("[source] no logs returned for deployment %s", match.DeploymentID)
		return match.DeploymentID, "", nil
	}
	return match.DeploymentID, logs, nil
}
