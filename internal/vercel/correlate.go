package vercel

import (
	"context"
	"encoding/json"
	"strings"
)

// Match reports which deployment corresponds to a commit and how the link
// was established.
type Match struct {
	DeploymentID string
	Source       string // "vercel-json", "vercel-json-fuzzy" or "vercel-table"
}

// DeploymentForCommit finds the deployment built from the commit with the
// given short hash. It tries the structured listing first, then falls back to
// scraping the plain-text table and inspecting each candidate's logs. A nil
// result with a nil error means no match within the bounded search; the
// caller sleeps and retries.
func (c *Client) DeploymentForCommit(ctx context.Context, shortSHA string) (*Match, error) {
	c.logf("[vercel] looking for deployment of commit %s...", shortSHA)

	deployments, err := c.ListDeployments(ctx)
	if err != nil {
		return nil, err
	}

	// Structured pass: provider commit metadata, first prefix match wins.
	for _, d := range deployments {
		for _, sha := range d.CommitSHAs() {
			if strings.HasPrefix(sha, shortSHA) {
				c.logf("[vercel] matched commit %s to deployment %s", shortSHA, d.Identifier())
				return &Match{DeploymentID: d.Identifier(), Source: "vercel-json"}, nil
			}
		}
	}

	// Fuzzy pass: the hash may hide in a field we do not model, so search
	// the whole serialized entry.
	for _, d := range deployments {
		var blob []byte
		if len(d.raw) > 0 {
			blob = d.raw
		} else {
			blob, _ = json.Marshal(d)
		}
		if strings.Contains(string(blob), shortSHA) {
			c.logf("[vercel] fuzzy match commit %s -> deployment %s", shortSHA, d.Identifier())
			return &Match{DeploymentID: d.Identifier(), Source: "vercel-json-fuzzy"}, nil
		}
	}

	if len(deployments) > 0 {
		c.logf("[vercel] no deployment found for commit %s in structured listing", shortSHA)
	}

	return c.correlateFromTable(ctx, shortSHA)
}

// correlateFromTable handles CLIs without --json support: parse candidate
// ids out of the `vercel list` table, then inspect each one's logs for the
// commit hash, in listing order, stopping at the first hit.
func (c *Client) correlateFromTable(ctx context.Context, shortSHA string) (*Match, error) {
	res, err := c.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) == "" {
		c.logf("[vercel] `vercel list` failed or returned no data")
		return nil, nil
	}

	candidates := ParseListTable(res.Stdout)
	if len(candidates) == 0 {
		c.logf("[vercel] could not parse any deployment ids from `vercel list`")
		return nil, nil
	}
	c.logf("[vercel] parsed %d deployment candidate(s) from `vercel list`", len(candidates))

	for _, id := range candidates {
		logs, err := c.InspectLogs(ctx, id)
		if err != nil {
			return nil, err
		}
		if strings.Contains(logs, shortSHA) {
			c.logf("[vercel] matched commit %s to deployment %s", shortSHA, id)
			return &Match{DeploymentID: id, Source: "vercel-table"}, nil
		}
	}

	c.logf("[vercel] no deployment found for commit %s in %d candidate(s)", shortSHA, len(candidates))
	return nil, nil
}

// LogsForCommit combines correlation and log retrieval: the raw build log
// text for the deployment of the given commit, or "" when no deployment
// matched or it produced no logs yet.
func (c *Client) LogsForCommit(ctx context.Context, shortSHA string) (string, error) {
	match, err := c.DeploymentForCommit(ctx, shortSHA)
	if err != nil {
		return "", err
	}
	if match == nil {
		return "", nil
	}
	c.logf("[vercel] inspecting deployment %s...", match.DeploymentID)
	return c.InspectLogs(ctx, match.DeploymentID)
}
