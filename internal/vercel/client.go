// Package vercel talks to the Vercel CLI: listing deployments, correlating
// them to a git commit, and fetching build logs. There is no reliable
// structured API across CLI versions, so correlation tries JSON metadata
// first and falls back to scraping the human-readable deployment table.
package vercel

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bgdnvk/patchloop/internal/shell"
)

// Deployment is one entry of `vercel list --json`. Older CLIs name the
// identifier differently, and commit metadata lives under provider-specific
// meta keys, so everything is optional.
type Deployment struct {
	UID          string         `json:"uid"`
	ID           string         `json:"id"`
	DeploymentID string         `json:"deploymentId"`
	URL          string         `json:"url"`
	State        string         `json:"state"`
	Meta         map[string]any `json:"meta"`

	raw json.RawMessage
}

// Identifier returns whichever id field the CLI populated.
func (d Deployment) Identifier() string {
	for _, id := range []string{d.UID, d.ID, d.DeploymentID} {
		if id != "" {
			return id
		}
	}
	return d.URL
}

// metaCommitKeys are the fields Vercel fills with the source commit hash,
// depending on which git provider the project is linked to.
var metaCommitKeys = []string{
	"githubCommitSha",
	"gitlabCommitSha",
	"bitbucketCommitSha",
	"commit",
}

// CommitSHAs returns the commit hashes embedded in the deployment metadata.
func (d Deployment) CommitSHAs() []string {
	var shas []string
	for _, key := range metaCommitKeys {
		if v, ok := d.Meta[key].(string); ok && v != "" {
			shas = append(shas, v)
		}
	}
	return shas
}

// Client invokes the vercel CLI inside the repository directory so the
// linked project (.vercel/project.json) is picked up.
type Client struct {
	Dir    string
	Runner shell.Runner

	// Token and TeamID are exported to the CLI through its auth environment
	// variables when set.
	Token  string
	TeamID string

	Logf func(format string, args ...any)
}

func (c *Client) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Client) env() []string {
	var env []string
	if c.Token != "" {
		env = append(env, "VERCEL_AUTH_TOKEN="+c.Token)
	}
	if c.TeamID != "" {
		env = append(env, "VERCEL_TEAM_ID="+c.TeamID)
	}
	return env
}

func (c *Client) run(ctx context.Context, args ...string) (shell.Result, error) {
	return c.Runner.Run(ctx, shell.Spec{
		Argv: append([]string{"vercel"}, args...),
		Dir:  c.Dir,
		Env:  c.env(),
	})
}

// ListDeployments fetches a bounded listing of recent production deployments
// as structured data. A CLI failure or unparseable output returns nil with no
// error: the caller treats an empty listing as "try again later".
func (c *Client) ListDeployments(ctx context.Context) ([]Deployment, error) {
	res, err := c.run(ctx, "list", "--prod", "--json", "--limit", "20")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) == "" {
		c.logf("[vercel] `vercel list --json` failed or returned no data")
		if s := strings.TrimSpace(res.Stderr); s != "" {
			c.logf("[vercel] list stderr: %s", s)
		}
		return nil, nil
	}
	return parseDeploymentsJSON([]byte(res.Stdout)), nil
}

// parseDeploymentsJSON accepts both shapes the CLI has produced over time: a
// raw array, or an object wrapping it under "deployments".
func parseDeploymentsJSON(data []byte) []Deployment {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		var wrapped struct {
			Deployments []json.RawMessage `json:"deployments"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil
		}
		entries = wrapped.Deployments
	}

	deployments := make([]Deployment, 0, len(entries))
	for _, raw := range entries {
		var d Deployment
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		d.raw = raw
		deployments = append(deployments, d)
	}
	return deployments
}

// InspectLogs fetches the build log text for one deployment. Some CLI
// versions print logs on stderr, so stdout is preferred but stderr is the
// fallback. Empty logs are not an error.
func (c *Client) InspectLogs(ctx context.Context, id string) (string, error) {
	res, err := c.run(ctx, "inspect", id, "--logs", "--wait")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Stdout) != "" {
		return res.Stdout, nil
	}
	return res.Stderr, nil
}
