// Package github queries the GitHub API for deployment records. When the
// repository is linked through the Vercel GitHub integration, every pushed
// commit gets a deployment whose status carries the deployment URL — a more
// reliable correlation source than scraping CLI output, used first when a
// token is configured.
package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v56/github"
	"golang.org/x/oauth2"
)

type Client struct {
	client *github.Client
	owner  string
	repo   string
}

func NewClient(token, owner, repo string) *Client {
	var client *github.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &Client{
		client: client,
		owner:  owner,
		repo:   repo,
	}
}

// DeploymentURLForCommit returns the deployment URL the platform reported
// for the given commit, or "" when GitHub has no deployment (or no status
// with a URL) for it yet. Callers treat "" and errors alike as "fall back to
// the CLI listing".
func (c *Client) DeploymentURLForCommit(ctx context.Context, sha string) (string, error) {
	deployments, _, err := c.client.Repositories.ListDeployments(ctx, c.owner, c.repo, &github.DeploymentsListOptions{
		SHA:         sha,
		ListOptions: github.ListOptions{PerPage: 5},
	})
	if err != nil {
		return "", fmt.Errorf("github: list deployments for %s: %w", sha, err)
	}

	for _, dep := range deployments {
		statuses, _, err := c.client.Repositories.ListDeploymentStatuses(ctx, c.owner, c.repo, dep.GetID(), &github.ListOptions{PerPage: 5})
		if err != nil {
			return "", fmt.Errorf("github: list statuses for deployment %d: %w", dep.GetID(), err)
		}
		for _, st := range statuses {
			if url := st.GetEnvironmentURL(); url != "" {
				return url, nil
			}
			if url := st.GetTargetURL(); url != "" {
				return url, nil
			}
		}
	}
	return "", nil
}
