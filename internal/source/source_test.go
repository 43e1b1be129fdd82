package source

import (
	"context"
	"errors"
	"testing"

	"github.com/bgdnvk/patchloop/internal/gitrepo"
	"github.com/bgdnvk/patchloop/internal/vercel"
)

type fixedHead struct {
	commit gitrepo.Commit
	err    error
}

func (h fixedHead) Head(context.Context) (gitrepo.Commit, error) { return h.commit, h.err }

type fakePlatform struct {
	match       *vercel.Match
	matchErr    error
	logs        string
	logsErr     error
	matchCalls  int
	inspectedID string
}

func (p *fakePlatform) DeploymentForCommit(_ context.Context, _ string) (*vercel.Match, error) {
	p.matchCalls++
	return p.match, p.matchErr
}

func (p *fakePlatform) InspectLogs(_ context.Context, id string) (string, error) {
	p.inspectedID = id
	return p.logs, p.logsErr
}

type fakeIndex struct {
	url string
	err error
	sha string
}

func (x *fakeIndex) DeploymentURLForCommit(_ context.Context, sha string) (string, error) {
	x.sha = sha
	return x.url, x.err
}

var head = gitrepo.Commit{Short: "abc1234", Full: "abc1234def5678"}

func TestResolvePrefersGithubIndex(t *testing.T) {
	platform := &fakePlatform{}
	index := &fakeIndex{url: "https://myapp-abc.vercel.app"}
	d := &Deployments{Repo: fixedHead{commit: head}, Vercel: platform, Index: index}

	got, match, err := d.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != head {
		t.Errorf("head = %+v", got)
	}
	if match == nil || match.Source != "github-api" || match.DeploymentID != index.url {
		t.Errorf("match = %+v", match)
	}
	if index.sha != head.Full {
		t.Errorf("index queried with %q, want full sha", index.sha)
	}
	if platform.matchCalls != 0 {
		t.Error("vercel correlation must not run when the index hits")
	}
}

func TestResolveFallsBackWhenIndexMisses(t *testing.T) {
	tests := []struct {
		name  string
		index CommitIndex
	}{
		{"no index configured", nil},
		{"index miss", &fakeIndex{url: ""}},
		{"index error", &fakeIndex{err: errors.New("rate limited")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{match: &vercel.Match{DeploymentID: "dpl_123", Source: "meta"}}
			d := &Deployments{Repo: fixedHead{commit: head}, Vercel: platform, Index: tt.index}

			_, match, err := d.Resolve(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if match == nil || match.DeploymentID != "dpl_123" {
				t.Errorf("match = %+v", match)
			}
			if platform.matchCalls != 1 {
				t.Errorf("correlation calls = %d", platform.matchCalls)
			}
		})
	}
}

func TestResolveHeadFailureIsFatal(t *testing.T) {
	boom := errors.New("not a git repository")
	d := &Deployments{Repo: fixedHead{err: boom}, Vercel: &fakePlatform{}}

	if _, _, err := d.Resolve(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestLogsReturnsDeploymentLogs(t *testing.T) {
	platform := &fakePlatform{
		match: &vercel.Match{DeploymentID: "dpl_123", Source: "meta"},
		logs:  "Error: Build failed\nexit code 1",
	}
	d := &Deployments{Repo: fixedHead{commit: head}, Vercel: platform}

	id, logs, err := d.Logs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "dpl_123" || logs != platform.logs {
		t.Errorf("id = %q, logs = %q", id, logs)
	}
	if platform.inspectedID != "dpl_123" {
		t.Errorf("inspected %q", platform.inspectedID)
	}
}

func TestLogsEmptyWhenNoDeploymentYet(t *testing.T) {
	d := &Deployments{Repo: fixedHead{commit: head}, Vercel: &fakePlatform{}}

	id, logs, err := d.Logs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "" || logs != "" {
		t.Errorf("id = %q, logs = %q; want empty while the deployment is pending", id, logs)
	}
}

func TestLogsBlankOutputTreatedAsMissing(t *testing.T) {
	platform := &fakePlatform{
		match: &vercel.Match{DeploymentID: "dpl_123", Source: "meta"},
		logs:  "   \n\t\n",
	}
	d := &Deployments{Repo: fixedHead{commit: head}, Vercel: platform}

	id, logs, err := d.Logs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "dpl_123" || logs != "" {
		t.Errorf("id = %q, logs = %q", id, logs)
	}
}
