package vercel

import (
	"context"
	"strings"
	"testing"

	"github.com/bgdnvk/patchloop/internal/shell"
)

// fakeRunner resolves commands by joined argv prefix.
type fakeRunner struct {
	results map[string]shell.Result
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, spec shell.Spec) (shell.Result, error) {
	key := strings.Join(spec.Argv, " ")
	f.calls = append(f.calls, key)
	// Longest matching prefix wins so "vercel list" does not shadow
	// "vercel list --prod --json".
	best := ""
	for prefix := range f.results {
		if strings.HasPrefix(key, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return f.results[best], nil
	}
	return shell.Result{ExitCode: 1}, nil
}

func newClient(r shell.Runner) *Client {
	return &Client{Dir: "/tmp", Runner: r}
}

func TestDeploymentForCommitStructuredMatch(t *testing.T) {
	listJSON := `[
		{"uid": "dpl_first", "meta": {"githubCommitSha": "0000000aaaa"}},
		{"uid": "dpl_second", "meta": {"githubCommitSha": "3cc8afc1234"}}
	]`
	runner := &fakeRunner{results: map[string]shell.Result{
		"vercel list --prod --json": {Stdout: listJSON},
	}}

	match, err := newClient(runner).DeploymentForCommit(context.Background(), "3cc8afc")
	if err != nil {
		t.Fatal(err)
	}
	if match == nil || match.DeploymentID != "dpl_second" {
		t.Fatalf("match = %+v, want dpl_second", match)
	}
	if match.Source != "vercel-json" {
		t.Errorf("source = %s, want vercel-json", match.Source)
	}
}

func TestDeploymentForCommitFirstStructuredMatchWins(t *testing.T) {
	listJSON := `[
		{"uid": "dpl_a", "meta": {"commit": "3cc8afc0001"}},
		{"uid": "dpl_b", "meta": {"commit": "3cc8afc0002"}}
	]`
	runner := &fakeRunner{results: map[string]shell.Result{
		"vercel list --prod --json": {Stdout: listJSON},
	}}

	match, err := newClient(runner).DeploymentForCommit(context.Background(), "3cc8afc")
	if err != nil {
		t.Fatal(err)
	}
	if match == nil || match.DeploymentID != "dpl_a" {
		t.Fatalf("match = %+v, want first entry dpl_a", match)
	}
}

func TestDeploymentForCommitFuzzyMatch(t *testing.T) {
	// Hash appears outside any known meta field.
	listJSON := `[{"uid": "dpl_x", "meta": {"branch": "fix-3cc8afc"}}]`
	runner := &fakeRunner{results: map[string]shell.Result{
		"vercel list --prod --json": {Stdout: listJSON},
	}}

	match, err := newClient(runner).DeploymentForCommit(context.Background(), "3cc8afc")
	if err != nil {
		t.Fatal(err)
	}
	if match == nil || match.Source != "vercel-json-fuzzy" {
		t.Fatalf("match = %+v, want fuzzy match for dpl_x", match)
	}
}

func TestDeploymentForCommitWrappedListing(t *testing.T) {
	listJSON := `{"deployments": [{"id": "dpl_wrapped", "meta": {"commit": "3cc8afc9"}}]}`
	runner := &fakeRunner{results: map[string]shell.Result{
		"vercel list --prod --json": {Stdout: listJSON},
	}}

	match, err := newClient(runner).DeploymentForCommit(context.Background(), "3cc8afc")
	if err != nil {
		t.Fatal(err)
	}
	if match == nil || match.DeploymentID != "dpl_wrapped" {
		t.Fatalf("match = %+v, want dpl_wrapped", match)
	}
}

func TestDeploymentForCommitTableFallback(t *testing.T) {
	table := "Vercel CLI 25.0\n  Age  Deployment\n  2m  dpl_nomatch99\n  5m  dpl_target42\n"
	runner := &fakeRunner{results: map[string]shell.Result{
		// structured listing unavailable on the old CLI
		"vercel list --prod --json":    {ExitCode: 1},
		"vercel list":                  {Stdout: table},
		"vercel inspect dpl_nomatch99": {Stdout: "something else"},
		"vercel inspect dpl_target42":  {Stdout: "build of commit 3cc8afc done"},
	}}

	match, err := newClient(runner).DeploymentForCommit(context.Background(), "3cc8afc")
	if err != nil {
		t.Fatal(err)
	}
	if match == nil || match.DeploymentID != "dpl_target42" {
		t.Fatalf("match = %+v, want dpl_target42", match)
	}
	if match.Source != "vercel-table" {
		t.Errorf("source = %s, want vercel-table", match.Source)
	}
}

func TestDeploymentForCommitNoMatchIsNotAnError(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"vercel list --prod --json": {ExitCode: 1},
		"vercel list":               {ExitCode: 1},
	}}

	match, err := newClient(runner).DeploymentForCommit(context.Background(), "3cc8afc")
	if err != nil {
		t.Fatalf("listing failure must be transient, got error %v", err)
	}
	if match != nil {
		t.Fatalf("match = %+v, want nil", match)
	}
}

func TestInspectLogsFallsBackToStderr(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"vercel inspect": {Stderr: "logs on stderr"},
	}}

	logs, err := newClient(runner).InspectLogs(context.Background(), "dpl_x")
	if err != nil {
		t.Fatal(err)
	}
	if logs != "logs on stderr" {
		t.Errorf("logs = %q", logs)
	}
}

func TestParseDeploymentsJSONGarbage(t *testing.T) {
	if got := parseDeploymentsJSON([]byte("not json at all")); got != nil {
		t.Errorf("parseDeploymentsJSON = %v, want nil", got)
	}
}
