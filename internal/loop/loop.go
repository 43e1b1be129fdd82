// Package loop sequences the fetch → classify → fix → publish cycle across
// bounded iterations. It is deliberately single-threaded: a build cannot be
// evaluated until the previous push's deployment exists, so there is nothing
// to parallelize.
package loop

import (
	"context"
	"strings"
	"time"
)

// StopReason says why a run ended. Every reason except ReasonFatal is a
// normal termination.
type StopReason string

const (
	ReasonSuccess       StopReason = "success"
	ReasonAgentNoChange StopReason = "agent-no-change"
	ReasonNothingPushed StopReason = "nothing-pushed"
	ReasonMaxIterations StopReason = "max-iterations"
	ReasonCanceled      StopReason = "canceled"
	ReasonFatal         StopReason = "fatal"
)

// Outcome summarizes a finished run.
type Outcome struct {
	Reason     StopReason
	Iterations int
}

// LogSource produces the build logs for the current commit's deployment.
// Empty logs mean the deployment is not visible yet; the loop sleeps and
// retries.
type LogSource interface {
	Logs(ctx context.Context) (deploymentID, logs string, err error)
}

// Fixer hands logs to the agent and reports whether the tree changed.
type Fixer interface {
	Fix(ctx context.Context, logs string) (bool, error)
}

// Publisher commits and pushes whatever the agent changed.
type Publisher interface {
	Publish(ctx context.Context) (pushed bool, err error)
}

// IterationRecord is handed to the optional recorder after every iteration.
type IterationRecord struct {
	N            int
	DeploymentID string
	ClassifiedOK bool
	AgentChanged bool
	Pushed       bool
}

// Controller owns the iteration state. All collaborators are injected so the
// whole state machine is testable without subprocesses.
type Controller struct {
	MaxIterations int
	Sleep         time.Duration

	Source    LogSource
	Classify  func(logs string) bool
	Fixer     Fixer
	Publisher Publisher

	// Record is called after each iteration; nil disables recording.
	Record func(rec IterationRecord)

	Logf func(format string, args ...any)

	// sleep is injectable for tests; defaults to a ctx-aware timer.
	sleep func(ctx context.Context, d time.Duration) error
}

func (c *Controller) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Controller) doSleep(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) record(rec IterationRecord) {
	if c.Record != nil {
		c.Record(rec)
	}
}

// Run executes up to MaxIterations cycles and reports how the run ended.
// The returned error is non-nil only for ReasonFatal and ReasonCanceled.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	for i := 1; i <= c.MaxIterations; i++ {
		c.logf("==============================")
		c.logf("iteration %d/%d", i, c.MaxIterations)
		c.logf("==============================")

		depID, logs, err := c.Source.Logs(ctx)
		if err != nil {
			return Outcome{Reason: ReasonFatal, Iterations: i}, err
		}
		if strings.TrimSpace(logs) == "" {
			c.logf("[loop] no logs found, sleeping %s and retrying...", c.Sleep)
			c.record(IterationRecord{N: i, DeploymentID: depID})
			if err := c.doSleep(ctx, c.Sleep); err != nil {
				return Outcome{Reason: ReasonCanceled, Iterations: i}, err
			}
			continue
		}

		if c.Classify(logs) {
			c.logf("[loop] build looks successful, stopping")
			c.record(IterationRecord{N: i, DeploymentID: depID, ClassifiedOK: true})
			return Outcome{Reason: ReasonSuccess, Iterations: i}, nil
		}

		changed, err := c.Fixer.Fix(ctx, logs)
		if err != nil {
			return Outcome{Reason: ReasonFatal, Iterations: i}, err
		}
		if !changed {
			c.logf("[loop] agent has no further changes, stopping")
			c.record(IterationRecord{N: i, DeploymentID: depID})
			return Outcome{Reason: ReasonAgentNoChange, Iterations: i}, nil
		}

		pushed, err := c.Publisher.Publish(ctx)
		if err != nil {
			return Outcome{Reason: ReasonFatal, Iterations: i}, err
		}
		c.record(IterationRecord{N: i, DeploymentID: depID, AgentChanged: true, Pushed: pushed})
		if !pushed {
			c.logf("[loop] no code changes actually pushed, stopping")
			return Outcome{Reason: ReasonNothingPushed, Iterations: i}, nil
		}

		c.logf("[loop] sleeping %s while the platform rebuilds...", c.Sleep)
		if err := c.doSleep(ctx, c.Sleep); err != nil {
			return Outcome{Reason: ReasonCanceled, Iterations: i}, err
		}
	}

	c.logf("[loop] reached max iterations (%d), exiting", c.MaxIterations)
	return Outcome{Reason: ReasonMaxIterations, Iterations: c.MaxIterations}, nil
}
