package projectsetup

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// gitRunner execs the system git binary rooted at dir, the pattern the
// whole package uses instead of a git library (grounded on the pack's
// generic os/exec-command idiom — e.g. kingrea-The-Lattice's orchestrator
// packages, which likewise shell out rather than link a VCS library).
type gitRunner struct {
	dir string
}

func newGitRunner(dir string) *gitRunner {
	return &gitRunner{dir: dir}
}

// run executes `git <args...>` and returns trimmed stdout. stderr is
// folded into the returned error on failure.
func (g *gitRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *gitRunner) hasHead(ctx context.Context) bool {
	_, err := g.run(ctx, "rev-parse", "--verify", "HEAD")
	return err == nil
}

// configureIdentity sets the local-repo user identity.
func (g *gitRunner) configureIdentity(ctx context.Context) error {
	if _, err := g.run(ctx, "config", "user.name", "ariana-agent"); err != nil {
		return err
	}
	if _, err := g.run(ctx, "config", "user.email", "agent@ariana.dev"); err != nil {
		return err
	}
	return nil
}

// checkoutBranch force-creates branch, or an orphan branch when the repo
// has no HEAD yet.
func (g *gitRunner) checkoutBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return nil
	}
	if g.hasHead(ctx) {
		_, err := g.run(ctx, "checkout", "-B", branch)
		return err
	}
	_, err := g.run(ctx, "checkout", "--orphan", branch)
	return err
}

// fallbackCheckout tries each candidate branch in order, falling back
// from main to master to no-branch, returning the first that succeeds,
// or "" if the repo has no HEAD at all (empty remote).
func (g *gitRunner) fallbackCheckout(ctx context.Context, candidates ...string) (string, error) {
	if !g.hasHead(ctx) {
		return "", nil
	}
	var lastErr error
	for _, branch := range candidates {
		if _, err := g.run(ctx, "checkout", branch); err == nil {
			return branch, nil
		} else {
			lastErr = err
		}
	}
	return "", lastErr
}
