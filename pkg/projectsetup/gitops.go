package projectsetup

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

// Commit stages everything and commits, satisfying pkg/workerapi.GitOps.
func (s *Setup) Commit(ctx context.Context, message string) (string, int, int, error) {
	if _, err := s.git.run(ctx, "add", "-A"); err != nil {
		return "", 0, 0, fmt.Errorf("git add: %w", err)
	}
	hadParent := s.git.hasHead(ctx)
	if _, err := s.git.run(ctx, "commit", "-m", message); err != nil {
		return "", 0, 0, fmt.Errorf("git commit: %w", err)
	}
	sha, err := s.git.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", 0, 0, fmt.Errorf("git rev-parse: %w", err)
	}

	additions, deletions := 0, 0
	if hadParent {
		additions, deletions = s.diffStat(ctx, "HEAD~1", "HEAD")
	} else {
		additions, deletions = s.diffStat(ctx, emptyTreeSHA, "HEAD")
	}
	return sha, additions, deletions, nil
}

// Push pushes the current branch to its configured remote. Pushed is false
// (not an error) when no remote is configured.
func (s *Setup) Push(ctx context.Context) (bool, string, error) {
	if _, err := s.git.run(ctx, "remote", "get-url", "origin"); err != nil {
		return false, "", nil
	}
	branch, err := s.git.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return false, "", fmt.Errorf("resolve current branch: %w", err)
	}
	if _, err := s.git.run(ctx, "push", "-u", "origin", branch); err != nil {
		return false, "", fmt.Errorf("git push: %w", err)
	}
	url := s.ownerRepo
	if url == "" {
		if remote, err := s.git.run(ctx, "remote", "get-url", "origin"); err == nil {
			url = extractOwnerRepo(remote)
		}
	}
	return true, url, nil
}

// LastCommit describes HEAD.
func (s *Setup) LastCommit(ctx context.Context) (*workerapi.GitCommitInfo, error) {
	if !s.git.hasHead(ctx) {
		return nil, fmt.Errorf("no commits yet")
	}
	return s.commitInfo(ctx, "HEAD")
}

// History lists up to 50 commits, newest first.
func (s *Setup) History(ctx context.Context) ([]workerapi.GitCommitInfo, error) {
	if !s.git.hasHead(ctx) {
		return nil, nil
	}
	out, err := s.git.run(ctx, "log", "-n", "50", "--format=%H")
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	if out == "" {
		return nil, nil
	}

	var commits []workerapi.GitCommitInfo
	for _, sha := range strings.Split(out, "\n") {
		info, err := s.commitInfo(ctx, sha)
		if err != nil {
			return nil, err
		}
		commits = append(commits, *info)
	}
	return commits, nil
}

func (s *Setup) commitInfo(ctx context.Context, ref string) (*workerapi.GitCommitInfo, error) {
	sha, err := s.git.run(ctx, "rev-parse", ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	message, err := s.git.run(ctx, "log", "-1", "--format=%s", sha)
	if err != nil {
		return nil, fmt.Errorf("read message for %s: %w", sha, err)
	}

	parent := sha + "~1"
	additions, deletions := 0, 0
	if _, err := s.git.run(ctx, "rev-parse", "--verify", parent); err == nil {
		additions, deletions = s.diffStat(ctx, parent, sha)
	} else {
		additions, deletions = s.diffStat(ctx, emptyTreeSHA, sha)
	}

	pushed := s.isPushed(ctx, sha)
	return &workerapi.GitCommitInfo{Sha: sha, Message: message, Additions: additions, Deletions: deletions, Pushed: pushed}, nil
}

// emptyTreeSHA is git's well-known hash of the empty tree, used as the
// "before" side of a diff for a repo's very first commit.
const emptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

func (s *Setup) diffStat(ctx context.Context, from, to string) (additions, deletions int) {
	out, err := s.git.run(ctx, "diff", "--shortstat", from, to)
	if err != nil || out == "" {
		return 0, 0
	}
	return parseShortstat(out)
}

func (s *Setup) isPushed(ctx context.Context, sha string) bool {
	out, err := s.git.run(ctx, "branch", "-r", "--contains", sha)
	return err == nil && out != ""
}

// parseShortstat reads git's `N files changed, A insertions(+), D deletions(-)`
// summary line.
func parseShortstat(line string) (additions, deletions int) {
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		fields := strings.Fields(part)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(part, "insertion"):
			additions = n
		case strings.Contains(part, "deletion"):
			deletions = n
		}
	}
	return additions, deletions
}
