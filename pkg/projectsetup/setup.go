// Package projectsetup implements the worker-side ProjectSetup: it
// initializes the working tree in one of five modes into a known path and
// reports the resulting git state.
package projectsetup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

const (
	publicCloneTimeout     = 5 * time.Minute
	incrementalAuthTimeout = 30 * time.Second
)

// Setup implements pkg/workerapi.ProjectSetup and pkg/workerapi.GitOps.
type Setup struct {
	workDir string
	git     *gitRunner

	// ownerRepo is extracted from the clone remote's GitHub owner/repo
	// for later push operations.
	ownerRepo string
}

// NewSetup builds a Setup rooted at workDir, the known path every mode
// converges on.
func NewSetup(workDir string) *Setup {
	return &Setup{workDir: workDir, git: newGitRunner(workDir)}
}

// Start initializes the working tree per req.SetupMode.
func (s *Setup) Start(ctx context.Context, req workerapi.StartRequest) (*workerapi.StartResponse, error) {
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	var err error
	switch req.SetupMode {
	case "local":
		err = s.setupLocal(ctx, req)
	case "git-clone":
		err = s.setupGitClone(ctx, req, true)
	case "git-clone-public":
		err = s.setupGitClone(ctx, req, false)
	case "zip-local":
		err = s.setupZipLocal(ctx, req)
	case "existing":
		err = s.setupExisting(ctx, req)
	default:
		err = fmt.Errorf("unknown setup mode %q", req.SetupMode)
	}
	if err != nil {
		msg := err.Error()
		return &workerapi.StartResponse{Status: "error", GitInfoStatus: "error", GitInfoError: &msg}, nil
	}

	resp := &workerapi.StartResponse{Status: "ready", GitInfoStatus: "ok"}
	if sha, err := s.git.run(ctx, "rev-parse", "HEAD"); err == nil {
		resp.StartCommitSha = &sha
	} else {
		resp.GitInfoStatus = "no-commits"
	}
	return resp, nil
}

// setupLocal points the working tree at a caller-provided existing path,
// used as-is; the git identity is configured only when the path is already
// a git repository.
func (s *Setup) setupLocal(ctx context.Context, req workerapi.StartRequest) error {
	if req.LocalPath == "" {
		return fmt.Errorf("local setup mode requires localPath")
	}
	s.workDir = req.LocalPath
	s.git = newGitRunner(s.workDir)
	if _, err := s.git.run(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil
	}
	return s.git.configureIdentity(ctx)
}

// setupExisting assumes the tree already exists from a snapshot restore:
// nothing to do beyond an optional branch checkout.
func (s *Setup) setupExisting(ctx context.Context, req workerapi.StartRequest) error {
	if err := s.git.configureIdentity(ctx); err != nil {
		return err
	}
	return s.git.checkoutBranch(ctx, req.Branch)
}

// setupGitClone clones a remote over HTTPS, authenticated or not.
func (s *Setup) setupGitClone(ctx context.Context, req workerapi.StartRequest, authenticated bool) error {
	remote := ""
	if req.GitCredentials != nil {
		remote = req.GitCredentials.RemoteURL
	}
	if remote == "" {
		return fmt.Errorf("git-clone setup mode requires gitCredentials.remoteUrl")
	}
	s.ownerRepo = extractOwnerRepo(remote)

	cloneURL := remote
	if authenticated && req.GitCredentials.Token != "" {
		var err error
		cloneURL, err = withToken(remote, req.GitCredentials.Token)
		if err != nil {
			return fmt.Errorf("build authenticated clone url: %w", err)
		}
	}

	cloneCtx := ctx
	var cancel context.CancelFunc
	if !authenticated {
		// Public clones get a hard timeout to catch hangs on credential
		// prompts.
		cloneCtx, cancel = context.WithTimeout(ctx, publicCloneTimeout)
		defer cancel()
	}

	if _, err := exec.CommandContext(cloneCtx, "git", "clone", cloneURL, s.workDir).CombinedOutput(); err != nil {
		return fmt.Errorf("git clone: %w", err)
	}

	if err := s.git.configureIdentity(ctx); err != nil {
		return err
	}

	if req.Branch != "" {
		return s.git.checkoutBranch(ctx, req.Branch)
	}
	_, err := s.git.fallbackCheckout(ctx, "main", "master")
	return err
}

// setupZipLocal reconstitutes the tree from an on-host bundle + patch, or
// `git init`s an empty tree.
func (s *Setup) setupZipLocal(ctx context.Context, req workerapi.StartRequest) error {
	if req.BundlePath == "" {
		if _, err := s.git.run(ctx, "init"); err != nil {
			return err
		}
		return s.git.configureIdentity(ctx)
	}

	if req.IncrementalRemoteURL != "" {
		authCtx, cancel := context.WithTimeout(ctx, incrementalAuthTimeout)
		defer cancel()
		if _, err := exec.CommandContext(authCtx, "git", "clone", req.IncrementalRemoteURL, s.workDir).CombinedOutput(); err != nil {
			return fmt.Errorf("incremental base clone: %w", err)
		}
		s.ownerRepo = extractOwnerRepo(req.IncrementalRemoteURL)
		if req.IncrementalBaseCommit != "" {
			if _, err := s.git.run(ctx, "fetch", "origin", req.IncrementalBaseCommit); err != nil {
				return fmt.Errorf("fetch base commit: %w", err)
			}
			if _, err := s.git.run(ctx, "checkout", req.IncrementalBaseCommit); err != nil {
				return fmt.Errorf("checkout base commit: %w", err)
			}
		}
	} else if _, err := s.git.run(ctx, "init"); err != nil {
		return err
	}

	if err := extractBundle(req.BundlePath, s.workDir); err != nil {
		return fmt.Errorf("extract bundle: %w", err)
	}
	if req.PatchPath != "" {
		if _, err := exec.CommandContext(ctx, "git", "-C", s.workDir, "apply", req.PatchPath).CombinedOutput(); err != nil {
			return fmt.Errorf("apply patch: %w", err)
		}
	}

	return s.git.configureIdentity(ctx)
}

func withToken(remote, token string) (string, error) {
	u, err := url.Parse(remote)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

func extractOwnerRepo(remote string) string {
	u, err := url.Parse(remote)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	return path
}
