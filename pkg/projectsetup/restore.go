package projectsetup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Restore implements pkg/workerapi.SnapshotRestorer: it downloads each
// presigned URL (one per chunk for a chunked snapshot) and extracts it as
// a zip bundle into the working tree, in order, so a multi-part snapshot
// reassembles onto the same tree extractBundle already knows how to
// write.
func (s *Setup) Restore(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("restore snapshot: no presigned urls")
	}
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	for i, url := range urls {
		path, err := downloadToTemp(ctx, url)
		if err != nil {
			return fmt.Errorf("download snapshot chunk %d: %w", i, err)
		}
		err = extractBundle(path, s.workDir)
		_ = os.Remove(path)
		if err != nil {
			return fmt.Errorf("extract snapshot chunk %d: %w", i, err)
		}
	}

	s.git = newGitRunner(s.workDir)
	return nil
}

// downloadToTemp streams a presigned URL's body to a temp file, returning
// its path for extractBundle to open.
func downloadToTemp(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "snapshot-chunk-*.zip")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return f.Name(), nil
}
