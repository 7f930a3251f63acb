package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DirStore writes attachments into a local directory, one subdirectory
// per issue. Links are LinkPrefix/<issue>/<name>.
type DirStore struct {
	Dir        string
	LinkPrefix string
}

// NewDirStore creates a DirStore rooted at dir. An empty linkPrefix links
// to the directory itself.
func NewDirStore(dir, linkPrefix string) *DirStore {
	if linkPrefix == "" {
		linkPrefix = filepath.ToSlash(dir)
	}
	return &DirStore{Dir: dir, LinkPrefix: linkPrefix}
}

// Store implements Store.
func (s *DirStore) Store(ctx context.Context, issueID int, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := safeName(filename)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.Dir, strconv.Itoa(issueID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return joinLink(s.LinkPrefix, issueID, name), nil
}

// Commit implements Store. Files are durable once written.
func (s *DirStore) Commit(context.Context, int) error { return nil }
