package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/steveyegge/bbmigrate/internal/debug"
)

const (
	// wikiAttachmentDir is the directory inside the wiki checkout.
	wikiAttachmentDir = "imported_issue_attachments"

	// wikiLinkPrefix is relative to an issue page on github.com.
	wikiLinkPrefix = "../wiki/" + wikiAttachmentDir
)

// WikiURL returns the SSH clone URL of repo's wiki ("owner/name").
func WikiURL(repo string) string {
	return "ssh://git@github.com/" + repo + ".wiki.git"
}

// WikiStore commits attachments into a clone of the repository wiki and
// pushes after every issue.
type WikiStore struct {
	URL         string
	Checkout    string // path of the working clone
	SSHIdentity string // optional private key for git over SSH

	tempDir string // removed by Close when the store created it
}

// OpenWiki clones url into a fresh temporary directory.
func OpenWiki(ctx context.Context, url, sshIdentity string) (*WikiStore, error) {
	tmp, err := os.MkdirTemp("", "bbmigrate-wiki-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	w := &WikiStore{
		URL:         url,
		Checkout:    filepath.Join(tmp, "wiki_checkout"),
		SSHIdentity: sshIdentity,
		tempDir:     tmp,
	}
	debug.PrintNormal("Cloning %s into %s...\n", url, tmp)
	if err := w.git(ctx, tmp, "clone", url, "wiki_checkout"); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(w.Checkout, wikiAttachmentDir), 0o755); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("failed to create attachment dir: %w", err)
	}
	return w, nil
}

// Store implements Store: it writes the file and stages it.
func (w *WikiStore) Store(ctx context.Context, issueID int, filename string, data []byte) (string, error) {
	name, err := safeName(filename)
	if err != nil {
		return "", err
	}
	rel := filepath.Join(wikiAttachmentDir, strconv.Itoa(issueID), name)
	abs := filepath.Join(w.Checkout, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(abs), err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := w.git(ctx, w.Checkout, "add", "--", filepath.ToSlash(rel)); err != nil {
		return "", err
	}
	return joinLink(wikiLinkPrefix, issueID, name), nil
}

// Commit implements Store: it commits the staged files and pushes. When
// the wiki already holds identical files, as on a resumed run, there is
// nothing to commit and Commit succeeds without pushing.
func (w *WikiStore) Commit(ctx context.Context, issueID int) error {
	changed, err := w.hasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		debug.Logf("wiki already holds the attachments of issue %d\n", issueID)
		return nil
	}
	msg := "Imported attachments for issue " + strconv.Itoa(issueID)
	if err := w.git(ctx, w.Checkout, "commit", "-m", msg); err != nil {
		return err
	}
	return w.git(ctx, w.Checkout, "push", "origin", "HEAD")
}

// hasStagedChanges runs `git diff --cached --quiet`, which exits 1 when
// the index differs from HEAD.
func (w *WikiStore) hasStagedChanges(ctx context.Context) (bool, error) {
	err := w.git(ctx, w.Checkout, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Close removes the temporary clone.
func (w *WikiStore) Close() error {
	if w.tempDir == "" {
		return nil
	}
	return os.RemoveAll(w.tempDir)
}

func (w *WikiStore) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if w.SSHIdentity != "" {
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND=ssh -o IdentitiesOnly=yes -i "+w.SSHIdentity)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	debug.Logf("git %s (in %s)\n", strings.Join(args, " "), dir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return nil
}
