package version

import (
	"bytes"
	"os/exec"
	"strings"
)

// DetectAuthor best-effort-resolves an author string for a version
// being created inside a git checkout at repoPath, falling back to
// fallback when git is unavailable or the directory isn't a repo.
// Adapted from the `git log` shell-out in the teacher's
// internal/ingest/git.go — here invoked once per version instead of
// once per historical commit.
func DetectAuthor(repoPath, fallback string) string {
	cmd := exec.Command("git", "log", "-1", "--pretty=format:%an <%ae>")
	cmd.Dir = repoPath

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fallback
	}
	author := strings.TrimSpace(out.String())
	if author == "" {
		return fallback
	}
	return author
}
