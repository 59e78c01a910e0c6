// Package scm detects files changed in a git working tree.
package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
)

// ChangedFiles returns the files changed relative to ref, as slash paths
// relative to root. It includes committed changes since ref, staged and
// unstaged modifications, and untracked files that are not ignored.
func ChangedFiles(ctx context.Context, root, ref string) ([]string, error) {
	toplevel, err := git(ctx, root, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	gitRoot := strings.TrimSpace(toplevel)

	var raw []string
	for _, args := range [][]string{
		{"diff", "--name-only", ref},
		{"ls-files", "--others", "--exclude-standard", "--full-name"},
	} {
		out, err := git(ctx, root, args...)
		if err != nil {
			return nil, err
		}
		raw = append(raw, splitLines(out)...)
	}

	return relativeTo(gitRoot, root, raw)
}

// relativeTo converts git-root-relative paths to paths relative to root,
// dropping files outside root. The result is never nil, so an empty change
// set stays distinguishable from no change detection at all.
func relativeTo(gitRoot, root string, files []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(gitRoot); err == nil {
		gitRoot = resolved
	}

	seen := make(map[string]bool)
	changed := []string{}
	for _, f := range files {
		rel, err := filepath.Rel(absRoot, filepath.Join(gitRoot, filepath.FromSlash(f)))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !seen[rel] {
			seen[rel] = true
			changed = append(changed, rel)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", turboerrors.Environmentf("git is required to detect changed files: %v", err)
		}
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
