// Package repoctx builds a bounded textual snapshot of a repository for
// the planner. The snapshot lists the file tree and inlines a few
// orientation files so the planner can ground its steps in real paths.
package repoctx

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// maxSnapshotBytes caps the total snapshot size so the planner
	// prompt stays within a predictable token envelope.
	maxSnapshotBytes = 32 * 1024

	// maxListedFiles caps the file tree listing.
	maxListedFiles = 200

	// maxInlineBytes caps each inlined orientation file.
	maxInlineBytes = 4 * 1024
)

// orientationFiles are inlined when present, in priority order.
var orientationFiles = []string{
	"README.md",
	"go.mod",
	"package.json",
	"pyproject.toml",
	"Makefile",
}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
}

// Provider produces repository snapshots from the local filesystem.
type Provider struct{}

// NewProvider creates a filesystem-backed snapshot provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Snapshot walks repoPath and returns a bounded description: the sorted
// file tree followed by the contents of any orientation files found at
// the repository root. The result never exceeds maxSnapshotBytes.
func (pr *Provider) Snapshot(ctx context.Context, repoPath string) (string, error) {
	info, err := os.Stat(repoPath)
	if err != nil {
		return "", fmt.Errorf("stat repo: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repo path %s is not a directory", repoPath)
	}

	files, truncated, err := listFiles(ctx, repoPath)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	if truncated {
		fmt.Fprintf(&b, "  ... (listing truncated at %d files)\n", maxListedFiles)
	}

	for _, name := range orientationFiles {
		if b.Len() >= maxSnapshotBytes {
			break
		}
		content, err := readCapped(filepath.Join(repoPath, name), maxInlineBytes)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", name, content)
	}

	out := b.String()
	if len(out) > maxSnapshotBytes {
		out = out[:maxSnapshotBytes] + "\n[snapshot truncated]"
	}
	return out, nil
}

// listFiles returns up to maxListedFiles relative paths under root,
// sorted, skipping hidden and dependency directories.
func listFiles(ctx context.Context, root string) ([]string, bool, error) {
	var files []string
	truncated := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && (skippedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxListedFiles {
			truncated = true
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("walk repo: %w", err)
	}

	sort.Strings(files)
	return files, truncated, nil
}

// readCapped reads at most cap bytes of a regular file.
func readCapped(path string, capBytes int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > capBytes {
		data = append(data[:capBytes], []byte("\n[truncated]")...)
	}
	return string(data), nil
}
