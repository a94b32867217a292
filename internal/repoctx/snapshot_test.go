package repoctx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_ListsFilesAndInlinesReadme(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("# Demo project\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "main.py"), []byte("print('hi')\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".git", "config"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "node_modules", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "node_modules", "pkg", "index.js"), []byte("x"), 0644))

	snap, err := NewProvider().Snapshot(context.Background(), repo)
	require.NoError(t, err)

	assert.Contains(t, snap, "src/main.py")
	assert.Contains(t, snap, "README.md")
	assert.Contains(t, snap, "# Demo project", "orientation files are inlined")
	assert.NotContains(t, snap, ".git/config")
	assert.NotContains(t, snap, "node_modules")
}

func TestSnapshot_BoundedListing(t *testing.T) {
	repo := t.TempDir()
	for i := 0; i < maxListedFiles+50; i++ {
		name := filepath.Join(repo, fmt.Sprintf("file-%04d.txt", i))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0644))
	}

	snap, err := NewProvider().Snapshot(context.Background(), repo)
	require.NoError(t, err)

	assert.Contains(t, snap, "listing truncated")
	assert.LessOrEqual(t, len(snap), maxSnapshotBytes+64)
}

func TestSnapshot_CapsInlinedFiles(t *testing.T) {
	repo := t.TempDir()
	big := strings.Repeat("line of text\n", 4096)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte(big), 0644))

	snap, err := NewProvider().Snapshot(context.Background(), repo)
	require.NoError(t, err)

	assert.Contains(t, snap, "[truncated]")
	assert.LessOrEqual(t, len(snap), maxSnapshotBytes+64)
}

func TestSnapshot_Errors(t *testing.T) {
	_, err := NewProvider().Snapshot(context.Background(), "/nonexistent/repo")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = NewProvider().Snapshot(context.Background(), file)
	assert.Error(t, err)
}

func TestSnapshot_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProvider().Snapshot(ctx, t.TempDir())
	assert.Error(t, err)
}
