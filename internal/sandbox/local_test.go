package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthroughSanitizer tags every capture so tests can verify the
// sanitization pass ran.
type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeOutput(output string) (string, []string) {
	return output, nil
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref\n"), 0644))
	return dir
}

func testLimits() Limits {
	l := DefaultLimits()
	l.Timeout = 5 * time.Second
	return l
}

func TestNewLocal_ClonesRepository(t *testing.T) {
	repo := newTestRepo(t)

	sbx, err := NewLocal(repo, testLimits(), passthroughSanitizer{})
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	assert.NotEqual(t, repo, sbx.WorkDir(), "the sandbox must work on a clone, not the original")
	assert.FileExists(t, filepath.Join(sbx.WorkDir(), "hello.txt"))
	assert.NoDirExists(t, filepath.Join(sbx.WorkDir(), ".git"), "VCS metadata is not cloned")
}

func TestNewLocal_RejectsExcessiveLimits(t *testing.T) {
	limits := DefaultLimits()
	limits.MemoryBytes = HardCeilings().MemoryBytes + 1

	_, err := NewLocal(newTestRepo(t), limits, nil)
	require.Error(t, err)

	var fault *Fault
	assert.ErrorAs(t, err, &fault)
}

func TestNewLocal_MissingRepo(t *testing.T) {
	_, err := NewLocal("/nonexistent/repo", testLimits(), nil)
	require.Error(t, err)

	var fault *Fault
	assert.ErrorAs(t, err, &fault)
	assert.Equal(t, "provision", fault.Op)
}

func TestRun_Success(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), passthroughSanitizer{})
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	result := sbx.Run(context.Background(), 1, "cat hello.txt")

	assert.Equal(t, 1, result.StepID)
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, result.Passed())
	assert.Contains(t, result.Stdout, "hello")
	assert.False(t, result.TimedOut)
}

func TestRun_NonZeroExit(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	result := sbx.Run(context.Background(), 2, "cat no-such-file.txt")

	assert.NotEqual(t, 0, result.ExitCode)
	assert.False(t, result.Passed())
}

func TestRun_Timeout(t *testing.T) {
	limits := testLimits()
	limits.Timeout = 100 * time.Millisecond

	sbx, err := NewLocal(newTestRepo(t), limits, nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	start := time.Now()
	result := sbx.Run(context.Background(), 1, "sleep 5")

	assert.True(t, result.TimedOut, "a run past the wall clock must be reported as a timeout")
	assert.Equal(t, -1, result.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second, "the process must be killed, not awaited")
}

func TestRun_OutputCapping(t *testing.T) {
	limits := testLimits()
	limits.MaxOutputBytes = 64

	sbx, err := NewLocal(newTestRepo(t), limits, nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	result := sbx.Run(context.Background(), 1, "seq 1 10000")

	assert.LessOrEqual(t, len(result.Stdout), 64+len("\n... [output truncated]"))
	assert.Contains(t, result.Stdout, "[output truncated]")
}

func TestApply_WritesInsideWorkingCopy(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	result := sbx.Apply(context.Background(), 1, FileEdit{Path: "src/util.py", Content: "x = 1\n"})

	require.Equal(t, 0, result.ExitCode)
	assert.Equal(t, []string{"src/util.py"}, result.FilesTouched)

	data, err := os.ReadFile(filepath.Join(sbx.WorkDir(), "src", "util.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
}

func TestApply_RefusesEscape(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	result := sbx.Apply(context.Background(), 1, FileEdit{Path: "../../escape.txt", Content: "x"})

	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "escapes the working copy")
}

func TestDiff_TracksAddModifyDelete(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	// Add, modify, delete.
	sbx.Apply(context.Background(), 1, FileEdit{Path: "added.txt", Content: "new\nfile\n"})
	sbx.Apply(context.Background(), 2, FileEdit{Path: "hello.txt", Content: "changed\n"})
	require.NoError(t, os.Remove(filepath.Join(sbx.WorkDir(), "hello.txt")))

	diff, err := sbx.Diff()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"added.txt", "hello.txt"}, diff.FilesChanged)
	assert.Contains(t, diff.Summary, "A added.txt")
	assert.Contains(t, diff.Summary, "D hello.txt")
	assert.Greater(t, diff.LinesChanged, 0)
}

func TestDiff_NoChanges(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), nil)
	require.NoError(t, err)
	defer func() { _ = sbx.Close() }()

	diff, err := sbx.Diff()
	require.NoError(t, err)
	assert.Empty(t, diff.FilesChanged)
	assert.Zero(t, diff.LinesChanged)
}

func TestClose_Idempotent(t *testing.T) {
	sbx, err := NewLocal(newTestRepo(t), testLimits(), nil)
	require.NoError(t, err)

	workDir := sbx.WorkDir()
	require.NoError(t, sbx.Close())
	require.NoError(t, sbx.Close())

	assert.NoDirExists(t, workDir)

	result := sbx.Run(context.Background(), 1, "ls")
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "closed")
}
