package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalSandbox runs commands as host subprocesses inside a temporary
// working copy cloned from the target repository. It provides working-copy
// confinement, wall-clock kills, and output capping; OS-level network and
// memory isolation requires the docker runtime.
type LocalSandbox struct {
	id        string
	repoRoot  string
	workDir   string
	limits    Limits
	sanitizer Sanitizer

	// baseline maps relative path -> content hash at provision time.
	baseline map[string]string

	mu     sync.Mutex
	closed bool
}

// NewLocal provisions a local sandbox: it validates the limits, clones the
// repository into a fresh temporary directory, and records a content
// baseline for later diffing.
func NewLocal(repoRoot string, limits Limits, sanitizer Sanitizer) (*LocalSandbox, error) {
	if err := limits.Validate(); err != nil {
		return nil, &Fault{Op: "provision", Err: err}
	}
	if _, err := os.Stat(repoRoot); err != nil {
		return nil, &Fault{Op: "provision", Err: fmt.Errorf("repository root: %w", err)}
	}

	id := uuid.New().String()[:8]
	workDir, err := os.MkdirTemp("", "gantry-sbx-"+id+"-")
	if err != nil {
		return nil, &Fault{Op: "provision", Err: err}
	}

	if err := copyTree(repoRoot, workDir); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, &Fault{Op: "provision", Err: err}
	}

	baseline, err := hashTree(workDir)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, &Fault{Op: "provision", Err: err}
	}

	return &LocalSandbox{
		id:        id,
		repoRoot:  repoRoot,
		workDir:   workDir,
		limits:    limits,
		sanitizer: sanitizer,
		baseline:  baseline,
	}, nil
}

// ID returns the sandbox handle identifier.
func (s *LocalSandbox) ID() string { return s.id }

// WorkDir returns the working copy path.
func (s *LocalSandbox) WorkDir() string { return s.workDir }

// Run executes a command inside the working copy. The process is
// hard-killed when the limits' timeout elapses and the result is reported
// as a timeout, never silently truncated.
func (s *LocalSandbox) Run(ctx context.Context, stepID int, command string) ExecutionResult {
	start := time.Now()

	if s.isClosed() {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: "sandbox is closed", Duration: time.Since(start)}
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: "empty command", Duration: time.Since(start)}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.limits.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	cmd.Dir = s.workDir

	stdout := newCappedBuffer(s.limits.MaxOutputBytes)
	stderr := newCappedBuffer(s.limits.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	duration := time.Since(start)

	result := ExecutionResult{
		StepID:   stepID,
		Duration: duration,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	switch {
	case result.TimedOut:
		result.ExitCode = -1
	case err == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr = err.Error()
		}
	}

	result.Stdout, result.Stderr = s.sanitize(stdout.String(), stderr.String(), &result)
	return result
}

// Apply writes a file edit inside the working copy. The path has already
// been checked by the guardrail gate; the sandbox re-resolves it anyway and
// refuses anything outside the working copy.
func (s *LocalSandbox) Apply(ctx context.Context, stepID int, edit FileEdit) ExecutionResult {
	start := time.Now()

	if s.isClosed() {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: "sandbox is closed", Duration: time.Since(start)}
	}
	if err := ctx.Err(); err != nil {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: err.Error(), Duration: time.Since(start)}
	}

	full := filepath.Join(s.workDir, edit.Path)
	rel, err := filepath.Rel(s.workDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ExecutionResult{
			StepID:   stepID,
			ExitCode: -1,
			Stderr:   fmt.Sprintf("path %q escapes the working copy", edit.Path),
			Duration: time.Since(start),
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: err.Error(), Duration: time.Since(start)}
	}
	if err := os.WriteFile(full, []byte(edit.Content), 0644); err != nil {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: err.Error(), Duration: time.Since(start)}
	}

	return ExecutionResult{
		StepID:       stepID,
		ExitCode:     0,
		Stdout:       "wrote " + edit.Path,
		FilesTouched: []string{edit.Path},
		Duration:     time.Since(start),
	}
}

// Diff computes the cumulative changes in the working copy against the
// baseline captured at provision time.
func (s *LocalSandbox) Diff() (DiffStats, error) {
	if s.isClosed() {
		return DiffStats{}, errors.New("sandbox is closed")
	}

	current, err := hashTree(s.workDir)
	if err != nil {
		return DiffStats{}, fmt.Errorf("hashing working copy: %w", err)
	}

	var stats DiffStats
	var summary strings.Builder

	paths := make([]string, 0, len(current)+len(s.baseline))
	seen := make(map[string]bool)
	for p := range current {
		paths = append(paths, p)
		seen[p] = true
	}
	for p := range s.baseline {
		if !seen[p] {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		before, hadBefore := s.baseline[p]
		after, hasAfter := current[p]

		switch {
		case !hadBefore:
			lines := countFileLines(filepath.Join(s.workDir, p))
			stats.FilesChanged = append(stats.FilesChanged, p)
			stats.LinesChanged += lines
			fmt.Fprintf(&summary, "A %s (+%d)\n", p, lines)
		case !hasAfter:
			stats.FilesChanged = append(stats.FilesChanged, p)
			stats.LinesChanged++
			fmt.Fprintf(&summary, "D %s\n", p)
		case before != after:
			lines := countFileLines(filepath.Join(s.workDir, p))
			stats.FilesChanged = append(stats.FilesChanged, p)
			stats.LinesChanged += lines
			fmt.Fprintf(&summary, "M %s (~%d)\n", p, lines)
		}
	}

	stats.Summary = summary.String()
	return stats, nil
}

// Close removes the working copy. Close is idempotent.
func (s *LocalSandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := os.RemoveAll(s.workDir); err != nil {
		return &Fault{Op: "teardown", Err: err}
	}
	return nil
}

func (s *LocalSandbox) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sanitize runs the guardrail sanitization pass over both captures.
func (s *LocalSandbox) sanitize(stdout, stderr string, result *ExecutionResult) (string, string) {
	if s.sanitizer == nil {
		return stdout, stderr
	}
	cleanOut, w1 := s.sanitizer.SanitizeOutput(stdout)
	cleanErr, w2 := s.sanitizer.SanitizeOutput(stderr)
	result.Warnings = append(result.Warnings, w1...)
	result.Warnings = append(result.Warnings, w2...)
	return cleanOut, cleanErr
}

// cappedBuffer accumulates writes up to a byte limit, then drops the rest
// and appends a truncation marker.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit > 0 && b.buf.Len()+len(p) > b.limit {
		room := b.limit - b.buf.Len()
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n... [output truncated]"
	}
	return b.buf.String()
}

// copyTree copies src into dst, skipping VCS metadata.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// hashTree maps every regular file under root (relative path) to its
// content hash.
func hashTree(root string) (map[string]string, error) {
	hashes := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		hashes[rel] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func countFileLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	if len(data) == 0 {
		return 0
	}
	return bytes.Count(data, []byte("\n")) + 1
}

// Ensure LocalSandbox implements Sandbox.
var _ Sandbox = (*LocalSandbox)(nil)
