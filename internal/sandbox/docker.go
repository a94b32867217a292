package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DockerImage is the sandbox container image.
const DockerImage = "gantry-sandbox:latest"

// dockerUser is the unprivileged user commands run as inside the container.
const dockerUser = "sandbox"

// DockerSandbox wraps a LocalSandbox working copy and dispatches commands
// through `docker run` with network isolation, a read-only root filesystem,
// and a memory cap. File edits and diffing operate on the bind-mounted
// working copy on the host.
type DockerSandbox struct {
	*LocalSandbox
	networkIsolation bool
}

// NewDocker provisions a docker-backed sandbox. The working copy lives on
// the host and is bind-mounted into the container for each run.
func NewDocker(repoRoot string, limits Limits, sanitizer Sanitizer, networkIsolation bool) (*DockerSandbox, error) {
	local, err := NewLocal(repoRoot, limits, sanitizer)
	if err != nil {
		return nil, err
	}
	return &DockerSandbox{LocalSandbox: local, networkIsolation: networkIsolation}, nil
}

// Run executes a command inside the sandbox container, hard-killed at the
// limits' timeout.
func (s *DockerSandbox) Run(ctx context.Context, stepID int, command string) ExecutionResult {
	start := time.Now()

	if s.isClosed() {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: "sandbox is closed", Duration: time.Since(start)}
	}
	if strings.TrimSpace(command) == "" {
		return ExecutionResult{StepID: stepID, ExitCode: -1, Stderr: "empty command", Duration: time.Since(start)}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.limits.Timeout)
	defer cancel()

	name := s.containerName(stepID)
	args := s.dockerArgs(name, command)
	cmd := exec.CommandContext(runCtx, "docker", args...)

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
		// Killing the docker client leaves the container itself running;
		// it must be killed by name or it survives as an orphan.
		s.killContainer(name)
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

// dockerArgs builds the `docker run` argument list: named ephemeral
// container, optional network isolation, read-only root, unprivileged
// user, CPU and memory caps, working copy bind-mounted at /workspace.
func (s *DockerSandbox) dockerArgs(name, command string) []string {
	args := []string{"run", "--rm", "--name", name}
	if s.networkIsolation {
		args = append(args, "--network", "none")
	}
	args = append(args,
		"--read-only",
		"--user", dockerUser,
		fmt.Sprintf("--cpus=%.2f", float64(s.limits.CPUSeconds)/60.0),
		fmt.Sprintf("--memory=%db", s.limits.MemoryBytes),
		"-w", "/workspace",
		"-v", s.workDir+":/workspace",
		DockerImage,
	)
	args = append(args, strings.Fields(command)...)
	return args
}

// containerName derives a per-step container name so a timed-out run can
// be killed by name.
func (s *DockerSandbox) containerName(stepID int) string {
	return fmt.Sprintf("gantry-sbx-%s-%d", s.id, stepID)
}

// killContainer stops the named container. Best effort: the container may
// already have exited by the time the client was killed.
func (s *DockerSandbox) killContainer(name string) {
	killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(killCtx, "docker", "kill", name).Run()
}

// EnsureImage checks that the sandbox image exists on the host.
func EnsureImage(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", DockerImage)
	if err := cmd.Run(); err != nil {
		return &Fault{Op: "provision", Err: fmt.Errorf("sandbox image %s not available: %w", DockerImage, err)}
	}
	return nil
}

// Ensure DockerSandbox implements Sandbox.
var _ Sandbox = (*DockerSandbox)(nil)
