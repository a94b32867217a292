package sandbox

import "fmt"

// Factory provisions one sandbox per job attempt.
type Factory interface {
	Provision(repoRoot string) (Sandbox, error)
}

// LocalFactory provisions host-process sandboxes.
type LocalFactory struct {
	Limits    Limits
	Sanitizer Sanitizer
}

// Provision creates a local sandbox for the repository.
func (f LocalFactory) Provision(repoRoot string) (Sandbox, error) {
	return NewLocal(repoRoot, f.Limits, f.Sanitizer)
}

// DockerFactory provisions container-backed sandboxes.
type DockerFactory struct {
	Limits           Limits
	Sanitizer        Sanitizer
	NetworkIsolation bool
}

// Provision creates a docker sandbox for the repository.
func (f DockerFactory) Provision(repoRoot string) (Sandbox, error) {
	return NewDocker(repoRoot, f.Limits, f.Sanitizer, f.NetworkIsolation)
}

// NewFactory selects a factory by runtime name ("local" or "docker").
func NewFactory(runtime string, limits Limits, sanitizer Sanitizer, networkIsolation bool) (Factory, error) {
	switch runtime {
	case "local":
		return LocalFactory{Limits: limits, Sanitizer: sanitizer}, nil
	case "docker":
		return DockerFactory{Limits: limits, Sanitizer: sanitizer, NetworkIsolation: networkIsolation}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox runtime %q", runtime)
	}
}
