package guardrail

import (
	"path/filepath"
	"strings"
)

// forbiddenCommands are executables that are rejected even when they appear
// as arguments of an allowed command: network tools, privilege escalation,
// package managers, container control, system control.
var forbiddenCommands = map[string]bool{
	"curl": true, "wget": true, "scp": true, "ssh": true, "ftp": true,
	"telnet": true, "nc": true, "ncat": true,
	"sudo": true, "su": true,
	"apt": true, "apt-get": true, "yum": true, "apk": true, "dnf": true,
	"docker": true, "podman": true, "kubectl": true,
	"reboot": true, "shutdown": true, "init": true,
}

// chainingTokens are shell metacharacters that would let a single approved
// step smuggle in further commands. Chained commands must be separate steps
// so the gate sees every one of them.
var chainingTokens = []string{";", "&&", "||", "|", "`", "$("}

// CommandVerdict is the result of classifying a command line.
type CommandVerdict struct {
	Allowed bool
	Reason  ReasonCode
	Detail  string
}

// CheckCommand classifies a command line against the allowlist. The gate is
// deny-by-default: the executable must match the allowlist exactly, no
// argument may name a forbidden executable, and shell chaining is rejected.
func CheckCommand(commandLine string, allowlist map[string]bool) CommandVerdict {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return CommandVerdict{Allowed: false, Reason: ReasonInvalidStep, Detail: "empty command"}
	}

	executable := fields[0]
	if !allowlist[executable] {
		return CommandVerdict{
			Allowed: false,
			Reason:  ReasonCommandNotAllowed,
			Detail:  "command " + executable + " is not in the allowlist",
		}
	}

	for _, token := range fields[1:] {
		if forbiddenCommands[token] {
			return CommandVerdict{
				Allowed: false,
				Reason:  ReasonForbiddenToken,
				Detail:  "forbidden token " + token + " in command arguments",
			}
		}
	}

	for _, token := range chainingTokens {
		if strings.Contains(commandLine, token) {
			return CommandVerdict{
				Allowed: false,
				Reason:  ReasonShellChaining,
				Detail:  "shell chaining operator " + token + " is not allowed",
			}
		}
	}

	return CommandVerdict{Allowed: true}
}

// CheckPath resolves a file path against the repository root and reports
// whether it stays inside it. Absolute paths and traversal sequences that
// escape the root are rejected.
func CheckPath(root, target string) bool {
	if target == "" {
		return false
	}
	if filepath.IsAbs(target) {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	joined, err := filepath.Abs(filepath.Join(absRoot, target))
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, joined)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
