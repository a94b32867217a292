package guardrail

import (
	"regexp"
	"strings"
)

// DetectedSecret describes one credential-shaped match found in text.
// The value is redacted before it leaves this package.
type DetectedSecret struct {
	// Type names the credential pattern that matched.
	Type string

	// Redacted is the matched value with all but the first two characters
	// masked.
	Redacted string
}

// secretPattern pairs a credential type with its detection regexp.
type secretPattern struct {
	name string
	re   *regexp.Regexp
}

// secretPatterns covers the common credential shapes: cloud access keys,
// source-host tokens, private-key headers, chat-platform tokens.
var secretPatterns = []secretPattern{
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)aws_secret_access_key[ =]+[a-zA-Z0-9/+]{40}`)},
	{"github_token", regexp.MustCompile(`gh[pous]_[a-zA-Z0-9]{36,}`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (RSA|DSA|EC|OPENSSH|PRIVATE) KEY-----`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[0-9a-zA-Z]{10,48}`)},
}

// ScanSecrets scans text for credential-shaped strings and returns the
// detected secrets with their values redacted.
func ScanSecrets(text string) []DetectedSecret {
	var detected []DetectedSecret
	for _, p := range secretPatterns {
		for _, match := range p.re.FindAllString(text, -1) {
			detected = append(detected, DetectedSecret{
				Type:     p.name,
				Redacted: redact(match),
			})
		}
	}
	return detected
}

// RedactSecrets replaces every credential-shaped string in text with its
// redacted form. The result is safe to persist or transmit.
func RedactSecrets(text string) string {
	for _, p := range secretPatterns {
		text = p.re.ReplaceAllStringFunc(text, redact)
	}
	return text
}

// redact keeps the first two characters of a match and masks the rest.
func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-2)
}
