// Package argvsan implements the Argv Sanitizer (C2): validating and
// splitting the assistant CLI command line a client may request, and
// refusing anything that looks like shell injection.
package argvsan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ErrDangerousCommand is returned when the raw command string contains a
// shell metacharacter.
var ErrDangerousCommand = errors.New("argvsan: dangerous command")

// ErrInvalidCommand is returned when the command cannot be tokenized, is
// empty after tokenization, or does not start with the configured
// default binary.
var ErrInvalidCommand = errors.New("argvsan: invalid command")

// dangerousChars are rejected anywhere in the raw command string, before
// tokenization ever sees them.
const dangerousChars = ";&|$`\\"

// Sanitizer validates and tokenizes a client-supplied command string
// into an argv slice suitable for os/exec, enforcing that the first
// token names an allowed binary.
type Sanitizer struct {
	// DefaultBinary is both the argv returned for an empty command and
	// the only acceptable first token of a non-empty one.
	DefaultBinary string
}

// New returns a Sanitizer that only accepts defaultBinary as argv[0].
func New(defaultBinary string) *Sanitizer {
	return &Sanitizer{DefaultBinary: defaultBinary}
}

// Sanitize validates command and returns the argv to exec. An empty or
// whitespace-only command yields []string{DefaultBinary}.
func (s *Sanitizer) Sanitize(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return []string{s.DefaultBinary}, nil
	}

	if strings.ContainsAny(command, dangerousChars) {
		return nil, fmt.Errorf("%w: %q", ErrDangerousCommand, command)
	}

	tokens, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if tokens[0] != s.DefaultBinary {
		return nil, fmt.Errorf("%w: first token must be %q, got %q", ErrInvalidCommand, s.DefaultBinary, tokens[0])
	}

	argv := make([]string, len(tokens))
	for i, tok := range tokens {
		argv[i] = stripQuoteChars(tok)
	}
	return argv, nil
}

// stripQuoteChars removes literal quote and backslash characters left in
// a token after tokenization (shlex already consumes quoting it
// understands; this is a defense-in-depth pass matching the spec's
// explicit per-token strip list).
func stripQuoteChars(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	for _, r := range tok {
		switch r {
		case '"', '\'', '\\':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
