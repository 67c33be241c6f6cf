package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrNotTerminal = errors.New("password prompt needs an interactive terminal")

// Fatal will Echo the message and os.Exit with code 1.
func Fatal(msg string, args ...any) {
	Echo(msg, args...)
	os.Exit(1)
}

// Echo will emit the given message to stderr without any logging formatting.
// Stdout is left for command output.
func Echo(msg string, args ...any) {
	echoTo(os.Stderr, msg, args...)
}

func echoTo(w io.Writer, msg string, args ...any) {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	_, _ = fmt.Fprintf(w, msg, args...)
}

// ReadPassword prompts on stderr and reads a password from stdin without echoing it.
// The caller owns the returned password, and should wipe it when finished.
func ReadPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	_, _ = fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return nil, errors.New("no password entered")
	}
	return password, nil
}
