// Package credential holds the mail account password for the lifetime of a
// run and reads it from the controlling terminal.
package credential

import (
	"fmt"
	"log/slog"
)

const redacted = "<password>"

// Secret owns password bytes. Every rendering of a Secret is redacted.
type Secret struct {
	b []byte
}

// NewSecret takes ownership of b; the caller must not reuse it.
func NewSecret(b []byte) *Secret {
	return &Secret{b: b}
}

// Reveal returns the password as a string for the login command.
func (s *Secret) Reveal() string {
	if s == nil {
		return ""
	}
	return string(s.b)
}

// Empty reports whether there is no password, or it has been wiped.
func (s *Secret) Empty() bool {
	return s == nil || len(s.b) == 0
}

// Wipe zeroes the password. It is safe to call more than once.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

func (s *Secret) String() string {
	return redacted
}

func (s *Secret) GoString() string {
	return redacted
}

// Format covers %v, %+v, %#v, %s, %q and %x.
func (s *Secret) Format(f fmt.State, _ rune) {
	fmt.Fprint(f, redacted)
}

func (s *Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
