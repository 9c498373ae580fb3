package credential

import (
	"fmt"
	"io"
	"os"

	"github.com/aaronromeo/epar/pkg/base"
	"golang.org/x/term"
)

// Prompter reads a password from a terminal file descriptor with echo disabled.
type Prompter struct {
	In  *os.File
	Out io.Writer

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewPrompter prompts on out and reads from in.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	return &Prompter{
		In:           in,
		Out:          out,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

// Prompt prints label and reads one password line.
func (p *Prompter) Prompt(label string) (*Secret, error) {
	fd := int(p.In.Fd())
	if !p.isTerminal(fd) {
		return nil, base.Errorf(base.ConfigError, "credential.Prompt", "%s is not a terminal", p.In.Name())
	}

	fmt.Fprint(p.Out, label)
	b, err := p.readPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return nil, base.NewError(base.ConfigError, "credential.Prompt", err)
	}
	if len(b) == 0 {
		return nil, base.Errorf(base.ConfigError, "credential.Prompt", "empty password")
	}

	return NewSecret(b), nil
}
