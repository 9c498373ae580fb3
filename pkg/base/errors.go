package base

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind int

const (
	UnknownError Kind = iota
	ConfigError
	ConnectionFailed
	AuthenticationFailed
	MailboxUnavailable
	SearchFailed
	FetchFailed
	IOError
)

var kindNames = map[Kind]string{
	UnknownError:         "unknown error",
	ConfigError:          "config error",
	ConnectionFailed:     "connection failed",
	AuthenticationFailed: "authentication failed",
	MailboxUnavailable:   "mailbox unavailable",
	SearchFailed:         "search failed",
	FetchFailed:          "fetch failed",
	IOError:              "io error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause lets github.com/pkg/errors.Cause walk through an *Error.
func (e *Error) Cause() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// NewError wraps err with a stack trace and classifies it.
func NewError(kind Kind, op string, err error) *Error {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnknownError
}
