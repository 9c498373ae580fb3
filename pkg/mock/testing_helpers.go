package mock

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"

	imap "github.com/emersion/go-imap"
	gomock "go.uber.org/mock/gomock"
)

// SetupLogger sets up a logger that only outputs if the test fails
func SetupLogger(t *testing.T) *slog.Logger {
	logger, _ := SetupCapturingLogger(t)
	return logger
}

// SetupCapturingLogger also returns the buffer so tests can inspect log output.
func SetupCapturingLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t.Cleanup(func() {
		if t.Failed() {
			os.Stdout.Write(buf.Bytes()) //nolint:errcheck
		}
	})

	return logger, &buf
}

// StringLiteral is a simple imap.Literal implementation that wraps a string.
type StringLiteral struct {
	s   string
	pos int
}

// NewStringLiteral creates a new StringLiteral based on a string.
func NewStringLiteral(s string) *StringLiteral {
	return &StringLiteral{s: s}
}

func (l *StringLiteral) Read(p []byte) (n int, err error) {
	if l.pos >= len(l.s) {
		return 0, io.EOF
	}

	n = copy(p, l.s[l.pos:])
	l.pos += n

	return n, nil
}

// Len returns the length of the underlying string.
func (l *StringLiteral) Len() int {
	return len(l.s)
}

// MessageWithBody builds a fetched message carrying body under section.
func MessageWithBody(uid uint32, section *imap.BodySectionName, body string) *imap.Message {
	msg := imap.NewMessage(uid, []imap.FetchItem{imap.FetchUid, section.FetchItem()})
	msg.Uid = uid
	key := *section
	key.Peek = false
	msg.Body[&key] = NewStringLiteral(body)
	return msg
}

// subjectCriteriaMatcher matches a search restricted to one SUBJECT value.
type subjectCriteriaMatcher struct {
	subject string
}

func (m subjectCriteriaMatcher) Matches(x interface{}) bool {
	c, ok := x.(*imap.SearchCriteria)
	if !ok {
		return false
	}
	values := c.Header.Values("Subject")
	return len(values) == 1 && values[0] == m.subject
}

func (m subjectCriteriaMatcher) String() string {
	return "searches SUBJECT " + m.subject
}

// NewSubjectCriteriaMatcher returns a matcher for a SUBJECT search criteria
func NewSubjectCriteriaMatcher(subject string) gomock.Matcher {
	return subjectCriteriaMatcher{subject: subject}
}
