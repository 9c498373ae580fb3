package mock

import (
	"bytes"

	"github.com/aaronromeo/epar/pkg/utils"
)

type MockWriter struct {
	Buffer   *bytes.Buffer
	Err      error
	FlushErr error
}

func (m MockWriter) Write(p []byte) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Buffer.Write(p)
}

func (m MockWriter) Flush() error {
	return m.FlushErr
}

// MockFileManager records every created output in Writers.
type MockFileManager struct {
	CreateErr error
	WriteErr  error
	CloseErr  error

	Writers     map[string]MockWriter
	CloseCalled int
}

func NewMockFileManager() *MockFileManager {
	return &MockFileManager{Writers: map[string]MockWriter{}}
}

func (m *MockFileManager) Create(name string) (utils.Writer, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	writer := MockWriter{Buffer: new(bytes.Buffer), Err: m.WriteErr}
	m.Writers[name] = writer
	return writer, nil
}

func (m *MockFileManager) Close() error {
	m.CloseCalled++
	return m.CloseErr
}

// Contents returns what was written to name, or "" if it was never created.
func (m *MockFileManager) Contents(name string) string {
	w, ok := m.Writers[name]
	if !ok {
		return ""
	}
	return w.Buffer.String()
}
