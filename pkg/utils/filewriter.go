package utils

import (
	"bufio"
	"os"
	"strings"

	"github.com/aaronromeo/epar/pkg/base"
)

type Writer interface {
	Write(p []byte) (n int, err error)
	Flush() error
}

// FileManager creates the output table and finalizes it on Close.
type FileManager interface {
	Create(name string) (Writer, error)
	Close() error
}

// NewFileManager picks the sink for an output destination: s3://bucket/key
// goes to S3, anything else is a local path.
func NewFileManager(destination string) (FileManager, error) {
	if strings.HasPrefix(destination, s3Scheme) {
		return NewS3FileManager()
	}
	return &OSFileManager{}, nil
}

type OSFileManager struct {
	Outfile *os.File
	Writer  *bufio.Writer
}

func (osfm *OSFileManager) Create(name string) (Writer, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, base.NewError(base.IOError, "utils.Create", err)
	}
	osfm.Outfile = f
	osfm.Writer = bufio.NewWriter(f)
	return osfm.Writer, nil
}

// Close flushes buffered rows and closes the file. The file is closed even
// when the flush fails.
func (osfm *OSFileManager) Close() error {
	if osfm.Outfile == nil {
		return nil
	}
	flushErr := osfm.Writer.Flush()
	closeErr := osfm.Outfile.Close()
	osfm.Outfile = nil
	if flushErr != nil {
		return base.NewError(base.IOError, "utils.Close", flushErr)
	}
	if closeErr != nil {
		return base.NewError(base.IOError, "utils.Close", closeErr)
	}
	return nil
}
