package utils

import (
	"bytes"
	"context"
	"strings"

	"github.com/aaronromeo/epar/pkg/base"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

const s3Scheme = "s3://"

// S3FileManager buffers the table in memory and uploads it as a single
// object when closed.
type S3FileManager struct {
	uploader s3manageriface.UploaderAPI
	ctx      context.Context

	bucket string
	key    string
	buf    *bytes.Buffer
}

// NewS3FileManager uses the SDK's default region and credential chain.
func NewS3FileManager() (*S3FileManager, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, base.NewError(base.IOError, "utils.NewS3FileManager", err)
	}
	return NewS3FileManagerWithUploader(context.Background(), s3manager.NewUploader(sess)), nil
}

func NewS3FileManagerWithUploader(ctx context.Context, uploader s3manageriface.UploaderAPI) *S3FileManager {
	return &S3FileManager{uploader: uploader, ctx: ctx}
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(destination string) (string, string, error) {
	rest := strings.TrimPrefix(destination, s3Scheme)
	if rest == destination {
		return "", "", base.Errorf(base.ConfigError, "utils.ParseS3URL", "%q is not an s3:// URL", destination)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", base.Errorf(base.ConfigError, "utils.ParseS3URL", "%q must be s3://bucket/key", destination)
	}
	return bucket, key, nil
}

func (s *S3FileManager) Create(name string) (Writer, error) {
	bucket, key, err := ParseS3URL(name)
	if err != nil {
		return nil, err
	}
	s.bucket = bucket
	s.key = key
	s.buf = new(bytes.Buffer)
	return bufferWriter{s.buf}, nil
}

func (s *S3FileManager) Close() error {
	if s.buf == nil {
		return nil
	}
	body := s.buf
	s.buf = nil

	_, err := s.uploader.UploadWithContext(s.ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return base.NewError(base.IOError, "utils.Close", err)
	}
	return nil
}

type bufferWriter struct {
	*bytes.Buffer
}

func (bufferWriter) Flush() error {
	return nil
}
