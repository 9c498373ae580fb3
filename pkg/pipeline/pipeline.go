// Package pipeline turns matching messages into a delimited table.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/aaronromeo/epar/internal/config"
	"github.com/aaronromeo/epar/pkg/base"
	"github.com/aaronromeo/epar/pkg/extract"
	"github.com/aaronromeo/epar/pkg/models/imapmanager"
	"github.com/aaronromeo/epar/pkg/rowenc"
	"github.com/aaronromeo/epar/pkg/utils"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/aaronromeo/epar/pkg/pipeline"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

type Runner struct {
	fetcher     imapmanager.ImapManager
	fileManager utils.FileManager
	logger      *slog.Logger
	ctx         context.Context

	fetchedCounter metric.Int64Counter
	rowsCounter    metric.Int64Counter

	rows int
}

type RunnerOption func(*Runner)

func NewRunner(opts ...RunnerOption) (*Runner, error) {
	var r Runner
	for _, opt := range opts {
		opt(&r)
	}

	if r.fetcher == nil {
		return nil, errors.New("requires fetcher")
	}

	if r.fileManager == nil {
		return nil, errors.New("requires file manager")
	}

	if r.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if r.ctx == nil {
		r.ctx = context.Background()
	}

	var err error
	if r.fetchedCounter, err = meter.Int64Counter("epar.messages.fetched",
		metric.WithDescription("Messages fetched with a body")); err != nil {
		return nil, err
	}
	if r.rowsCounter, err = meter.Int64Counter("epar.rows.written",
		metric.WithDescription("Data rows written to the output")); err != nil {
		return nil, err
	}

	return &r, nil
}

func WithFetcher(f imapmanager.ImapManager) RunnerOption {
	return func(r *Runner) {
		r.fetcher = f
	}
}

func WithFileManager(fm utils.FileManager) RunnerOption {
	return func(r *Runner) {
		r.fileManager = fm
	}
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithCtx(ctx context.Context) RunnerOption {
	return func(r *Runner) {
		r.ctx = ctx
	}
}

// Run fetches the matching messages, then writes a header row and one row
// per message in fetch order. The output is only created once fetching has
// succeeded. Any failure aborts the run with its original kind.
func (r *Runner) Run(settings config.Settings) (err error) {
	r.rows = 0
	ctx, span := tracer.Start(r.ctx, "pipeline.Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, base.KindOf(err).String())
		}
		span.End()
	}()

	messages, err := r.fetcher.FetchMatching(settings.Mailbox, settings.Subject)
	if err != nil {
		r.logger.ErrorContext(ctx, "Fetch failed", slog.String("kind", base.KindOf(err).String()), slog.Any("error", utils.WrapError(err)))
		return err
	}
	r.fetchedCounter.Add(ctx, int64(len(messages)))

	w, err := r.fileManager.Create(settings.OutputFile)
	if err != nil {
		return asIOError("pipeline.Create", err)
	}
	defer func() {
		if closeErr := r.fileManager.Close(); closeErr != nil && err == nil {
			err = asIOError("pipeline.Close", closeErr)
		}
	}()

	if err := write(w, rowenc.EncodeHeader(settings.Fields, settings.Separator)); err != nil {
		return err
	}

	for _, msg := range messages {
		values := extract.Extract(msg.Text(), settings.Fields)
		if err := write(w, rowenc.EncodeRow(settings.Fields, values, settings.Separator)); err != nil {
			return err
		}
		r.logger.DebugContext(ctx, "Row written", slog.Any("uid", msg.UID), slog.Int("fields", len(values)))
	}
	r.rowsCounter.Add(ctx, int64(len(messages)))

	if err := w.Flush(); err != nil {
		return asIOError("pipeline.Flush", err)
	}

	r.rows = len(messages)
	span.SetAttributes(attribute.Int("epar.rows", r.rows))
	r.logger.InfoContext(ctx, "Output written", slog.String("output", settings.OutputFile), slog.Int("rows", len(messages)))
	return nil
}

// RowsWritten is the number of data rows in the last completed output.
func (r *Runner) RowsWritten() int {
	return r.rows
}

func write(w utils.Writer, line string) error {
	if _, err := w.Write([]byte(line)); err != nil {
		return asIOError("pipeline.Write", err)
	}
	return nil
}

// asIOError keeps an existing classification and marks anything else as IOError.
func asIOError(op string, err error) error {
	if base.KindOf(err) != base.UnknownError {
		return err
	}
	return base.NewError(base.IOError, op, err)
}
