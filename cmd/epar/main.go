package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aaronromeo/epar/internal/announcer"
	"github.com/aaronromeo/epar/internal/config"
	"github.com/aaronromeo/epar/internal/credential"
	"github.com/aaronromeo/epar/pkg/base"
	"github.com/aaronromeo/epar/pkg/models/imapmanager"
	"github.com/aaronromeo/epar/pkg/pipeline"
	"github.com/aaronromeo/epar/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const defaultEnvFile = ".env"

var tracer = otel.Tracer("github.com/aaronromeo/epar/cmd/epar")

// runDeps are the pieces of a run that touch the outside world.
type runDeps struct {
	prompt         func(label string) (*credential.Secret, error)
	dialTLS        imapmanager.DialTLSFunc
	newFileManager func(destination string) (utils.FileManager, error)
	logOut         io.Writer
}

func defaultDeps() runDeps {
	prompter := credential.NewPrompter(os.Stdin, os.Stderr)
	return runDeps{
		prompt:         prompter.Prompt,
		newFileManager: utils.NewFileManager,
		logOut:         os.Stderr,
	}
}

func main() {
	if err := newApp(defaultDeps()).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(deps runDeps) *cli.App {
	return &cli.App{
		Name:  base.SERVICE_NAME,
		Usage: "Export fields from matching IMAP messages to a delimited file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the TOML or YAML settings file",
				EnvVars: []string{config.EnvConfig},
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "otel-stdout",
				Usage: "Export OpenTelemetry logs to stderr when no UPTRACE_DSN is set",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c, deps)
		},
	}
}

func run(c *cli.Context, deps runDeps) (err error) {
	if err := loadEnvFile(); err != nil {
		return base.NewError(base.ConfigError, "main.loadEnvFile", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	config.ApplyEnv(&cfg)
	if err := config.Validate(&cfg); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, config.Summary(cfg))

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return base.NewError(base.ConfigError, "main.logLevel", err)
	}

	telemetry := utils.TelemetryConfig{DSN: os.Getenv(base.UPTRACE_DSN_ENV_VAR)}
	if c.Bool("otel-stdout") {
		telemetry.Stdout = deps.logOut
	}
	shutdown, err := utils.SetupOTelSDK(c.Context, telemetry)
	defer func() {
		if shutdownErr := shutdown(context.Background()); shutdownErr != nil {
			fmt.Fprintf(deps.logOut, "Failed to shut down telemetry: %v\n", shutdownErr)
		}
	}()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(deps.logOut, &slog.HandlerOptions{Level: level}))
	if telemetry.Enabled() {
		logger = otelslog.NewLogger(base.SERVICE_NAME)
	}

	ctx, span := tracer.Start(c.Context, "epar")
	defer span.End()

	secret, err := deps.prompt(fmt.Sprintf("Password for %s: ", cfg.Email))
	if err != nil {
		return err
	}
	defer secret.Wipe()

	opts := []imapmanager.ImapManagerOption{
		imapmanager.WithDomain(cfg.Domain),
		imapmanager.WithAuth(cfg.Email, secret),
		imapmanager.WithLogger(logger),
		imapmanager.WithCtx(ctx),
	}
	if deps.dialTLS != nil {
		opts = append(opts, imapmanager.WithDialTLS(deps.dialTLS))
	}
	imapMgr, err := imapmanager.NewImapManager(opts...)
	if err != nil {
		return base.NewError(base.ConfigError, "main.NewImapManager", err)
	}

	fileMgr, err := deps.newFileManager(cfg.OutputFile)
	if err != nil {
		return err
	}

	runner, err := pipeline.NewRunner(
		pipeline.WithFetcher(imapMgr),
		pipeline.WithFileManager(fileMgr),
		pipeline.WithLogger(logger),
		pipeline.WithCtx(ctx),
	)
	if err != nil {
		return err
	}

	if err := runner.Run(cfg); err != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("Run failed: %v", err), slog.String("kind", base.KindOf(err).String()))
		return err
	}

	// the output is already complete, so a failed announcement only warns
	ann := announcer.New(announcer.WithWebhookURL(cfg.WebhookURL))
	if err := ann.Do(ctx, cfg.Subject, cfg.OutputFile, runner.RowsWritten()); err != nil {
		logger.WarnContext(ctx, fmt.Sprintf("Failed to announce export: %v", err), slog.Any("error", utils.WrapError(err)))
	}
	return nil
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}
