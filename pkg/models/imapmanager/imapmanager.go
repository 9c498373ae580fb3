package imapmanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/aaronromeo/epar/internal/credential"
	"github.com/aaronromeo/epar/pkg/base"
	"github.com/aaronromeo/epar/pkg/utils"
	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/aaronromeo/epar/pkg/models/imapmanager")

type ImapManager interface {
	FetchMatching(mailbox, subject string) ([]base.RawMessage, error)
}

type DialTLSFunc func(address string, tlsConfig *tls.Config) (base.Client, error)

// ImapManagerImpl runs one read-only IMAP session per FetchMatching call.
type ImapManagerImpl struct {
	dialTLS   DialTLSFunc
	domain    string
	username  string
	password  *credential.Secret
	logger    *slog.Logger
	tlsConfig *tls.Config
	ctx       context.Context
}

type ImapManagerOption func(*ImapManagerImpl) error

func NewImapManager(opts ...ImapManagerOption) (*ImapManagerImpl, error) {
	var imapMgr ImapManagerImpl
	for _, opt := range opts {
		err := opt(&imapMgr)
		if err != nil {
			return nil, err
		}
	}

	if imapMgr.dialTLS == nil {
		imapMgr.dialTLS = func(address string, tlsConfig *tls.Config) (base.Client, error) {
			c, err := imapclient.DialTLS(address, tlsConfig)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	if imapMgr.domain == "" {
		return nil, errors.New("requires domain")
	}

	if imapMgr.username == "" {
		return nil, errors.New("requires username")
	}

	if imapMgr.password.Empty() {
		return nil, errors.New("requires password")
	}

	if imapMgr.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if imapMgr.ctx == nil {
		imapMgr.ctx = context.Background()
	}

	imapMgr.tlsConfig = verifiedTLSConfig(imapMgr.tlsConfig, imapMgr.domain)

	return &imapMgr, nil
}

func WithDomain(domain string) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.domain = domain
		return nil
	}
}

// WithTLSConfig supplies extra TLS settings such as RootCAs. ServerName is
// always forced to the domain and certificate verification cannot be disabled.
func WithTLSConfig(tlsConfig *tls.Config) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.tlsConfig = tlsConfig
		return nil
	}
}

func WithAuth(username string, password *credential.Secret) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.username = username
		imapMgr.password = password
		return nil
	}
}

func WithDialTLS(d DialTLSFunc) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.dialTLS = d
		return nil
	}
}

func WithLogger(logger *slog.Logger) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.logger = logger
		return nil
	}
}

func WithCtx(ctx context.Context) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.ctx = ctx
		return nil
	}
}

func verifiedTLSConfig(cfg *tls.Config, domain string) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		cfg = cfg.Clone()
	}
	cfg.ServerName = domain
	cfg.InsecureSkipVerify = false
	return cfg
}

// Address is the implicit-TLS IMAP endpoint for the domain.
func (srv *ImapManagerImpl) Address() string {
	return net.JoinHostPort(srv.domain, base.DefaultIMAPSPort)
}

// FetchMatching opens a session, searches mailbox for subject and returns the
// raw bodies in the order the server listed them. Messages whose fetch fails
// or whose body is empty are skipped. The session is logged out on every path
// once the connection is up.
func (srv *ImapManagerImpl) FetchMatching(mailbox, subject string) ([]base.RawMessage, error) {
	if mailbox == "" {
		mailbox = base.DefaultMailbox
	}
	if srv.password.Empty() {
		return nil, base.Errorf(base.AuthenticationFailed, "imapmanager.FetchMatching", "password already used for %s", srv.username)
	}
	defer srv.password.Wipe()

	ctx, span := tracer.Start(srv.ctx, "imapmanager.FetchMatching", trace.WithAttributes(
		attribute.String("imap.server", srv.domain),
		attribute.String("imap.mailbox", mailbox),
	))
	defer span.End()

	messages, err := srv.fetchMatching(ctx, span, mailbox, subject)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, base.KindOf(err).String())
		return nil, err
	}
	return messages, nil
}

func (srv *ImapManagerImpl) fetchMatching(ctx context.Context, span trace.Span, mailbox, subject string) ([]base.RawMessage, error) {
	c, err := srv.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer srv.LogoutFn(ctx, c)()

	if err := srv.login(ctx, c); err != nil {
		return nil, err
	}

	status, err := c.Select(mailbox, true)
	if err != nil {
		srv.logger.ErrorContext(ctx, fmt.Sprintf("Failed to select %s: %v", mailbox, err), slog.Any("error", utils.WrapError(err)))
		return nil, base.NewError(base.MailboxUnavailable, "imapmanager.Select", errors.Wrapf(err, "mailbox %q", mailbox))
	}
	if status != nil {
		srv.logger.InfoContext(ctx, "Mailbox selected", slog.String("mailbox", mailbox), slog.Any("messages", status.Messages))
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", subject)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		srv.logger.ErrorContext(ctx, fmt.Sprintf("Failed to search: %v", err), slog.Any("error", utils.WrapError(err)))
		return nil, base.NewError(base.SearchFailed, "imapmanager.UidSearch", err)
	}
	srv.logger.InfoContext(ctx, "Search complete", slog.String("subject", subject), slog.Int("matched", len(uids)))

	messages := make([]base.RawMessage, 0, len(uids))
	skipped := 0
	for _, uid := range uids {
		body, err := srv.fetchBody(c, uid)
		if err != nil {
			srv.logger.WarnContext(ctx, "Skipping message", slog.Any("uid", uid), slog.Any("error", utils.WrapError(err)))
			skipped++
			continue
		}
		if len(body) == 0 {
			srv.logger.WarnContext(ctx, "Skipping message without body", slog.Any("uid", uid))
			skipped++
			continue
		}

		srv.logger.DebugContext(ctx, "Fetched message", append([]any{slog.Any("uid", uid)}, describe(body)...)...)
		messages = append(messages, base.RawMessage{UID: uid, Body: body})
	}

	span.SetAttributes(
		attribute.Int("imap.matched", len(uids)),
		attribute.Int("imap.fetched", len(messages)),
		attribute.Int("imap.skipped", skipped),
	)
	return messages, nil
}

func (srv *ImapManagerImpl) dial(ctx context.Context) (base.Client, error) {
	addr := srv.Address()
	c, err := srv.dialTLS(addr, srv.tlsConfig)
	if err != nil {
		srv.logger.ErrorContext(ctx, fmt.Sprintf("Failed to connect to %s: %v", addr, err), slog.Any("error", utils.WrapError(err)))
		return nil, base.NewError(base.ConnectionFailed, "imapmanager.DialTLS", errors.Wrapf(err, "connect %s", addr))
	}
	srv.logger.InfoContext(ctx, "Connected", slog.String("address", addr))
	return c, nil
}

// login sends the password once and wipes it whatever the outcome.
func (srv *ImapManagerImpl) login(ctx context.Context, c base.Client) error {
	err := c.Login(srv.username, srv.password.Reveal())
	srv.password.Wipe()
	if err != nil {
		srv.logger.ErrorContext(ctx, fmt.Sprintf("Failed to login: %v", err), slog.String("username", srv.username), slog.Any("error", utils.WrapError(err)))
		return base.NewError(base.AuthenticationFailed, "imapmanager.Login", errors.Wrapf(err, "login %s", srv.username))
	}
	srv.logger.InfoContext(ctx, "Login success", slog.String("username", srv.username))
	return nil
}

// LogoutFn returns a deferred logout that logs failures instead of returning them.
func (srv *ImapManagerImpl) LogoutFn(ctx context.Context, c base.Client) func() {
	return func() {
		if err := c.Logout(); err != nil {
			srv.logger.ErrorContext(ctx, fmt.Sprintf("Failed to logout: %v", err), slog.Any("error", utils.WrapError(err)))
			return
		}
		srv.logger.DebugContext(ctx, "Logged out")
	}
}

func (srv *ImapManagerImpl) fetchBody(c base.Client, uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var (
		body    []byte
		readErr error
	)
	for msg := range messages {
		if msg == nil || (msg.Uid != 0 && msg.Uid != uid) {
			continue
		}
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		b, err := io.ReadAll(literal)
		if err != nil {
			readErr = err
			continue
		}
		body = b
	}

	if err := <-done; err != nil {
		return nil, base.NewError(base.FetchFailed, "imapmanager.UidFetch", errors.Wrapf(err, "uid %d", uid))
	}
	if readErr != nil {
		return nil, base.NewError(base.FetchFailed, "imapmanager.UidFetch", errors.Wrapf(readErr, "read uid %d", uid))
	}
	return body, nil
}
