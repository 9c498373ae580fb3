package imapmanager

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/aaronromeo/epar/internal/credential"
	"github.com/aaronromeo/epar/pkg/base"
	"github.com/aaronromeo/epar/pkg/mock"
	"github.com/emersion/go-imap"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testPassword = "correct horse battery staple"

func newTestManager(t *testing.T, client base.Client) (*ImapManagerImpl, *credential.Secret) {
	t.Helper()
	secret := credential.NewSecret([]byte(testPassword))
	service, err := NewImapManager(
		WithDomain("imap.example.com"),
		WithAuth("user@example.com", secret),
		WithDialTLS(func(string, *tls.Config) (base.Client, error) { return client, nil }),
		WithLogger(mock.SetupLogger(t)),
		WithCtx(context.Background()),
	)
	require.NoError(t, err)
	return service, secret
}

func uidSet(uid uint32) *imap.SeqSet {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	return seqset
}

func expectFetch(t *testing.T, client *mock.MockClient, uid uint32, body string, withBody bool, fetchErr error) *gomock.Call {
	section := &imap.BodySectionName{Peek: true}
	return client.EXPECT().
		UidFetch(uidSet(uid), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
			defer close(ch)
			assert.Contains(t, items, imap.FetchItem("BODY.PEEK[]"))
			if withBody {
				ch <- mock.MessageWithBody(uid, section, body)
			}
			return fetchErr
		})
}

func TestNewImapManager(t *testing.T) {
	logger := mock.SetupLogger(t)
	ctx := context.Background()

	t.Run("Successful Creation", func(t *testing.T) {
		secret := credential.NewSecret([]byte("password"))
		service, err := NewImapManager(
			WithDomain("imap.example.com"),
			WithAuth("username", secret),
			WithLogger(logger),
			WithCtx(ctx),
		)
		assert.NoError(t, err)
		assert.NotNil(t, service)
		assert.Equal(t, "username", service.username)
		assert.Equal(t, secret, service.password)
		assert.Equal(t, logger, service.logger)
		assert.Equal(t, ctx, service.ctx)
		assert.NotNil(t, service.dialTLS)
		assert.Equal(t, "imap.example.com:993", service.Address())
	})

	t.Run("Missing Username", func(t *testing.T) {
		_, err := NewImapManager(
			WithDomain("imap.example.com"),
			WithAuth("", credential.NewSecret([]byte("password"))),
			WithLogger(logger),
		)
		assert.Error(t, err)
	})

	t.Run("Missing Password", func(t *testing.T) {
		_, err := NewImapManager(
			WithDomain("imap.example.com"),
			WithAuth("username", nil),
			WithLogger(logger),
		)
		assert.Error(t, err)
	})

	t.Run("Missing Domain", func(t *testing.T) {
		_, err := NewImapManager(
			WithAuth("username", credential.NewSecret([]byte("password"))),
			WithLogger(logger),
		)
		assert.Error(t, err)
	})

	t.Run("Missing Logger", func(t *testing.T) {
		_, err := NewImapManager(
			WithDomain("imap.example.com"),
			WithAuth("username", credential.NewSecret([]byte("password"))),
		)
		assert.Error(t, err)
	})
}

func TestTLSConfigVerifiesHostname(t *testing.T) {
	var (
		gotAddr string
		gotTLS  *tls.Config
	)
	service, err := NewImapManager(
		WithDomain("imap.example.com"),
		WithAuth("username", credential.NewSecret([]byte("password"))),
		WithTLSConfig(&tls.Config{ServerName: "evil.example.net", InsecureSkipVerify: true}), //nolint:gosec
		WithDialTLS(func(addr string, cfg *tls.Config) (base.Client, error) {
			gotAddr = addr
			gotTLS = cfg
			return nil, errors.New("x509: certificate is valid for other.example.net, not imap.example.com")
		}),
		WithLogger(mock.SetupLogger(t)),
	)
	require.NoError(t, err)

	_, err = service.FetchMatching("INBOX", "Invoice")

	require.Error(t, err)
	assert.Equal(t, base.ConnectionFailed, base.KindOf(err))
	assert.Equal(t, "imap.example.com:993", gotAddr)
	require.NotNil(t, gotTLS)
	assert.Equal(t, "imap.example.com", gotTLS.ServerName)
	assert.False(t, gotTLS.InsecureSkipVerify)
	assert.True(t, service.password.Empty(), "password is wiped even when the connection fails")
}

func TestFetchMatching(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mock.NewMockClient(ctrl)
	service, secret := newTestManager(t, mockClient)

	gomock.InOrder(
		mockClient.EXPECT().Login("user@example.com", testPassword).Return(nil),
		mockClient.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{Name: "INBOX", Messages: 40}, nil),
		mockClient.EXPECT().UidSearch(mock.NewSubjectCriteriaMatcher("Order")).Return([]uint32{31, 7, 12}, nil),
		expectFetch(t, mockClient, 31, "Subject: Order\r\nName: Alice\r\n", true, nil),
		expectFetch(t, mockClient, 7, "", false, nil),
		expectFetch(t, mockClient, 12, "Subject: Order\r\nName: Carol\r\n", true, nil),
		mockClient.EXPECT().Logout().Return(nil).Times(1),
	)

	messages, err := service.FetchMatching("INBOX", "Order")

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, uint32(31), messages[0].UID)
	assert.Equal(t, "Subject: Order\r\nName: Alice\r\n", messages[0].Text())
	assert.Equal(t, uint32(12), messages[1].UID)
	assert.Equal(t, "Subject: Order\r\nName: Carol\r\n", messages[1].Text())
	assert.True(t, secret.Empty(), "password is wiped after login")
}

func TestFetchMatchingDefaultsMailbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mock.NewMockClient(ctrl)
	service, _ := newTestManager(t, mockClient)

	mockClient.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().Select("INBOX", true).Return(nil, nil)
	mockClient.EXPECT().UidSearch(gomock.Any()).Return(nil, nil)
	mockClient.EXPECT().Logout().Return(nil).Times(1)

	messages, err := service.FetchMatching("", "Order")

	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestFetchMatchingSkipsFailedFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mock.NewMockClient(ctrl)
	service, _ := newTestManager(t, mockClient)

	gomock.InOrder(
		mockClient.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil),
		mockClient.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil),
		mockClient.EXPECT().UidSearch(gomock.Any()).Return([]uint32{1, 2, 3}, nil),
		expectFetch(t, mockClient, 1, "Name: one\n", true, nil),
		expectFetch(t, mockClient, 2, "", false, errors.New("connection reset by peer")),
		expectFetch(t, mockClient, 3, "Name: three\n", true, nil),
		mockClient.EXPECT().Logout().Return(nil).Times(1),
	)

	messages, err := service.FetchMatching("INBOX", "Order")

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Name: one\n", messages[0].Text())
	assert.Equal(t, "Name: three\n", messages[1].Text())
}

func TestFetchMatchingFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *mock.MockClient)
		wantKind base.Kind
	}{
		{
			name: "authentication failure",
			setup: func(c *mock.MockClient) {
				c.EXPECT().Login("user@example.com", testPassword).Return(errors.New("[AUTHENTICATIONFAILED] Invalid credentials"))
			},
			wantKind: base.AuthenticationFailed,
		},
		{
			name: "mailbox unavailable",
			setup: func(c *mock.MockClient) {
				c.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil)
				c.EXPECT().Select("INBOX", true).Return(nil, errors.New("Mailbox doesn't exist: INBOX"))
			},
			wantKind: base.MailboxUnavailable,
		},
		{
			name: "search failure",
			setup: func(c *mock.MockClient) {
				c.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil)
				c.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
				c.EXPECT().UidSearch(gomock.Any()).Return(nil, errors.New("BAD search syntax"))
			},
			wantKind: base.SearchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockClient := mock.NewMockClient(ctrl)
			secret := credential.NewSecret([]byte(testPassword))
			logger, logs := mock.SetupCapturingLogger(t)
			service, err := NewImapManager(
				WithDomain("imap.example.com"),
				WithAuth("user@example.com", secret),
				WithDialTLS(func(string, *tls.Config) (base.Client, error) { return mockClient, nil }),
				WithLogger(logger),
			)
			require.NoError(t, err)

			tt.setup(mockClient)
			// a failing logout must not replace the primary error
			mockClient.EXPECT().Logout().Return(errors.New("connection closed")).Times(1)

			messages, err := service.FetchMatching("INBOX", "Order")

			require.Error(t, err)
			assert.Nil(t, messages)
			assert.Equal(t, tt.wantKind, base.KindOf(err))
			assert.NotContains(t, err.Error(), testPassword)
			assert.NotContains(t, logs.String(), testPassword)
			assert.True(t, secret.Empty())
		})
	}
}

func TestFetchMatchingLogoutFailureKeepsResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mock.NewMockClient(ctrl)
	service, _ := newTestManager(t, mockClient)

	mockClient.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
	mockClient.EXPECT().UidSearch(gomock.Any()).Return([]uint32{5}, nil)
	expectFetch(t, mockClient, 5, "Name: five\n", true, nil)
	mockClient.EXPECT().Logout().Return(errors.New("BYE")).Times(1)

	messages, err := service.FetchMatching("INBOX", "Order")

	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestFetchMatchingIsSingleUse(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mock.NewMockClient(ctrl)
	service, _ := newTestManager(t, mockClient)

	mockClient.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
	mockClient.EXPECT().UidSearch(gomock.Any()).Return(nil, nil)
	mockClient.EXPECT().Logout().Return(nil).Times(1)

	_, err := service.FetchMatching("INBOX", "Order")
	require.NoError(t, err)

	_, err = service.FetchMatching("INBOX", "Order")
	assert.Equal(t, base.AuthenticationFailed, base.KindOf(err))
}

func TestLogoutFn(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mock.NewMockClient(ctrl)
	service, _ := newTestManager(t, mockClient)

	mockClient.EXPECT().Logout().Return(errors.New("logout failed"))

	logoutFunc := service.LogoutFn(context.Background(), mockClient)
	logoutFunc()
}

func TestDescribe(t *testing.T) {
	attrs := describe([]byte("Subject: =?UTF-8?Q?Bestellung_=C3=BCber?=\r\nMessage-Id: <abc@example.com>\r\n\r\nbody"))

	require.Len(t, attrs, 2)
	assert.Contains(t, attrs[0].(interface{ String() string }).String(), "Bestellung über")
	assert.Contains(t, attrs[1].(interface{ String() string }).String(), "abc@example.com")
}
