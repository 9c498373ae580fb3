package base

import (
	"strings"

	"github.com/emersion/go-imap"
)

const (
	DefaultMailbox   = "INBOX"
	DefaultSeparator = ","
	DefaultIMAPSPort = "993"
)

// RawMessage is one fetched message as the server returned it.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Text decodes the body as UTF-8, replacing invalid sequences.
func (m RawMessage) Text() string {
	return strings.ToValidUTF8(string(m.Body), "�")
}

// Client is an interface to abstract the client.Client methods used
type Client interface {
	Login(username string, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) (uids []uint32, err error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
}
