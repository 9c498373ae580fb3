package imapmanager

import (
	"bufio"
	"bytes"
	"log/slog"

	message "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// describe returns log attributes for a raw message's Subject and Message-Id.
// Undecodable headers fall back to their raw text.
func describe(body []byte) []any {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(body)))
	if err != nil {
		return nil
	}
	mh := mail.Header{Header: message.Header{Header: h}}

	subject, err := mh.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	messageID, err := mh.MessageID()
	if err != nil {
		messageID = h.Get("Message-Id")
	}

	return []any{
		slog.String("subject", subject),
		slog.String("message_id", messageID),
	}
}
