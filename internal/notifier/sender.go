package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// ErrPermanent marks a send failure that redelivery cannot fix (for example an
// unresolvable recipient). The dispatcher records it and stops retrying.
var ErrPermanent = errors.New("permanent delivery failure")

// Message is one rendered notification ready to send.
type Message struct {
	// Recipient is an opaque tag, "customer:<id>" or "restaurant:<id>"; the
	// sender resolves it to a channel address. Profile lookup is out of scope.
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers a message over an external channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages as plain-text mail.
type SMTPSender struct {
	host   string
	port   string
	from   string
	domain string
}

// NewSMTPSender builds a sender; domain is appended when resolving recipient
// tags to addresses.
func NewSMTPSender(host, port, from, domain string) *SMTPSender {
	return &SMTPSender{host: host, port: port, from: from, domain: domain}
}

// Send resolves the recipient tag and ships the mail. An unresolvable tag is a
// permanent failure.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	to, err := s.resolve(msg.Recipient)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.from, to, msg.Subject, msg.Body)
	if err := smtp.SendMail(s.host+":"+s.port, nil, s.from, []string{to}, []byte(body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) resolve(recipient string) (string, error) {
	kind, id, ok := strings.Cut(recipient, ":")
	if !ok || id == "" || (kind != "customer" && kind != "restaurant") {
		return "", fmt.Errorf("%w: bad recipient %q", ErrPermanent, recipient)
	}
	return fmt.Sprintf("%s-%s@%s", kind, id, s.domain), nil
}
