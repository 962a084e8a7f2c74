package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/orgauth/pkg/slogx"
)

// MailKind selects the template a Mailer renders.
type MailKind string

const (
	MailRegistration      MailKind = "registration"
	MailPasswordReset     MailKind = "password_reset"
	MailEmailChange       MailKind = "email_change"
	MailAdminRegistration MailKind = "admin_registration"
	MailAdminRSVP         MailKind = "admin_rsvp"
)

// Message is an outbound email. Name is the user the message is about and
// Link, when set, is the confirmation link it must carry.
type Message struct {
	Kind MailKind
	To   string
	Name string
	Link string
}

// Mailer delivers messages. Composition and transport belong to the host.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. It is the
// default when the host has no mail transport.
type LogMailer struct {
	Logger *slog.Logger
	From   string
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	l := m.Logger
	if l == nil {
		l = slogx.FromContext(ctx)
	}
	l.Info("outbound email",
		slog.String("kind", string(msg.Kind)),
		slog.String("from", m.From),
		slog.String("to", msg.To),
		slog.String("name", msg.Name),
		slog.String("link", msg.Link),
	)
	return nil
}
