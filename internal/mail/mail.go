// Package mail delivers transactional email through MailerSend.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mailersend/mailersend-go"
	"github.com/sirupsen/logrus"
)

var ErrInvalidEmail = errors.New("email needs a recipient, a subject and a body")

// Email is one outbound message.
type Email struct {
	To      string `json:"to"`
	ToName  string `json:"to_name,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Validate checks the minimum an email provider accepts.
func (e Email) Validate() error {
	if !strings.Contains(e.To, "@") || strings.TrimSpace(e.Subject) == "" {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(e.HTML) == "" && strings.TrimSpace(e.Text) == "" {
		return ErrInvalidEmail
	}
	return nil
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// MailerSend implements Sender on the MailerSend API.
type MailerSend struct {
	client    *mailersend.Mailersend
	fromEmail string
	fromName  string
	log       logrus.FieldLogger
}

// NewSender returns a MailerSend sender, or a log-only sender when no API
// key is configured.
func NewSender(apiKey, fromEmail, fromName string, log logrus.FieldLogger) Sender {
	if apiKey == "" {
		return LogSender{Log: log}
	}
	return &MailerSend{
		client:    mailersend.NewMailersend(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		log:       log.WithField("component", "mailersend"),
	}
}

func (m *MailerSend) Send(ctx context.Context, e Email) error {
	if err := e.Validate(); err != nil {
		return err
	}
	msg := m.client.Email.NewMessage()
	msg.SetFrom(mailersend.From{Name: m.fromName, Email: m.fromEmail})
	msg.SetRecipients([]mailersend.Recipient{{Name: e.ToName, Email: e.To}})
	msg.SetSubject(e.Subject)
	if e.HTML != "" {
		msg.SetHTML(e.HTML)
	}
	if e.Text != "" {
		msg.SetText(e.Text)
	}
	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.WithFields(logrus.Fields{"to": e.To, "message_id": res.Header.Get("X-Message-Id")}).Info("email sent")
	return nil
}

// LogSender only logs; used in development and tests.
type LogSender struct{ Log logrus.FieldLogger }

func (s LogSender) Send(_ context.Context, e Email) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"to": e.To, "subject": e.Subject}).Info("email (log only)")
	return nil
}
