// Package mailer routes group reports to their contacts and delivers them
// over SMTP.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/wneessen/go-mail"

	"github.com/vesaa/tsmreport/internal/config"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// Envelope is one report mail.
type Envelope struct {
	From    string
	To      []string
	ReplyTo string
	Bcc     string
	Subject string
	HTML    string
}

// Sender delivers envelopes.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// SMTPSender delivers through the configured relay.
type SMTPSender struct {
	cfg config.MailConfig
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Message builds the MIME message of env.
func (s *SMTPSender) Message(env Envelope) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(env.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", env.From, err)
	}
	if err := m.To(env.To...); err != nil {
		return nil, fmt.Errorf("to %v: %w", env.To, err)
	}
	if env.ReplyTo != "" {
		if err := m.ReplyTo(env.ReplyTo); err != nil {
			return nil, fmt.Errorf("reply-to %q: %w", env.ReplyTo, err)
		}
	}
	if env.Bcc != "" {
		if err := m.Bcc(env.Bcc); err != nil {
			return nil, fmt.Errorf("bcc %q: %w", env.Bcc, err)
		}
	}
	m.Subject(env.Subject)
	m.SetGenHeader(mail.Header("X-Auto-Response-Suppress"), "All")
	m.SetBodyString(mail.TypeTextHTML, env.HTML)
	return m, nil
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.ServerPort),
		mail.WithTimeout(30 * time.Second),
	}
	switch s.cfg.TLS {
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.ServerHost, opts...)
}

// Send delivers env, retrying failed sessions up to cfg.Attempts times.
func (s *SMTPSender) Send(ctx context.Context, env Envelope) error {
	msg, err := s.Message(env)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	attempts := s.cfg.Attempts
	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(func() error {
		return c.DialAndSendWithContext(ctx, msg)
	}, retry.Attempts(attempts), retry.Delay(initialBackoff), retry.MaxDelay(maxBackoff),
		retry.Context(ctx), retry.LastErrorOnly(true))
	if err != nil {
		return fmt.Errorf("sending to %v via %s:%d: %w", env.To, s.cfg.ServerHost, s.cfg.ServerPort, err)
	}
	return nil
}
