// Package mailer provides the mail delivery collaborators used by SendEmail.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/packflow/pkg/protocol"
)

var (
	// ErrMissingRecipient is returned for an email without a To address.
	ErrMissingRecipient = errors.New("email has no recipient")
	// ErrMissingSender is returned when neither the email nor the mailer has a From address.
	ErrMissingSender = errors.New("email has no sender")
)

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required,min=1,max=65535"`
	Username string
	Password string
	From     string `validate:"omitempty,email"`
}

// SMTPMailer sends email through an SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
	logger *slog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ protocol.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(config SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		logger: logger.With("module", "mailer"),
		send:   smtp.SendMail,
	}
}

// Send delivers email. The context bounds the whole SMTP exchange.
func (m *SMTPMailer) Send(ctx context.Context, email protocol.Email) error {
	if email.To == "" {
		return ErrMissingRecipient
	}

	if email.From == "" {
		email.From = m.config.From
	}

	if email.From == "" {
		return ErrMissingSender
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	done := make(chan error, 1)

	go func() {
		done <- m.send(addr, auth, email.From, []string{email.To}, message(email))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp delivery to %s failed: %w", email.To, err)
		}
	}

	m.logger.DebugContext(ctx, "Email sent", "to", email.To, "subject", email.Subject)

	return nil
}

func message(email protocol.Email) []byte {
	contentType := "text/plain"
	if email.HTML {
		contentType = "text/html"
	}

	var b strings.Builder

	b.WriteString("From: " + email.From + "\r\n")
	b.WriteString("To: " + email.To + "\r\n")

	if email.ReplyTo != "" {
		b.WriteString("Reply-To: " + email.ReplyTo + "\r\n")
	}

	b.WriteString("Subject: " + email.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(email.Body)

	return []byte(b.String())
}

// LogMailer writes emails to the log instead of delivering them and keeps
// the last sent messages for inspection.
type LogMailer struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []protocol.Email
}

var _ protocol.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer")}
}

func (m *LogMailer) Send(ctx context.Context, email protocol.Email) error {
	if email.To == "" {
		return ErrMissingRecipient
	}

	m.mu.Lock()
	m.sent = append(m.sent, email)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Email not delivered, log mailer in use",
		"to", email.To, "from", email.From, "subject", email.Subject)

	return nil
}

// Sent returns a copy of the emails passed to Send.
func (m *LogMailer) Sent() []protocol.Email {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]protocol.Email(nil), m.sent...)
}
