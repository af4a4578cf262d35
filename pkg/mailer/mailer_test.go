package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"testing"
	"time"

	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)

	mailer := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "noreply@example.com"}, discardLogger())
	mailer.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)

		return nil
	}

	err := mailer.Send(context.Background(), protocol.Email{
		To:      "ana@example.com",
		Subject: "Welcome",
		Body:    "<p>Hi</p>",
		HTML:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Welcome\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "\r\n\r\n<p>Hi</p>")
}

func TestSMTPMailer_Errors(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25}, discardLogger())
	mailer.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay denied") }

	require.ErrorIs(t, mailer.Send(context.Background(), protocol.Email{From: "a@example.com"}), ErrMissingRecipient)
	require.ErrorIs(t, mailer.Send(context.Background(), protocol.Email{To: "b@example.com"}), ErrMissingSender)

	err := mailer.Send(context.Background(), protocol.Email{To: "b@example.com", From: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay denied")
}

func TestSMTPMailer_ContextDeadline(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "a@example.com"}, discardLogger())
	mailer.send = func(string, smtp.Auth, string, []string, []byte) error {
		time.Sleep(time.Second)

		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := mailer.Send(ctx, protocol.Email{To: "b@example.com"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogMailer(t *testing.T) {
	mailer := NewLogMailer(discardLogger())

	require.NoError(t, mailer.Send(context.Background(), protocol.Email{To: "a@example.com", Subject: "one"}))
	require.ErrorIs(t, mailer.Send(context.Background(), protocol.Email{}), ErrMissingRecipient)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "one", sent[0].Subject)
}
