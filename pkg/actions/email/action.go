// Package email provides the SendEmail action.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/template"
)

// RecipientKey exposes the current recipient to per-recipient templates.
const RecipientKey = "recipient"

// Action sends one email per resolved recipient. "to" may render to a single
// address, a list of addresses, or a list of records with an email field;
// subject, body and the other fields are rendered once per recipient with the
// recipient available as {recipient.*}.
type Action struct {
	To         any
	EmailField string
	Message    map[string]any
}

// NewAction creates a SendEmail action.
func NewAction(config map[string]any) (*Action, error) {
	to, ok := config["to"]
	if !ok || to == nil {
		return nil, models.NewValidationError("to", "SendEmail requires recipients")
	}

	field, _ := config["emailField"].(string)
	if field == "" {
		field = "email"
	}

	message := map[string]any{}

	for _, key := range []string{"from", "replyTo", "subject", "body", "html"} {
		if v, ok := config[key]; ok {
			message[key] = v
		}
	}

	return &Action{To: to, EmailField: field, Message: message}, nil
}

// Execute sends the emails in recipient order and stops at the first failure.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	logger := deps.ActionLogger("SendEmail")

	if deps.Mailer == nil {
		return nil, fmt.Errorf("SendEmail: mailer %w", protocol.ErrCollaboratorUnavailable)
	}

	rendered, err := deps.Render(map[string]any{"to": a.To}, executionCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render recipients: %w", err)
	}

	recipients := a.expand(rendered["to"])
	if len(recipients) == 0 {
		logger.InfoContext(ctx, "No recipients resolved, nothing sent")

		return map[string]any{models.SubjectResult: map[string]any{"sent": 0, "recipients": []any{}}}, nil
	}

	sent := make([]any, 0, len(recipients))

	for _, r := range recipients {
		message, err := deps.Render(a.Message, executionCtx, map[string]any{RecipientKey: r.value})
		if err != nil {
			return nil, fmt.Errorf("failed to render message for %s: %w", r.address, err)
		}

		email := protocol.Email{
			To:      r.address,
			From:    text(message["from"]),
			ReplyTo: text(message["replyTo"]),
			Subject: text(message["subject"]),
			Body:    text(message["body"]),
		}
		email.HTML, _ = message["html"].(bool)

		if err := deps.Mailer.Send(ctx, email); err != nil {
			return nil, fmt.Errorf("failed to send email to %s after %d sent: %w", r.address, len(sent), err)
		}

		sent = append(sent, r.address)
	}

	logger.InfoContext(ctx, "Emails sent", "count", len(sent))

	return map[string]any{models.SubjectResult: map[string]any{"sent": len(sent), "recipients": sent}}, nil
}

type recipient struct {
	address string
	value   any
}

func (a *Action) expand(to any) []recipient {
	switch v := to.(type) {
	case nil:
		return nil
	case []any:
		var out []recipient
		for _, item := range v {
			out = append(out, a.expand(item)...)
		}

		return out
	case []map[string]any:
		var out []recipient
		for _, item := range v {
			out = append(out, a.expand(item)...)
		}

		return out
	case map[string]any:
		address := strings.TrimSpace(text(v[a.EmailField]))
		if address == "" {
			return nil
		}

		return []recipient{{address: address, value: v}}
	case string:
		var out []recipient

		for _, part := range strings.Split(v, ",") {
			if address := strings.TrimSpace(part); address != "" {
				out = append(out, recipient{address: address, value: map[string]any{a.EmailField: address}})
			}
		}

		return out
	default:
		return nil
	}
}

func text(v any) string {
	if v == nil {
		return ""
	}

	return template.Stringify(v)
}
