package services

import (
	"context"

	"github.com/dukex/packflow/pkg/ingest"
	"github.com/dukex/packflow/pkg/template"
)

// WebhookService is the name the webhook functions are registered under.
const WebhookService = "webhook"

// RegisterWebhook adds webhook.verifySignature and webhook.sign.
//
// verifySignature takes payload, signature and secret and returns
// {"valid": bool}. sign takes payload and secret and returns the hex digest.
func RegisterWebhook(r *Registry) {
	r.Register(WebhookService, "verifySignature", func(_ context.Context, args map[string]any) (any, error) {
		payload, signature, secret, err := signatureArgs("verifySignature", args, true)
		if err != nil {
			return nil, err
		}

		return map[string]any{"valid": ingest.Verify(secret, payload, signature)}, nil
	})

	r.Register(WebhookService, "sign", func(_ context.Context, args map[string]any) (any, error) {
		payload, _, secret, err := signatureArgs("sign", args, false)
		if err != nil {
			return nil, err
		}

		return ingest.Sign(secret, payload), nil
	})
}

func signatureArgs(function string, args map[string]any, needSignature bool) ([]byte, string, string, error) {
	secret, _ := args["secret"].(string)
	if secret == "" {
		return nil, "", "", invalidArguments(WebhookService, function, "secret is required")
	}

	payload, ok := args["payload"]
	if !ok {
		return nil, "", "", invalidArguments(WebhookService, function, "payload is required")
	}

	signature, _ := args["signature"].(string)
	if needSignature && signature == "" {
		return nil, "", "", invalidArguments(WebhookService, function, "signature is required")
	}

	return []byte(template.Stringify(payload)), signature, secret, nil
}
