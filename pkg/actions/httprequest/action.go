// Package httprequest provides the HttpRequest action.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/template"
)

// ResponseKey is the context slot the response is written to.
const ResponseKey = "httpResponse"

const maxResponseBytes = 10 << 20

var (
	// ErrHTTPMethodInvalid is returned when the HTTP method is invalid.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
	// ErrHTTPRequestURLInvalid is returned when the rendered URL is not absolute.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request URL")
	// ErrHTTPServerError is returned when the server returns an error status code.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPStatus is returned for a final 4xx or 5xx response when failOnStatus is set.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// Action performs an HTTP request. URL, headers and body are interpolated
// against the run context on each attempt.
type Action struct {
	Method       string
	URL          string
	Headers      map[string]any
	Body         any
	Retry        RetryConfig
	FailOnStatus bool
}

// RetryConfig defines retry behavior for HTTP requests. Delay is in milliseconds.
type RetryConfig struct {
	Attempts int
	Delay    int
}

// NewAction creates an Action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return nil, models.NewValidationError("url", "HttpRequest requires a url")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions:
	default:
		return nil, models.NewValidationError("method", "%v: %s", ErrHTTPMethodInvalid, method)
	}

	headers, _ := config["headers"].(map[string]any)

	failOnStatus := true
	if v, ok := config["failOnStatus"].(bool); ok {
		failOnStatus = v
	}

	return &Action{
		Method:       method,
		URL:          rawURL,
		Headers:      headers,
		Body:         config["body"],
		Retry:        parseRetryConfig(config["retries"]),
		FailOnStatus: failOnStatus,
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := expression.ToFloat(retryMap["attempts"]); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := expression.ToFloat(retryMap["delay"]); ok && delay >= 0 {
		retry.Delay = int(delay)
	}

	return retry
}

// Execute performs the request with retry logic. The response is returned both
// as the result and under context.httpResponse.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	logger := deps.ActionLogger("HttpRequest")

	client := deps.HTTP
	if client == nil {
		client = &http.Client{}
	}

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "attempts", a.Retry.Attempts)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(a.Retry.Delay) * time.Millisecond):
			}
		}

		req, err := a.buildRequest(ctx, executionCtx, deps)
		if err != nil {
			return nil, err
		}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			resp = nil

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			continue
		}

		if resp.StatusCode >= 500 && attempt < a.Retry.Attempts {
			lastErr = fmt.Errorf("server error (status %d), retrying: %w", resp.StatusCode, ErrHTTPServerError)
			_ = resp.Body.Close()
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	response, err := a.processResponse(ctx, resp, logger)
	if err != nil {
		return nil, err
	}

	status, _ := response["status_code"].(int)
	if a.FailOnStatus && status >= 400 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, status)
	}

	return map[string]any{models.SubjectResult: response, ResponseKey: response}, nil
}

func (a *Action) buildRequest(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (*http.Request, error) {
	rendered, err := deps.Render(map[string]any{
		"url":     a.URL,
		"headers": a.Headers,
		"body":    a.Body,
	}, executionCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render request: %w", err)
	}

	target := template.Stringify(rendered["url"])

	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrHTTPRequestURLInvalid, target)
	}

	body, isJSON, err := encodeBody(rendered["body"])
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}

	headers, _ := rendered["headers"].(map[string]any)
	for key, value := range headers {
		req.Header.Set(key, template.Stringify(value))
	}

	return req, nil
}

// encodeBody sends strings as-is and objects or arrays as JSON.
func encodeBody(body any) (io.Reader, bool, error) {
	switch v := body.(type) {
	case nil:
		return http.NoBody, false, nil
	case string:
		return strings.NewReader(v), false, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal body: %w", err)
		}

		return bytes.NewReader(encoded), true, nil
	}
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "bytes", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}, nil
}
