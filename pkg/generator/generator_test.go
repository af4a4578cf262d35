package generator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChatGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "small", req.Model)
		assert.Equal(t, []chatMessage{
			{Role: "system", Content: "Be brief"},
			{Role: "user", Content: "Write a subject line"},
		}, req.Messages)
		assert.Equal(t, 50, req.MaxTokens)

		_, _ = w.Write([]byte(`{"model":"small-2","choices":[{"message":{"role":"assistant","content":"Spring deals"}}],"usage":{"total_tokens":12}}`))
	}))
	defer server.Close()

	generator := NewChatGenerator(ChatConfig{Name: "local", BaseURL: server.URL + "/v1/", APIKey: "key", DefaultModel: "small"},
		server.Client(), discardLogger())

	result, err := generator.Generate(context.Background(), protocol.GenerationRequest{
		Prompt:    "Write a subject line",
		System:    "Be brief",
		MaxTokens: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "Spring deals", result.Text)
	assert.Equal(t, "local", result.Provider)
	assert.Equal(t, "small-2", result.Model)
	assert.InDelta(t, 12.0, result.Usage["total_tokens"], 0)
}

func TestChatGenerator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "provider error", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, wantErr: "slow down"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrEmptyCompletion.Error()},
		{name: "not json", status: http.StatusBadGateway, body: `<html>`, wantErr: "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			generator := NewChatGenerator(ChatConfig{Name: "local", BaseURL: server.URL}, server.Client(), discardLogger())

			_, err := generator.Generate(context.Background(), protocol.GenerationRequest{Prompt: "hi"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRouter(t *testing.T) {
	router := NewRouter()

	_, err := router.Generate(context.Background(), protocol.GenerationRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrUnknownProvider)

	router.Register("echo", Echo{})

	result, err := router.Generate(context.Background(), protocol.GenerationRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)

	_, err = router.Generate(context.Background(), protocol.GenerationRequest{Provider: "other", Prompt: "x"})
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, []string{"echo"}, router.Providers())
}
