package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

func geminiSuccessBody(text string) string {
	return fmt.Sprintf(`{
		"candidates": [{"content": {"parts": [{"text": %q}], "role": "model"}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
	}`, text)
}

func newTestGeminiClient(t *testing.T, endpoint string) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(config.LLMModelConfig{
		APIKey:     "test-key",
		Model:      "gemini-test",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
		MaxTokens:  256,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(config.LLMModelConfig{Model: "m"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API Key")
}

func TestGeminiClient_Generate_HappyPath(t *testing.T) {
	var gotPayload geminiRequestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, geminiSuccessBody(`{"kind":"CLICK","target":"A"}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(t, server.URL)
	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "you are a browser agent",
		UserPrompt:   "click submit",
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"CLICK","target":"A"}`, out)

	// The wire payload carries both prompts and the JSON mime type.
	require.NotNil(t, gotPayload.SystemInstruction)
	assert.Equal(t, "you are a browser agent", gotPayload.SystemInstruction.Parts[0].Text)
	require.Len(t, gotPayload.Contents, 1)
	assert.Equal(t, "click submit", gotPayload.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", gotPayload.GenerationConfig.ResponseMimeType)
	assert.InDelta(t, 0.2, gotPayload.GenerationConfig.Temperature, 1e-9)
}

func TestGeminiClient_Generate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, geminiSuccessBody("ok"))
	}))
	defer server.Close()

	client := newTestGeminiClient(t, server.URL)
	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGeminiClient_Generate_PermanentOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "bad request"}`)
	}))
	defer server.Close()

	client := newTestGeminiClient(t, server.URL)
	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestGeminiClient_Generate_SafetyBlockIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`)
	}))
	defer server.Close()

	client := newTestGeminiClient(t, server.URL)
	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGeminiClient_Generate_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestGeminiClient(t, server.URL)
	_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
}
