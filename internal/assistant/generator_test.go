package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoGenerator_RepeatsLatestUtterance(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Hello": "You said: Hello",
		"User: Hello\nAssistant: Hi there\nUser: How are you?\nAssistant:": "You said: How are you?",
		"User: only\nAssistant:": "You said: only",
	}
	for prompt, want := range cases {
		got, err := EchoGenerator{}.Generate(context.Background(), prompt)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEchoGenerator_HonorsCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EchoGenerator{}.Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeOpenAI serves canned Chat Completions and Responses payloads.
func fakeOpenAI(t *testing.T, text string) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 0,
				"model":   "test-model",
				"choices": []any{map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": text},
				}},
			})
		case "/responses":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":         "resp-1",
				"object":     "response",
				"created_at": 0,
				"model":      "test-model",
				"status":     "completed",
				"output": []any{map[string]any{
					"type":   "message",
					"id":     "msg-1",
					"role":   "assistant",
					"status": "completed",
					"content": []any{map[string]any{
						"type":        "output_text",
						"text":        text,
						"annotations": []any{},
					}},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestOpenAIGenerator_ChatCompletions(t *testing.T) {
	t.Parallel()
	srv, paths := fakeOpenAI(t, "Hi there")
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})

	got, err := gen.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
	assert.Equal(t, []string{"/chat/completions"}, *paths)
}

func TestOpenAIGenerator_Responses(t *testing.T) {
	t.Parallel()
	srv, paths := fakeOpenAI(t, "Hi there")
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model", API: APIResponses})

	got, err := gen.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
	assert.Equal(t, []string{"/responses"}, *paths)
}

func TestOpenAIGenerator_BlankReplyIsError(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOpenAI(t, "   ")
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})

	_, err := gen.Generate(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIGenerator_ServerErrorPropagates(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})

	_, err := gen.Generate(context.Background(), "Hello")
	assert.Error(t, err)
}
