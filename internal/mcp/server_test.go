package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kuitang/inkpad/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSONRPC(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestServeHTTP_RecoversPanicWith500(t *testing.T) {
	t.Parallel()
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("simulated panic")
		}),
	}

	resp := postJSONRPC(t, server, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d body=%q", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "Internal server error") {
		t.Fatalf("expected internal error body, got %q", resp.Body.String())
	}
}

func TestServeHTTP_NoWriteFromDelegateReturns500(t *testing.T) {
	t.Parallel()
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	}

	resp := postJSONRPC(t, server, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d body=%q", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "MCP handler returned without writing response") {
		t.Fatalf("expected no-response fallback body, got %q", resp.Body.String())
	}
}

func TestServeHTTP_OptionsPreflight(t *testing.T) {
	t.Parallel()
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("delegate should not be called for preflight")
		}),
	}
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeHTTP_ToolsListAndCallOverStatelessJSON(t *testing.T) {
	t.Parallel()
	h, ws := openHandler(t, nil)
	server := NewServer(ws, "test")
	require.NotNil(t, h)
	handler := server.Handler()

	resp := postJSONRPC(t, handler, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
	for _, name := range []string{"note_create", "chat_send", "chat_thread"} {
		assert.Contains(t, resp.Body.String(), name)
	}

	resp = postJSONRPC(t, handler, `{"jsonrpc":"2.0","method":"tools/call","id":2,"params":{"name":"note_create","arguments":{"title":"From HTTP"}}}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var rpc struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rpc))
	require.False(t, rpc.Result.IsError)
	require.Len(t, rpc.Result.Content, 1)

	var created noteResult
	require.NoError(t, json.Unmarshal([]byte(rpc.Result.Content[0].Text), &created))
	note, ok := ws.Note(created.ID)
	require.True(t, ok)
	assert.Equal(t, "From HTTP", note.Title)
}

func TestHandler_UnknownPathIs404(t *testing.T) {
	t.Parallel()
	_, ws := openHandler(t, nil)
	handler := NewServer(ws, "test").Handler()
	req := httptest.NewRequest(http.MethodPost, "/other", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandler_RateLimitsPerClient(t *testing.T) {
	t.Parallel()
	_, ws := openHandler(t, nil)
	server := NewServer(ws, "test", WithRateLimit(ratelimit.Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour}))
	t.Cleanup(server.Close)
	handler := server.Handler()

	body := `{"jsonrpc":"2.0","method":"tools/list","id":1}`
	resp := postJSONRPC(t, handler, body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = postJSONRPC(t, handler, body)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "1", resp.Header().Get("Retry-After"))
}
