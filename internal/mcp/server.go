// Package mcp exposes the notebook over the Model Context Protocol, on stdio
// or Streamable HTTP.
package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kuitang/inkpad/internal/logutil"
	"github.com/kuitang/inkpad/internal/obs"
	"github.com/kuitang/inkpad/internal/ratelimit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName                = "inkpad"
	mcpDebugBodyLogLimitBytes = 8 * 1024
	maxMCPBodyBytes           = 1 << 20
	shutdownTimeout           = 10 * time.Second
)

// Server wraps the MCP server with note and chat tools.
type Server struct {
	mcpServer   *mcp.Server
	handler     *Handler
	httpHandler http.Handler
	limiter     *ratelimit.RateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits HTTP requests per client. Call Close to release the
// limiter.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.limiter = ratelimit.NewRateLimiter(cfg)
	}
}

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
	body       []byte
	truncated  bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, mcpDebugBodyLogLimitBytes),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	w.statusCode = code
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wrote = true
	if len(w.body) < mcpDebugBodyLogLimitBytes {
		remaining := mcpDebugBodyLogLimitBytes - len(w.body)
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func formatBodyForLog(b []byte, truncated bool) string {
	if len(b) == 0 {
		return ""
	}
	textBytes := b
	if len(textBytes) > mcpDebugBodyLogLimitBytes {
		textBytes = textBytes[:mcpDebugBodyLogLimitBytes]
		truncated = true
	}
	text := string(textBytes)
	if truncated {
		return text + " [truncated]"
	}
	return text
}

func isSensitiveHeader(key string) bool {
	lower := strings.ToLower(key)
	return logutil.IsSensitiveLogField(key) ||
		strings.Contains(lower, "cookie") ||
		strings.Contains(lower, "session")
}

// formatMCPHeadersForLog renders headers in key order with credentials and
// session identifiers redacted.
func formatMCPHeadersForLog(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.Join(headers.Values(k), ",")
		if isSensitiveHeader(k) {
			value = "[REDACTED]"
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, value))
	}
	return strings.Join(parts, " ")
}

// isASCII reports whether s is non-blank printable ASCII with no control
// characters.
func isASCII(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// NewServer creates an MCP server whose tools operate on ws.
func NewServer(ws Workspace, version string, opts ...Option) *Server {
	handler := NewHandler(ws)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil,
	)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}
	registerPrompts(mcpServer)

	// One process serves one workspace, so every request gets the same server.
	// Stateless mode skips the initialize handshake.
	httpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)

	s := &Server{
		mcpServer:   mcpServer,
		handler:     handler,
		httpHandler: httpHandler,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the rate limiter, if any.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	obs.Pkg("mcp").Info("mcp_stdio_started")
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ServeHTTP implements http.Handler for the Streamable HTTP transport. POST
// carries JSON-RPC messages and DELETE ends a session. GET (server-initiated
// SSE) is not offered because responses are plain JSON.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := obs.From(ctx).With("pkg", "mcp")
	debug := logger.Enabled(ctx, slog.LevelDebug)

	if sid := r.Header.Get("Mcp-Session-Id"); sid != "" && !isASCII(sid) {
		http.Error(w, "invalid Mcp-Session-Id header", http.StatusBadRequest)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		var err error
		reqBody, err = io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes+1))
		if err != nil {
			logger.Error("mcp_request_read_failed", "method", r.Method, "error", err.Error())
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if len(reqBody) > maxMCPBodyBytes {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	if debug {
		logger.Debug("mcp_request",
			"method", r.Method,
			"remote", r.RemoteAddr,
			"headers", formatMCPHeadersForLog(r.Header),
			"body", formatBodyForLog(reqBody, false),
		)
	}

	respLogger := newMCPResponseLogger(w)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("mcp_handler_panic", "method", r.Method, "panic", fmt.Sprint(rec))
			if !respLogger.wrote {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}
	}()

	s.httpHandler.ServeHTTP(respLogger, r)

	if !respLogger.wrote {
		logger.Error("mcp_handler_no_response", "method", r.Method)
		http.Error(w, "MCP handler returned without writing response", http.StatusInternalServerError)
		return
	}

	if debug {
		logger.Debug("mcp_response",
			"status", respLogger.statusCode,
			"content_type", respLogger.Header().Get("Content-Type"),
			"body", formatBodyForLog(respLogger.body, respLogger.truncated),
		)
	}
	if respLogger.statusCode >= http.StatusBadRequest {
		logger.Error("mcp_request_failed",
			"method", r.Method,
			"status", respLogger.statusCode,
			"remote", r.RemoteAddr,
			"response", formatBodyForLog(respLogger.body, respLogger.truncated),
		)
	}
}

// Handler returns the /mcp route wrapped in access logging and, when
// configured, per-client rate limiting.
func (s *Server) Handler() http.Handler {
	var route http.Handler = s
	if s.limiter != nil {
		route = ratelimit.Middleware(s.limiter, ratelimit.ClientKey)(route)
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", route)
	return obs.AccessLogMiddleware("mcp", mux)
}

// ListenAndServe serves MCP over HTTP on addr until ctx is done, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.Pkg("mcp").Info("mcp_http_listening", "addr", ln.Addr().String(), "path", "/mcp")
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
