package obs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

type correlationContextKey struct{}

// Correlation carries identifiers that tie log lines to one workspace action.
type Correlation struct {
	RequestID    string
	Command      string
	NoteID       string
	TurnID       string
	MCPSessionID string
}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
	level    = new(slog.LevelVar)
)

// Init configures the global structured logger at debug level.
func Init() {
	InitWithLevel(slog.LevelDebug)
}

// InitWithLevel configures the global structured logger. Later calls only
// adjust the level.
func InitWithLevel(l slog.Level) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	level.Set(l)
	if logger != nil {
		return
	}
	logger = newLogger(os.Stderr)
	slog.SetDefault(logger)
}

// SetOutputForTests overrides the global logger output for tests.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w)
	slog.SetDefault(logger)
	loggerMu.Unlock()

	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if prev != nil {
			logger = prev
		} else {
			logger = newLogger(os.Stderr)
		}
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				t, ok := attr.Value.Any().(time.Time)
				if ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return attr
		},
	})
	return slog.New(handler)
}

func globalLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return globalLogger().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := globalLogger()
	attrs := correlationAttrs(CorrelationFromContext(ctx))
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// WithNoteID stores note_id in context.
func WithNoteID(ctx context.Context, noteID string) context.Context {
	return WithCorrelation(ctx, Correlation{NoteID: noteID})
}

// WithTurnID stores turn_id in context.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return WithCorrelation(ctx, Correlation{TurnID: turnID})
}

// WithCorrelation merges non-empty correlation fields into context.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	existing := CorrelationFromContext(ctx)
	if v := strings.TrimSpace(corr.RequestID); v != "" {
		existing.RequestID = v
	}
	if v := strings.TrimSpace(corr.Command); v != "" {
		existing.Command = v
	}
	if v := strings.TrimSpace(corr.NoteID); v != "" {
		existing.NoteID = v
	}
	if v := strings.TrimSpace(corr.TurnID); v != "" {
		existing.TurnID = v
	}
	if v := strings.TrimSpace(corr.MCPSessionID); v != "" {
		existing.MCPSessionID = v
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationContextKey{}, existing)
}

// CorrelationFromContext returns correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	attrs := make([]any, 0, 10)
	if corr.RequestID != "" {
		attrs = append(attrs, "request_id", corr.RequestID)
	}
	if corr.Command != "" {
		attrs = append(attrs, "command", corr.Command)
	}
	if corr.NoteID != "" {
		attrs = append(attrs, "note_id", corr.NoteID)
	}
	if corr.TurnID != "" {
		attrs = append(attrs, "turn_id", corr.TurnID)
	}
	if corr.MCPSessionID != "" {
		attrs = append(attrs, "mcp_session_id", corr.MCPSessionID)
	}
	return attrs
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "req-fallback"
	}
	return "req-" + hex.EncodeToString(buf)
}
