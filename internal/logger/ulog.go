package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
)

var std *slog.Logger

// --- handler that appends uid and upload_id (at the end in TextHandler) ---

type contextAttrHandler struct{ h slog.Handler }

func (c contextAttrHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return c.h.Enabled(ctx, lvl)
}

func (c contextAttrHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return c.h.Handle(ctx, r)
	}
	if uid, ok := api_context.AuthUserIDFromContext(ctx); ok {
		r.AddAttrs(slog.String("uid", uid))
	} else {
		r.AddAttrs(slog.String("uid", "system"))
	}
	if id, ok := api_context.UploadIDFromContext(ctx); ok {
		r.AddAttrs(slog.String("upload_id", id))
	}
	return c.h.Handle(ctx, r)
}

func (c contextAttrHandler) WithAttrs(a []slog.Attr) slog.Handler {
	return contextAttrHandler{h: c.h.WithAttrs(a)}
}
func (c contextAttrHandler) WithGroup(n string) slog.Handler {
	return contextAttrHandler{h: c.h.WithGroup(n)}
}

// --- public API ---

// Options controls the output of New.
type Options struct {
	Format    string // json|text
	Level     string // debug|info|warn|error
	AddSource bool
}

// New builds a logger writing to w, tagged with svc=videos-ms.
func New(w io.Writer, o Options) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(o.Level), AddSource: o.AddSource}

	var base slog.Handler
	if strings.ToLower(o.Format) == "text" {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	// svc goes first so it prints before uid in TextHandler
	return slog.New(contextAttrHandler{h: base}).With("svc", "videos-ms")
}

// Init
// ENV:
//
//	LOG_FORMAT    json|text (default: json)
//	LOG_LEVEL     debug|info|warn|error (default: info)
//	LOG_SOURCE    true|false (default: false)
func Init() {
	std = New(os.Stdout, Options{
		Format:    getEnv("LOG_FORMAT", "json"),
		Level:     getEnv("LOG_LEVEL", "info"),
		AddSource: parseBool(getEnv("LOG_SOURCE", "false")),
	})
	slog.SetDefault(std)

	// Keep legacy log.Printf visible (no ctx → no uid).
	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(std.Handler(), slog.LevelInfo).Writer())
}

// --- small helpers ---

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Leveler {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func activeLogger() *slog.Logger {
	if std != nil {
		return std
	}
	return slog.Default()
}

// --- convenience wrappers ---

func Info(ctx context.Context, msg string, attrs ...any) {
	activeLogger().InfoContext(ctx, msg, attrs...)
}
func Warn(ctx context.Context, msg string, attrs ...any) {
	activeLogger().WarnContext(ctx, msg, attrs...)
}
func Error(ctx context.Context, msg string, attrs ...any) {
	activeLogger().ErrorContext(ctx, msg, attrs...)
}
func Debug(ctx context.Context, msg string, attrs ...any) {
	activeLogger().DebugContext(ctx, msg, attrs...)
}

func Infof(ctx context.Context, format string, a ...any) {
	activeLogger().InfoContext(ctx, fmt.Sprintf(format, a...))
}
func Errorf(ctx context.Context, format string, a ...any) {
	activeLogger().ErrorContext(ctx, fmt.Sprintf(format, a...))
}
func Warnf(ctx context.Context, format string, a ...any) {
	activeLogger().WarnContext(ctx, fmt.Sprintf(format, a...))
}
func Debugf(ctx context.Context, format string, a ...any) {
	activeLogger().DebugContext(ctx, fmt.Sprintf(format, a...))
}
