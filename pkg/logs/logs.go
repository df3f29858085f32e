// Package logs builds the slog loggers used across the pipeline.
package logs

import (
	"context"
	"io"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type ctxKey int

const moduleKey ctxKey = iota

// WithModule tags ctx with the module instance key being built. Records
// logged with that context carry it as the "module" attribute.
func WithModule(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, moduleKey, key)
}

// Module returns the module key stored in ctx, or "".
func Module(ctx context.Context) string {
	v, _ := ctx.Value(moduleKey).(string)
	return v
}

// Handler stamps the module key from the context onto every record.
type Handler struct {
	slog.Handler
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if key := Module(ctx); key != "" {
		record.AddAttrs(slog.String("module", key))
	}
	return h.Handler.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}

// New returns a logger writing text records at level to w, fanned out to
// any extra handlers.
func New(w io.Writer, level slog.Leveler, extra ...slog.Handler) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
	}
	handlers = append(handlers, extra...)
	return slog.New(&Handler{
		Handler: slogmulti.Fanout(handlers...),
	})
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}
