package log

import (
	"context"
	"log/slog"
)

// SecureHandler wraps an slog.Handler and masks secrets before records
// reach it. It works with any handler, so the text and JSON loggers and the
// loggers handed to the browser and the HTTP server share the same masking.
type SecureHandler struct {
	next slog.Handler
	r    *redactor
}

// NewSecureHandler wraps next. secrets are configured values, such as the
// session cookie or the bot token, masked wherever they appear. A nil next
// uses the default handler.
func NewSecureHandler(next slog.Handler, secrets ...string) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next, r: newRedactor(secrets)}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, rec slog.Record) error {
	masked := slog.NewRecord(rec.Time, rec.Level, h.r.text(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.r.attr(a))
		return true
	})
	return h.next.Handle(ctx, masked)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.r.attr(a)
	}
	return &SecureHandler{next: h.next.WithAttrs(masked), r: h.r}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name), r: h.r}
}
