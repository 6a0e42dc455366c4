package log

import (
	"io"
	"log/slog"
)

type options struct {
	verbose bool
	json    bool
	secrets []string
}

// Option configures New.
type Option func(*options)

// WithVerbose logs at debug level instead of warn.
func WithVerbose(verbose bool) Option {
	return func(o *options) { o.verbose = verbose }
}

// WithJSON writes JSON records instead of text.
func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

// WithSecrets masks these values wherever they appear in a record.
func WithSecrets(secrets ...string) Option {
	return func(o *options) { o.secrets = append(o.secrets, secrets...) }
}

// New returns a logger writing to w that masks secrets in every record.
// It logs warnings and errors only unless WithVerbose is set.
func New(w io.Writer, opts ...Option) *slog.Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var next slog.Handler
	if o.json {
		next = slog.NewJSONHandler(w, hopts)
	} else {
		next = slog.NewTextHandler(w, hopts)
	}
	return slog.New(NewSecureHandler(next, o.secrets...))
}
