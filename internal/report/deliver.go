package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/notify"
)

// Deliverer sends check results to a chat and a secondary channel.
type Deliverer struct {
	chat    notify.Chat
	channel notify.Channel
	opts    ChatOptions
	logger  *slog.Logger
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithChannel adds a best-effort notification channel.
func WithChannel(ch notify.Channel) DelivererOption {
	return func(d *Deliverer) {
		d.channel = ch
	}
}

// WithChatOptions sets message limits and column descriptions.
func WithChatOptions(opts ChatOptions) DelivererOption {
	return func(d *Deliverer) {
		d.opts = opts
	}
}

// WithDeliveryLogger sets the logger.
func WithDeliveryLogger(logger *slog.Logger) DelivererOption {
	return func(d *Deliverer) {
		d.logger = logger
	}
}

// NewDeliverer creates a Deliverer for chat. chat may be nil when only the
// channel is configured.
func NewDeliverer(chat notify.Chat, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		chat:   chat,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends the messages of run, then the export file if one was
// written. The first chat error stops delivery and is returned. The
// secondary channel is notified regardless and its failures are only logged.
func (d *Deliverer) Deliver(ctx context.Context, run *model.CheckRun) error {
	defer notify.Dispatch(ctx, d.channel, Headline(run), d.logger)

	if d.chat == nil {
		return nil
	}
	for i, msg := range ChatMessages(run, d.opts) {
		if err := d.chat.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to send message %d: %w", i+1, err)
		}
	}
	if run.ExportPath == "" {
		return nil
	}
	caption := fmt.Sprintf("Full result of %s: %d empty cells", run.Target, run.Stats.Open)
	if err := d.chat.SendFile(ctx, run.ExportPath, caption); err != nil {
		return fmt.Errorf("failed to send export: %w", err)
	}
	d.logger.Debug("results delivered", "target", run.Target, "open", run.Stats.Open)
	return nil
}

// Headline is a one-line summary of run for notification channels.
func Headline(run *model.CheckRun) string {
	s := run.Stats
	text := fmt.Sprintf("gridwatch %s: %d empty cells (%d new, %d filled)", run.Target, s.Open, s.New, s.Resolved)
	if run.Error != "" {
		text += " - check failed: " + run.Error
	} else if run.Partial {
		text += " - partial result"
	}
	return text
}
