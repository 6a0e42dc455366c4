package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Chat sends messages and files to one conversation.
type Chat interface {
	// SendMessage sends a text message.
	SendMessage(ctx context.Context, text string) error

	// SendFile sends the file at path as a document with a caption.
	SendFile(ctx context.Context, path, caption string) error
}

// Channel is a best-effort notification sink.
type Channel interface {
	Notify(ctx context.Context, text string) error
}

// DefaultDispatchTimeout bounds one Dispatch call.
const DefaultDispatchTimeout = 10 * time.Second

// ErrEmptyMessage is returned when asked to send an empty message.
var ErrEmptyMessage = errors.New("message is empty")

// APIError is returned when a chat or webhook endpoint rejects a request.
type APIError struct {
	// Method is the API method or endpoint kind, e.g. "sendMessage".
	Method string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Description is the reason reported by the service, if any.
	Description string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s failed with status %d: %s", e.Method, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("%s failed with status %d", e.Method, e.StatusCode)
}

// Dispatch sends text to ch without reporting failure to the caller.
// Errors are logged at warn level. A nil channel is a no-op.
func Dispatch(ctx context.Context, ch Channel, text string, logger *slog.Logger) {
	if ch == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultDispatchTimeout)
	defer cancel()

	if err := ch.Notify(ctx, text); err != nil {
		logger.Warn("notification failed", "error", err)
		return
	}
	logger.Debug("notification sent")
}
