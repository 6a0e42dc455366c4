package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// WriterChat is a Chat that prints to an io.Writer, used when no chat
// service is configured.
type WriterChat struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterChat returns a chat printing to out.
func NewWriterChat(out io.Writer) *WriterChat {
	return &WriterChat{out: out}
}

// SendMessage implements Chat.
func (w *WriterChat) SendMessage(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s\n\n", text)
	return err
}

// SendFile implements Chat.
func (w *WriterChat) SendFile(_ context.Context, path, caption string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "[file] %s  %s\n", path, caption)
	return err
}
