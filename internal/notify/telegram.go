package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTelegramURL is the Telegram Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

// Telegram allows about one message per second in a single chat.
const defaultTelegramRate = rate.Limit(1)

// TelegramChat implements Chat with the Telegram Bot HTTP API.
type TelegramChat struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// TelegramOption configures a TelegramChat.
type TelegramOption func(*TelegramChat)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) TelegramOption {
	return func(c *TelegramChat) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(c *TelegramChat) {
		c.client = client
	}
}

// WithRateLimit sets the maximum sends per second. Zero or less disables pacing.
func WithRateLimit(perSecond float64) TelegramOption {
	return func(c *TelegramChat) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TelegramOption {
	return func(c *TelegramChat) {
		c.logger = logger
	}
}

// NewTelegramChat creates a chat that posts to chatID with the bot token.
func NewTelegramChat(token, chatID string, opts ...TelegramOption) *TelegramChat {
	c := &TelegramChat{
		baseURL: DefaultTelegramURL,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(defaultTelegramRate, 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// telegramResponse is the envelope of every Bot API reply.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage implements Chat.
func (c *TelegramChat) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	payload, err := json.Marshal(map[string]string{
		"chat_id": c.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return c.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload))
}

// SendFile implements Chat.
func (c *TelegramChat) SendFile(ctx context.Context, path, caption string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from the artifact store
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", c.chatID); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to build upload: %w", err)
		}
	}
	part, err := mw.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	return c.call(ctx, "sendDocument", mw.FormDataContentType(), &body)
}

func (c *TelegramChat) call(ctx context.Context, method, contentType string, body io.Reader) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit: %w", method, err)
		}
	}

	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, redactURLError(err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, redactURLError(err))
	}
	defer resp.Body.Close() //nolint:errcheck

	var tr telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil && resp.StatusCode < 400 {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if resp.StatusCode >= 400 || !tr.OK {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: tr.Description}
	}
	c.logger.Debug("chat request sent", "method", method)
	return nil
}

// redactURLError removes the request URL, which carries the bot token,
// from transport errors.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
