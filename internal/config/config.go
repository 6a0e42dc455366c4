package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Durations follow what the monitored grid UI needs: it loads its rows through
// XHR after the page itself, so readiness is bounded separately from navigation.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "gridwatch"

	// DefaultDemoURL is the public demo instance of the monitored care
	// management UI. It is used when no target URL is configured.
	DefaultDemoURL = "https://app.meinpflegedienst.com/mp/?demo=X#uebersicht"

	// DefaultTargetName names the target built from DefaultDemoURL.
	DefaultTargetName = "demo"

	// DefaultRenderTimeout bounds navigation plus the wait for the ready signal.
	DefaultRenderTimeout = 20 * time.Second

	// DefaultSettle is the quiet period the DOM must stay unchanged after
	// the ready selector appeared.
	DefaultSettle = 500 * time.Millisecond

	// DefaultCheckTimeout bounds a whole check: render, extract, diff and commit.
	// A check that exceeds it commits a partial snapshot.
	DefaultCheckTimeout = 2 * time.Minute

	// DefaultRetentionMaxAge is how long resolved findings and raw artifacts
	// are kept. Raw cell values can hold personal data, so the window is short.
	DefaultRetentionMaxAge = 15 * time.Minute

	// DefaultRetentionInterval is how often the retention scheduler runs.
	DefaultRetentionInterval = 5 * time.Minute

	// DefaultWatchInterval is the period between checks in watch mode.
	DefaultWatchInterval = 30 * time.Minute

	// DefaultBatchSize is the number of targets checked concurrently.
	// Each check runs its own browser, so this stays small.
	DefaultBatchSize = 2

	// DefaultMaxCellsPerColumn is the number of empty cells listed per column
	// in a chat message before the rest is folded into "... and N more".
	DefaultMaxCellsPerColumn = 5

	// DefaultMessageLimit is the maximum length of one chat message.
	// Telegram rejects messages longer than 4096 characters.
	DefaultMessageLimit = 4000

	// DefaultListenAddr is the HTTP API address used by watch --listen.
	DefaultListenAddr = "127.0.0.1:8080"

	// DefaultAIModel is the model asked for summaries.
	DefaultAIModel = "claude-sonnet-4-5"
)

// Environment variables that override secrets from the config file.
const (
	EnvChatToken  = "GRIDWATCH_CHAT_TOKEN" //nolint:gosec // variable name, not a credential
	EnvChatID     = "GRIDWATCH_CHAT_ID"
	EnvWebhookURL = "GRIDWATCH_WEBHOOK_URL"
	EnvAPIKey     = "ANTHROPIC_API_KEY" //nolint:gosec // variable name, not a credential
	EnvTargetURL  = "GRIDWATCH_URL"
)

// Config holds all configuration options for gridwatch.
// It is populated from CLI flags, the config file and the environment, and
// passed through the application rather than held in global state.
type Config struct {
	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .gridwatch.yaml is searched in the current directory and
	// then in the user's home directory.
	ConfigFilePath string

	// File holds the loaded configuration file, if any.
	File *File

	// Targets restricts a command to the named targets. Empty means all
	// targets from the config file.
	Targets []string

	// Demo checks the public demo instance regardless of configured targets.
	Demo bool

	// HTMLFile renders a saved HTML file instead of launching a browser.
	HTMLFile string

	// Headless runs the browser without a window.
	Headless bool

	// NoSandbox disables the Chrome sandbox, needed when running as root in containers.
	NoSandbox bool

	// BrowserBin is the path to a Chrome binary. Empty lets rod download or find one.
	BrowserBin string

	// BrowserURL connects to an already running browser instead of launching one.
	BrowserURL string

	// DebugScreenshots saves a screenshot after every successful page load.
	DebugScreenshots bool

	// RenderTimeout bounds navigation plus the wait for the ready signal.
	RenderTimeout time.Duration

	// Settle is the quiet period after the ready signal.
	Settle time.Duration

	// CheckTimeout bounds a whole check.
	CheckTimeout time.Duration

	// RetentionMaxAge is the age after which resolved, uncommented findings
	// and raw artifacts are purged.
	RetentionMaxAge time.Duration

	// RetentionInterval is the period of the retention scheduler.
	RetentionInterval time.Duration

	// WatchInterval is the period between checks in watch mode.
	WatchInterval time.Duration

	// BatchSize is the number of targets checked concurrently.
	BatchSize int

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/gridwatch on Linux).
	DBDir string

	// ArtifactDir receives exports and screenshots.
	// Defaults to the XDG cache directory (~/.cache/gridwatch on Linux).
	ArtifactDir string

	// NoPersist keeps findings in memory only.
	NoPersist bool

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// Deliver sends results to the configured chat and webhook.
	Deliver bool

	// ChatToken is the Telegram bot token.
	ChatToken string

	// ChatID is the chat that receives results.
	ChatID string

	// WebhookURL is the secondary notification channel.
	WebhookURL string

	// AIAPIKey enables the AI summarizer.
	AIAPIKey string

	// AIModel is the model used for summaries.
	AIModel string

	// ListenAddr is the HTTP API address. Empty disables the API.
	ListenAddr string

	// MaxCellsPerColumn limits the cells listed per column in chat messages.
	MaxCellsPerColumn int

	// MessageLimit is the maximum chat message length.
	MessageLimit int
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Headless:          true,
		RenderTimeout:     DefaultRenderTimeout,
		Settle:            DefaultSettle,
		CheckTimeout:      DefaultCheckTimeout,
		RetentionMaxAge:   DefaultRetentionMaxAge,
		RetentionInterval: DefaultRetentionInterval,
		WatchInterval:     DefaultWatchInterval,
		BatchSize:         DefaultBatchSize,
		DBDir:             XDGDataDir(),
		ArtifactDir:       XDGCacheDir(),
		Deliver:           true,
		AIModel:           DefaultAIModel,
		MaxCellsPerColumn: DefaultMaxCellsPerColumn,
		MessageLimit:      DefaultMessageLimit,
	}
}

// ApplyEnv overrides secrets from the environment. getenv is usually os.Getenv.
// Values already set by flags win over the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.ChatToken, EnvChatToken)
	set(&c.ChatID, EnvChatID)
	set(&c.WebhookURL, EnvWebhookURL)
	set(&c.AIAPIKey, EnvAPIKey)

	if v := strings.TrimSpace(getenv(EnvTargetURL)); v != "" {
		if c.File == nil {
			c.File = NewFile()
		}
		if c.File.Defaults.URL == "" {
			c.File.Defaults.URL = v
		}
	}
}

// ApplyFile attaches a loaded configuration file. Delivery settings from the
// file only fill values that flags and the environment left empty, so call it
// after ApplyEnv.
func (c *Config) ApplyFile(file *File) {
	if file == nil {
		return
	}
	if c.File != nil && c.File.Defaults.URL != "" {
		// GRIDWATCH_URL wins over the file's default URL.
		file.Defaults.URL = c.File.Defaults.URL
	}
	c.File = file

	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&c.ChatToken, file.Delivery.ChatToken)
	fill(&c.ChatID, file.Delivery.ChatID)
	fill(&c.WebhookURL, file.Delivery.WebhookURL)
	if file.Delivery.AIModel != "" && c.AIModel == DefaultAIModel {
		c.AIModel = file.Delivery.AIModel
	}
}

// Secrets returns the configured credential values: the delivery and AI
// credentials plus the cookies and header values of every target.
func (c *Config) Secrets() []string {
	secrets := []string{c.ChatToken, c.WebhookURL, c.AIAPIKey}
	if c.File == nil {
		return secrets
	}
	add := func(tc TargetConfig) {
		secrets = append(secrets, tc.Cookie)
		for _, v := range tc.Headers {
			secrets = append(secrets, v)
		}
	}
	add(c.File.Defaults)
	for _, name := range c.File.TargetNames() {
		add(c.File.Targets[name])
	}
	return secrets
}

// ChatEnabled reports whether chat delivery is configured.
func (c *Config) ChatEnabled() bool {
	return c.Deliver && c.ChatToken != "" && c.ChatID != ""
}

// ResolveTargets returns the targets a command operates on, merged with the
// file defaults. With --demo, or when nothing is configured, the demo target
// is returned.
func (c *Config) ResolveTargets() ([]Target, error) {
	file := c.File
	if file == nil {
		file = NewFile()
	}
	if c.Demo {
		demo := file.Defaults.clone()
		demo.URL = DefaultDemoURL
		return []Target{{Name: DefaultTargetName, TargetConfig: demo}}, nil
	}

	names := c.Targets
	if len(names) == 0 {
		names = file.TargetNames()
	}
	if len(names) == 0 {
		t := file.Target(DefaultTargetName)
		if t.URL == "" {
			t.URL = DefaultDemoURL
		}
		return []Target{{Name: DefaultTargetName, TargetConfig: t}}, nil
	}

	out := make([]Target, 0, len(names))
	for _, name := range names {
		if _, ok := file.Targets[name]; !ok && name != DefaultTargetName {
			return nil, &UnknownTargetError{Name: name}
		}
		t := file.Target(name)
		if t.URL == "" && name == DefaultTargetName {
			t.URL = DefaultDemoURL
		}
		out = append(out, Target{Name: name, TargetConfig: t})
	}
	return out, nil
}

// XDGDataDir returns the XDG data directory for gridwatch.
// On Linux: ~/.local/share/gridwatch
// On macOS: ~/Library/Application Support/gridwatch
// On Windows: %LOCALAPPDATA%\gridwatch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for gridwatch.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for gridwatch.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error, so callers can use
// errors.Is. This is called once after flag parsing, before any check begins.
func (c *Config) Validate() error {
	if c.RenderTimeout <= 0 || c.CheckTimeout <= 0 {
		return ErrInvalidTimeout
	}

	// The whole check must leave room for the render step.
	if c.CheckTimeout < c.RenderTimeout {
		return ErrCheckTimeoutTooShort
	}

	if c.Settle < 0 {
		return ErrInvalidSettle
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.RetentionMaxAge <= 0 || c.RetentionInterval <= 0 {
		return ErrInvalidRetention
	}

	if c.WatchInterval <= 0 {
		return ErrInvalidWatchInterval
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MessageLimit < 200 || c.MaxCellsPerColumn <= 0 {
		return ErrInvalidMessageLimits
	}

	// A chat token without a chat id, or the reverse, is a typo rather than
	// an intent to disable delivery.
	if (c.ChatToken == "") != (c.ChatID == "") {
		return ErrIncompleteChat
	}

	if c.File != nil {
		if err := c.File.Validate(); err != nil {
			return err
		}
	}

	return nil
}
