package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/database"
	"github.com/nao1215/gridwatch/internal/extract"
	"github.com/nao1215/gridwatch/internal/findings"
	gwlog "github.com/nao1215/gridwatch/internal/log"
	"github.com/nao1215/gridwatch/internal/notify"
	"github.com/nao1215/gridwatch/internal/pipeline"
	"github.com/nao1215/gridwatch/internal/render"
	"github.com/nao1215/gridwatch/internal/report"
	"github.com/nao1215/gridwatch/internal/retention"
	"github.com/nao1215/gridwatch/internal/summarize"
)

// errNeedOneTarget is returned by commands that act on a single target when
// more than one is configured.
var errNeedOneTarget = errors.New("this command needs exactly one target (use --target)")

// buildConfig creates a Config from the global flags, the environment and
// the configuration file. Command specific flags are applied by the caller
// before Validate.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.Verbose, err = cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.Targets, err = cmd.Flags().GetStringSlice("target")
	if err != nil {
		return nil, err
	}

	cfg.Demo, err = cmd.Flags().GetBool("demo")
	if err != nil {
		return nil, err
	}

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	cfg.ArtifactDir, err = cmd.Flags().GetString("artifact-dir")
	if err != nil {
		return nil, err
	}

	cfg.NoPersist, err = cmd.Flags().GetBool("no-persist")
	if err != nil {
		return nil, err
	}

	// Flags are already set, so the environment only fills the rest.
	cfg.ApplyEnv(os.Getenv)

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently run without a file.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// setupLogger creates the structured logger. Configured credentials are
// masked in every record regardless of the format.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	jsonLogs, err := cmd.Flags().GetBool("log-json")
	return gwlog.New(cmd.ErrOrStderr(),
		gwlog.WithVerbose(cfg.Verbose),
		gwlog.WithJSON(err == nil && jsonLogs),
		gwlog.WithSecrets(cfg.Secrets()...),
	)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// app is what every command needs after startup: the validated config,
// the logger and one findings store per target.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	out       io.Writer
	db        *database.FindingsDB
	artifacts *retention.ArtifactStore
	targets   []*target
}

// target is a configured target with its store.
type target struct {
	config.Target

	store *findings.Store

	// runs is nil with --no-persist.
	runs *database.TargetStore
}

// setup builds and validates the config, then opens the app. apply sets
// command specific flags on the config before validation; it may be nil.
func setup(cmd *cobra.Command, apply func(*config.Config) error) (*app, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		if err := apply(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg)
	slog.SetDefault(logger)

	a, err := openApp(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	a.out = cmd.OutOrStdout()
	return a, nil
}

// openApp opens the database and restores the state of every target.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	targets, err := cfg.ResolveTargets()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		out:       os.Stdout,
		artifacts: retention.NewArtifactStore(cfg.ArtifactDir),
	}

	if !cfg.NoPersist {
		a.db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("database opened", "path", a.db.Path())
	}

	for _, tc := range targets {
		opts := []findings.Option{
			findings.WithRules(tc.EffectiveRules()),
			findings.WithLogger(logger),
		}
		t := &target{Target: tc}
		if a.db != nil {
			t.runs = a.db.Target(tc.Name)
			st, err := t.runs.LoadState(ctx)
			if err != nil {
				_ = a.Close() //nolint:errcheck // Best effort cleanup
				return nil, fmt.Errorf("failed to restore %s: %w", tc.Name, err)
			}
			opts = append(opts, findings.WithPersister(t.runs), findings.WithInitialState(st))
		}
		t.store = findings.NewStore(tc.Name, opts...)
		a.targets = append(a.targets, t)
	}

	return a, nil
}

// Close closes the database.
func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// only returns the single selected target.
func (a *app) only() (*target, error) {
	if len(a.targets) != 1 {
		return nil, errNeedOneTarget
	}
	return a.targets[0], nil
}

// checkOptions are the check flags that are not part of the config.
type checkOptions struct {
	// printMessages writes chat messages to stdout instead of sending them.
	printMessages bool

	// hideResolved leaves resolved findings out of text reports.
	hideResolved bool
}

// newChecker wires renderer, extractor, summarizer and delivery for t.
func (a *app) newChecker(t *target, opts checkOptions) *pipeline.Checker {
	cfg := a.cfg
	logger := a.logger.With("target", t.Name)

	checkerOpts := []pipeline.CheckerOption{
		pipeline.WithCheckTimeout(cfg.CheckTimeout),
		pipeline.WithExport(a.artifacts),
		pipeline.WithCheckLogger(logger),
	}

	var summarizer summarize.Summarizer
	if cfg.AIAPIKey != "" {
		summarizer = summarize.NewAnthropicSummarizer(summarize.NewSDKClient(cfg.AIAPIKey), cfg.AIModel)
	}
	checkerOpts = append(checkerOpts, pipeline.WithSummarizer(summarizer))

	if d := a.newDeliverer(t, opts, logger); d != nil {
		checkerOpts = append(checkerOpts, pipeline.WithDeliverer(d))
	}

	extractor := extract.New(
		extract.WithStrategies(t.EffectiveStrategies()),
		extract.WithStableColumns(t.StableColumns),
		extract.WithLogger(logger),
	)

	return pipeline.NewChecker(t.store, t.URL, a.newRenderer(t, logger), extractor, checkerOpts...)
}

// newRenderer returns a static renderer for --html-file and a browser otherwise.
func (a *app) newRenderer(t *target, logger *slog.Logger) render.Renderer {
	cfg := a.cfg
	if cfg.HTMLFile != "" {
		return render.NewStaticFile(cfg.HTMLFile)
	}
	return render.NewRod(
		render.WithHeadless(cfg.Headless),
		render.WithNoSandbox(cfg.NoSandbox),
		render.WithBrowserBin(cfg.BrowserBin),
		render.WithBrowserURL(cfg.BrowserURL),
		render.WithTimeout(cfg.RenderTimeout),
		render.WithSettle(cfg.Settle),
		render.WithReadySelectors(t.EffectiveReadySelectors()),
		render.WithHeaders(t.Headers),
		render.WithCookie(t.Cookie),
		render.WithDebugScreenshots(cfg.DebugScreenshots),
		render.WithArtifacts(a.artifacts),
		render.WithLogger(logger),
	)
}

// newDeliverer returns nil when nothing is configured to receive results.
func (a *app) newDeliverer(t *target, opts checkOptions, logger *slog.Logger) *report.Deliverer {
	cfg := a.cfg
	if !cfg.Deliver && !opts.printMessages {
		return nil
	}

	var chat notify.Chat
	switch {
	case opts.printMessages:
		chat = notify.NewWriterChat(a.out)
	case cfg.ChatEnabled():
		chat = notify.NewTelegramChat(cfg.ChatToken, cfg.ChatID, notify.WithLogger(logger))
	}

	var channel notify.Channel
	if cfg.Deliver && cfg.WebhookURL != "" {
		channel = notify.NewWebhook(cfg.WebhookURL, config.AppName+"/"+t.Name)
	}

	if chat == nil && channel == nil {
		return nil
	}
	return report.NewDeliverer(chat,
		report.WithChannel(channel),
		report.WithChatOptions(report.ChatOptions{
			Limit:        cfg.MessageLimit,
			MaxPerColumn: cfg.MaxCellsPerColumn,
			Descriptions: t.ColumnDescriptions,
		}),
		report.WithDeliveryLogger(logger),
	)
}

// reportFormat returns the output format selected by --json and --markdown.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// openOutput returns the report destination: the --output file, or out.
// The returned close function is never nil.
func openOutput(path string, out io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return out, func() error { return nil }, nil
	}
	if err := ensureParentDir(path); err != nil {
		return nil, nil, err
	}
	// Reports can hold personal data from the table.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided report path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
