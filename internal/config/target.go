package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/nao1215/gridwatch/internal/classify"
	"github.com/nao1215/gridwatch/internal/extract"
)

// TargetConfig holds the settings of one monitored table UI.
type TargetConfig struct {
	// URL is the page that shows the table.
	URL string `yaml:"url,omitempty"`

	// StableColumns are the columns whose values identify a row across runs,
	// for example a client number. Matching is case-insensitive.
	StableColumns []string `yaml:"stable_columns,omitempty"`

	// Rules configures emptiness detection. Nil uses the defaults.
	Rules *classify.Rules `yaml:"rules,omitempty"`

	// Strategies replaces the built-in extraction strategies when set.
	Strategies []extract.Strategy `yaml:"strategies,omitempty"`

	// ReadySelectors override the selectors that signal the table has loaded.
	// Empty derives them from the strategies.
	ReadySelectors []string `yaml:"ready_selectors,omitempty"`

	// Cookie is an already valid session cookie passed through verbatim.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request of the page.
	Headers map[string]string `yaml:"headers,omitempty"`

	// ColumnDescriptions explain columns in chat messages. Keys are matched
	// as case-insensitive substrings of the column name.
	ColumnDescriptions map[string]string `yaml:"column_descriptions,omitempty"`
}

// Target is a named, fully merged target configuration.
type Target struct {
	Name string
	TargetConfig
}

// File represents the structure of the .gridwatch.yaml configuration file.
type File struct {
	// Defaults contains settings applied to all targets
	// unless overridden in the target-specific configuration.
	Defaults TargetConfig `yaml:"defaults,omitempty"`

	// Targets maps target names to their configurations.
	Targets map[string]TargetConfig `yaml:"targets,omitempty"`

	// Delivery holds chat and webhook settings. Environment variables win.
	Delivery Delivery `yaml:"delivery,omitempty"`
}

// Delivery configures where results are sent.
type Delivery struct {
	ChatToken  string `yaml:"chat_token,omitempty"`
	ChatID     string `yaml:"chat_id,omitempty"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	AIModel    string `yaml:"ai_model,omitempty"`
}

// NewFile returns an empty configuration file.
func NewFile() *File {
	return &File{Targets: make(map[string]TargetConfig)}
}

// TargetNames returns the configured target names in sorted order.
func (cf *File) TargetNames() []string {
	names := make([]string, 0, len(cf.Targets))
	for name := range cf.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Target returns the configuration for a specific target.
// It merges the target-specific configuration with defaults.
func (cf *File) Target(name string) TargetConfig {
	// Start with defaults
	result := cf.Defaults.clone()

	// Override with target-specific configuration if present
	tc, ok := cf.Targets[name]
	if !ok {
		return result
	}
	if tc.URL != "" {
		result.URL = tc.URL
	}
	if tc.Cookie != "" {
		result.Cookie = tc.Cookie
	}
	if len(tc.StableColumns) > 0 {
		result.StableColumns = append([]string(nil), tc.StableColumns...)
	}
	if tc.Rules != nil {
		rules := tc.Rules.Clone()
		result.Rules = &rules
	}
	if len(tc.Strategies) > 0 {
		result.Strategies = append([]extract.Strategy(nil), tc.Strategies...)
	}
	if len(tc.ReadySelectors) > 0 {
		result.ReadySelectors = append([]string(nil), tc.ReadySelectors...)
	}
	result.Headers = mergeMap(result.Headers, tc.Headers)
	result.ColumnDescriptions = mergeMap(result.ColumnDescriptions, tc.ColumnDescriptions)
	return result
}

// Validate checks every target for a usable URL and compilable strategies.
func (cf *File) Validate() error {
	check := func(name string, tc TargetConfig, requireURL bool) error {
		if tc.URL == "" {
			if requireURL {
				return fmt.Errorf("%w: target %s: url is required", ErrInvalidTargetURL, name)
			}
		} else if err := validateURL(tc.URL); err != nil {
			return fmt.Errorf("target %s: %w", name, err)
		}
		for _, s := range tc.Strategies {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%w: target %s: %w", ErrInvalidTarget, name, err)
			}
		}
		for _, col := range tc.StableColumns {
			if strings.TrimSpace(col) == "" {
				return fmt.Errorf("%w: target %s: blank stable column", ErrInvalidTarget, name)
			}
		}
		return nil
	}

	if err := check("defaults", cf.Defaults, false); err != nil {
		return err
	}
	for _, name := range cf.TargetNames() {
		if err := check(name, cf.Target(name), true); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveRules returns the configured rules or the defaults.
func (tc TargetConfig) EffectiveRules() classify.Rules {
	if tc.Rules == nil {
		return classify.DefaultRules()
	}
	return tc.Rules.Clone()
}

// EffectiveStrategies returns the configured strategies or the built-in ones.
func (tc TargetConfig) EffectiveStrategies() []extract.Strategy {
	if len(tc.Strategies) == 0 {
		return extract.DefaultStrategies()
	}
	return append([]extract.Strategy(nil), tc.Strategies...)
}

// EffectiveReadySelectors returns the configured ready selectors or those
// derived from the effective strategies.
func (tc TargetConfig) EffectiveReadySelectors() []string {
	if len(tc.ReadySelectors) > 0 {
		return append([]string(nil), tc.ReadySelectors...)
	}
	return extract.ReadySelectors(tc.EffectiveStrategies())
}

func (tc TargetConfig) clone() TargetConfig {
	out := tc
	out.StableColumns = append([]string(nil), tc.StableColumns...)
	out.Strategies = append([]extract.Strategy(nil), tc.Strategies...)
	out.ReadySelectors = append([]string(nil), tc.ReadySelectors...)
	out.Headers = mergeMap(nil, tc.Headers)
	out.ColumnDescriptions = mergeMap(nil, tc.ColumnDescriptions)
	if tc.Rules != nil {
		rules := tc.Rules.Clone()
		out.Rules = &rules
	}
	return out
}

func mergeMap(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidTargetURL, raw)
	}
	return nil
}
