package classify

// ColumnRule overrides the global rules for a single column.
// Nil pointer fields inherit the global setting.
type ColumnRule struct {
	// Ignore excludes the column: none of its values are ever empty.
	Ignore bool `yaml:"ignore,omitempty" json:"ignore,omitempty"`

	Blank          *bool `yaml:"blank,omitempty" json:"blank,omitempty"`
	WhitespaceOnly *bool `yaml:"whitespace_only,omitempty" json:"whitespace_only,omitempty"`

	// SentinelValues extend the global sentinels, or replace them when ReplaceSentinels is set.
	SentinelValues   []string `yaml:"sentinel_values,omitempty" json:"sentinel_values,omitempty"`
	ReplaceSentinels bool     `yaml:"replace_sentinels,omitempty" json:"replace_sentinels,omitempty"`
}

// Rules configures emptiness detection.
type Rules struct {
	Blank           bool     `yaml:"blank" json:"blank"`
	WhitespaceOnly  bool     `yaml:"whitespace_only" json:"whitespace_only"`
	SentinelValues  []string `yaml:"sentinel_values" json:"sentinel_values"`
	CaseInsensitive bool     `yaml:"case_insensitive" json:"case_insensitive"`

	// PerColumn is keyed by column name; lookups are case-insensitive.
	PerColumn map[string]ColumnRule `yaml:"per_column,omitempty" json:"per_column,omitempty"`
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		Blank:          true,
		WhitespaceOnly: true,
		SentinelValues: []string{"-", "N/A", "—"},
	}
}

// Clone returns a deep copy of the rules.
func (r Rules) Clone() Rules {
	out := r
	out.SentinelValues = append([]string(nil), r.SentinelValues...)
	if r.PerColumn != nil {
		out.PerColumn = make(map[string]ColumnRule, len(r.PerColumn))
		for k, v := range r.PerColumn {
			v.SentinelValues = append([]string(nil), v.SentinelValues...)
			out.PerColumn[k] = v
		}
	}
	return out
}
