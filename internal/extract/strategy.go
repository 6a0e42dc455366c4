package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Strategy describes how one kind of grid markup is laid out.
// Selectors are CSS selectors evaluated with goquery.
type Strategy struct {
	// Name identifies the strategy in snapshots and logs.
	Name string `yaml:"name" json:"name"`

	// Container matches the element that owns one table.
	Container string `yaml:"container" json:"container"`

	// Row matches data rows inside the container.
	Row string `yaml:"row" json:"row"`

	// Cell matches cells inside a row.
	Cell string `yaml:"cell" json:"cell"`

	// CellText optionally selects the element inside a cell that holds its text.
	CellText string `yaml:"cell_text,omitempty" json:"cell_text,omitempty"`

	// Header matches header cells inside the container.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// HeaderText optionally selects the element inside a header holding its label.
	HeaderText string `yaml:"header_text,omitempty" json:"header_text,omitempty"`

	// HeaderRow and HeaderCell describe a fallback header: the first row
	// matching HeaderRow that contains HeaderCell elements.
	HeaderRow  string `yaml:"header_row,omitempty" json:"header_row,omitempty"`
	HeaderCell string `yaml:"header_cell,omitempty" json:"header_cell,omitempty"`

	// AllowRagged accepts containers whose rows have different cell counts.
	AllowRagged bool `yaml:"allow_ragged,omitempty" json:"allow_ragged,omitempty"`
}

// ErrInvalidStrategy is returned by Validate for unusable strategies.
var ErrInvalidStrategy = errors.New("invalid extraction strategy")

// Validate checks that the required selectors are present and compile.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStrategy)
	}
	required := map[string]string{"container": s.Container, "row": s.Row, "cell": s.Cell}
	for field, sel := range required {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("%w: %s: %s selector is required", ErrInvalidStrategy, s.Name, field)
		}
	}
	optional := []string{s.Container, s.Row, s.Cell, s.CellText, s.Header, s.HeaderText, s.HeaderRow, s.HeaderCell}
	for _, sel := range optional {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("%w: %s: selector %q: %v", ErrInvalidStrategy, s.Name, sel, err)
		}
	}
	return nil
}

// ReadySelector returns a selector that matches once the strategy has a data cell.
func (s Strategy) ReadySelector() string {
	return fmt.Sprintf("%s %s %s", firstAlternative(s.Container), firstAlternative(s.Row), firstAlternative(s.Cell))
}

// firstAlternative returns the first selector of a comma separated group,
// because descendant combinators do not distribute over commas.
func firstAlternative(sel string) string {
	first, _, _ := strings.Cut(sel, ",")
	return strings.TrimSpace(first)
}

// DefaultStrategies returns the built-in strategies, most specific first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:       "extjs-grid",
			Container:  ".x-grid",
			Row:        ".x-grid-row",
			Cell:       ".x-grid-cell",
			CellText:   ".x-grid-cell-inner",
			Header:     ".x-column-header",
			HeaderText: ".x-column-header-text",
		},
		{
			Name:       "html-table",
			Container:  "table",
			Row:        "tr",
			Cell:       "td",
			Header:     "thead th",
			HeaderRow:  "tr",
			HeaderCell: "th",
		},
		{
			Name:      "aria-grid",
			Container: "[role=grid], [role=table], [role=treegrid]",
			Row:       "[role=row]",
			Cell:      "[role=gridcell], [role=cell]",
			Header:    "[role=columnheader]",
		},
	}
}

// ReadySelectors returns the ready selectors of strategies in order.
func ReadySelectors(strategies []Strategy) []string {
	out := make([]string, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s.ReadySelector())
	}
	return out
}
