package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nao1215/gridwatch/internal/model"
)

// Chat message defaults, matching what the Telegram Bot API accepts.
const (
	DefaultMessageLimit = 4000
	DefaultMaxPerColumn = 5
)

// ChatOptions controls how a run is rendered into chat messages.
type ChatOptions struct {
	// Limit is the maximum length of one message in characters.
	Limit int

	// MaxPerColumn is the number of cells listed per column.
	MaxPerColumn int

	// Descriptions explain columns. A key matches when it is a
	// case-insensitive substring of the column name.
	Descriptions map[string]string
}

func (o ChatOptions) withDefaults() ChatOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultMessageLimit
	}
	if o.MaxPerColumn <= 0 {
		o.MaxPerColumn = DefaultMaxPerColumn
	}
	return o
}

// ChatMessages renders run as one or more chat messages, none longer than
// opts.Limit characters. Messages break between lines; a single line longer
// than the limit is split hard.
func ChatMessages(run *model.CheckRun, opts ChatOptions) []string {
	opts = opts.withDefaults()
	open := run.OpenFindings()

	var lines []string
	switch {
	case run.Error != "" && len(open) == 0:
		lines = append(lines, "❌ Check of "+run.Target+" failed: "+run.Error)
	case len(open) == 0:
		lines = append(lines, "✅ No empty cells found in "+run.Target+".")
	default:
		lines = append(lines, fmt.Sprintf("Found empty cells: %d", len(open)))
	}
	s := run.Stats
	lines = append(lines,
		fmt.Sprintf("New: %d, still empty: %d, filled: %d", s.New, s.Persisting, s.Resolved))
	if run.Partial || run.TimedOut {
		lines = append(lines, "⚠️ The table was only partly loaded; results may be incomplete.")
	}
	lines = append(lines, "")

	for _, g := range groupByColumn(open) {
		lines = append(lines, fmt.Sprintf("📊 %s (%d cells):", g.Column, len(g.Findings)))
		for i, f := range g.Findings {
			if i == opts.MaxPerColumn {
				lines = append(lines, fmt.Sprintf("   - ... and %d more empty cells", len(g.Findings)-i))
				break
			}
			lines = append(lines, "   - "+cellLabel(f))
		}
		if d := describeColumn(g.Column, opts.Descriptions); d != "" {
			lines = append(lines, "   ℹ️ "+d)
		}
		lines = append(lines, "")
	}

	if run.Summary != "" {
		lines = append(lines, strings.Split(strings.TrimSpace(run.Summary), "\n")...)
	}
	return chunkLines(lines, opts.Limit)
}

// describeColumn returns the description whose key occurs in column. Longer
// keys are tried first so the most specific description wins.
func describeColumn(column string, descriptions map[string]string) string {
	if len(descriptions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(descriptions))
	for k := range descriptions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	lower := strings.ToLower(column)
	for _, k := range keys {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return descriptions[k]
		}
	}
	return ""
}

// chunkLines joins lines into messages of at most limit runes.
func chunkLines(lines []string, limit int) []string {
	var (
		out  []string
		cur  []rune
		size int
	)
	flush := func() {
		msg := strings.TrimRight(string(cur), "\n")
		if strings.TrimSpace(msg) != "" {
			out = append(out, msg)
		}
		cur, size = cur[:0], 0
	}

	for _, line := range lines {
		r := []rune(line)
		for len(r) > limit {
			flush()
			out = append(out, string(r[:limit]))
			r = r[limit:]
		}
		// +1 for the newline joining this line to the previous one.
		if size > 0 && size+1+len(r) > limit {
			flush()
		}
		if size > 0 {
			cur = append(cur, '\n')
			size++
		}
		cur = append(cur, r...)
		size += len(r)
	}
	flush()
	return out
}
