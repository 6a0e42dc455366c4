package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/gridwatch/internal/model"
)

// Summarizer describes open findings in prose.
type Summarizer interface {
	Summarize(ctx context.Context, findings []model.Finding, stats model.Stats) (Summary, error)
}

// Summary is the output of a Summarizer.
type Summary struct {
	// Text is the prose summary shown with the results.
	Text string

	// Notes maps finding ids to short per-finding notes.
	Notes map[string]string

	// Fallback is set when Text is the plain stats message.
	Fallback bool
}

// PlainStats renders stats without a summarizer.
func PlainStats(stats model.Stats) string {
	if stats.Open == 0 {
		return "All cells are filled."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d empty cells in %d columns (%d new, %d still empty, %d filled since the last check).",
		stats.Open, len(stats.ByColumn), stats.New, stats.Persisting, stats.Resolved)
	cols := stats.SortedColumns()
	if len(cols) > 0 {
		parts := make([]string, 0, len(cols))
		for _, c := range cols {
			parts = append(parts, fmt.Sprintf("%s: %d", c.Column, c.Count))
		}
		sb.WriteString("\nBy column: ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if stats.Partial {
		sb.WriteString("\nThe table was only partly loaded.")
	}
	return sb.String()
}

// SummarizeOrFallback calls s and falls back to PlainStats when s is nil,
// fails, or returns an empty text. The failure is logged, not returned.
func SummarizeOrFallback(ctx context.Context, s Summarizer, findings []model.Finding, stats model.Stats, logger *slog.Logger) Summary {
	fallback := Summary{Text: PlainStats(stats), Fallback: true}
	if s == nil {
		return fallback
	}
	if logger == nil {
		logger = slog.Default()
	}

	sum, err := s.Summarize(ctx, findings, stats)
	if err != nil {
		logger.Warn("summarizer failed, sending plain stats", "error", err)
		return fallback
	}
	if strings.TrimSpace(sum.Text) == "" {
		logger.Warn("summarizer returned an empty summary, sending plain stats")
		fallback.Notes = sum.Notes
		return fallback
	}
	return sum
}
