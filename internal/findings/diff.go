package findings

import (
	"sort"

	"github.com/nao1215/gridwatch/internal/classify"
	"github.com/nao1215/gridwatch/internal/model"
)

// Diff computes the next finding set from previous and snap. It does not mutate
// its inputs. newID is called once per new finding.
func Diff(previous []model.Finding, snap *model.TableSnapshot, rules classify.Rules, newID func() string) ([]model.Finding, model.Stats) {
	return diff(previous, snap, classify.New(rules), newID)
}

func diff(previous []model.Finding, snap *model.TableSnapshot, cls *classify.Classifier, newID func() string) ([]model.Finding, model.Stats) {
	runAt := snap.RunTimestamp
	stats := model.Stats{
		RunAt:          runAt,
		Rows:           len(snap.Rows),
		ByColumn:       make(map[string]int),
		Partial:        snap.Partial,
		ColumnsGuessed: snap.ColumnsGuessed,
	}

	// The first open finding per key is the one carried forward; later
	// duplicates, which only an import can produce, are resolved below.
	open := make(map[model.Key]int, len(previous))
	for i, f := range previous {
		if _, dup := open[f.Key()]; f.IsOpen() && !dup {
			open[f.Key()] = i
		}
	}

	next := make([]model.Finding, 0, len(previous))
	seen := make(map[model.Key]bool)
	for _, row := range snap.Rows {
		for _, col := range row.Columns {
			raw := row.Values[col]
			if !cls.IsEmpty(raw, col) {
				continue
			}
			key := model.Key{RowIdentity: row.Identity, ColumnName: col}
			if seen[key] {
				continue
			}
			seen[key] = true

			if i, ok := open[key]; ok {
				f := previous[i]
				f.Status = model.StatusPersisting
				f.LastSeenRun = runAt
				f.Table, f.RowLabel, f.RawValue = row.Table, row.Label, raw
				next = append(next, f)
				stats.Persisting++
				continue
			}

			next = append(next, model.Finding{
				ID:           newID(),
				RowIdentity:  row.Identity,
				ColumnName:   col,
				Status:       model.StatusNew,
				FirstSeenRun: runAt,
				LastSeenRun:  runAt,
				Table:        row.Table,
				RowLabel:     row.Label,
				RawValue:     raw,
			})
			stats.New++
		}
	}

	var captured map[string]model.Row
	if snap.Partial {
		captured = snap.RowIndex()
	}
	for i, f := range previous {
		switch {
		case !f.IsOpen():
			next = append(next, f)
		case open[f.Key()] != i:
			f.Status = model.StatusResolved
			f.LastSeenRun = runAt
			next = append(next, f)
			stats.Resolved++
		case seen[f.Key()]:
			// refreshed above
		case snap.Partial && !rowCaptured(captured, f.RowIdentity):
			// A partial page cannot tell a vanished row from one it never loaded.
			next = append(next, f)
		default:
			f.Status = model.StatusResolved
			f.LastSeenRun = runAt
			next = append(next, f)
			stats.Resolved++
		}
	}

	for _, f := range next {
		if f.IsOpen() {
			stats.Open++
			stats.ByColumn[f.ColumnName]++
		}
	}
	sortFindings(next)
	return next, stats
}

func rowCaptured(captured map[string]model.Row, identity string) bool {
	_, ok := captured[identity]
	return ok
}

// SortFindings sorts fs in place in display order. Loaders use it to restore
// the order Diff produces.
func SortFindings(fs []model.Finding) {
	sortFindings(fs)
}

// sortFindings orders open findings before resolved ones, each by first_seen_run,
// then row identity and column, so output is deterministic.
func sortFindings(fs []model.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.IsOpen() != b.IsOpen() {
			return a.IsOpen()
		}
		if !a.FirstSeenRun.Equal(b.FirstSeenRun) {
			return a.FirstSeenRun.Before(b.FirstSeenRun)
		}
		if a.RowIdentity != b.RowIdentity {
			return a.RowIdentity < b.RowIdentity
		}
		if a.ColumnName != b.ColumnName {
			return a.ColumnName < b.ColumnName
		}
		return a.ID < b.ID
	})
}
