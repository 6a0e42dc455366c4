package report

import (
	"sort"

	"github.com/nao1215/gridwatch/internal/model"
)

// columnGroup holds the open findings of one column.
type columnGroup struct {
	Column   string
	Findings []model.Finding
}

// groupByColumn groups findings by column, largest group first, then by name.
// Findings inside a group keep SortForDisplay order.
func groupByColumn(fs []model.Finding) []columnGroup {
	index := make(map[string]int)
	var groups []columnGroup
	for _, f := range fs {
		i, ok := index[f.ColumnName]
		if !ok {
			i = len(groups)
			index[f.ColumnName] = i
			groups = append(groups, columnGroup{Column: f.ColumnName})
		}
		groups[i].Findings = append(groups[i].Findings, f)
	}
	for i := range groups {
		model.SortForDisplay(groups[i].Findings)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Findings) != len(groups[j].Findings) {
			return len(groups[i].Findings) > len(groups[j].Findings)
		}
		return groups[i].Column < groups[j].Column
	})
	return groups
}
