package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/gridwatch/internal/model"
)

// labelColumns bounds how many values make up a fallback row label.
const labelColumns = 2

// RowIdentity hashes the name=value pairs of columns (sorted by lower-cased
// name) together with the table name. Values are whitespace-normalized and
// column names compared case-insensitively, so "Name" and "name " hash alike.
func RowIdentity(tableName string, values map[string]string, columns []string) string {
	type pair struct{ name, value string }
	pairs := make([]pair, 0, len(columns))
	for _, col := range columns {
		pairs = append(pairs, pair{
			name:  strings.ToLower(model.NormalizeValue(col)),
			value: model.NormalizeValue(values[col]),
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].name < pairs[j].name
	})

	h := sha256.New()
	h.Write([]byte(tableName))
	for _, p := range pairs {
		h.Write([]byte{0x1f})
		h.Write([]byte(p.name + "=" + p.value))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// resolveStable maps configured stable column names onto the snapshot's
// actual column names, matching case-insensitively.
func resolveStable(columns, stable []string) []string {
	want := make(map[string]bool, len(stable))
	for _, s := range stable {
		want[strings.ToLower(model.NormalizeValue(s))] = true
	}
	var resolved []string
	for _, col := range columns {
		if want[strings.ToLower(col)] {
			resolved = append(resolved, col)
		}
	}
	return resolved
}

// assignIdentities sets Identity and Label on every row and returns the mode used.
// Identities colliding within the snapshot get #2, #3 suffixes in document order.
func assignIdentities(rows []model.Row, columns, stable []string) model.IdentityMode {
	keyColumns := resolveStable(columns, stable)
	mode := model.IdentityStableColumns
	if len(keyColumns) == 0 {
		mode = model.IdentityFullRow
	}

	seen := make(map[string]int, len(rows))
	for i := range rows {
		row := &rows[i]
		cols := keyColumns
		if mode == model.IdentityFullRow {
			cols = row.Columns
		}

		id := RowIdentity(row.Table, row.Values, cols)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = id + "#" + strconv.Itoa(n)
		}
		row.Identity = id
		row.Label = rowLabel(*row, keyColumns)
	}
	return mode
}

// rowLabel joins the stable column values, or the first non-empty values when
// there are none.
func rowLabel(row model.Row, keyColumns []string) string {
	var parts []string
	for _, col := range keyColumns {
		if v := model.NormalizeValue(row.Values[col]); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " / ")
	}
	for _, col := range row.Columns {
		if v := model.NormalizeValue(row.Values[col]); v != "" {
			parts = append(parts, v)
			if len(parts) == labelColumns {
				break
			}
		}
	}
	return strings.Join(parts, " / ")
}
