package findings

import (
	"strings"
	"time"

	"github.com/nao1215/gridwatch/internal/model"
)

// State is one committed, immutable view of a target's findings.
// Nothing reachable from a published State is modified afterwards; writers
// copy what they change.
type State struct {
	Target string

	// Revision increases by one with every published state.
	Revision uint64

	CommittedAt time.Time

	// Snapshot is the latest committed snapshot, nil before the first check.
	Snapshot *model.TableSnapshot

	Findings []model.Finding
	Stats    model.Stats
	Comments []model.Comment
	Catalog  model.ColumnCatalog

	// Summary is the summarizer output attached to the latest run.
	Summary string
}

func emptyState(target string) *State {
	return &State{
		Target:   target,
		Findings: []model.Finding{},
		Comments: []model.Comment{},
		Stats:    model.Stats{ByColumn: map[string]int{}},
	}
}

// clone returns a shallow copy with its own findings and comments slices.
func (st *State) clone() *State {
	next := *st
	next.Findings = append([]model.Finding(nil), st.Findings...)
	next.Comments = append([]model.Comment(nil), st.Comments...)
	return &next
}

// Filter narrows finding queries. Zero values match everything.
type Filter struct {
	Statuses []model.Status
	Columns  []string
	Table    string
}

func (f Filter) match(fd model.Finding) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if fd.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Columns) > 0 {
		ok := false
		for _, c := range f.Columns {
			if strings.EqualFold(fd.ColumnName, c) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Table != "" && fd.Table != f.Table {
		return false
	}
	return true
}

// All returns every finding matching f, resolved ones included.
func (st *State) All(f Filter) []model.Finding {
	out := []model.Finding{}
	for _, fd := range st.Findings {
		if f.match(fd) {
			out = append(out, fd)
		}
	}
	return out
}

// Open returns open findings matching f. Resolved statuses in f are ignored.
func (st *State) Open(f Filter) []model.Finding {
	out := []model.Finding{}
	for _, fd := range st.All(f) {
		if fd.IsOpen() {
			out = append(out, fd)
		}
	}
	return out
}

// Get returns the finding with id.
func (st *State) Get(id string) (model.Finding, error) {
	for _, fd := range st.Findings {
		if fd.ID == id {
			return fd, nil
		}
	}
	return model.Finding{}, ErrNotFound
}

// Columns returns the column catalog.
func (st *State) Columns() []model.ColumnInfo {
	return append([]model.ColumnInfo(nil), st.Catalog.Columns...)
}

// CommentsFor returns the comments of one finding in creation order.
// An empty findingID returns all comments.
func (st *State) CommentsFor(findingID string) []model.Comment {
	out := []model.Comment{}
	for _, c := range st.Comments {
		if findingID == "" || c.FindingID == findingID {
			out = append(out, c)
		}
	}
	return out
}

// Pinned reports whether the finding has at least one comment.
func (st *State) Pinned(findingID string) bool {
	for _, c := range st.Comments {
		if c.FindingID == findingID {
			return true
		}
	}
	return false
}

// Export returns the export document of the state.
func (st *State) Export(generatedAt time.Time) *model.ExportDocument {
	return &model.ExportDocument{
		Version:     model.ExportVersion,
		Target:      st.Target,
		GeneratedAt: generatedAt,
		Snapshot:    st.Snapshot,
		Findings:    append([]model.Finding{}, st.Findings...),
		Comments:    append([]model.Comment{}, st.Comments...),
		Columns:     st.Columns(),
		Stats:       st.Stats,
		Summary:     st.Summary,
	}
}
