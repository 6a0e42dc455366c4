package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/render"
)

// sampleRows is how many rows are checked for a consistent column count.
const sampleRows = 20

// headerAttrs are cell attributes that may carry a column name when the
// table has no header region.
var headerAttrs = []string{"data-columnid", "data-column", "aria-label", "title"}

// autoID matches generated element ids such as "gridview-1034", which change
// between page loads and must not name a table.
var autoID = regexp.MustCompile(`^[a-z]+(-[a-z]+)*-\d+$`)

// ErrNoTable is wrapped by ExtractionError.
var ErrNoTable = errors.New("no table found")

// ExtractionError reports that no strategy matched. It is recoverable: the
// extractor still returns an empty snapshot flagged partial.
type ExtractionError struct {
	URL   string
	Tried []string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%v at %s (tried: %s)", ErrNoTable, e.URL, strings.Join(e.Tried, ", "))
}

// Unwrap returns ErrNoTable.
func (e *ExtractionError) Unwrap() error {
	return ErrNoTable
}

// Extractor reads table snapshots out of rendered pages.
// It is stateless after construction and safe for concurrent use.
type Extractor struct {
	strategies    []Strategy
	stableColumns []string
	logger        *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the strategy list.
func WithStrategies(strategies []Strategy) Option {
	return func(e *Extractor) {
		e.strategies = append([]Strategy(nil), strategies...)
	}
}

// WithStableColumns sets the columns whose values identify a row.
func WithStableColumns(columns []string) Option {
	return func(e *Extractor) {
		e.stableColumns = append([]string(nil), columns...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor using DefaultStrategies unless overridden.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns the configured strategies.
func (e *Extractor) Strategies() []Strategy {
	return append([]Strategy(nil), e.strategies...)
}

// Extract builds a snapshot from page. A nil page or an unmatched DOM yields
// an empty snapshot flagged partial together with an *ExtractionError.
func (e *Extractor) Extract(page *render.Page, runAt time.Time) (*model.TableSnapshot, error) {
	sourceURL := ""
	if page != nil {
		sourceURL = page.URL
	}
	snap := model.NewTableSnapshot(sourceURL, runAt)
	if page != nil {
		snap.Partial = page.Partial
	}

	tried := make([]string, 0, len(e.strategies))
	if page == nil || strings.TrimSpace(page.HTML) == "" {
		for _, s := range e.strategies {
			tried = append(tried, s.Name)
		}
		return failed(snap, &ExtractionError{URL: sourceURL, Tried: tried})
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return failed(snap, fmt.Errorf("failed to parse DOM: %w", err))
	}

	for _, s := range e.strategies {
		tried = append(tried, s.Name)
		tables := e.apply(doc, s)
		if len(tables) == 0 {
			e.logger.Debug("strategy did not match", "strategy", s.Name)
			continue
		}

		snap.Strategy = s.Name
		for _, t := range tables {
			snap.Rows = append(snap.Rows, t.rows...)
			snap.ColumnsGuessed = snap.ColumnsGuessed || t.guessed
			snap.Columns = appendUnique(snap.Columns, t.columns...)
		}
		snap.IdentityMode = assignIdentities(snap.Rows, snap.Columns, e.stableColumns)

		e.logger.Debug("table extracted",
			"strategy", s.Name,
			"tables", len(tables),
			"rows", len(snap.Rows),
			"columns", len(snap.Columns),
			"columns_guessed", snap.ColumnsGuessed,
			"identity_mode", snap.IdentityMode)
		return snap, nil
	}

	return failed(snap, &ExtractionError{URL: sourceURL, Tried: tried})
}

func failed(snap *model.TableSnapshot, err error) (*model.TableSnapshot, error) {
	snap.Partial = true
	snap.Error = err.Error()
	return snap, err
}

// table is the result of one accepted container.
type table struct {
	rows    []model.Row
	columns []string
	guessed bool
}

// apply runs one strategy over the document and returns every accepted container.
func (e *Extractor) apply(doc *goquery.Document, s Strategy) []table {
	var tables []table
	doc.Find(s.Container).Each(func(i int, container *goquery.Selection) {
		t, ok := e.readContainer(container, s, len(tables)+1)
		if ok {
			tables = append(tables, t)
		}
	})
	return tables
}

// readContainer extracts one container. ok is false when the container has no
// data rows or its sampled rows disagree on the column count.
func (e *Extractor) readContainer(container *goquery.Selection, s Strategy, ordinal int) (table, bool) {
	var cellRows [][]*goquery.Selection
	owned(container.Find(s.Row), s.Container, container).Each(func(_ int, row *goquery.Selection) {
		cells := owned(row.Find(s.Cell), s.Row, row)
		if cells.Length() == 0 {
			return
		}
		var list []*goquery.Selection
		cells.Each(func(_ int, c *goquery.Selection) {
			list = append(list, c)
		})
		cellRows = append(cellRows, list)
	})
	if len(cellRows) == 0 {
		return table{}, false
	}

	width, consistent := modalWidth(cellRows)
	if !consistent && !s.AllowRagged {
		e.logger.Debug("rows have inconsistent column counts", "strategy", s.Name, "container", ordinal)
		return table{}, false
	}

	columns, guessed := e.headers(container, s, cellRows[0], width)
	name := tableName(container, ordinal)

	t := table{guessed: guessed, columns: columns}
	for _, cells := range cellRows {
		row := model.Row{
			Table:   name,
			Columns: make([]string, 0, len(cells)),
			Values:  make(map[string]string, len(cells)),
		}
		for i, cell := range cells {
			col := columnAt(columns, i)
			if i >= len(columns) {
				t.columns = appendUnique(t.columns, col)
				t.guessed = true
			}
			row.Columns = append(row.Columns, col)
			row.Values[col] = cellText(cell, s.CellText)
		}
		// Short rows of a ragged grid read as empty trailing cells.
		if s.AllowRagged {
			for i := len(cells); i < width; i++ {
				col := columnAt(columns, i)
				row.Columns = append(row.Columns, col)
				row.Values[col] = ""
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, true
}

// headers returns width column names for the container.
func (e *Extractor) headers(container *goquery.Selection, s Strategy, firstRow []*goquery.Selection, width int) ([]string, bool) {
	labels := headerLabels(container, s)
	guessed := false
	if len(labels) == 0 {
		labels = attributeLabels(firstRow)
		guessed = true
	}
	if len(labels) != width {
		guessed = true
	}

	columns := make([]string, width)
	seen := make(map[string]int, width)
	for i := range columns {
		name := ""
		if i < len(labels) {
			name = labels[i]
		}
		if name == "" {
			name = positional(i)
			guessed = true
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		columns[i] = name
	}
	return columns, guessed
}

// headerLabels reads the header region, or the header row fallback.
func headerLabels(container *goquery.Selection, s Strategy) []string {
	var labels []string
	if s.Header != "" {
		headers := owned(container.Find(s.Header), s.Container, container)
		headers.Each(func(_ int, h *goquery.Selection) {
			// Grouped headers contain their child headers; only leaves map to cells.
			if h.Find(s.Header).Length() > 0 || hidden(h) {
				return
			}
			labels = append(labels, cellText(h, s.HeaderText))
		})
	}
	if len(labels) > 0 || s.HeaderRow == "" || s.HeaderCell == "" {
		return normalizeAll(labels)
	}

	owned(container.Find(s.HeaderRow), s.Container, container).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := owned(row.Find(s.HeaderCell), s.HeaderRow, row)
		if cells.Length() == 0 {
			return true
		}
		cells.Each(func(_ int, c *goquery.Selection) {
			labels = append(labels, c.Text())
		})
		return false
	})
	return normalizeAll(labels)
}

// attributeLabels names columns from attributes of the first data row.
func attributeLabels(cells []*goquery.Selection) []string {
	labels := make([]string, len(cells))
	found := false
	for i, c := range cells {
		for _, attr := range headerAttrs {
			if v, ok := c.Attr(attr); ok && strings.TrimSpace(v) != "" {
				labels[i] = model.NormalizeValue(v)
				found = true
				break
			}
		}
	}
	if !found {
		return nil
	}
	return labels
}

// owned filters sel down to elements whose closest ancestor matching
// ownerSelector is owner, so rows of nested tables are not attributed twice.
func owned(sel *goquery.Selection, ownerSelector string, owner *goquery.Selection) *goquery.Selection {
	ownerNode := owner.Get(0)
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		parent := s.Parent().Closest(ownerSelector)
		return parent.Length() > 0 && parent.Get(0) == ownerNode
	})
}

// modalWidth returns the most common cell count and whether the sampled rows all share it.
func modalWidth(rows [][]*goquery.Selection) (int, bool) {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, r := range rows {
		n := len(r)
		counts[n]++
		if counts[n] > bestCount || (counts[n] == bestCount && n > best) {
			best, bestCount = n, counts[n]
		}
	}

	limit := len(rows)
	if limit > sampleRows {
		limit = sampleRows
	}
	for _, r := range rows[:limit] {
		if len(r) != len(rows[0]) {
			return best, false
		}
	}
	return best, true
}

func cellText(cell *goquery.Selection, inner string) string {
	if inner != "" {
		if t := cell.Find(inner); t.Length() > 0 {
			return t.First().Text()
		}
	}
	return cell.Text()
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return strings.Contains(style, "display:none")
}

// tableName derives a stable name for a container.
func tableName(container *goquery.Selection, ordinal int) string {
	for _, attr := range []string{"data-table", "aria-label", "id"} {
		v := strings.TrimSpace(container.AttrOr(attr, ""))
		if v == "" || (attr == "id" && autoID.MatchString(v)) {
			continue
		}
		return v
	}
	return "table_" + strconv.Itoa(ordinal)
}

func columnAt(columns []string, i int) string {
	if i < len(columns) {
		return columns[i]
	}
	return positional(i)
}

func positional(i int) string {
	return "col_" + strconv.Itoa(i+1)
}

func normalizeAll(values []string) []string {
	for i, v := range values {
		values[i] = model.NormalizeValue(v)
	}
	return values
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
