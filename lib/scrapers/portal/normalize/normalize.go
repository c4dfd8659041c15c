// Package normalize turns portal markup into typed records. Parsers never
// fail on missing structure: they report Found=false and skip rows that lack
// their minimum fields.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"
	"casesync-backend/lib/textutil"
	"casesync-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

type Result[T any] struct {
	Records []T
	// Found is false when the section's container could not be located.
	Found bool
}

func notFound[T any]() Result[T] {
	return Result[T]{}
}

// Parser extracts one section from a rendered page. hint is the key of the
// case the page belongs to and may be zero.
type Parser[T any] func(root *goquery.Selection, hint casekey.Key) Result[T]

// Parse runs p over raw markup.
func Parse[T any](p Parser[T], markup string, hint casekey.Key) (Result[T], error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Result[T]{}, err
	}
	return p(doc.Selection, hint), nil
}

// StableID derives a deterministic identifier for records the portal does
// not assign one to.
func StableID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// rowID returns the row key the portal's data tables render, if any.
func rowID(row *goquery.Selection) string {
	for _, attr := range []string{"data-rk", "data-id", "data-key"} {
		if v := strings.TrimSpace(row.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// isoDate converts a displayed date to yyyy-mm-dd, leaving unparsable values
// as cleaned text.
func isoDate(raw string) string {
	raw = htmlutil.CleanText(raw)
	t, ok := timezone.ParseDate(raw)
	if !ok {
		return raw
	}
	return t.Format("2006-01-02")
}

type columns map[string]int

func (c columns) has(field string) bool {
	_, ok := c[field]
	return ok
}

// text returns the cleaned text of the cell mapped to field.
func (c columns) text(row *goquery.Selection, field string) string {
	return htmlutil.SelectionText(c.cell(row, field))
}

func (c columns) cell(row *goquery.Selection, field string) *goquery.Selection {
	idx, ok := c[field]
	if !ok {
		return row.Slice(0, 0)
	}
	return row.ChildrenFiltered("td").Eq(idx)
}

// headerLabels lists, per field, the normalized header prefixes that name it.
type headerLabels map[string][]string

func (h headerLabels) match(header string) (string, bool) {
	header = textutil.NormalizeName(header)
	if header == "" {
		return "", false
	}
	best := ""
	bestLen := 0
	for field, prefixes := range h {
		for _, p := range prefixes {
			if strings.HasPrefix(header, p) && len(p) > bestLen {
				best = field
				bestLen = len(p)
			}
		}
	}
	return best, best != ""
}

func headerCells(table *goquery.Selection) *goquery.Selection {
	headers := table.Find("thead th")
	if headers.Length() > 0 {
		return headers
	}
	return table.Find("tr").First().ChildrenFiltered("th")
}

func mapColumns(table *goquery.Selection, labels headerLabels) columns {
	cols := columns{}
	headerCells(table).Each(func(i int, th *goquery.Selection) {
		field, ok := labels.match(th.Text())
		if !ok || cols.has(field) {
			return
		}
		cols[field] = i
	})
	return cols
}

func dataRows(table *goquery.Selection) *goquery.Selection {
	rows := table.ChildrenFiltered("tbody").ChildrenFiltered("tr")
	if rows.Length() == 0 {
		rows = table.Find("tr")
	}
	return rows.FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.ChildrenFiltered("td").Length() > 0
	})
}

// tableSpec describes how to find one section's table.
type tableSpec struct {
	// selectors are tried in order, the last one is usually the bare "table".
	selectors []string
	labels    headerLabels
	required  []string
	// fallback positions are used for tables matched by a specific selector
	// that render no recognizable header row.
	fallback  columns
}

func (s tableSpec) hasRequired(cols columns) bool {
	for _, f := range s.required {
		if !cols.has(f) {
			return false
		}
	}
	return true
}

func (s tableSpec) locate(root *goquery.Selection) (*goquery.Selection, columns, bool) {
	for _, selector := range s.selectors {
		var (
			found *goquery.Selection
			cols  columns
		)
		root.Find(selector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
			c := mapColumns(table, s.labels)
			if s.hasRequired(c) {
				found, cols = table, c
				return false
			}
			return true
		})
		if found != nil {
			return found, cols, true
		}
	}
	if s.fallback == nil {
		return nil, nil, false
	}
	for _, selector := range s.selectors {
		if selector == "table" {
			continue
		}
		table := root.Find(selector).First()
		if table.Length() > 0 && headerCells(table).Length() == 0 {
			return table, s.fallback, true
		}
	}
	return nil, nil, false
}
