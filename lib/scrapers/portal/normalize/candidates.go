package normalize

import (
	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Candidate is one search result row.
type Candidate struct {
	// Key is zero when RawKey does not look like a case key.
	Key           casekey.Key
	NormalizedKey string
	RawKey        string
	Title         string
	Court         string
	Status        string
	LastActivity  string
	// Page and Row locate the row within the result pages. Page is set by
	// the caller, parsers only know the row.
	Page    int
	Row     int
	Action  Control
	RawHTML string
}

var candidateTable = tableSpec{
	selectors: []string{
		"table[id*='dataTable']",
		"table[id*='tablaConsulta']",
		"table.table",
		"table",
	},
	labels: headerLabels{
		"key":      {"expediente", "numero", "nro"},
		"court":    {"dependencia", "juzgado", "tribunal"},
		"title":    {"caratula"},
		"status":   {"situacion", "estado"},
		"activity": {"ult", "ultima", "fecha"},
	},
	required: []string{"key"},
	fallback: columns{"key": 0, "court": 1, "title": 2, "status": 3, "activity": 4},
}

func rowAction(row *goquery.Selection) Control {
	var action Control
	row.Find("a, input[type='submit'], button").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		c, ok := ControlFrom(sel)
		if ok {
			action = c
		}
		// the last control of a row is its "open" action
		return true
	})
	return action
}

// Candidates parses a search result page.
func Candidates(root *goquery.Selection, _ casekey.Key) Result[Candidate] {
	table, cols, ok := candidateTable.locate(root)
	if !ok {
		return notFound[Candidate]()
	}

	var records []Candidate
	dataRows(table).Each(func(i int, row *goquery.Selection) {
		raw := cols.text(row, "key")
		if raw == "" {
			return
		}
		key, _ := casekey.Parse(raw)
		records = append(records, Candidate{
			Key:           key,
			NormalizedKey: casekey.Normalize(raw),
			RawKey:        raw,
			Title:         cols.text(row, "title"),
			Court:         cols.text(row, "court"),
			Status:        cols.text(row, "status"),
			LastActivity:  isoDate(cols.text(row, "activity")),
			Row:           i,
			Action:        rowAction(row),
			RawHTML:       htmlutil.OuterHTML(row),
		})
	})
	return Result[Candidate]{Records: records, Found: true}
}
