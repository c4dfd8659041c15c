package normalize

import (
	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Appeal struct {
	PortalID    string
	Date        string
	Kind        string
	Description string
	Status      string
	RawHTML     string
}

var appealTable = tableSpec{
	selectors: []string{
		"table[id*='recursos']",
		"table",
	},
	labels: headerLabels{
		"kind":        {"recurso", "tipo"},
		"date":        {"fecha"},
		"description": {"descripcion", "detalle"},
		"status":      {"estado", "situacion"},
	},
	required: []string{"kind"},
	fallback: columns{"kind": 0, "date": 1, "description": 2, "status": 3},
}

// Appeals parses the appeals tab.
func Appeals(root *goquery.Selection, hint casekey.Key) Result[Appeal] {
	table, cols, ok := appealTable.locate(root)
	if !ok {
		return notFound[Appeal]()
	}

	var records []Appeal
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		kind := cols.text(row, "kind")
		description := cols.text(row, "description")
		if kind == "" && description == "" {
			return
		}
		date := isoDate(cols.text(row, "date"))

		id := rowID(row)
		if id == "" {
			id = StableID(hint.String(), date, kind, description)
		}
		records = append(records, Appeal{
			PortalID:    id,
			Date:        date,
			Kind:        kind,
			Description: description,
			Status:      cols.text(row, "status"),
			RawHTML:     htmlutil.OuterHTML(row),
		})
	})
	return Result[Appeal]{Records: records, Found: true}
}

type RelatedCase struct {
	PortalID string
	// Key is the normalized key of the related case.
	Key      string
	RawKey   string
	Relation string
	Court    string
	Title    string
	RawHTML  string
}

var relatedTable = tableSpec{
	selectors: []string{
		"table[id*='vinculados']",
		"table[id*='relacionados']",
		"table",
	},
	labels: headerLabels{
		"key":      {"expediente", "numero"},
		"court":    {"dependencia", "juzgado", "tribunal"},
		"relation": {"relacion", "vinculo", "tipo"},
		"title":    {"caratula"},
	},
	required: []string{"key"},
	fallback: columns{"key": 0, "court": 1, "relation": 2, "title": 3},
}

// RelatedCases parses the linked cases tab.
func RelatedCases(root *goquery.Selection, _ casekey.Key) Result[RelatedCase] {
	table, cols, ok := relatedTable.locate(root)
	if !ok {
		return notFound[RelatedCase]()
	}

	var records []RelatedCase
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		raw := cols.text(row, "key")
		if raw == "" {
			return
		}
		key := casekey.Normalize(raw)

		id := rowID(row)
		if id == "" {
			id = key
		}
		records = append(records, RelatedCase{
			PortalID: id,
			Key:      key,
			RawKey:   raw,
			Relation: cols.text(row, "relation"),
			Court:    cols.text(row, "court"),
			Title:    cols.text(row, "title"),
			RawHTML:  htmlutil.OuterHTML(row),
		})
	})
	return Result[RelatedCase]{Records: records, Found: true}
}
