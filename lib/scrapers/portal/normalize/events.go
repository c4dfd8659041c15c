package normalize

import (
	"time"

	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"
	"casesync-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// Event is an entry of the portal's notification list.
type Event struct {
	ID          string
	Date        time.Time
	CaseKey     string
	RawCaseKey  string
	Description string
	RawHTML     string
}

var eventTable = tableSpec{
	selectors: []string{
		"table[id*='notificaciones']",
		"table[id*='novedades']",
		"table",
	},
	labels: headerLabels{
		"date":        {"fecha"},
		"key":         {"expediente"},
		"description": {"descripcion", "detalle", "notificacion", "novedad"},
	},
	required: []string{"date", "key"},
}

// Events parses the notification list. Rows without a readable date are
// skipped since they cannot be ordered against a watermark.
func Events(root *goquery.Selection, _ casekey.Key) Result[Event] {
	table, cols, ok := eventTable.locate(root)
	if !ok {
		return notFound[Event]()
	}

	var records []Event
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		rawDate := cols.text(row, "date")
		date, ok := timezone.ParseDate(rawDate)
		if !ok {
			return
		}
		rawKey := cols.text(row, "key")
		description := cols.text(row, "description")
		if rawKey == "" && description == "" {
			return
		}
		key := casekey.Normalize(rawKey)

		id := rowID(row)
		if id == "" {
			id = StableID(key, date.Format(time.RFC3339), description)
		}
		records = append(records, Event{
			ID:          id,
			Date:        date,
			CaseKey:     key,
			RawCaseKey:  rawKey,
			Description: description,
			RawHTML:     htmlutil.OuterHTML(row),
		})
	})
	return Result[Event]{Records: records, Found: true}
}
