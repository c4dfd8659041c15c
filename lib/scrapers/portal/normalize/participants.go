package normalize

import (
	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Participant struct {
	PortalID string
	Name     string
	RawRole  string
	// IdentifierText is the text the party's identity document is read
	// from. It is the whole row when the table has no document column.
	IdentifierText string
	RawHTML        string
}

var participantTable = tableSpec{
	selectors: []string{
		"table[id*='participantes']",
		"table[id*='intervinientes']",
		"table[id*='parte']",
		"table",
	},
	labels: headerLabels{
		"role":       {"tipo", "rol", "caracter"},
		"name":       {"nombre", "razon social", "parte", "interviniente"},
		"identifier": {"documento", "cuit", "cuil", "dni", "identificacion"},
	},
	required: []string{"name"},
	fallback: columns{"role": 0, "name": 1},
}

// Participants parses the parties tab.
func Participants(root *goquery.Selection, hint casekey.Key) Result[Participant] {
	table, cols, ok := participantTable.locate(root)
	if !ok {
		return notFound[Participant]()
	}

	var records []Participant
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		name := cols.text(row, "name")
		if name == "" {
			return
		}
		role := cols.text(row, "role")

		identifierText := cols.text(row, "identifier")
		if !cols.has("identifier") {
			identifierText = htmlutil.SelectionText(row)
		}

		id := rowID(row)
		if id == "" {
			id = StableID(hint.String(), role, name)
		}
		records = append(records, Participant{
			PortalID:       id,
			Name:           name,
			RawRole:        role,
			IdentifierText: identifierText,
			RawHTML:        htmlutil.OuterHTML(row),
		})
	})
	return Result[Participant]{Records: records, Found: true}
}
