package normalize

import (
	"net/url"
	"strings"

	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	SourceMovement        = "movement"
	SourceDigitalDocument = "digital_document"
)

// Entry is a docket movement or a digital document. Both tabs render the
// same shape.
type Entry struct {
	StableID    string
	Source      string
	Date        string
	Kind        string
	Office      string
	Description string
	HasDocument bool
	// DocumentRef is the link or script that opens the document, as
	// rendered.
	DocumentRef string
	// DocumentID names the stored object. It is the portal's own document id
	// when the reference carries one so that a document listed on several
	// tabs resolves to a single object.
	DocumentID string
	RawHTML    string
}

var entryLabels = headerLabels{
	"date":        {"fecha"},
	"kind":        {"tipo"},
	"office":      {"oficina", "dependencia"},
	"description": {"descripcion", "detalle", "actuacion", "documento", "titulo"},
}

var movementTable = tableSpec{
	selectors: []string{
		"table[id*='action-table']",
		"table[id*='actuaciones']",
		"table[id*='movimientos']",
		"table",
	},
	labels:   entryLabels,
	required: []string{"date", "description"},
	fallback: columns{"office": 0, "date": 1, "kind": 2, "description": 3},
}

var documentTable = tableSpec{
	selectors: []string{
		"table[id*='documentos']",
		"table[id*='escritos']",
		"table",
	},
	labels:   entryLabels,
	required: []string{"description"},
	fallback: columns{"date": 0, "kind": 1, "description": 2},
}

var documentLinkSelectors = []string{
	"a[href*='viewer']",
	"a[href*='.pdf']",
	"a[href*='download']",
	"a[href*='descarga']",
	"a[onclick*='window.open']",
	"a[href^='javascript:window.open']",
	"a[title*='ocumento'], a[title*='PDF'], a[title*='Ver']",
	"a:has(i[class*='pdf']), a:has(img[src*='pdf'])",
}

// documentRef returns the reference of the row's document link, preferring
// a usable href and falling back to the link's onclick script.
func documentRef(row *goquery.Selection) (string, bool) {
	for _, selector := range documentLinkSelectors {
		link := row.Find(selector).First()
		if link.Length() == 0 {
			continue
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if usableHref(href) {
			return href, true
		}
		if onclick := strings.TrimSpace(link.AttrOr("onclick", "")); onclick != "" {
			if _, ok := htmlutil.ScriptURL(onclick); ok {
				return onclick, true
			}
		}
	}
	return "", false
}

func looksLikeScript(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "javascript:") || strings.ContainsAny(ref, "('\"")
}

// ResolveRef turns a document reference into a URL relative to base,
// unwrapping script-triggered references first.
func ResolveRef(base *url.URL, ref string) (*url.URL, bool) {
	ref = strings.TrimSpace(ref)
	if looksLikeScript(ref) {
		extracted, ok := htmlutil.ScriptURL(ref)
		if !ok {
			return nil, false
		}
		ref = extracted
	}
	return htmlutil.ResolveHref(base, ref)
}

// DocumentIDFromRef extracts the portal's document id from a reference.
func DocumentIDFromRef(ref string) string {
	// only the query matters, any base will do
	u, ok := ResolveRef(&url.URL{Scheme: "https", Host: "portal.invalid"}, ref)
	if !ok {
		return ""
	}
	for _, param := range []string{"id", "idDocumento", "documentId", "doc"} {
		if v := u.Query().Get(param); v != "" {
			return v
		}
	}
	return ""
}

func parseEntries(root *goquery.Selection, hint casekey.Key, spec tableSpec, source string) Result[Entry] {
	table, cols, ok := spec.locate(root)
	if !ok {
		return notFound[Entry]()
	}

	var records []Entry
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		description := cols.text(row, "description")
		if description == "" {
			return
		}
		date := isoDate(cols.text(row, "date"))

		id := rowID(row)
		if id == "" {
			id = StableID(hint.String(), date, description)
		}

		entry := Entry{
			StableID:    id,
			Source:      source,
			Date:        date,
			Kind:        cols.text(row, "kind"),
			Office:      cols.text(row, "office"),
			Description: description,
			RawHTML:     htmlutil.OuterHTML(row),
		}
		if ref, ok := documentRef(row); ok {
			entry.HasDocument = true
			entry.DocumentRef = ref
			entry.DocumentID = DocumentIDFromRef(ref)
			if entry.DocumentID == "" {
				entry.DocumentID = id
			}
		}
		records = append(records, entry)
	})
	return Result[Entry]{Records: records, Found: true}
}

// Movements parses the docket tab.
func Movements(root *goquery.Selection, hint casekey.Key) Result[Entry] {
	return parseEntries(root, hint, movementTable, SourceMovement)
}

// Documents parses the digital documents tab.
func Documents(root *goquery.Selection, hint casekey.Key) Result[Entry] {
	return parseEntries(root, hint, documentTable, SourceDigitalDocument)
}
