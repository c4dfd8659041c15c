package normalize

import (
	"regexp"
	"strings"

	"casesync-backend/lib/htmlutil"
	"casesync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Control is something on a page that triggers a request: a form postback
// carrying extra parameters or a plain link.
type Control struct {
	FormID string
	Params map[string]string
	Href   string
	Label  string
}

func (c Control) IsPostback() bool {
	return c.FormID != ""
}

func (c Control) IsZero() bool {
	return c.FormID == "" && c.Href == ""
}

var (
	jsfSubmitPattern   = regexp.MustCompile(`jsfcljs\(\s*document\.getElementById\(\s*'([^']+)'\s*\)\s*,\s*\{([^}]*)\}`)
	submitParamPattern = regexp.MustCompile(`addSubmitParam\(\s*'([^']+)'\s*,\s*\{([^}]*)\}`)
	paramPairPattern   = regexp.MustCompile(`'([^']*)'\s*:\s*'([^']*)'`)
)

func parseParams(body string) map[string]string {
	params := map[string]string{}
	for _, pair := range paramPairPattern.FindAllStringSubmatch(body, -1) {
		params[pair[1]] = pair[2]
	}
	return params
}

func postbackFromScript(script string) (Control, bool) {
	for _, p := range []*regexp.Regexp{jsfSubmitPattern, submitParamPattern} {
		groups := p.FindStringSubmatch(script)
		if groups == nil {
			continue
		}
		return Control{FormID: groups[1], Params: parseParams(groups[2])}, true
	}
	return Control{}, false
}

func usableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(href), "javascript:") {
		_, ok := htmlutil.ScriptURL(href)
		return ok
	}
	return true
}

// ControlFrom reads the request sel would trigger when clicked.
func ControlFrom(sel *goquery.Selection) (Control, bool) {
	sel = sel.First()
	if sel.Length() == 0 {
		return Control{}, false
	}
	label := htmlutil.SelectionText(sel)
	if label == "" {
		label = strings.TrimSpace(sel.AttrOr("title", sel.AttrOr("value", "")))
	}

	if c, ok := postbackFromScript(sel.AttrOr("onclick", "")); ok {
		c.Label = label
		return c, true
	}

	switch goquery.NodeName(sel) {
	case "input", "button":
		name := sel.AttrOr("name", "")
		formID := sel.Closest("form").AttrOr("id", "")
		if name == "" || formID == "" {
			return Control{}, false
		}
		return Control{
			FormID: formID,
			Params: map[string]string{name: sel.AttrOr("value", "")},
			Label:  label,
		}, true
	}

	href := sel.AttrOr("href", "")
	if c, ok := postbackFromScript(href); ok {
		c.Label = label
		return c, true
	}
	if usableHref(href) {
		return Control{Href: strings.TrimSpace(href), Label: label}, true
	}
	return Control{}, false
}

func isDisabled(sel *goquery.Selection) bool {
	for _, s := range []*goquery.Selection{sel, sel.Parent()} {
		class := strings.ToLower(s.AttrOr("class", ""))
		if strings.Contains(class, "disabled") {
			return true
		}
		if _, ok := s.Attr("disabled"); ok {
			return true
		}
	}
	return false
}

var nextLabels = []string{"siguiente", "proxima", "proximo", "»", ">", "next"}

// NextPageControl finds the enabled "next page" control of a paginated
// listing within root.
func NextPageControl(root *goquery.Selection) (Control, bool) {
	selectors := []string{
		"a[class*='next']",
		"[class*='next'] > a",
		"a[id*='next'], a[id*='Next']",
		"a, input[type='submit'], button",
	}
	for i, selector := range selectors {
		var (
			control Control
			found   bool
		)
		root.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if isDisabled(sel) {
				return true
			}
			// the last selector only accepts controls labelled as "next"
			if i == len(selectors)-1 {
				label := textutil.NormalizeName(htmlutil.SelectionText(sel))
				if label == "" {
					label = strings.TrimSpace(htmlutil.SelectionText(sel))
				}
				if label == "" {
					label = textutil.NormalizeName(sel.AttrOr("value", sel.AttrOr("title", "")))
				}
				if !isNextLabel(label) {
					return true
				}
			}
			c, ok := ControlFrom(sel)
			if !ok {
				return true
			}
			control, found = c, true
			return false
		})
		if found {
			return control, true
		}
	}
	return Control{}, false
}

func isNextLabel(label string) bool {
	for _, l := range nextLabels {
		if label == l {
			return true
		}
	}
	return false
}

type Tab int

const (
	TabMovements Tab = iota
	TabDocuments
	TabParticipants
	TabAppeals
	TabRelated
)

func (t Tab) String() string {
	switch t {
	case TabMovements:
		return "movements"
	case TabDocuments:
		return "documents"
	case TabParticipants:
		return "participants"
	case TabAppeals:
		return "appeals"
	case TabRelated:
		return "related"
	}
	return "unknown"
}

var tabLabels = map[Tab][]string{
	TabMovements:    {"actuaciones", "movimientos"},
	TabDocuments:    {"documentos", "escritos"},
	TabParticipants: {"intervinientes", "partes"},
	TabAppeals:      {"recursos"},
	TabRelated:      {"vinculados", "relacionados"},
}

var tabSelectors = []string{
	"ul.nav-tabs a",
	"[role='tab'] a, a[role='tab']",
	".ui-tabs-nav a",
	"a[id*='tab'], a[id*='Tab']",
}

// TabControl finds the control that activates tab on a case view.
func TabControl(root *goquery.Selection, tab Tab) (Control, bool) {
	labels := tabLabels[tab]
	for _, selector := range tabSelectors {
		var (
			control Control
			found   bool
		)
		root.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := textutil.NormalizeName(htmlutil.SelectionText(sel))
			for _, l := range labels {
				if strings.HasPrefix(text, l) {
					control, found = ControlFrom(sel)
					return !found
				}
			}
			return true
		})
		if found {
			return control, true
		}
	}
	return Control{}, false
}

// IsCaseView reports whether root renders a case with its tab bar.
func IsCaseView(root *goquery.Selection) bool {
	found := 0
	for tab := range tabLabels {
		if _, ok := TabControl(root, tab); ok {
			found++
		}
	}
	return found >= 2
}
