package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = telemetry.Tracer("casesync.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText strips non-printable runes and collapses whitespace.
func CleanText(s string) string {
	return textutil.CollapseSpace(removeNonPrintable(s))
}

// SelectionText is CleanText over the text of every node in sel.
func SelectionText(sel *goquery.Selection) string {
	return CleanText(sel.Text())
}

// OuterHTML renders sel back to markup, returning an empty string when it
// cannot be rendered.
func OuterHTML(sel *goquery.Selection) string {
	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return out
}

type Anchor struct {
	Name string
	Href string
}

func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	ctx, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}

		name := CleanText(GetText(n))
		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	}

	return anchors
}

var scriptURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`window\.open\(\s*['"]([^'"]+)['"]`),
	regexp.MustCompile(`location(?:\.href)?\s*=\s*['"]([^'"]+)['"]`),
	regexp.MustCompile(`['"]((?:https?://|/)[^'"\s]+)['"]`),
}

// ScriptURL extracts the URL a script-triggered link would open, for example
// `javascript:window.open('/doc/view?id=12')` or an onclick handler.
func ScriptURL(script string) (string, bool) {
	for _, p := range scriptURLPatterns {
		groups := p.FindStringSubmatch(script)
		if len(groups) >= 2 && groups[1] != "" {
			return html.UnescapeString(groups[1]), true
		}
	}
	return "", false
}

// ResolveHref resolves href against base. Script hrefs are unwrapped with
// ScriptURL first; ok is false when no usable URL remains.
func ResolveHref(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(href), "javascript:") {
		extracted, ok := ScriptURL(href)
		if !ok {
			return nil, false
		}
		href = extracted
	}
	link, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	if base == nil {
		return link, link.IsAbs()
	}
	return base.ResolveReference(link), true
}
