// Package navigator drives the portal's stateful pages: search, result
// selection, case tabs and their paginators.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"casesync-backend/lib/casekey"
	"casesync-backend/lib/htmlutil"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("casesync.lib.scrapers.portal.navigator")

// ErrNotFound means the search produced no candidate that could be
// selected unambiguously.
var ErrNotFound = errors.New("no matching case found")

// ScrapeError is an unexpected structural or navigation failure.
type ScrapeError struct {
	Step string
	Err  error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape failed at %s: %v", e.Step, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// wrap leaves session drops and cancellations untouched so callers can
// react to them.
func wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrAuthRequired) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return err
	}
	return &ScrapeError{Step: step, Err: err}
}

type SearchForm struct {
	Path              string
	FormID            string
	JurisdictionField string
	NumberField       string
	YearField         string
	SubmitField       string
}

type Config struct {
	Search     SearchForm
	CasePath   string
	EventsPath string
	// safety caps, independent of request timeouts
	MaxSearchPages int
	MaxTabPages    int
}

func (c Config) withDefaults() Config {
	if c.Search.Path == "" {
		c.Search.Path = "/scw/home.seam"
	}
	if c.Search.FormID == "" {
		c.Search.FormID = "formPublica"
	}
	if c.Search.JurisdictionField == "" {
		c.Search.JurisdictionField = c.Search.FormID + ":camaraNumAni"
	}
	if c.Search.NumberField == "" {
		c.Search.NumberField = c.Search.FormID + ":numero"
	}
	if c.Search.YearField == "" {
		c.Search.YearField = c.Search.FormID + ":anio"
	}
	if c.Search.SubmitField == "" {
		c.Search.SubmitField = c.Search.FormID + ":buscarPorNumeroButton"
	}
	if c.CasePath == "" {
		c.CasePath = "/scw/expediente.seam"
	}
	if c.EventsPath == "" {
		c.EventsPath = "/scw/consultaNotificaciones.seam"
	}
	if c.MaxSearchPages <= 0 {
		c.MaxSearchPages = 10
	}
	if c.MaxTabPages <= 0 {
		c.MaxTabPages = 25
	}
	return c
}

type Navigator struct {
	client *core.Client
	config Config
}

func New(client *core.Client, config Config) *Navigator {
	return &Navigator{
		client: client,
		config: config.withDefaults(),
	}
}

func (n *Navigator) Client() *core.Client {
	return n.client
}

type Query struct {
	Jurisdiction string
	Number       string
	Year         string
	// Suffix only takes part in selecting a result, the portal's search
	// form has no field for it.
	Suffix string
}

func QueryFromKey(raw string) (Query, error) {
	key, err := casekey.Parse(raw)
	if err != nil {
		return Query{}, err
	}
	return Query{
		Jurisdiction: key.Jurisdiction,
		Number:       key.Number,
		Year:         key.Year,
		Suffix:       key.Suffix,
	}, nil
}

func (q Query) Key() string {
	key := fmt.Sprintf("%s %s/%s", strings.ToUpper(q.Jurisdiction), q.Number, q.Year)
	if q.Suffix != "" {
		key += "/" + q.Suffix
	}
	return key
}

type SearchResult struct {
	Candidates []normalize.Candidate
	Selection  casekey.Selection

	pages []*core.Page
	// direct is set when the portal skipped the result list and opened the
	// only match right away.
	direct *core.Page
}

func (r SearchResult) Selected() (normalize.Candidate, bool) {
	if !r.Selection.Selected() {
		return normalize.Candidate{}, false
	}
	return r.Candidates[r.Selection.Index], true
}

func optionValue(page *core.Page, field, want string) (string, bool) {
	want = strings.ToUpper(strings.TrimSpace(want))
	var value string
	found := false
	page.Doc.Find("select").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("name", "") == field
	}).Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		text := strings.ToUpper(htmlutil.SelectionText(opt))
		v := opt.AttrOr("value", "")
		if text == want || strings.HasPrefix(text, want+" ") || strings.EqualFold(v, want) {
			value, found = v, true
			return false
		}
		return true
	})
	return value, found
}

func submitValue(page *core.Page, field string) string {
	value := page.Doc.Find("input, button").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("name", "") == field
	}).First().AttrOr("value", "")
	if value == "" {
		return "Consultar"
	}
	return value
}

// Search submits the search form and walks every result page before
// selecting, since the selection needs the full candidate set.
func (n *Navigator) Search(ctx context.Context, q Query) (SearchResult, error) {
	ctx, span := tracer.Start(ctx, "navigator:Search")
	defer span.End()
	span.SetAttributes(attribute.String("query", q.Key()))

	form := n.config.Search
	page, err := n.client.Get(ctx, form.Path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load search form")
		return SearchResult{}, wrap("search", err)
	}

	jurisdiction, ok := optionValue(page, form.JurisdictionField, q.Jurisdiction)
	if !ok {
		err := fmt.Errorf("jurisdiction %q is not offered by the search form", q.Jurisdiction)
		span.SetStatus(codes.Error, err.Error())
		return SearchResult{}, wrap("search", err)
	}

	page, err = n.client.Submit(ctx, page, form.FormID, map[string]string{
		form.JurisdictionField: jurisdiction,
		form.NumberField:       q.Number,
		form.YearField:         q.Year,
		form.SubmitField:       submitValue(page, form.SubmitField),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit search")
		return SearchResult{}, wrap("search", err)
	}

	if normalize.IsCaseView(page.Root()) {
		raw := caseHeaderKey(page)
		if raw == "" {
			raw = q.Key()
		}
		key, _ := casekey.Parse(raw)
		result := SearchResult{
			Candidates: []normalize.Candidate{{
				Key:           key,
				NormalizedKey: casekey.Normalize(raw),
				RawKey:        raw,
				Title:         caseHeaderTitle(page),
			}},
			direct: page,
		}
		result.Selection = casekey.Select(q.Key(), []string{raw})
		return result, nil
	}

	var result SearchResult
	for pageIndex := 0; ; pageIndex++ {
		parsed := normalize.Candidates(page.Root(), casekey.Key{})
		for _, c := range parsed.Records {
			c.Page = pageIndex
			result.Candidates = append(result.Candidates, c)
		}
		result.pages = append(result.pages, page)

		next, ok := normalize.NextPageControl(page.Root())
		if !ok || !parsed.Found {
			break
		}
		if pageIndex+1 >= n.config.MaxSearchPages {
			slog.WarnContext(ctx, "search result pages exceed cap", "query", q.Key(), "cap", n.config.MaxSearchPages)
			break
		}
		page, err = n.client.Follow(ctx, page, next)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load next result page")
			return SearchResult{}, wrap("search:paginate", err)
		}
	}

	keys := make([]string, len(result.Candidates))
	for i, c := range result.Candidates {
		keys[i] = c.RawKey
	}
	result.Selection = casekey.Select(q.Key(), keys)
	span.SetAttributes(
		attribute.Int("candidates", len(keys)),
		attribute.Int("selected", result.Selection.Index),
	)
	return result, nil
}

var caseHeaderKeySelectors = []string{"[id$='detailCamera']", "[id*='expediente'] .numero", ".expediente-numero"}
var caseHeaderTitleSelectors = []string{"[id$='detailCover']", ".caratula", ".expediente-caratula"}

func firstText(page *core.Page, selectors []string) string {
	for _, selector := range selectors {
		if text := htmlutil.SelectionText(page.Doc.Find(selector).First()); text != "" {
			return text
		}
	}
	return ""
}

func caseHeaderKey(page *core.Page) string {
	return firstText(page, caseHeaderKeySelectors)
}

func caseHeaderTitle(page *core.Page) string {
	return firstText(page, caseHeaderTitleSelectors)
}

// CaseView is an opened case. Page always holds the most recently loaded
// page of the case.
type CaseView struct {
	Candidate normalize.Candidate
	Key       casekey.Key
	// CaseID is the portal's session scoped id of the case, needed to
	// reopen it when the view state is lost.
	CaseID string
	Title  string
	Page   *core.Page
}

func caseIDFrom(page *core.Page) string {
	if cid := page.URL.Query().Get("cid"); cid != "" {
		return cid
	}
	var cid string
	page.Doc.Find("form[action*='cid=']").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		action, err := url.Parse(form.AttrOr("action", ""))
		if err == nil {
			cid = action.Query().Get("cid")
		}
		return cid == ""
	})
	return cid
}

// Open searches for the case, selects it and follows the selected row.
func (n *Navigator) Open(ctx context.Context, q Query) (*CaseView, error) {
	ctx, span := tracer.Start(ctx, "navigator:Open")
	defer span.End()

	result, err := n.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	candidate, ok := result.Selected()
	if !ok {
		span.SetStatus(codes.Error, "no candidate selected")
		return nil, fmt.Errorf(
			"%w: %d candidates, %d exact matches for %s",
			ErrNotFound, len(result.Candidates), result.Selection.ExactCount, q.Key(),
		)
	}

	page := result.direct
	if page == nil {
		if candidate.Action.IsZero() {
			return nil, wrap("select", fmt.Errorf("result row %d has no action", candidate.Row))
		}
		page, err = n.client.Follow(ctx, result.pages[candidate.Page], candidate.Action)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open selected case")
			return nil, wrap("select", err)
		}
	}
	if !normalize.IsCaseView(page.Root()) {
		err := fmt.Errorf("selected row did not open a case view (%s)", page.URL.Path)
		span.SetStatus(codes.Error, err.Error())
		return nil, wrap("navigate", err)
	}

	key := candidate.Key
	if key.IsZero() {
		key, _ = casekey.Parse(q.Key())
	}
	title := caseHeaderTitle(page)
	if title == "" {
		title = candidate.Title
	}
	view := &CaseView{
		Candidate: candidate,
		Key:       key,
		CaseID:    caseIDFrom(page),
		Title:     title,
		Page:      page,
	}
	span.SetAttributes(attribute.String("cid", view.CaseID))
	return view, nil
}

// reopen loads the case again by its session scoped id.
func (n *Navigator) reopen(ctx context.Context, view *CaseView) error {
	if view.CaseID == "" {
		return fmt.Errorf("case view lost and no case id was captured")
	}
	slog.DebugContext(ctx, "reopening case view", "cid", view.CaseID)

	u := url.URL{Path: n.config.CasePath, RawQuery: url.Values{"cid": {view.CaseID}}.Encode()}
	page, err := n.client.Get(ctx, u.String())
	if err != nil {
		return err
	}
	if !normalize.IsCaseView(page.Root()) {
		return fmt.Errorf("case %s did not render a case view", view.CaseID)
	}
	view.Page = page
	return nil
}

// loadTab activates tab, reopening the case once when the view state was
// lost. A nil page means the case has no such tab.
func (n *Navigator) loadTab(ctx context.Context, view *CaseView, tab normalize.Tab) (*core.Page, error) {
	ctx, span := tracer.Start(ctx, "navigator:loadTab")
	defer span.End()
	span.SetAttributes(attribute.String("tab", tab.String()))

	step := "tab:" + tab.String()
	reopened := false
	for {
		if !normalize.IsCaseView(view.Page.Root()) {
			if reopened {
				span.SetStatus(codes.Error, "case view lost")
				return nil, wrap(step, fmt.Errorf("case view lost after reopening"))
			}
			reopened = true
			if err := n.reopen(ctx, view); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to reopen case")
				return nil, wrap(step, err)
			}
			continue
		}

		control, ok := normalize.TabControl(view.Page.Root(), tab)
		if !ok {
			return nil, nil
		}
		page, err := n.client.Follow(ctx, view.Page, control)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to activate tab")
			return nil, wrap(step, err)
		}
		view.Page = page
		if normalize.IsCaseView(page.Root()) {
			return page, nil
		}
	}
}

// collect parses a tab and, when paginate is set, every following page of
// it, dropping records already seen.
func collect[T any](
	ctx context.Context,
	n *Navigator,
	view *CaseView,
	tab normalize.Tab,
	parser normalize.Parser[T],
	id func(T) string,
	paginate bool,
) ([]T, error) {
	page, err := n.loadTab(ctx, view, tab)
	if err != nil || page == nil {
		return nil, err
	}

	var records []T
	seen := map[string]bool{}
	for pageIndex := 0; ; pageIndex++ {
		added := 0
		for _, r := range parser(page.Root(), view.Key).Records {
			key := id(r)
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, r)
			added++
		}
		if !paginate || added == 0 {
			break
		}
		next, ok := normalize.NextPageControl(page.Root())
		if !ok {
			break
		}
		if pageIndex+1 >= n.config.MaxTabPages {
			slog.WarnContext(ctx, "tab pages exceed cap", "tab", tab.String(), "cap", n.config.MaxTabPages)
			break
		}
		page, err = n.client.Follow(ctx, page, next)
		if err != nil {
			return nil, wrap("tab:"+tab.String()+":paginate", err)
		}
		view.Page = page
	}
	return records, nil
}

type CaseDetails struct {
	Candidate    normalize.Candidate
	Key          casekey.Key
	CaseID       string
	Title        string
	Movements    []normalize.Entry
	Documents    []normalize.Entry
	Participants []normalize.Participant
	Appeals      []normalize.Appeal
	Related      []normalize.RelatedCase
}

func entryID(e normalize.Entry) string             { return e.StableID }
func participantID(p normalize.Participant) string { return p.PortalID }
func appealID(a normalize.Appeal) string           { return a.PortalID }
func relatedID(r normalize.RelatedCase) string     { return r.PortalID }

// ScrapeCase opens the case and loads every tab.
func (n *Navigator) ScrapeCase(ctx context.Context, q Query) (CaseDetails, error) {
	ctx, span := tracer.Start(ctx, "navigator:ScrapeCase")
	defer span.End()

	view, err := n.Open(ctx, q)
	if err != nil {
		return CaseDetails{}, err
	}
	details := CaseDetails{
		Candidate: view.Candidate,
		Key:       view.Key,
		CaseID:    view.CaseID,
		Title:     view.Title,
	}

	details.Movements, err = collect(ctx, n, view, normalize.TabMovements, normalize.Movements, entryID, true)
	if err != nil {
		return CaseDetails{}, err
	}
	details.Documents, err = collect(ctx, n, view, normalize.TabDocuments, normalize.Documents, entryID, false)
	if err != nil {
		return CaseDetails{}, err
	}
	details.Participants, err = collect(ctx, n, view, normalize.TabParticipants, normalize.Participants, participantID, false)
	if err != nil {
		return CaseDetails{}, err
	}
	details.Appeals, err = collect(ctx, n, view, normalize.TabAppeals, normalize.Appeals, appealID, false)
	if err != nil {
		return CaseDetails{}, err
	}
	details.Related, err = collect(ctx, n, view, normalize.TabRelated, normalize.RelatedCases, relatedID, true)
	if err != nil {
		return CaseDetails{}, err
	}

	span.SetAttributes(
		attribute.Int("movements", len(details.Movements)),
		attribute.Int("documents", len(details.Documents)),
		attribute.Int("participants", len(details.Participants)),
		attribute.Int("appeals", len(details.Appeals)),
		attribute.Int("related", len(details.Related)),
	)
	return details, nil
}
