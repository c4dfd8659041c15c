package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"casesync-backend/lib/restyutil"
	"casesync-backend/lib/scrapers/portal/normalize"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// ErrAuthRequired is returned whenever a response looks like the portal
// dropped the session: a redirect to the identity provider, a login form or
// a 401/403.
var ErrAuthRequired = errors.New("portal session requires authentication")

// StatusError is an unexpected HTTP status from the portal.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal responded %d for %s", e.Status, e.Path)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	BaseUrl string
	// IdentityHost is the single sign-on host the portal redirects to when
	// a session is missing.
	IdentityHost      string
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	// DownloadTimeout bounds document downloads, which are slower than page
	// loads.
	DownloadTimeout time.Duration
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Jar     http.CookieJar

	identityHost string
	download     *resty.Client
}

func NewClient(opts Options, state *SessionState) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if state != nil && state.UserAgent != "" {
		opts.UserAgent = state.UserAgent
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if state != nil {
		ImportCookies(jar, state.Cookies)
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	allowed := []string{baseUrl.Hostname()}
	if opts.IdentityHost != "" {
		allowed = append(allowed, hostOnly(opts.IdentityHost))
	}

	configure := func(client *resty.Client, timeout time.Duration) {
		client.SetBaseURL(opts.BaseUrl)
		client.SetCookieJar(jar)
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
		client.SetHeader("user-agent", opts.UserAgent)
		client.SetTimeout(timeout)
		if state != nil {
			for k, v := range state.Headers {
				client.SetHeader(k, v)
			}
			if state.HasToken() {
				client.SetAuthToken(state.AccessToken)
			}
		}
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	client := resty.New()
	configure(client, opts.Timeout)
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(allowed...),
	)
	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	download := resty.New()
	configure(download, opts.DownloadTimeout)
	download.SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
		if len(via) > 1 {
			return errors.New("document download redirected more than once")
		}
		return nil
	}))
	restyutil.InstrumentClient(download, tracer, restyInstrumentOutput)

	return &Client{
		BaseUrl:      baseUrl,
		Http:         client,
		Jar:          jar,
		identityHost: opts.IdentityHost,
		download:     download,
	}, nil
}

// Export captures the client's cookies into state.
func (c *Client) Export(state *SessionState) {
	urls := []*url.URL{c.BaseUrl}
	if c.identityHost != "" {
		urls = append(urls, &url.URL{Scheme: c.BaseUrl.Scheme, Host: c.identityHost, Path: "/"})
	}
	state.Cookies = ExportCookies(c.Jar, urls...)
}

// Page is a loaded portal page.
type Page struct {
	URL    *url.URL
	Status int
	Body   []byte
	Doc    *goquery.Document
}

func (p *Page) Root() *goquery.Selection {
	return p.Doc.Selection
}

func looksLikeLogin(doc *goquery.Document) bool {
	if doc.Find("input[type='password']").Length() > 0 {
		return true
	}
	return doc.Find("form#kc-form-login, form[id*='login'], form[action*='login-actions']").Length() > 0
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// onIdentityHost matches on host and port when IdentityHost carries a port.
func (c *Client) onIdentityHost(u *url.URL) bool {
	if c.identityHost == "" {
		return false
	}
	if strings.Contains(c.identityHost, ":") {
		return strings.EqualFold(u.Host, c.identityHost)
	}
	return strings.EqualFold(u.Hostname(), c.identityHost)
}

func (c *Client) toPage(ctx context.Context, res *resty.Response) (*Page, error) {
	_, span := tracer.Start(ctx, "client:toPage")
	defer span.End()

	final := c.BaseUrl
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL
	}
	span.SetAttributes(
		attribute.String("url", final.String()),
		attribute.Int("status", res.StatusCode()),
	)

	status := res.StatusCode()
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		span.SetStatus(codes.Error, "session rejected")
		return nil, ErrAuthRequired
	}
	if c.onIdentityHost(final) {
		span.SetStatus(codes.Error, "redirected to identity provider")
		return nil, ErrAuthRequired
	}
	if status >= 400 {
		err := &StatusError{Status: status, Path: final.Path}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	if looksLikeLogin(doc) {
		span.SetStatus(codes.Error, "login form rendered")
		return nil, ErrAuthRequired
	}

	return &Page{
		URL:    final,
		Status: status,
		Body:   res.Body(),
		Doc:    doc,
	}, nil
}

func (c *Client) resolve(from *Page, ref string) (*url.URL, error) {
	base := c.BaseUrl
	if from != nil {
		base = from.URL
	}
	u, ok := normalize.ResolveRef(base, ref)
	if !ok {
		return nil, fmt.Errorf("cannot resolve link %q", ref)
	}
	return u, nil
}

// Get loads ref, a path relative to the base url or an absolute url.
func (c *Client) Get(ctx context.Context, ref string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "client:Get")
	defer span.End()

	u, err := c.resolve(nil, ref)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res, err := c.Http.R().
		SetContext(ctx).
		Get(u.String())
	if err != nil {
		if isRedirectRejected(err) {
			return nil, ErrAuthRequired
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return nil, err
	}
	return c.toPage(ctx, res)
}

// redirects outside the portal and identity hosts are refused by the
// redirect policy, which only happens when the portal bounces the session
// somewhere unexpected.
func isRedirectRejected(err error) bool {
	return strings.Contains(err.Error(), "DomainCheckRedirectPolicy")
}

// FormValues collects what a browser would submit for the form with the
// given id on page: hidden and text inputs, checked boxes, selected options
// and textareas.
func FormValues(page *Page, formID string) (url.Values, *url.URL, error) {
	form := page.Doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == formID || s.AttrOr("name", "") == formID
	}).First()
	if form.Length() == 0 {
		return nil, nil, fmt.Errorf("form %q not found on %s", formID, page.URL.Path)
	}

	values := url.Values{}
	form.Find("input").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		if name == "" {
			return
		}
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "file", "reset":
			return
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
			values.Add(name, in.AttrOr("value", "on"))
		default:
			values.Add(name, in.AttrOr("value", ""))
		}
	})
	form.Find("select").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		option := sel.Find("option[selected]").First()
		if option.Length() == 0 {
			option = sel.Find("option").First()
		}
		if option.Length() == 0 {
			return
		}
		values.Set(name, option.AttrOr("value", strings.TrimSpace(option.Text())))
	})
	form.Find("textarea").Each(func(_ int, ta *goquery.Selection) {
		if name := ta.AttrOr("name", ""); name != "" {
			values.Set(name, ta.Text())
		}
	})
	if values.Get(formID) == "" {
		values.Set(formID, formID)
	}

	action := form.AttrOr("action", "")
	if action == "" {
		return values, page.URL, nil
	}
	target, err := url.Parse(action)
	if err != nil {
		return nil, nil, fmt.Errorf("form %q has invalid action: %w", formID, err)
	}
	return values, page.URL.ResolveReference(target), nil
}

// Submit posts the form formID of from with overrides applied on top of the
// values the page rendered, view state included.
func (c *Client) Submit(ctx context.Context, from *Page, formID string, overrides map[string]string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "client:Submit")
	defer span.End()

	values, action, err := FormValues(from, formID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for k, v := range overrides {
		values.Set(k, v)
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormDataFromValues(values).
		Post(action.String())
	if err != nil {
		if isRedirectRejected(err) {
			return nil, ErrAuthRequired
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit form")
		return nil, err
	}
	return c.toPage(ctx, res)
}

// Follow triggers control as rendered on from.
func (c *Client) Follow(ctx context.Context, from *Page, control normalize.Control) (*Page, error) {
	if control.IsZero() {
		return nil, fmt.Errorf("empty control")
	}
	if control.IsPostback() {
		return c.Submit(ctx, from, control.FormID, control.Params)
	}
	u, err := c.resolve(from, control.Href)
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, u.String())
}

// Fetch downloads a document, following at most one redirect.
func (c *Client) Fetch(ctx context.Context, u *url.URL) ([]byte, string, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()

	res, err := c.download.R().
		SetContext(ctx).
		Get(u.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download")
		return nil, "", err
	}
	status := res.StatusCode()
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, "", ErrAuthRequired
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil && c.onIdentityHost(res.RawResponse.Request.URL) {
		span.SetStatus(codes.Error, "download redirected to identity provider")
		return nil, "", ErrAuthRequired
	}
	if status >= 300 {
		err := &StatusError{Status: status, Path: u.Path}
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}

	body := res.Body()
	contentType := res.Header().Get("content-type")
	if isHTML(body, contentType) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err == nil && looksLikeLogin(doc) {
			span.SetStatus(codes.Error, "login form served instead of document")
			return nil, "", ErrAuthRequired
		}
	}
	return body, contentType, nil
}

func isHTML(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
