// Package sso logs into the portal through its single sign-on provider and
// keeps the resulting tokens fresh.
package sso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"casesync-backend/lib/htmlutil"
	"casesync-backend/lib/restyutil"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/timezone"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
)

var tracer = telemetry.Tracer("casesync.lib.scrapers.portal.sso")
var restyInstrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}

var (
	// ErrInvalidCredentials means the identity provider rejected the
	// username or password.
	ErrInvalidCredentials = errors.New("invalid portal credentials")
	// ErrAutomation covers every other way a login can fail: network
	// errors, unexpected pages, missing forms.
	ErrAutomation = errors.New("portal login automation failed")
)

type Config struct {
	// BaseUrl is the application page a logged in user lands on.
	BaseUrl      string
	IdentityHost string
	// TokenUrl is the provider's token endpoint, leave empty when the
	// portal only uses cookies.
	TokenUrl  string
	ClientID  string
	UserAgent string
	Timeout   time.Duration
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

func (t Tokens) ExpiresAt(now time.Time) int64 {
	if t.ExpiresIn <= 0 {
		return 0
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second).Unix()
}

type Engine struct {
	config  Config
	baseUrl *url.URL
	// refresh calls share one client, logins never do.
	refresh *resty.Client
}

func New(config Config) (*Engine, error) {
	baseUrl, err := url.Parse(config.BaseUrl)
	if err != nil {
		return nil, err
	}
	if config.UserAgent == "" {
		config.UserAgent = core.DefaultUserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = 45 * time.Second
	}

	refresh := resty.New()
	refresh.SetHeader("user-agent", config.UserAgent)
	refresh.SetTimeout(config.Timeout)
	restyutil.InstrumentClient(refresh, tracer, restyInstrumentOutput)

	return &Engine{
		config:  config,
		baseUrl: baseUrl,
		refresh: refresh,
	}, nil
}

// attempt is the state of a single login: its own cookie jar and whatever
// codes and tokens passed through the traffic.
type attempt struct {
	engine *Engine
	client *resty.Client
	jar    http.CookieJar

	mutex  sync.Mutex
	code   string
	tokens Tokens
}

func (e *Engine) newAttempt() (*attempt, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	a := &attempt{engine: e, jar: jar}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", e.config.UserAgent)
	client.SetTimeout(e.config.Timeout)
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(a.onRedirect))
	client.OnAfterResponse(a.onResponse)
	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)
	a.client = client
	return a, nil
}

func (a *attempt) onRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 15 {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	host := req.URL.Hostname()
	if host != a.engine.baseUrl.Hostname() && host != a.engine.identityHostname() {
		return fmt.Errorf("login redirected to unexpected host %s", host)
	}
	if host == a.engine.baseUrl.Hostname() {
		if code := authorizationCode(req.URL); code != "" {
			a.mutex.Lock()
			a.code = code
			a.mutex.Unlock()
		}
	}
	return nil
}

func (a *attempt) onResponse(_ *resty.Client, res *resty.Response) error {
	if !strings.Contains(res.Header().Get("content-type"), "json") {
		return nil
	}
	var tokens Tokens
	if err := json.Unmarshal(res.Body(), &tokens); err != nil || tokens.AccessToken == "" {
		return nil
	}
	a.mutex.Lock()
	a.tokens = tokens
	a.mutex.Unlock()
	return nil
}

func authorizationCode(u *url.URL) string {
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	fragment, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return ""
	}
	return fragment.Get("code")
}

func (e *Engine) identityHostname() string {
	host := e.config.IdentityHost
	if u, err := url.Parse("//" + host); err == nil {
		return u.Hostname()
	}
	return host
}

func (e *Engine) onIdentity(u *url.URL) bool {
	if e.config.IdentityHost == "" {
		return u.Hostname() != e.baseUrl.Hostname()
	}
	if strings.Contains(e.config.IdentityHost, ":") {
		return u.Host == e.config.IdentityHost
	}
	return u.Hostname() == e.config.IdentityHost
}

var loginFormSelectors = []string{
	"form#kc-form-login",
	"form[action*='login-actions']",
	"form:has(input[type='password'])",
}

var usernameSelectors = []string{
	"input[name='username']",
	"input[type='email']",
	"input[type='text']",
}

var errorTextSelectors = []string{
	"#input-error",
	".kc-feedback-text",
	".alert-error",
	".alert-danger",
	".alert",
}

func findLoginForm(doc *goquery.Document) *goquery.Selection {
	for _, selector := range loginFormSelectors {
		form := doc.Find(selector).First()
		if form.Length() > 0 {
			return form
		}
	}
	return nil
}

func providerError(doc *goquery.Document) string {
	for _, selector := range errorTextSelectors {
		if text := htmlutil.SelectionText(doc.Find(selector).First()); text != "" {
			return text
		}
	}
	return "the identity provider rejected the login"
}

func finalUrl(res *resty.Response, fallback *url.URL) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	return fallback
}

func automation(err error) error {
	return fmt.Errorf("%w: %w", ErrAutomation, err)
}

// Login runs the whole sign on flow in a fresh cookie jar and returns the
// resulting session.
func (e *Engine) Login(ctx context.Context, username, password string) (core.SessionState, error) {
	ctx, span := tracer.Start(ctx, "sso:Login")
	defer span.End()

	a, err := e.newAttempt()
	if err != nil {
		return core.SessionState{}, automation(err)
	}

	res, err := a.client.R().
		SetContext(ctx).
		Get(e.baseUrl.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open portal")
		return core.SessionState{}, automation(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return core.SessionState{}, automation(err)
	}
	landing := finalUrl(res, e.baseUrl)

	form := findLoginForm(doc)
	if form == nil {
		err := fmt.Errorf("no login form on %s", landing.Host)
		span.SetStatus(codes.Error, err.Error())
		return core.SessionState{}, automation(err)
	}

	values, action, err := a.loginValues(form, landing, username, password)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return core.SessionState{}, automation(err)
	}

	res, err = a.client.R().
		SetContext(ctx).
		SetFormDataFromValues(values).
		Post(action.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit credentials")
		return core.SessionState{}, automation(err)
	}
	landing = finalUrl(res, action)
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return core.SessionState{}, automation(err)
	}

	if e.onIdentity(landing) {
		if findLoginForm(doc) != nil {
			reason := providerError(doc)
			span.SetStatus(codes.Error, "invalid credentials")
			return core.SessionState{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, reason)
		}
		err := fmt.Errorf("login stopped on identity page %s", landing.Path)
		span.SetStatus(codes.Error, err.Error())
		return core.SessionState{}, automation(err)
	}
	if landing.Hostname() != e.baseUrl.Hostname() {
		err := fmt.Errorf("login landed on unexpected host %s", landing.Host)
		span.SetStatus(codes.Error, err.Error())
		return core.SessionState{}, automation(err)
	}

	a.mutex.Lock()
	code := a.code
	captured := a.tokens
	a.mutex.Unlock()

	if captured.AccessToken == "" && code != "" && e.config.TokenUrl != "" {
		err := a.exchange(ctx, code)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to exchange authorization code")
			return core.SessionState{}, automation(err)
		}
		a.mutex.Lock()
		captured = a.tokens
		a.mutex.Unlock()
	}

	now := timezone.Now()
	state := core.SessionState{
		AccessToken:  captured.AccessToken,
		RefreshToken: captured.RefreshToken,
		ExpiresAt:    captured.ExpiresAt(now),
		UserAgent:    e.config.UserAgent,
		UpdatedAt:    now.Unix(),
	}
	urls := []*url.URL{e.baseUrl}
	if e.config.IdentityHost != "" {
		urls = append(urls, &url.URL{Scheme: e.baseUrl.Scheme, Host: e.config.IdentityHost, Path: "/"})
	}
	state.Cookies = core.ExportCookies(a.jar, urls...)
	return state, nil
}

func (a *attempt) loginValues(form *goquery.Selection, page *url.URL, username, password string) (url.Values, *url.URL, error) {
	var usernameField string
	for _, selector := range usernameSelectors {
		if name := form.Find(selector).First().AttrOr("name", ""); name != "" {
			usernameField = name
			break
		}
	}
	passwordField := form.Find("input[type='password']").First().AttrOr("name", "")
	if usernameField == "" || passwordField == "" {
		return nil, nil, fmt.Errorf("login form is missing credential fields")
	}

	values := url.Values{}
	form.Find("input[type='hidden']").Each(func(_ int, in *goquery.Selection) {
		if name := in.AttrOr("name", ""); name != "" {
			values.Set(name, in.AttrOr("value", ""))
		}
	})
	values.Set(usernameField, username)
	values.Set(passwordField, password)

	action := page
	if raw := form.AttrOr("action", ""); raw != "" {
		target, err := url.Parse(raw)
		if err != nil {
			return nil, nil, err
		}
		action = page.ResolveReference(target)
	}
	return values, action, nil
}

// exchange trades an authorization code through the attempt's own client so
// the response hook records the tokens.
func (a *attempt) exchange(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", a.engine.config.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", a.engine.baseUrl.String())

	res, err := a.client.R().
		SetContext(ctx).
		SetBody(form.Encode()).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		Post(a.engine.config.TokenUrl)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("token endpoint responded %d", res.StatusCode())
	}
	return nil
}

// Refresh exchanges a refresh token for a new token pair. The refresh token
// is kept when the provider does not rotate it.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	ctx, span := tracer.Start(ctx, "sso:Refresh")
	defer span.End()

	if e.config.TokenUrl == "" {
		return Tokens{}, fmt.Errorf("no token endpoint configured")
	}
	if refreshToken == "" {
		return Tokens{}, fmt.Errorf("token is not refreshable")
	}

	form := url.Values{}
	form.Add("grant_type", "refresh_token")
	form.Add("client_id", e.config.ClientID)
	form.Add("refresh_token", refreshToken)

	res, err := e.refresh.R().
		SetContext(ctx).
		SetBody(form.Encode()).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		Post(e.config.TokenUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to call token endpoint")
		return Tokens{}, err
	}
	if res.IsError() {
		err := fmt.Errorf("token refresh responded %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return Tokens{}, err
	}

	var tokens Tokens
	err = json.Unmarshal(res.Body(), &tokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode tokens")
		return Tokens{}, err
	}
	if tokens.AccessToken == "" {
		return Tokens{}, fmt.Errorf("token endpoint returned no access token")
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}
