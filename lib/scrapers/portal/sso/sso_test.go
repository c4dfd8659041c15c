package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"casesync-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeSso struct {
	app      *httptest.Server
	identity *httptest.Server
	// when set, the identity provider renders a page without a form
	broken atomic.Bool
}

func (f *fakeSso) close() {
	f.app.Close()
	f.identity.Close()
}

func newFakeSso() *fakeSso {
	f := &fakeSso{}

	app := http.NewServeMux()
	app.HandleFunc("/scw/home.seam", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("SCW_SESSION"); err != nil {
			http.Redirect(w, r, f.identity.URL+"/auth/realms/pjn/protocol/openid-connect/auth?client_id=scw", http.StatusFound)
			return
		}
		fmt.Fprint(w, `<html><body><h1>Consulta de expedientes</h1></body></html>`)
	})
	app.HandleFunc("/scw/callback", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SCW_SESSION", Value: "s-" + r.URL.Query().Get("code"), Path: "/"})
		http.Redirect(w, r, "/scw/home.seam", http.StatusFound)
	})
	f.app = httptest.NewServer(app)

	identity := http.NewServeMux()
	identity.HandleFunc("/auth/realms/pjn/protocol/openid-connect/auth", func(w http.ResponseWriter, r *http.Request) {
		if f.broken.Load() {
			fmt.Fprint(w, `<html><body>mantenimiento</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
<form id="kc-form-login" method="post" action="/auth/realms/pjn/login-actions/authenticate?execution=e1">
  <input type="text" name="username"><input type="password" name="password">
  <input type="hidden" name="credentialId" value="">
</form></body></html>`)
	})
	identity.HandleFunc("/auth/realms/pjn/login-actions/authenticate", func(w http.ResponseWriter, r *http.Request) {
		if r.ParseForm() != nil || r.Form.Get("username") != "20123456786" || r.Form.Get("password") != "secret" {
			fmt.Fprint(w, `<html><body>
<span id="input-error">Usuario o contraseña inválidos.</span>
<form id="kc-form-login" method="post" action="/auth/realms/pjn/login-actions/authenticate?execution=e2">
  <input type="text" name="username"><input type="password" name="password">
</form></body></html>`)
			return
		}
		http.Redirect(w, r, f.app.URL+"/scw/callback?state=x&code=CODE-1", http.StatusFound)
	})
	identity.HandleFunc("/auth/realms/pjn/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		if r.ParseForm() != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case r.Form.Get("grant_type") == "authorization_code" && r.Form.Get("code") == "CODE-1":
			json.NewEncoder(w).Encode(Tokens{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 300})
		case r.Form.Get("grant_type") == "refresh_token" && r.Form.Get("refresh_token") == "refresh-1":
			json.NewEncoder(w).Encode(Tokens{AccessToken: "access-2", ExpiresIn: 300})
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
		}
	})
	f.identity = httptest.NewServer(identity)
	return f
}

func setup(t *testing.T) (*fakeSso, *Engine, func()) {
	cleanup := telemetry.SetupForTesting("test:lib/scrapers/portal/sso")

	f := newFakeSso()
	identityUrl, err := url.Parse(f.identity.URL)
	require.NoError(t, err)

	engine, err := New(Config{
		BaseUrl:      f.app.URL + "/scw/home.seam",
		IdentityHost: identityUrl.Host,
		TokenUrl:     f.identity.URL + "/auth/realms/pjn/protocol/openid-connect/token",
		ClientID:     "scw",
	})
	require.NoError(t, err)

	return f, engine, func() {
		f.close()
		cleanup()
	}
}

func TestLogin(t *testing.T) {
	f, engine, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := engine.Login(ctx, "20123456786", "secret")
	require.NoError(t, err)
	require.Equal(t, "access-1", state.AccessToken)
	require.Equal(t, "refresh-1", state.RefreshToken)
	require.NotZero(t, state.ExpiresAt)
	require.NotEmpty(t, state.UserAgent)

	var session string
	for _, c := range state.Cookies {
		if c.Name == "SCW_SESSION" {
			session = c.Value
		}
	}
	require.Equal(t, "s-CODE-1", session)

	// a second login does not reuse the first one's cookies
	_, err = engine.Login(ctx, "20123456786", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Contains(t, err.Error(), "Usuario o contraseña inválidos.")

	f.broken.Store(true)
	_, err = engine.Login(ctx, "20123456786", "secret")
	require.ErrorIs(t, err, ErrAutomation)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	_, engine, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := engine.Refresh(ctx, "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", tokens.AccessToken)
	require.Equal(t, "refresh-1", tokens.RefreshToken)

	_, err = engine.Refresh(ctx, "revoked")
	require.Error(t, err)

	_, err = engine.Refresh(ctx, "")
	require.Error(t, err)
}
