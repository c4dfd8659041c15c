package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const formPage = `<html><body>
<form id="busqueda" method="post" action="/buscar">
  <input type="text" name="busqueda:numero" value="">
  <input type="checkbox" name="busqueda:archivados">
  <select name="busqueda:camara"><option value="1">CSJ</option><option value="11" selected>FRE</option></select>
  <input type="submit" name="busqueda:consultar" value="Consultar">
  <input type="hidden" name="javax.faces.ViewState" value="vs-1">
</form>
</body></html>`

func portal(identity string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
		fmt.Fprint(w, formPage)
	})
	mux.HandleFunc("/buscar", func(w http.ResponseWriter, r *http.Request) {
		if r.ParseForm() != nil || r.Form.Get("javax.faces.ViewState") != "vs-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cookie, err := r.Cookie("JSESSIONID")
		if err != nil || cookie.Value != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, "<html><body><p id=\"echo\">%s|%s|%s|%s</p></body></html>",
			r.Form.Get("busqueda:numero"),
			r.Form.Get("busqueda:camara"),
			r.Form.Get("busqueda:consultar"),
			r.Form.Get("busqueda"),
		)
	})
	mux.HandleFunc("/expired", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, identity+"/auth/realms/pjn/login", http.StatusFound)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/login-form", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form id="kc-form-login"><input type="password" name="password"></form>`)
	})
	mux.HandleFunc("/doc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/doc.pdf", http.StatusFound)
	})
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	})
	mux.HandleFunc("/doc-expired", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, identity+"/auth/realms/pjn/protocol/openid-connect/auth", http.StatusFound)
	})
	mux.HandleFunc("/doc-login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form id="kc-form-login"><input type="password" name="password"></form></body></html>`)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/doc", http.StatusFound)
	})
	return httptest.NewServer(mux)
}

func setup(t *testing.T) (*Client, func()) {
	cleanup := telemetry.SetupForTesting("test:lib/scrapers/portal/core")

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form id="kc-form-login"><input type="password" name="password"></form>`)
	}))
	server := portal(identity.URL)

	identityUrl, err := url.Parse(identity.URL)
	require.NoError(t, err)

	client, err := NewClient(Options{
		BaseUrl:           server.URL,
		IdentityHost:      identityUrl.Host,
		RequestsPerSecond: 100,
	}, nil)
	require.NoError(t, err)

	return client, func() {
		server.Close()
		identity.Close()
		cleanup()
	}
}

func TestSubmitCarriesViewState(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, err := client.Get(ctx, "/")
	require.NoError(t, err)

	values, action, err := FormValues(page, "busqueda")
	require.NoError(t, err)
	require.Equal(t, "/buscar", action.Path)
	require.Equal(t, "11", values.Get("busqueda:camara"))
	require.Empty(t, values.Get("busqueda:consultar"))
	require.False(t, values.Has("busqueda:archivados"))

	result, err := client.Follow(ctx, page, normalize.Control{
		FormID: "busqueda",
		Params: map[string]string{
			"busqueda:numero":    "7767",
			"busqueda:consultar": "Consultar",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "7767|11|Consultar|busqueda", result.Doc.Find("#echo").Text())

	_, err = client.Submit(ctx, page, "missing", nil)
	require.Error(t, err)
}

func TestAuthRequired(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, path := range []string{"/expired", "/forbidden", "/login-form"} {
		_, err := client.Get(ctx, path)
		require.ErrorIs(t, err, ErrAuthRequired, path)
	}
}

func TestFetchFollowsOneRedirect(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, contentType, err := client.Fetch(ctx, client.BaseUrl.JoinPath("/doc"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(body))
	require.Equal(t, "application/pdf", contentType)

	_, _, err = client.Fetch(ctx, client.BaseUrl.JoinPath("/loop"))
	require.Error(t, err)
}

func TestFetchDetectsDroppedSession(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, path := range []string{"/doc-expired", "/doc-login", "/forbidden"} {
		body, _, err := client.Fetch(ctx, client.BaseUrl.JoinPath(path))
		require.ErrorIs(t, err, ErrAuthRequired, path)
		require.Nil(t, body, path)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, err := client.Get(ctx, "/")
	require.NoError(t, err)

	state := SessionState{UserID: "user-1"}
	client.Export(&state)
	require.Contains(t, state.Cookies, Cookie{Name: "JSESSIONID", Value: "abc", URL: client.BaseUrl.String()})

	resumed, err := NewClient(Options{BaseUrl: client.BaseUrl.String(), RequestsPerSecond: 100}, &state)
	require.NoError(t, err)
	_, err = resumed.Submit(ctx, page, "busqueda", nil)
	require.NoError(t, err)
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	require.True(t, IsExpired(now.Add(30*time.Second), DefaultExpiryBuffer))
	require.False(t, IsExpired(now.Add(5*time.Minute), DefaultExpiryBuffer))
	require.True(t, IsExpired(now.Add(-time.Second), 0))

	state := SessionState{AccessToken: "t", ExpiresAt: now.Add(10 * time.Second).Unix()}
	require.True(t, state.TokenExpired(DefaultExpiryBuffer))
	require.False(t, SessionState{}.TokenExpired(DefaultExpiryBuffer))
}
