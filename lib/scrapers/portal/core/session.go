package core

import (
	"net/http"
	"net/url"
	"time"

	"casesync-backend/lib/timezone"
)

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	// URL is the address the cookie was collected for, it is restored
	// against the same address.
	URL string `json:"url"`
}

// SessionState is everything needed to resume an authenticated portal
// session without logging in again.
type SessionState struct {
	UserID       string            `json:"user_id"`
	Cookies      []Cookie          `json:"cookies"`
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    int64             `json:"expires_at,omitempty"` // unix seconds, 0 without a bearer token
	UserAgent    string            `json:"user_agent"`
	Headers      map[string]string `json:"headers,omitempty"`
	NeedsReauth  bool              `json:"needs_reauth"`
	UpdatedAt    int64             `json:"updated_at"`
}

func (s SessionState) HasToken() bool {
	return s.AccessToken != ""
}

func (s SessionState) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// TokenExpired reports whether the bearer token expires within buffer.
func (s SessionState) TokenExpired(buffer time.Duration) bool {
	if !s.HasToken() || s.ExpiresAt == 0 {
		return false
	}
	return IsExpired(time.Unix(s.ExpiresAt, 0), buffer)
}

const DefaultExpiryBuffer = 60 * time.Second

// IsExpired is true once now is within buffer of expiresAt.
func IsExpired(expiresAt time.Time, buffer time.Duration) bool {
	return !timezone.Now().Before(expiresAt.Add(-buffer))
}

// ExportCookies collects the cookies jar would send to each of urls.
func ExportCookies(jar http.CookieJar, urls ...*url.URL) []Cookie {
	var cookies []Cookie
	seen := map[string]bool{}
	for _, u := range urls {
		if u == nil {
			continue
		}
		for _, c := range jar.Cookies(u) {
			key := u.Host + "|" + c.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			cookies = append(cookies, Cookie{
				Name:  c.Name,
				Value: c.Value,
				URL:   u.String(),
			})
		}
	}
	return cookies
}

// ImportCookies restores previously exported cookies into jar.
func ImportCookies(jar http.CookieJar, cookies []Cookie) {
	grouped := map[string][]*http.Cookie{}
	for _, c := range cookies {
		grouped[c.URL] = append(grouped[c.URL], &http.Cookie{
			Name:  c.Name,
			Value: c.Value,
			Path:  "/",
		})
	}
	for raw, list := range grouped {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		jar.SetCookies(u, list)
	}
}
