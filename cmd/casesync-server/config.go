package main

import (
	"time"

	"casesync-backend/lib/blobstore"
	configlibsql "casesync-backend/lib/configutil/libsql"
	"casesync-backend/lib/resilience"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/lib/tasks"
	"casesync-backend/services/keychain"
	"casesync-backend/services/scraper"
)

type PortalConfig struct {
	BaseUrl           string  `json:"base_url"`
	IdentityHost      string  `json:"identity_host"`
	TokenUrl          string  `json:"token_url"`
	ClientID          string  `json:"client_id"`
	UserAgent         string  `json:"user_agent"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	// timeouts are in seconds
	TimeoutSeconds         int `json:"timeout_seconds"`
	DownloadTimeoutSeconds int `json:"download_timeout_seconds"`
	ExpiryBufferSeconds    int `json:"expiry_buffer_seconds"`
	MaxSearchPages         int `json:"max_search_pages"`
	MaxTabPages            int `json:"max_tab_pages"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c PortalConfig) core() core.Options {
	return core.Options{
		BaseUrl:           c.BaseUrl,
		IdentityHost:      c.IdentityHost,
		UserAgent:         c.UserAgent,
		RequestsPerSecond: c.RequestsPerSecond,
		Timeout:           seconds(c.TimeoutSeconds),
		DownloadTimeout:   seconds(c.DownloadTimeoutSeconds),
	}
}

func (c PortalConfig) sso() sso.Config {
	return sso.Config{
		BaseUrl:      c.BaseUrl,
		IdentityHost: c.IdentityHost,
		TokenUrl:     c.TokenUrl,
		ClientID:     c.ClientID,
		UserAgent:    c.UserAgent,
		Timeout:      seconds(c.TimeoutSeconds),
	}
}

func (c PortalConfig) options() scraper.Options {
	return scraper.Options{
		Portal: c.core(),
		Navigator: navigator.Config{
			MaxSearchPages: c.MaxSearchPages,
			MaxTabPages:    c.MaxTabPages,
		},
		ExpiryBuffer: seconds(c.ExpiryBufferSeconds),
	}
}

type Config struct {
	Port int `json:"port"`
	// Secret is matched against the X-Service-Secret header, usually
	// "${CASESYNC_SERVICE_SECRET}".
	Secret    string              `json:"secret"`
	Database  configlibsql.Struct `json:"database"`
	Storage   blobstore.Config    `json:"storage"`
	Queue     tasks.Config        `json:"queue"`
	Portal    PortalConfig        `json:"portal"`
	Documents resilience.Config   `json:"documents"`
	Keychain  keychain.Config     `json:"keychain"`
	// Smtp is optional, reconnect notices are only logged without it.
	Smtp *scraper.SmtpConfig `json:"smtp"`
}
