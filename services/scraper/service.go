// Package scraper is the HTTP surface of the pipeline: it keeps one portal
// session per user alive, drives the navigator under a per-user lock and
// exposes the matching operations.
package scraper

import (
	"context"
	"database/sql"
	"time"

	"casesync-backend/lib/blobstore"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/lib/tasks"
	"casesync-backend/lib/telemetry"
	"casesync-backend/services/casesync"
	"casesync-backend/services/keychain"
	"casesync-backend/services/matching"
	"casesync-backend/services/sessionstore"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/metric"
)

var tracer = telemetry.Tracer("casesync.services.scraper")
var meter = telemetry.Meter("casesync.services.scraper")

var scrapeCounter, _ = meter.Int64Counter(
	"scraper.calls",
	metric.WithDescription("Portal calls by operation and outcome."),
)
var reauthCounter, _ = meter.Int64Counter(
	"scraper.reauths",
	metric.WithDescription("Automatic reauthentications by outcome."),
)

// Authenticator logs into the portal, *sso.Engine implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (core.SessionState, error)
	Refresh(ctx context.Context, refreshToken string) (sso.Tokens, error)
}

var _ Authenticator = (*sso.Engine)(nil)

type Options struct {
	Portal    core.Options
	Navigator navigator.Config
	// ExpiryBuffer is how long before a bearer token's expiry it is already
	// treated as expired.
	ExpiryBuffer time.Duration
	// ClientTTL bounds how long a live portal client is reused.
	ClientTTL time.Duration
}

type Service struct {
	options  Options
	db       *sql.DB
	bucket   blobstore.Bucket
	queue    tasks.Queue
	auth     Authenticator
	sessions sessionstore.Service
	keychain keychain.Service
	sync     casesync.Service
	matching matching.Service
	notifier Notifier

	locks   *userLocks
	clients *expirable.LRU[string, *navigator.Navigator]
}

type Deps struct {
	DB       *sql.DB
	Bucket   blobstore.Bucket
	Queue    tasks.Queue
	Auth     Authenticator
	Keychain keychain.Service
	Sync     casesync.Service
	Matching matching.Service
	// Notifier is optional.
	Notifier Notifier
}

func NewService(options Options, deps Deps) Service {
	if options.ExpiryBuffer <= 0 {
		options.ExpiryBuffer = core.DefaultExpiryBuffer
	}
	if options.ClientTTL <= 0 {
		options.ClientTTL = 15 * time.Minute
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return Service{
		options:  options,
		db:       deps.DB,
		bucket:   deps.Bucket,
		queue:    deps.Queue,
		auth:     deps.Auth,
		sessions: sessionstore.NewService(deps.Bucket),
		keychain: deps.Keychain,
		sync:     deps.Sync,
		matching: deps.Matching,
		notifier: notifier,
		locks:    newUserLocks(),
		clients:  expirable.NewLRU[string, *navigator.Navigator](512, nil, options.ClientTTL),
	}
}
