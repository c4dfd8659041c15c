package navigator

import (
	"context"
	"testing"
	"time"

	devenv "casesync-backend/dev/env"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/lib/telemetry"
)

// TestLivePortal runs against a real account, see devenv.PortalTestConfig.
func TestLivePortal(t *testing.T) {
	config, err := devenv.GetStateConfig[devenv.PortalTestConfig]("portal_config.json5")
	if err != nil {
		t.Skip("no portal credentials configured:", err)
	}

	cleanup := telemetry.SetupForTesting("test:lib/scrapers/portal/live")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	ctx, span := tracer.Start(ctx, "TestLivePortal")
	defer span.End()

	engine, err := sso.New(sso.Config{
		BaseUrl:      config.BaseUrl,
		IdentityHost: config.IdentityHost,
	})
	if err != nil {
		t.Fatal(err)
	}
	state, err := engine.Login(ctx, config.Username, config.Password)
	if err != nil {
		t.Fatal(err)
	}

	client, err := core.NewClient(core.Options{
		BaseUrl:      config.BaseUrl,
		IdentityHost: config.IdentityHost,
	}, &state)
	if err != nil {
		t.Fatal(err)
	}
	details, err := New(client, Config{}).ScrapeCase(ctx, Query{
		Jurisdiction: config.Jurisdiction,
		Number:       config.Number,
		Year:         config.Year,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Logf(
		"%s: %d movements, %d documents, %d participants",
		details.Key, len(details.Movements), len(details.Documents), len(details.Participants),
	)
}
