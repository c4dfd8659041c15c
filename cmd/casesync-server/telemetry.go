package main

import (
	"context"
	"log/slog"

	"casesync-backend/lib/restyutil"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/util/serviceutil"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	err := telemetry.SetupFromEnv(ctx, "casesync-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		telemetry.Shutdown(context.Background())
	}()
	telemetry.InstrumentPerfStats(ctx)

	if !verbose {
		return
	}

	core.SetRestyInstrumentOutput(
		restyutil.NewFilesystemOutput("<dev_state>/resty/portal_core"),
	)
	sso.SetRestyInstrumentOutput(
		restyutil.NewFilesystemOutput("<dev_state>/resty/portal_sso"),
	)
}
