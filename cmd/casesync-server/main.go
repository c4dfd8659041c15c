package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"casesync-backend/lib/blobstore"
	"casesync-backend/lib/casedb"
	"casesync-backend/lib/configutil"
	"casesync-backend/lib/resilience"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/lib/tasks"
	"casesync-backend/lib/util/serviceutil"
	"casesync-backend/pkg/migrations"
	"casesync-backend/services/casesync"
	"casesync-backend/services/documents"
	"casesync-backend/services/keychain"
	keychaindb "casesync-backend/services/keychain/db"
	"casesync-backend/services/matching"
	"casesync-backend/services/scraper"
)

func consumeMatches(ctx context.Context, queue tasks.Queue, service matching.Service) {
	for {
		err := queue.Consume(ctx, service.HandleTask)
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "matching consumer stopped, restarting", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Secret == "" {
		slog.WarnContext(ctx, "no service secret configured, requests are not authenticated")
	}

	database, err := cfg.Database.OpenAndMigrate(casedb.Schema)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	defer database.Close()
	err = migrations.Apply(database, keychaindb.Schema)
	if err != nil {
		serviceutil.Fatal("migrate keychain", err)
	}

	bucket, err := blobstore.Open(ctx, cfg.Storage)
	if err != nil {
		serviceutil.Fatal("open blob storage", err)
	}
	queue, err := tasks.Open(cfg.Queue)
	if err != nil {
		serviceutil.Fatal("open task queue", err)
	}
	defer queue.Close()

	keys, err := keychain.NewService(database, cfg.Keychain)
	if err != nil {
		serviceutil.Fatal("init keychain", err)
	}
	engine, err := sso.New(cfg.Portal.sso())
	if err != nil {
		serviceutil.Fatal("init sso engine", err)
	}

	var notifier scraper.Notifier
	if cfg.Smtp != nil {
		notifier = scraper.NewMailNotifier(*cfg.Smtp)
	}

	documentsConfig := cfg.Documents
	if documentsConfig.MaxAttempts == 0 {
		documentsConfig = resilience.DefaultConfig()
	}
	docs := documents.NewService(bucket, resilience.NewExecutor(documentsConfig))
	match := matching.NewService(database, queue)

	service := scraper.NewService(cfg.Portal.options(), scraper.Deps{
		DB:       database,
		Bucket:   bucket,
		Queue:    queue,
		Auth:     engine,
		Keychain: keys,
		Sync:     casesync.NewService(database, docs, match),
		Matching: match,
		Notifier: notifier,
	})

	go consumeMatches(ctx, queue, match)

	pending, err := keys.NeedingReauth(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to list accounts needing reauthentication", "err", err)
	}
	if len(pending) > 0 {
		slog.InfoContext(ctx, "accounts waiting for a reconnect", "count", len(pending))
	}

	go serviceutil.StartHttpServer(ctx, cfg.Port, service.Handler(cfg.Secret))
	<-ctx.Done()
}
