package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "alertador/internal/adapters/http"
	"alertador/internal/adapters/memory"
	pg "alertador/internal/adapters/postgres"
	"alertador/internal/adapters/rediscache"
	"alertador/internal/adapters/telegram"
	"alertador/internal/config"
	"alertador/internal/logging"
	"alertador/internal/ports"
	"alertador/internal/services/registry"
	"alertador/internal/services/reports"
	"alertador/internal/services/reputation"
	"alertador/internal/sources"
	"alertador/internal/workers/dispatcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage. Postgres when DATABASE_URL is set, otherwise the in-memory
	// store for local runs.
	var (
		caseRepo  ports.CaseRepository
		subRepo   ports.SubscriberRepository
		alertRepo ports.AlertRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		caseRepo, subRepo, alertRepo = db, db, db
		log.Info("using postgres store")
	} else {
		store := memory.NewStore()
		caseRepo, subRepo, alertRepo = store, store, store
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	var cache ports.VerdictCache
	if cfg.RedisAddr != "" {
		rc := rediscache.New(cfg.RedisAddr)
		if err := rc.Ping(ctx); err != nil {
			log.Error("redis connect failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		cache = rc
		log.Info("using redis verdict cache", "addr", cfg.RedisAddr)
	} else {
		cache = memory.NewVerdictCache()
	}

	// Reputation sources. URLhaus and OpenPhish need no credentials; the
	// rest join only when configured.
	srcs := []sources.Source{
		sources.NewURLhaus(cfg.Resolver.SourceTimeout),
		sources.NewOpenPhish(cfg.Resolver.OpenPhishFeedURL, cfg.Resolver.SourceTimeout),
	}
	if cfg.Resolver.PhishtankAPIKey != "" {
		srcs = append(srcs, sources.NewPhishTank(cfg.Resolver.PhishtankAPIKey, cfg.Resolver.SourceTimeout))
	}
	if cfg.Resolver.DNSBLZone != "" {
		srcs = append(srcs, sources.NewDNSBL(cfg.Resolver.DNSBLZone, cfg.Resolver.SourceTimeout))
	}

	resolver := reputation.New(srcs, cache, reputation.Config{
		SourceTimeout: cfg.Resolver.SourceTimeout,
		VerdictTTL:    cfg.Resolver.VerdictTTL,
		FailureTTL:    cfg.Resolver.FailureTTL,
	}, log)
	reportSvc := reports.New(caseRepo, reports.Config{
		MinReporters: cfg.Promotion.MinReporters,
		RecentLimit:  cfg.Promotion.RecentLimit,
	}, log)
	registrySvc := registry.New(subRepo)

	var transport ports.Transport = dispatcher.LogTransport{Log: log}
	var tgClient *telegram.Client
	if cfg.Telegram.Token != "" {
		tgClient = telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.BaseURL, cfg.Dispatch.DeliveryTimeout)
		transport = tgClient
		log.Info("telegram transport enabled")
	}

	disp := dispatcher.New(alertRepo, subRepo, transport, dispatcher.Config{
		Workers:         cfg.Dispatch.Workers,
		RatePerSecond:   cfg.Dispatch.RatePerSecond,
		Burst:           cfg.Dispatch.Burst,
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
		BaseBackoff:     cfg.Dispatch.BaseBackoff,
		MaxBackoff:      cfg.Dispatch.MaxBackoff,
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout,
		ReplayInterval:  cfg.Dispatch.ReplayInterval,
	}, log)
	go disp.Run(ctx, reportSvc.Events())

	srv := httpadapter.New(resolver, reportSvc, registrySvc, caseRepo, subRepo, httpadapter.Limits{
		ReportsPerWindow: cfg.Inbound.ReportsPerWindow,
		WindowSeconds:    cfg.Inbound.Window.Seconds(),
	}, log)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())
	if tgClient != nil {
		webhook := telegram.NewWebhook(tgClient, resolver, reportSvc, registrySvc, log)
		r.Method(http.MethodPost, "/telegram/webhook", webhook)
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
