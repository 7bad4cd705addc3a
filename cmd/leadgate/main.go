// Package main wires together the lead ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brastel-digital/leadgate/internal/alerts"
	alertspubsub "github.com/brastel-digital/leadgate/internal/alerts/pubsub"
	"github.com/brastel-digital/leadgate/internal/api"
	"github.com/brastel-digital/leadgate/internal/clock/system"
	"github.com/brastel-digital/leadgate/internal/config"
	"github.com/brastel-digital/leadgate/internal/crm/hubspot"
	"github.com/brastel-digital/leadgate/internal/id/uuid"
	"github.com/brastel-digital/leadgate/internal/journal"
	journalpostgres "github.com/brastel-digital/leadgate/internal/journal/postgres"
	"github.com/brastel-digital/leadgate/internal/lead"
	"github.com/brastel-digital/leadgate/internal/logging"
	"github.com/brastel-digital/leadgate/internal/metrics"
	"github.com/brastel-digital/leadgate/internal/notify"
	notifywhatsapp "github.com/brastel-digital/leadgate/internal/notify/whatsapp"
	"github.com/brastel-digital/leadgate/internal/pipeline"
	"github.com/brastel-digital/leadgate/internal/ratelimit"
	ratelimitmemory "github.com/brastel-digital/leadgate/internal/ratelimit/memory"
	ratelimitredis "github.com/brastel-digital/leadgate/internal/ratelimit/redis"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var store ratelimit.Store
	var redisClient *goredis.Client
	var memStore *ratelimitmemory.Store
	switch cfg.RateLimit.Store {
	case "redis":
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		store = ratelimitredis.New(redisClient, clock)
		logger.Info("using redis rate limit store", zap.String("addr", cfg.RateLimit.RedisAddr))
	default:
		memStore = ratelimitmemory.New(clock, ratelimitmemory.WithSweepInterval(cfg.RateLimit.SweepInterval()))
		memStore.Start(ctx)
		store = memStore
		logger.Info("using in-memory rate limit store")
	}
	limiter := ratelimit.New(store, ratelimit.Config{
		Window:      cfg.RateLimit.Window(),
		MaxRequests: cfg.RateLimit.MaxRequests,
	}, logger.Named("ratelimit"))

	crmClient := hubspot.New(hubspot.Config{
		BaseURL: cfg.CRM.BaseURL,
		Token:   cfg.CRM.Token,
		Timeout: cfg.CRM.Timeout(),
	})

	var dispatcher notify.Dispatcher = notify.Noop{}
	if cfg.WhatsApp.Enabled {
		dispatcher = notifywhatsapp.New(notifywhatsapp.Config{
			BaseURL:       cfg.WhatsApp.BaseURL,
			Token:         cfg.WhatsApp.Token,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			Language:      cfg.WhatsApp.Language,
		})
	}

	var journalProvider journal.Provider = journal.NoOp{}
	if cfg.Journal.Enabled {
		store, err := journalpostgres.NewStore(ctx, journalpostgres.StoreConfig{
			DSN:   cfg.Journal.DSN,
			Table: cfg.Journal.Table,
		})
		if err != nil {
			logger.Fatal("journal init failed", zap.Error(err))
		}
		journalProvider = store
	}
	defer journalProvider.Close()

	var alertPublisher alerts.Publisher = alerts.NoOp{}
	if cfg.Alerts.Enabled {
		pub, err := alertspubsub.New(ctx, cfg.Alerts.ProjectID, cfg.Alerts.TopicName)
		if err != nil {
			logger.Fatal("alert publisher init failed", zap.Error(err))
		}
		alertPublisher = pub
	}

	orchestrator := pipeline.New(
		crmClient,
		dispatcher,
		journalProvider,
		alertPublisher,
		idGen,
		clock,
		pipeline.Config{
			CountryCode:    cfg.Lead.CountryCode,
			DealPipeline:   cfg.CRM.DealPipeline,
			DealStage:      cfg.CRM.DealStage,
			LeadTemplate:   leadTemplate(cfg),
			SalesTemplate:  salesTemplate(cfg),
			SalesRecipient: cfg.WhatsApp.SalesRecipient,
			CrmTimeout:     cfg.CRM.Timeout(),
		},
		logger.Named("pipeline"),
	)

	apiServer := api.NewServer(limiter, lead.NewValidator(), orchestrator, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if memStore != nil {
		memStore.Stop()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}
	if err := alertPublisher.Close(); err != nil {
		logger.Warn("alert publisher close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// leadTemplate returns the lead-facing template name, empty when the
// messaging provider is disabled so the pipeline skips the send entirely.
func leadTemplate(cfg config.Config) string {
	if !cfg.WhatsApp.Enabled {
		return ""
	}
	return cfg.WhatsApp.LeadTemplate
}

func salesTemplate(cfg config.Config) string {
	if !cfg.WhatsApp.Enabled {
		return ""
	}
	return cfg.WhatsApp.SalesTemplate
}
