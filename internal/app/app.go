package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"fxquotes/internal/adapters"
	"fxquotes/internal/adapters/cache"
	"fxquotes/internal/adapters/httpclient"
	"fxquotes/internal/adapters/postgres"
	"fxquotes/internal/api"
	"fxquotes/internal/calendar"
	"fxquotes/internal/config"
	"fxquotes/internal/platform/db"
	httpserver "fxquotes/internal/platform/http"
	"fxquotes/internal/platform/metrics"
	"fxquotes/internal/rate"
	"fxquotes/internal/rate/handler"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Run wires the application components, starts HTTP server and ingestion scheduler
func Run() error {
	appCfg, err := config.Init()
	if err != nil {
		return err
	}
	// Logger
	logrus.SetOutput(os.Stdout)
	if parsedLvl, parseErr := logrus.ParseLevel(appCfg.Logging.Level); parseErr != nil {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(parsedLvl)
	}
	logrus.Info("✅ Config initialization successful")

	// Root context bound to OS signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Schema first, retried while the database comes up
	retryPolicy := db.RetryPolicy{
		MaxRetries:      appCfg.Migrations.MaxRetries,
		InitialInterval: time.Duration(appCfg.Migrations.InitialIntervalSeconds) * time.Second,
	}
	if err = db.MigrateWithRetry(ctx, appCfg.DbServer.GetConnectionStr(), retryPolicy); err != nil {
		logrus.WithError(err).Error("Database migration failed")
		return err
	}
	logrus.Info("✅ Database migrations applied")

	// Bounded context for startup operations (DB connect, cache ping)
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// DB pool
	pool, err := db.CreatePoolAndPing(startupCtx, appCfg.DbServer)
	if err != nil {
		logrus.WithError(err).Error("Error connecting to db")
		return err
	}
	defer pool.Close()
	logrus.Info("✅ Postgres connection successful")

	// Cache store
	store, closeStore, err := newCacheStore(startupCtx, appCfg)
	if err != nil {
		logrus.WithError(err).Error("Error initializing cache")
		return err
	}
	defer closeStore()
	logrus.WithField("backend", appCfg.Cache.Backend).Info("✅ Cache initialization successful")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Base HTTP client (configurable timeout)
	httpTimeout := time.Duration(appCfg.HTTPClient.TimeoutSeconds) * time.Second
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	feedClient := httpclient.NewTCMBFeedClient(&http.Client{Timeout: httpTimeout}, appCfg.Feed.BaseURL, m)

	// Calendar and retention window
	holidays, err := calendar.ParseMonthDays(appCfg.Scheduler.Holidays)
	if err != nil {
		return err
	}
	location, err := time.LoadLocation(appCfg.Scheduler.Location)
	if err != nil {
		return fmt.Errorf("invalid scheduler.location %q: %w", appCfg.Scheduler.Location, err)
	}
	hour, minute, err := appCfg.Scheduler.RunAtClock()
	if err != nil {
		return err
	}
	cal := calendar.New(holidays)
	window := rate.Window{Clock: clockwork.NewRealClock(), Location: location, Months: appCfg.Scheduler.RetentionMonths}

	// Repositories
	quoteRepo := postgres.NewQuoteRepository(pool)

	// Services
	quoteCache := rate.NewCache(store, appCfg.Cache.KeyPrefix, appCfg.Cache.TTL(), m)
	quoteService := rate.NewService(quoteCache, quoteRepo, feedClient, cal, window, m)
	ingestion := rate.NewIngestionScheduler(quoteRepo, feedClient, cal, window, rate.RunAt{Hour: hour, Minute: minute}, m)

	backfills := rate.NewBackfillRunner(ingestion)
	// Ensure runner stops before DB pool closes
	defer func() {
		if shutDownErr := backfills.Shutdown(); shutDownErr != nil {
			logrus.Errorf("Backfill runner shutdown error: %v", shutDownErr)
		}
	}()
	if startErr := backfills.Start(ctx); startErr != nil {
		logrus.WithError(startErr).Error("Failed to start backfill runner")
		return startErr
	}
	logrus.Info("✅ Backfill runner activation successful")

	// Handlers and router
	quoteHandler := handler.NewQuoteHandler(quoteService, backfills)
	router := api.NewRouter(quoteHandler, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Server and scheduler share one lifetime: either failing stops the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingestion.Run(gctx)
	})
	g.Go(func() error {
		logrus.Info("Starting http server")
		return httpserver.Start(gctx, appCfg.HTTPServer, router)
	})
	if err = g.Wait(); err != nil {
		logrus.Errorf("Application stopped with error: %v", err)
		return err
	}
	return nil
}

func newCacheStore(ctx context.Context, appCfg *config.AppConfig) (adapters.CacheStore, func(), error) {
	if appCfg.Cache.Backend == "memory" {
		store, err := cache.NewMemoryStore(appCfg.Cache.MaxItems)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	store, err := cache.InitRedisStore(ctx, &redis.Options{
		Addr:     appCfg.Redis.Addr,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}
