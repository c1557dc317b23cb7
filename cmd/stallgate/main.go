package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marketrow/stallgate/pkg/api"
	"github.com/marketrow/stallgate/pkg/audit"
	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/config"
	"github.com/marketrow/stallgate/pkg/middleware"
	"github.com/marketrow/stallgate/pkg/observability"
	"github.com/marketrow/stallgate/pkg/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file (overrides STALLGATE_CONFIG_FILE)")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("STALLGATE_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)

	// Connect to database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database ready")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Cache and rate limiting degrade gracefully without Redis
			logger.WithError(err).Warn("Redis unreachable at startup, continuing")
		}
	}

	auditLogger, auditDB, err := buildAuditLogger(cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize audit logging: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	st := store.New(db)
	profiles := store.NewProfileCache(st, store.ProfileCacheConfig{
		Size:  cfg.Cache.ProfileSize,
		TTL:   cfg.Cache.ProfileTTL,
		Redis: redisClient,
	})

	guarded := store.NewGuarded(st,
		store.WithAuditLogger(auditLogger),
		store.WithDecisionRecorder(metrics),
		store.WithProfileInvalidator(profiles),
	)

	tokens := auth.NewTokenManager(st)
	resolver := auth.NewResolver(tokens, profiles)

	var limiter func(http.Handler) http.Handler
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, middleware.PerUserRateLimitConfig(), "stallgate:ratelimit").Handler
	} else {
		limiter = middleware.NewRateLimiter(middleware.PerUserRateLimitConfig()).Handler
	}

	server := api.NewServer(api.ServerConfig{
		Guarded:     guarded,
		Tokens:      tokens,
		Resolver:    resolver,
		Logger:      logger,
		Metrics:     metrics,
		Audit:       auditLogger,
		RateLimiter: limiter,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	// Sample connection pool stats for the dashboard
	statsDone := make(chan struct{})
	go func() {
		defer observability.RecoverPanic(logger, "db stats sampler")
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.CollectDBStats(db)
			case <-statsDone:
				return
			}
		}
	}()

	sweeper := startRetentionSweep(cfg, auditDB)

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		close(statsDone)
		return healthServer.Shutdown(ctx)
	})
	if sweeper != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// buildAuditLogger assembles the configured audit sink. The second return
// value is non-nil only when a database sink exists, for the retention sweep.
func buildAuditLogger(cfg *config.Config, db *sql.DB) (audit.Logger, *audit.DBLogger, error) {
	switch cfg.Audit.Sink {
	case "none":
		return audit.NewNoopLogger(), nil, nil
	case "db":
		dbLogger, err := audit.NewDBLogger(db)
		return dbLogger, dbLogger, err
	case "file":
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FilePath,
			Rotate:   true,
		})
		return fileLogger, nil, err
	case "both":
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FilePath,
			Rotate:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		return audit.NewMultiLogger(dbLogger, fileLogger), dbLogger, nil
	}
	return nil, nil, fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
}

// startRetentionSweep schedules periodic deletion of expired audit rows.
// Returns nil when no database sink or retention window is configured.
func startRetentionSweep(cfg *config.Config, auditDB *audit.DBLogger) *cron.Cron {
	if auditDB == nil || cfg.Audit.RetentionDays <= 0 {
		return nil
	}

	sweepLog := logrus.New()
	sweepLog.SetFormatter(&logrus.JSONFormatter{})

	c := cron.New(cron.WithLogger(cron.PrintfLogger(sweepLog)))
	_, err := c.AddFunc(cfg.Audit.SweepSchedule, func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Audit.RetentionDays)
		deleted, err := auditDB.Purge(context.Background(), cutoff)
		if err != nil {
			sweepLog.WithError(err).Error("Audit retention sweep failed")
			return
		}
		sweepLog.WithField("deleted", deleted).Info("Audit retention sweep completed")
	})
	if err != nil {
		log.Fatalf("Invalid audit sweep schedule %q: %v", cfg.Audit.SweepSchedule, err)
	}

	c.Start()
	return c
}
