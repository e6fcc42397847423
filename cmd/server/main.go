package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"studiobook/internal/api"
	"studiobook/internal/auth"
	"studiobook/internal/booking"
	"studiobook/internal/config"
	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/notify"
	"studiobook/internal/sheets"
	"studiobook/internal/storage"
	"studiobook/internal/storage/postgres"
	"studiobook/internal/storage/redisstore"
	"studiobook/internal/storage/sqlite"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("STUDIOBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if len(cfg.Auth.Operators) == 0 {
		logger.Warn().Msg("no operators configured; admin endpoints are unreachable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, sqliteStore, err := buildStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	bus := events.NewBus()
	svc := booking.NewService(store, bus, &logger)
	authSvc := auth.NewService(cfg.Auth.Operators, cfg.Auth.Secret, cfg.TokenTTL(), &logger)

	if cfg.Telegram.Enabled {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start Telegram notifier")
		}
		notifier.SubscribeTo(bus)
	}

	if cfg.Sheets.Enabled {
		creds, err := os.ReadFile(cfg.Sheets.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to read sheets credentials")
		}
		sheetSvc, err := sheets.New(ctx, creds, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init sheets sync")
		}
		sheetSvc.SubscribeTo(bus)

		if bookings, err := svc.List(ctx, ""); err != nil {
			logger.Error().Err(err).Msg("initial sheets sync: list failed")
		} else if err := sheetSvc.SyncAll(ctx, bookings); err != nil {
			logger.Error().Err(err).Msg("initial sheets sync failed")
		}
	}

	if cfg.Backup.Enabled && sqliteStore != nil {
		backup := sqlite.NewBackupService(sqliteStore.Path(), sqlite.BackupConfig{
			Enabled:       true,
			Path:          cfg.Backup.Path,
			IntervalHours: cfg.Backup.IntervalHours,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewServer(cfg.Server.Address, svc, authSvc, &logger)
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("studio booking service started")
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// buildStore opens the configured backend, wrapping it in a failover store
// when a fallback is set. The sqlite store is returned separately so the
// backup service can reach the database file.
func buildStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (storage.Store, *sqlite.Store, error) {
	var sqliteStore *sqlite.Store

	open := func(backend string) (storage.Store, error) {
		switch backend {
		case config.BackendSQLite:
			s, err := sqlite.Open(cfg.Storage.SQLite.Path, cfg.StorageOpTimeout(), logger)
			if err != nil {
				return nil, err
			}
			sqliteStore = s
			return s, nil
		case config.BackendPostgres:
			return postgres.Open(ctx, cfg.Storage.Postgres.DSN, cfg.StorageOpTimeout(), logger)
		case config.BackendRedis:
			return redisstore.Open(ctx, redisstore.Options{
				Address:  cfg.Storage.Redis.Address,
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			}, cfg.StorageOpTimeout(), logger)
		default:
			return nil, fmt.Errorf("unknown storage backend %q", backend)
		}
	}

	primary, err := open(cfg.Storage.Backend)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Storage.Fallback == "" {
		return primary, sqliteStore, nil
	}

	fallback, err := open(cfg.Storage.Fallback)
	if err != nil {
		primary.Close()
		return nil, nil, fmt.Errorf("open fallback backend: %w", err)
	}

	return storage.NewFailoverStore(primary, fallback, logger), sqliteStore, nil
}

func startHealthServer(ctx context.Context, port int, store storage.Store, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(ctxPing); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
